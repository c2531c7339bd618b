package whatsapp

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// StubSession logs messages instead of sending them. It backs local
// development when WHATSAPP_ENABLED is false.
type StubSession struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent int
}

// NewStubSession constructs a StubSession.
func NewStubSession(logger *zap.Logger) *StubSession {
	return &StubSession{logger: logger}
}

func (s *StubSession) Establish(context.Context) error {
	s.logger.Warn("whatsapp disabled; notifications are logged only")
	return nil
}

func (s *StubSession) Send(_ context.Context, recipient, text string) error {
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	s.logger.Info("notification (not sent)", zap.String("recipient", recipient), zap.String("text", text))
	return nil
}

func (s *StubSession) Close() error {
	return nil
}

// Sent reports how many messages were logged.
func (s *StubSession) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}
