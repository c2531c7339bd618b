package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/spec-kit/event-checkin/internal/phone"
)

// chatListSelector is visible only once the web client is logged in.
const chatListSelector = "#pane-side"

var (
	// ErrSessionRejected means a persisted session blob was loaded but the
	// web client did not accept it. Delete the blob and pair again.
	ErrSessionRejected = errors.New("persisted whatsapp session rejected")
	// ErrPairingTimeout means nobody scanned the pairing code in time.
	ErrPairingTimeout = errors.New("whatsapp pairing timed out")
	// ErrNotEstablished is returned by Send before Establish succeeded.
	ErrNotEstablished = errors.New("whatsapp session not established")
)

// Config drives the browser session.
type Config struct {
	BaseURL         string
	SessionFile     string
	ComposeSelector string
	Headless        bool
	PairingTimeout  time.Duration
	ComposeTimeout  time.Duration
	// SettleDelay lets the client flush the outgoing message before the next
	// navigation.
	SettleDelay time.Duration
}

// Session drives WhatsApp Web in a headless Chrome tab. It is not safe for
// concurrent use; the notification worker is its only caller.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	browser     context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	closed      bool

	// login and save are the browser steps of Establish.
	login func(ctx context.Context, stored []StoredCookie) error
	save  func() error
}

// NewSession prepares a session; no browser is started until Establish.
func NewSession(cfg Config, logger *zap.Logger) *Session {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://web.whatsapp.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	s := &Session{cfg: cfg, logger: logger}
	s.login = s.browserLogin
	s.save = s.persist
	return s
}

// Establish launches the browser and logs in, either by restoring the
// persisted cookies or by waiting for an interactive pairing.
func (s *Session) Establish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotEstablished
	}

	stored, err := LoadCookies(s.cfg.SessionFile)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		s.logger.Info("no saved whatsapp session; scan the pairing code in the browser window",
			zap.Duration("timeout", s.cfg.PairingTimeout))
	}

	if err := s.login(ctx, stored); err != nil {
		if len(stored) > 0 {
			return fmt.Errorf("%w: %v", ErrSessionRejected, err)
		}
		return fmt.Errorf("%w: %v", ErrPairingTimeout, err)
	}

	if len(stored) == 0 {
		if err := s.save(); err != nil {
			s.logger.Warn("could not persist whatsapp session", zap.Error(err))
		} else {
			s.logger.Info("whatsapp session persisted", zap.String("file", s.cfg.SessionFile))
		}
	}
	return nil
}

// browserLogin starts Chrome, restores stored cookies if any and waits for
// the chat list. The browser is released again on failure.
func (s *Session) browserLogin(ctx context.Context, stored []StoredCookie) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browser, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(s.logger.Sugar().Debugf))
	s.browser, s.cancelTab, s.cancelAlloc = browser, cancelTab, cancelAlloc

	runCtx, cancel := s.bounded(ctx, s.cfg.PairingTimeout)
	defer cancel()

	actions := chromedp.Tasks{}
	if len(stored) > 0 {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies(toCookieParams(stored)).Do(ctx)
		}))
	}
	actions = append(actions,
		chromedp.Navigate(s.cfg.BaseURL),
		chromedp.WaitVisible(chatListSelector, chromedp.ByQuery),
	)

	if err := chromedp.Run(runCtx, actions); err != nil {
		s.release()
		return err
	}
	return nil
}

// Send opens the chat for recipient with text pre-filled and submits it.
// recipient is an E.164 number with the leading plus.
func (s *Session) Send(ctx context.Context, recipient, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil || s.closed {
		return ErrNotEstablished
	}

	runCtx, cancel := s.bounded(ctx, s.cfg.ComposeTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(SendURL(s.cfg.BaseURL, recipient, text)),
		chromedp.WaitVisible(s.cfg.ComposeSelector, chromedp.BySearch),
		chromedp.SendKeys(s.cfg.ComposeSelector, kb.Enter, chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("send to %s: %w", recipient, err)
	}

	// Not bounded by the compose timeout.
	settle := time.NewTimer(s.cfg.SettleDelay)
	defer settle.Stop()
	select {
	case <-settle.C:
	case <-ctx.Done():
	}
	return nil
}

// Close shuts the browser down. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.browser != nil {
		err = chromedp.Cancel(s.browser)
	}
	s.release()
	return err
}

// SendURL builds the deep link that opens a chat with text pre-filled.
func SendURL(baseURL, recipient, text string) string {
	q := url.Values{}
	q.Set("phone", phone.Digits(recipient))
	q.Set("text", text)
	return strings.TrimRight(baseURL, "/") + "/send?" + q.Encode()
}

func (s *Session) persist() error {
	var cookies []*network.Cookie
	err := chromedp.Run(s.browser, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("read browser cookies: %w", err)
	}
	return SaveCookies(s.cfg.SessionFile, fromNetworkCookies(cookies))
}

// bounded derives a context from the browser tab that also ends when
// caller ends or timeout elapses.
func (s *Session) bounded(caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(s.browser, timeout)
	} else {
		ctx, cancel = context.WithCancel(s.browser)
	}
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) release() {
	if s.cancelTab != nil {
		s.cancelTab()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
	s.browser, s.cancelTab, s.cancelAlloc = nil, nil, nil
}
