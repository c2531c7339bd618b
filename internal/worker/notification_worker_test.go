package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/event-checkin/internal/domain"
)

type fakeSession struct {
	mu          sync.Mutex
	establishFn func(ctx context.Context) error
	sendFn      func(attempt int, recipient, text string) error
	sends       []sentMessage
	attempts    int
	closed      int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

type sentMessage struct {
	recipient string
	text      string
	at        time.Time
}

func (f *fakeSession) Establish(ctx context.Context) error {
	if f.establishFn != nil {
		return f.establishFn(ctx)
	}
	return nil
}

func (f *fakeSession) Send(_ context.Context, recipient, text string) error {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxInFlight.Load()
		if current <= seen || f.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.sendFn != nil {
		if err := f.sendFn(f.attempts, recipient, text); err != nil {
			return err
		}
	}
	f.sends = append(f.sends, sentMessage{recipient: recipient, text: text, at: time.Now()})
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSession) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sends...)
}

func (f *fakeSession) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	depth    int
}

func (m *recordingMetrics) RecordDelivery(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]int{}
	}
	m.outcomes[outcome]++
}

func (m *recordingMetrics) SetRetryDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth = depth
}

func (m *recordingMetrics) count(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[outcome]
}

func startWorker(t *testing.T, session *fakeSession, opts Options, metrics DeliveryMetrics) *NotificationWorker {
	t.Helper()
	w := NewNotificationWorker(session, opts, zap.NewNop(), metrics)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestDeliverChargesMinimumDelayBetweenSends(t *testing.T) {
	session := &fakeSession{}
	w := startWorker(t, session, Options{MinDelay: 40 * time.Millisecond, RetryInterval: time.Hour}, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		outcome, err := w.Deliver(ctx, "+8801712345678", "hello")
		require.NoError(t, err)
		assert.Equal(t, OutcomeDelivered, outcome)
	}

	sends := session.sent()
	require.Len(t, sends, 3)
	for i := 1; i < len(sends); i++ {
		assert.GreaterOrEqual(t, sends[i].at.Sub(sends[i-1].at), 40*time.Millisecond)
	}
}

func TestDeliverSerializesConcurrentCallers(t *testing.T) {
	session := &fakeSession{}
	w := startWorker(t, session, Options{RetryInterval: time.Hour}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := w.Deliver(context.Background(), "+8801712345678", "hi")
			assert.NoError(t, err)
			assert.Equal(t, OutcomeDelivered, outcome)
		}()
	}
	wg.Wait()

	assert.Len(t, session.sent(), 16)
	assert.Equal(t, int32(1), session.maxInFlight.Load())
}

func TestFailedDeliveryIsQueuedAndRetried(t *testing.T) {
	session := &fakeSession{
		sendFn: func(attempt int, _, _ string) error {
			if attempt == 1 {
				return errors.New("compose box not found")
			}
			return nil
		},
	}
	metrics := &recordingMetrics{}
	w := startWorker(t, session, Options{RetryInterval: 20 * time.Millisecond}, metrics)

	outcome, err := w.Deliver(context.Background(), "+8801712345678", "approved")
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome)

	require.Eventually(t, func() bool {
		return len(session.sent()) == 1 && w.Pending() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "approved", session.sent()[0].text)
	assert.Equal(t, 1, metrics.count("queued"))
	assert.Equal(t, 1, metrics.count("retried"))
}

func TestQueuedMessageExpiresAfterMaxAttempts(t *testing.T) {
	session := &fakeSession{
		sendFn: func(int, string, string) error { return errors.New("offline") },
	}
	metrics := &recordingMetrics{}
	w := startWorker(t, session, Options{
		RetryInterval:    10 * time.Millisecond,
		MaxBackoff:       10 * time.Millisecond,
		RetryMaxAttempts: 3,
	}, metrics)

	outcome, err := w.Deliver(context.Background(), "+8801712345678", "approved")
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome)

	require.Eventually(t, func() bool {
		return metrics.count("expired") == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, session.attemptCount())
	assert.Equal(t, 0, w.Pending())
}

func TestRetryQueueEvictsOldestWhenFull(t *testing.T) {
	session := &fakeSession{
		sendFn: func(int, string, string) error { return errors.New("offline") },
	}
	metrics := &recordingMetrics{}
	w := startWorker(t, session, Options{RetryInterval: time.Hour, RetryCapacity: 2}, metrics)

	for _, recipient := range []string{"+8801700000001", "+8801700000002", "+8801700000003"} {
		outcome, err := w.Deliver(context.Background(), recipient, "hi")
		require.NoError(t, err)
		assert.Equal(t, OutcomeQueued, outcome)
	}

	assert.Equal(t, 2, w.Pending())
	assert.Equal(t, 1, metrics.count("dropped"))
}

func TestStopClosesChannel(t *testing.T) {
	session := &fakeSession{}
	w := NewNotificationWorker(session, Options{RetryInterval: time.Hour}, zap.NewNop(), nil)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	assert.Equal(t, StateClosed, w.State())
	assert.Equal(t, 1, session.closeCount())

	_, err := w.Deliver(context.Background(), "+8801712345678", "hi")
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
}

func TestStartFailureLeavesChannelClosed(t *testing.T) {
	session := &fakeSession{
		establishFn: func(context.Context) error { return errors.New("session rejected") },
	}
	w := NewNotificationWorker(session, Options{}, zap.NewNop(), nil)

	err := w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session rejected")
	assert.Equal(t, StateClosed, w.State())
	assert.Equal(t, 1, session.closeCount())

	_, err = w.Deliver(context.Background(), "+8801712345678", "hi")
	assert.ErrorIs(t, err, ErrChannelClosed)
	require.NoError(t, w.Stop())
}

func TestDeliverBeforeStart(t *testing.T) {
	w := NewNotificationWorker(&fakeSession{}, Options{}, nil, nil)

	_, err := w.Deliver(context.Background(), "+8801712345678", "hi")
	assert.ErrorIs(t, err, ErrChannelNotReady)
	assert.Equal(t, StateUninitialized, w.State())
}

func TestDeliverHonoursCallerContext(t *testing.T) {
	release := make(chan struct{})
	session := &fakeSession{
		sendFn: func(attempt int, _, _ string) error {
			if attempt == 1 {
				<-release
			}
			return nil
		},
	}
	w := startWorker(t, session, Options{RetryInterval: time.Hour}, nil)

	go func() {
		_, _ = w.Deliver(context.Background(), "+8801700000001", "first")
	}()
	require.Eventually(t, func() bool { return session.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Deliver(ctx, "+8801700000002", "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestRetryQueueTakeDueKeepsOrder(t *testing.T) {
	now := time.Now()
	q := newRetryQueue(4)
	q.push(domainMessage("a", now.Add(-time.Second)))
	q.push(domainMessage("b", now.Add(time.Minute)))
	q.push(domainMessage("c", now))

	due := q.takeDue(now)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].Recipient)
	assert.Equal(t, "c", due[1].Recipient)
	assert.Equal(t, 1, q.len())

	left := q.drain()
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].Recipient)
	assert.Equal(t, 0, q.len())
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	w := NewNotificationWorker(&fakeSession{}, Options{RetryInterval: time.Second, MaxBackoff: 2 * time.Second}, nil, nil)

	assert.Equal(t, time.Second, w.retryDelay(1))
	assert.Equal(t, 1500*time.Millisecond, w.retryDelay(2))
	assert.Equal(t, 2*time.Second, w.retryDelay(3))
	assert.Equal(t, 2*time.Second, w.retryDelay(8))
}

func domainMessage(recipient string, due time.Time) domain.OutboundMessage {
	return domain.OutboundMessage{Recipient: recipient, Body: "hi", NextAttemptAt: due}
}
