package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/event-checkin/internal/domain"
)

var (
	// ErrChannelClosed is returned once Stop has been called or Start failed.
	ErrChannelClosed = errors.New("notification channel closed")
	// ErrChannelNotReady is returned when Deliver is called before Start.
	ErrChannelNotReady = errors.New("notification channel not ready")
	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("notification channel already started")
)

// Session is the exclusively owned connection to the messaging surface.
// Send is only ever called from the worker goroutine.
type Session interface {
	Establish(ctx context.Context) error
	Send(ctx context.Context, recipient, text string) error
	Close() error
}

// DeliveryMetrics receives delivery outcomes and queue depth.
type DeliveryMetrics interface {
	RecordDelivery(outcome string)
	SetRetryDepth(depth int)
}

// State of the channel lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateEstablishing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateEstablishing:
		return "establishing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome reports what happened to a delivery request.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
)

// Metric outcome labels beyond the two caller-visible outcomes.
const (
	metricRetried = "retried"
	metricDropped = "dropped"
	metricExpired = "expired"
	metricLost    = "lost"
)

// Options tunes pacing and redelivery.
type Options struct {
	// MinDelay is charged after every successful send.
	MinDelay time.Duration
	// RetryInterval is the drain tick and the first retry backoff.
	RetryInterval time.Duration
	// MaxBackoff caps the per-message retry backoff.
	MaxBackoff time.Duration
	// RetryCapacity bounds the retry queue; the oldest entry is evicted.
	RetryCapacity int
	// RetryMaxAttempts counts the first attempt too.
	RetryMaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.RetryInterval <= 0 {
		o.RetryInterval = 30 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 10 * time.Minute
	}
	if o.RetryCapacity <= 0 {
		o.RetryCapacity = 256
	}
	if o.RetryMaxAttempts <= 0 {
		o.RetryMaxAttempts = 5
	}
	return o
}

type deliveryJob struct {
	msg    domain.OutboundMessage
	result chan Outcome
}

// NotificationWorker funnels every delivery through one goroutine that owns
// the messaging session and the retry queue. Failed deliveries are queued
// and retried with exponential backoff; callers are never handed a delivery
// error.
type NotificationWorker struct {
	session Session
	opts    Options
	logger  *zap.Logger
	metrics DeliveryMetrics
	now     func() time.Time

	state   atomic.Int32
	pending atomic.Int64
	jobs    chan deliveryJob
	quit    chan struct{}
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
	queue    *retryQueue
}

// NewNotificationWorker constructs an uninitialized worker.
func NewNotificationWorker(session Session, opts Options, logger *zap.Logger, metrics DeliveryMetrics) *NotificationWorker {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationWorker{
		session: session,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		jobs:    make(chan deliveryJob),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		queue:   newRetryQueue(opts.RetryCapacity),
	}
}

// State returns the current lifecycle state.
func (w *NotificationWorker) State() State {
	return State(w.state.Load())
}

// Pending returns the number of messages waiting for redelivery.
func (w *NotificationWorker) Pending() int {
	return int(w.pending.Load())
}

// Start establishes the session and launches the owner goroutine. A failed
// establishment leaves the worker closed.
func (w *NotificationWorker) Start(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateUninitialized), int32(StateEstablishing)) {
		return ErrAlreadyStarted
	}
	w.logger.Info("establishing messaging session")
	if err := w.session.Establish(ctx); err != nil {
		w.state.Store(int32(StateClosed))
		w.cancel()
		close(w.done)
		if closeErr := w.session.Close(); closeErr != nil {
			w.logger.Warn("close messaging session", zap.Error(closeErr))
		}
		return fmt.Errorf("establish messaging session: %w", err)
	}

	if !w.state.CompareAndSwap(int32(StateEstablishing), int32(StateReady)) {
		// Stop won the race while the session was being established.
		close(w.done)
		_ = w.session.Close()
		return ErrChannelClosed
	}
	go w.run()
	w.logger.Info("messaging session ready")
	return nil
}

// Stop shuts the worker down and releases the session. It is safe to call
// more than once and from any state.
func (w *NotificationWorker) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		prev := State(w.state.Swap(int32(StateClosed)))
		switch prev {
		case StateClosed:
			return
		case StateReady:
			close(w.quit)
			w.cancel()
			<-w.done
		default:
			close(w.quit)
			w.cancel()
		}
		err = w.session.Close()
		w.logger.Info("messaging session closed")
	})
	return err
}

// Deliver sends text to recipient, waiting for its turn on the session. The
// returned error is only non-nil when the channel is not running or ctx ends
// before the worker answers; a failed send is reported as OutcomeQueued.
func (w *NotificationWorker) Deliver(ctx context.Context, recipient, text string) (Outcome, error) {
	switch w.State() {
	case StateReady:
	case StateClosed:
		return "", ErrChannelClosed
	default:
		return "", ErrChannelNotReady
	}

	job := deliveryJob{
		msg: domain.OutboundMessage{
			Recipient:  recipient,
			Body:       text,
			EnqueuedAt: w.now(),
		},
		result: make(chan Outcome, 1),
	}

	select {
	case w.jobs <- job:
	case <-w.quit:
		return "", ErrChannelClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case outcome := <-job.result:
		return outcome, nil
	case <-w.done:
		return "", ErrChannelClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (w *NotificationWorker) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.opts.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			w.abandonQueue()
			return
		case job := <-w.jobs:
			job.result <- w.handle(job.msg)
		case <-ticker.C:
			w.drainDue()
		}
	}
}

func (w *NotificationWorker) handle(msg domain.OutboundMessage) Outcome {
	if err := w.attempt(msg); err != nil {
		w.logger.Warn("delivery failed; queued for retry",
			zap.String("recipient", msg.Recipient),
			zap.Error(err))
		msg.Attempts = 1
		msg.NextAttemptAt = w.now().Add(w.retryDelay(msg.Attempts))
		w.enqueue(msg)
		w.metrics.RecordDelivery(string(OutcomeQueued))
		return OutcomeQueued
	}
	w.metrics.RecordDelivery(string(OutcomeDelivered))
	return OutcomeDelivered
}

func (w *NotificationWorker) drainDue() {
	due := w.queue.takeDue(w.now())
	w.publishDepth()

	for i, msg := range due {
		select {
		case <-w.quit:
			for _, rest := range due[i:] {
				w.enqueue(rest)
			}
			return
		default:
		}

		err := w.attempt(msg)
		if err == nil {
			w.logger.Info("queued message delivered",
				zap.String("recipient", msg.Recipient),
				zap.Int("attempts", msg.Attempts+1))
			w.metrics.RecordDelivery(metricRetried)
			continue
		}

		msg.Attempts++
		if msg.Attempts >= w.opts.RetryMaxAttempts {
			w.logger.Error("giving up on message",
				zap.String("recipient", msg.Recipient),
				zap.Int("attempts", msg.Attempts),
				zap.Time("enqueued_at", msg.EnqueuedAt),
				zap.Error(err))
			w.metrics.RecordDelivery(metricExpired)
			continue
		}
		msg.NextAttemptAt = w.now().Add(w.retryDelay(msg.Attempts))
		w.logger.Warn("retry failed",
			zap.String("recipient", msg.Recipient),
			zap.Int("attempts", msg.Attempts),
			zap.Time("next_attempt_at", msg.NextAttemptAt),
			zap.Error(err))
		w.enqueue(msg)
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordDelivery(string) {}
func (noopMetrics) SetRetryDepth(int)     {}

// attempt performs one send and charges MinDelay on success.
func (w *NotificationWorker) attempt(msg domain.OutboundMessage) error {
	if err := w.session.Send(w.ctx, msg.Recipient, msg.Body); err != nil {
		return err
	}
	if w.opts.MinDelay > 0 {
		timer := time.NewTimer(w.opts.MinDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-w.ctx.Done():
		}
	}
	return nil
}

func (w *NotificationWorker) enqueue(msg domain.OutboundMessage) {
	if evicted := w.queue.push(msg); evicted != nil {
		w.logger.Error("retry queue full; dropping oldest message",
			zap.String("recipient", evicted.Recipient),
			zap.Int("attempts", evicted.Attempts),
			zap.Time("enqueued_at", evicted.EnqueuedAt))
		w.metrics.RecordDelivery(metricDropped)
	}
	w.publishDepth()
}

func (w *NotificationWorker) abandonQueue() {
	lost := w.queue.drain()
	w.publishDepth()
	if len(lost) == 0 {
		return
	}
	for range lost {
		w.metrics.RecordDelivery(metricLost)
	}
	w.logger.Warn("discarding undelivered messages on shutdown", zap.Int("count", len(lost)))
}

func (w *NotificationWorker) publishDepth() {
	depth := w.queue.len()
	w.pending.Store(int64(depth))
	w.metrics.SetRetryDepth(depth)
}

// retryDelay returns the backoff before attempt number attempts+1.
func (w *NotificationWorker) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.opts.RetryInterval
	b.MaxInterval = w.opts.MaxBackoff
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.InitialInterval
	for i := 0; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
