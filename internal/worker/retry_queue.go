package worker

import (
	"time"

	"github.com/spec-kit/event-checkin/internal/domain"
)

// retryQueue is a bounded FIFO owned by the worker goroutine. It is not safe
// for concurrent use.
type retryQueue struct {
	items    []domain.OutboundMessage
	capacity int
}

func newRetryQueue(capacity int) *retryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &retryQueue{capacity: capacity}
}

// push appends msg. When the queue is full the oldest entry is evicted and
// returned.
func (q *retryQueue) push(msg domain.OutboundMessage) (evicted *domain.OutboundMessage) {
	if len(q.items) >= q.capacity {
		oldest := q.items[0]
		q.items = q.items[1:]
		evicted = &oldest
	}
	q.items = append(q.items, msg)
	return evicted
}

// takeDue removes and returns every entry whose NextAttemptAt is not after
// now, keeping the relative order of the rest.
func (q *retryQueue) takeDue(now time.Time) []domain.OutboundMessage {
	var due []domain.OutboundMessage
	kept := q.items[:0]
	for _, msg := range q.items {
		if !msg.NextAttemptAt.After(now) {
			due = append(due, msg)
			continue
		}
		kept = append(kept, msg)
	}
	q.items = kept
	return due
}

func (q *retryQueue) len() int {
	return len(q.items)
}

func (q *retryQueue) drain() []domain.OutboundMessage {
	out := q.items
	q.items = nil
	return out
}
