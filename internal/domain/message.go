package domain

import "time"

// OutboundMessage is a unit of work for the notification channel. It only
// lives in process memory.
type OutboundMessage struct {
	Recipient     string
	Body          string
	EnqueuedAt    time.Time
	Attempts      int
	NextAttemptAt time.Time
}
