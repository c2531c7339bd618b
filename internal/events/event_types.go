package events

import (
	"time"

	"github.com/spec-kit/event-checkin/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered        EventType = "user_registered"
	EventUserApproved          EventType = "user_approved"
	EventUserRejected          EventType = "user_rejected"
	EventUserCheckedIn         EventType = "user_checked_in"
	EventCredentialRegenerated EventType = "credential_regenerated"
)

// AllEventTypes lists every lifecycle event in publication order.
var AllEventTypes = []EventType{
	EventUserRegistered,
	EventUserApproved,
	EventUserRejected,
	EventUserCheckedIn,
	EventCredentialRegenerated,
}

// Actor encapsulates actor metadata for an event. Anonymous actions such as
// self registration and gate scans carry no admin ID.
type Actor struct {
	Type    domain.SubjectType `json:"type,omitempty"`
	AdminID *string            `json:"admin_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	Batch  string `json:"batch"`
	Branch string `json:"branch"`
}

// DecisionPayload accompanies approvals and rejections.
type DecisionPayload struct {
	Notification string  `json:"notification"`
	QRCodeURL    *string `json:"qr_code_url,omitempty"`
}

// CheckedInPayload payload.
type CheckedInPayload struct {
	CheckedInAt time.Time `json:"checked_in_at"`
}

// CredentialRegeneratedPayload payload.
type CredentialRegeneratedPayload struct {
	QRCodeURL string `json:"qr_code_url"`
}
