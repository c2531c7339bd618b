package domain

import "time"

// ApprovalStatus represents the administrative decision on a registration.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// CheckInStatus tracks whether an attendee has entered the event.
type CheckInStatus string

const (
	CheckInStatusNotCheckedIn CheckInStatus = "not_checked_in"
	CheckInStatusCheckedIn    CheckInStatus = "checked_in"
)

// User is a registrant for the event.
type User struct {
	ID             string
	Name           string
	Batch          string
	Branch         string
	PhoneNumber    string
	TransactionID  string
	ApprovalStatus ApprovalStatus
	CheckInStatus  CheckInStatus
	QRCodeURL      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CheckedInAt    *time.Time
}

// IsPending reports whether the user still awaits an admin decision.
func (u *User) IsPending() bool {
	return u.ApprovalStatus == ApprovalStatusPending
}

// IsCheckedIn reports whether the user has already been scanned in.
func (u *User) IsCheckedIn() bool {
	return u.CheckInStatus == CheckInStatusCheckedIn
}
