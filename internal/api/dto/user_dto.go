package dto

import (
	"time"

	"github.com/spec-kit/event-checkin/internal/domain"
)

// UserRegisterRequest is accepted as a form post or JSON.
type UserRegisterRequest struct {
	Name          string `json:"name" form:"name"`
	Batch         string `json:"batch" form:"batch"`
	Branch        string `json:"branch" form:"branch"`
	PhoneNumber   string `json:"phone_number" form:"phone_number"`
	TransactionID string `json:"transaction_id" form:"transaction_id"`
}

// UserResponse is the admin view of a registrant.
type UserResponse struct {
	UserID         string     `json:"user_id"`
	Name           string     `json:"name"`
	Batch          string     `json:"batch"`
	Branch         string     `json:"branch"`
	PhoneNumber    string     `json:"phone_number"`
	TransactionID  string     `json:"transaction_id"`
	ApprovalStatus string     `json:"approval_status"`
	CheckInStatus  string     `json:"check_in_status"`
	QRCodeImageURL *string    `json:"qr_code_image_url"`
	CheckedInAt    *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		UserID:         user.ID,
		Name:           user.Name,
		Batch:          user.Batch,
		Branch:         user.Branch,
		PhoneNumber:    user.PhoneNumber,
		TransactionID:  user.TransactionID,
		ApprovalStatus: string(user.ApprovalStatus),
		CheckInStatus:  string(user.CheckInStatus),
		QRCodeImageURL: user.QRCodeURL,
		CheckedInAt:    user.CheckedInAt,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
}

// DecisionResponse answers approve and reject.
type DecisionResponse struct {
	Message      string  `json:"message"`
	UserID       string  `json:"user_id"`
	Notification string  `json:"notification"`
	QRCodeURL    *string `json:"qr_code_url,omitempty"`
}
