package domain

import "time"

// SubjectType differentiates token subjects.
type SubjectType string

const (
	SubjectTypeAdmin SubjectType = "ADMIN"
)

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	ExpiresAt time.Time
	IssuedAt  time.Time
}
