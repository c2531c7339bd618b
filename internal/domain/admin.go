package domain

import "time"

// Admin is an operator allowed to approve, reject and message registrants.
type Admin struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
