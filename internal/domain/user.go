package domain

import (
	"errors"

	"github.com/google/uuid"
)

// Common validation errors for User
var (
	ErrEmptyUserID    = errors.New("user ID cannot be empty")
	ErrEmptyUserEmail = errors.New("user email cannot be empty")
)

// User is the owner of zero or more tasks. The reminder pipeline only reads
// users; account management lives outside this service.
type User struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	EmailNotifications bool      `json:"email_notifications"`
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}

	if u.Email == "" {
		return ErrEmptyUserEmail
	}

	return nil
}
