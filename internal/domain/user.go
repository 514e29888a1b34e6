package domain

import (
	"github.com/google/uuid"
)

// User represents a registered patron. Users act as the borrowing or
// returning party on lending events and are never deleted, since the
// event log references them indefinitely.
type User struct {
	// ID is the unique identifier for the user.
	ID uuid.UUID `json:"id"`

	// Name is the display name shown as the borrower of a copy.
	// Constraints: 1-128 characters.
	Name string `json:"name"`

	// Email is the unique email address for the user.
	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	// Never exposed in API responses. Empty for users provisioned
	// through an external identity provider.
	PasswordHash string `json:"-"`

	// Version is the optimistic concurrency token.
	Version uuid.UUID `json:"-"`
}

// NewUser creates a new User with a fresh identity and version token.
func NewUser(name, email, passwordHash string) *User {
	return &User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Version:      uuid.New(),
	}
}
