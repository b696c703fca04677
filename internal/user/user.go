// Package user defines the user model used throughout the application,
// particularly for authentication and bookmark ownership.
package user

import "time"

// User represents a registered account.
// PasswordHash stores a bcrypt hash and is never serialized to JSON.
type User struct {
	// ID is the unique identifier of the user, meaning a UUID.
	ID string

	Username     string
	Email        string
	PasswordHash string

	CreatedAt time.Time
	UpdatedAt time.Time
}
