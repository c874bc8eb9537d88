// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the canonical, provider-independent identity of a person.
//
// A user may authenticate through several providers (local password, Google
// OAuth); whichever route they take, they resolve to exactly one User row,
// matched by case-normalized email. Everything else in the system references
// a user only by ID.
//
// PasswordHash is a bcrypt hash and is empty for users who have only ever
// signed in through an external provider. It is never serialized.
type User struct {
	ID            string    `json:"id"            db:"id"`
	GivenName     string    `json:"givenName"     db:"given_name"`
	FamilyName    string    `json:"familyName"    db:"family_name"`
	Email         string    `json:"email"         db:"email"` // unique, stored lowercase
	EmailVerified bool      `json:"emailVerified" db:"email_verified"`
	PasswordHash  string    `json:"-"             db:"password_hash"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}
