package model

import "time"

// User represents a registered account on the hosted backend.
//
// Accounts are provisioned by an operator (there is no sign-up flow), so the
// email is the login identifier and must be unique. PasswordHash never leaves
// the server: the json:"-" tag drops it from every response.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the projection of a user that the client screens display.
type Identity struct {
	ID          string
	DisplayName string
	Email       string
}

// Identity returns the display projection. DisplayName falls back to the email.
func (u *User) Identity() Identity {
	name := u.DisplayName
	if name == "" {
		name = u.Email
	}
	return Identity{ID: u.ID, DisplayName: name, Email: u.Email}
}

// RefreshToken is the server-side record of an issued refresh token.
// Only the SHA-256 hash of the token is stored.
type RefreshToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Active reports whether the token can still be exchanged at time now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
