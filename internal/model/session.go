package model

import "time"

// Session is an authenticated session as issued by the auth provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Valid reports whether the session still carries a usable access token.
// A session with a zero ExpiresAt is treated as non-expiring.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// ImageSelection is an image the user picked on the device. MIMEType and
// FileSize are optional: an empty type or a zero size means "unknown".
type ImageSelection struct {
	URI      string
	MIMEType string
	FileName string
	FileSize int64
}
