package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenTTL is how long an issued refresh token may be exchanged.
const RefreshTokenTTL = 30 * 24 * time.Hour

// NewRefreshToken returns a random opaque refresh token.
// Two v4 UUIDs give 244 bits of randomness.
func NewRefreshToken() string {
	return uuid.NewString() + uuid.NewString()
}

// HashToken returns the hex SHA-256 of token. The database only ever sees this
// value, so a leaked table cannot be replayed against the token endpoint.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
