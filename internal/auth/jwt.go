// Package auth provides the token and password primitives of the hosted backend.
//
// TOKEN KINDS:
//   - access token: HS256 JWT, subject = user id, 1 hour. Sent as
//     "Authorization: Bearer <jwt>" on every table and storage request.
//   - refresh token: opaque random string (see refresh.go). Only its hash is
//     stored server side and it is rotated on every use.
//   - object token: HS256 JWT scoped to one bucket/key pair. It is the
//     signature part of a signed download URL.
//
// WHY JWT FOR ACCESS TOKENS?
// Handlers validate the signature with the secret alone, so the hot path
// (list, get, upload) never touches the users table.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "field-survey"

	// AccessTokenTTL is how long an access token stays valid.
	AccessTokenTTL = time.Hour

	audienceAccess = "authenticated"
	audienceObject = "storage"
)

// ErrTokenExpired is returned by Validate for a well-formed but expired token.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// claims is the JWT payload. Email is carried so the client can show who is
// signed in without another round trip.
type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// objectClaims scope a signature to a single stored object.
type objectClaims struct {
	jwt.RegisteredClaims
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Generate creates an access token for userID valid for AccessTokenTTL.
func (s *TokenService) Generate(userID, email string) (string, error) {
	return s.GenerateWithDuration(userID, email, AccessTokenTTL)
}

// GenerateWithDuration creates an access token with a custom lifetime.
// Tests use negative durations to mint expired tokens.
func (s *TokenService) GenerateWithDuration(userID, email string, d time.Duration) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceAccess},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Email: email,
	}
	return s.sign(c)
}

// Validate verifies an access token and returns the user id in "sub".
//
// Checks performed by the jwt library: signature, expiry, issuer, audience and
// algorithm. Pinning the algorithm to HS256 blocks the "alg: none" attack.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c claims
	if err := s.parse(tokenStr, &c, audienceAccess); err != nil {
		return "", err
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}

// SignObject mints a token granting read access to bucket/key for ttl.
func (s *TokenService) SignObject(bucket, key string, ttl time.Duration) (string, error) {
	now := s.now()
	c := objectClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audienceObject},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		Bucket: bucket,
		Key:    key,
	}
	return s.sign(c)
}

// ValidateObject checks that tokenStr was issued for exactly bucket/key.
func (s *TokenService) ValidateObject(tokenStr, bucket, key string) error {
	var c objectClaims
	if err := s.parse(tokenStr, &c, audienceObject); err != nil {
		return err
	}
	if c.Bucket != bucket || c.Key != key {
		return fmt.Errorf("auth: token not valid for %s/%s", bucket, key)
	}
	return nil
}

func (s *TokenService) sign(c jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(tokenStr string, c jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("auth: invalid token claims")
	}
	return nil
}
