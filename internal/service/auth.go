// Package service holds the backend's business rules. Handlers parse HTTP and
// call into here; services validate, enforce ownership and talk to repositories
// through interfaces, so tests run against in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/auth"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/repository"
)

// invalidCredentials is deliberately vague: it never reveals whether the email exists.
const invalidCredentials = "Invalid login credentials"

// AuthService issues and rotates sessions.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository          → account lookup
//   - refresh    repository.RefreshTokenRepository  → hashed refresh tokens
//   - tokens     *auth.TokenService                 → access-token JWTs
//   - passwords  *auth.PasswordService              → bcrypt
type AuthService struct {
	users     repository.UserRepository
	refresh   repository.RefreshTokenRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	refresh repository.RefreshTokenRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		refresh:   refresh,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// TokenPair is what a successful grant returns.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         *model.User
}

// CreateUser provisions an account. There is no public sign-up; operators call
// this through `server -create-user`.
func (s *AuthService) CreateUser(ctx context.Context, email, password, displayName string) (*model.User, error) {
	if err := auth.ValidateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user created", slog.String("userID", user.ID), slog.String("email", user.Email))
	return user, nil
}

// SignInWithPassword implements the password grant.
func (s *AuthService) SignInWithPassword(ctx context.Context, email, password string) (*TokenPair, error) {
	if err := auth.ValidateCredentials(email, password); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Warn("sign-in rejected", slog.String("userID", user.ID))
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed in", slog.String("userID", user.ID))
	return pair, nil
}

// Refresh implements the refresh_token grant. The presented token is revoked
// and a new pair is issued, so each refresh token works exactly once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, apperror.Unauthenticated("Refresh token is required")
	}

	hash := auth.HashToken(refreshToken)
	stored, err := s.refresh.GetRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("Invalid Refresh Token")
		}
		return nil, fmt.Errorf("service/auth: loading refresh token: %w", err)
	}

	now := s.now()
	if !stored.Active(now) {
		return nil, apperror.Unauthenticated("Invalid Refresh Token")
	}

	user, err := s.users.GetUserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("Invalid Refresh Token")
		}
		return nil, fmt.Errorf("service/auth: loading user: %w", err)
	}

	if err := s.refresh.RevokeRefreshToken(ctx, hash, now); err != nil {
		return nil, fmt.Errorf("service/auth: rotating refresh token: %w", err)
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("session refreshed", slog.String("userID", user.ID))
	return pair, nil
}

// SignOut revokes every refresh token of userID. Access tokens already issued
// stay valid until they expire.
func (s *AuthService) SignOut(ctx context.Context, userID string) error {
	if err := s.refresh.RevokeUserTokens(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("service/auth: revoking tokens: %w", err)
	}
	s.logger.Info("user signed out", slog.String("userID", userID))
	return nil
}

// GetUser returns the account behind an access token's subject.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthenticated("User not authenticated")
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

func (s *AuthService) issue(ctx context.Context, user *model.User) (*TokenPair, error) {
	access, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating access token: %w", err)
	}

	refresh := auth.NewRefreshToken()
	now := s.now()
	if err := s.refresh.SaveRefreshToken(ctx, &model.RefreshToken{
		TokenHash: auth.HashToken(refresh),
		UserID:    user.ID,
		ExpiresAt: now.Add(auth.RefreshTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("service/auth: storing refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    auth.AccessTokenTTL,
		User:         user,
	}, nil
}
