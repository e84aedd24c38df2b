// Package repository declares the persistence interfaces. The client core talks
// to FormRepository through the HTTP adapter in internal/client; the backend
// satisfies the same interface with SQLite or PostgreSQL.
package repository

import (
	"context"
	"time"

	"github.com/sakif/field-survey/internal/model"
)

// FormRepository is the relational "forms" table.
type FormRepository interface {
	// ListByOwner returns every form owned by ownerID, newest first.
	// An owner with no forms yields an empty slice and a nil error.
	ListByOwner(ctx context.Context, ownerID string) ([]model.Form, error)
	// GetByID returns apperror.ErrNotFound when no row matches.
	GetByID(ctx context.Context, id string) (*model.Form, error)
	// Create fills in ID and CreatedAt on success.
	Create(ctx context.Context, form *model.Form) error
	Delete(ctx context.Context, id string) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type RefreshTokenRepository interface {
	SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string, at time.Time) error
	RevokeUserTokens(ctx context.Context, userID string, at time.Time) error
}

// SessionStore persists the client's session between process runs.
// Load returns (nil, nil) when nothing is stored.
type SessionStore interface {
	LoadSession(ctx context.Context) (*model.Session, error)
	SaveSession(ctx context.Context, session *model.Session) error
	ClearSession(ctx context.Context) error
}
