package session

import (
	"context"

	"github.com/sakif/field-survey/internal/model"
)

// EventKind classifies an auth-change notification.
type EventKind int

const (
	SignedIn EventKind = iota + 1
	TokenRefreshed
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "SIGNED_IN"
	case TokenRefreshed:
		return "TOKEN_REFRESHED"
	case SignedOut:
		return "SIGNED_OUT"
	}
	return "UNKNOWN"
}

// Event is emitted by an AuthProvider whenever its session changes.
// Session is nil for SignedOut.
type Event struct {
	Kind    EventKind
	Session *model.Session
}

// AuthProvider is the hosted authentication service as seen by the client.
type AuthProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	// SignOut invalidates the session on the backend. Local state is cleared
	// even when the backend call fails.
	SignOut(ctx context.Context) error
	// GetSession restores the persisted session. (nil, nil) means none.
	GetSession(ctx context.Context) (*model.Session, error)
	RefreshSession(ctx context.Context) (*model.Session, error)
	// Subscribe registers fn for auth-change events and returns its
	// unsubscribe func.
	Subscribe(fn func(Event)) (unsubscribe func())
}
