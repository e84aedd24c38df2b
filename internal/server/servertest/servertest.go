// Package servertest runs a complete in-process survey backend for tests:
// SQLite in memory, a disk blob store under t.TempDir, and a real HTTP
// listener from httptest.
package servertest

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/field-survey/internal/auth"
	"github.com/sakif/field-survey/internal/config"
	"github.com/sakif/field-survey/internal/model"
	sqliteRepo "github.com/sakif/field-survey/internal/repository/sqlite"
	"github.com/sakif/field-survey/internal/server"
	"github.com/sakif/field-survey/internal/storage/disk"
)

// Secret signs every token the test backend issues.
const Secret = "servertest-secret-at-least-16-chars"

// Backend is a running test server.
type Backend struct {
	URL    string
	Config config.Server
	Server *server.Server
	DB     *sqliteRepo.DB
	Blobs  *disk.Store
	Tokens *auth.TokenService
}

// New starts a backend that is torn down with t. opts may adjust the
// configuration before the routes are built.
func New(t testing.TB, opts ...func(*config.Server)) *Backend {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := disk.New(t.TempDir())
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(Secret)
	require.NoError(t, err)

	// The storage handler needs the public URL at construction time, so the
	// listener is bound before the handler exists and served after.
	ts := httptest.NewUnstartedServer(nil)
	publicURL := "http://" + ts.Listener.Addr().String()

	cfg := config.Server{
		PublicURL:       publicURL,
		Bucket:          config.DefaultBucket,
		StorageDriver:   "disk",
		SignInPerMinute: 1000,
		ShutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv := server.NewWithDeps(cfg, server.Deps{
		Forms:         db,
		Users:         db,
		RefreshTokens: db,
		Blobs:         blobs,
		Tokens:        tokens,
		Passwords:     auth.NewPasswordServiceForTest(bcrypt.MinCost),
	}, logger)
	ts.Config.Handler = srv.Handler()
	ts.Start()
	t.Cleanup(ts.Close)

	return &Backend{
		URL:    ts.URL,
		Config: cfg,
		Server: srv,
		DB:     db,
		Blobs:  blobs,
		Tokens: tokens,
	}
}

// CreateUser provisions an account on the backend.
func (b *Backend) CreateUser(t testing.TB, email, password, displayName string) *model.User {
	t.Helper()
	u, err := b.Server.CreateUser(context.Background(), email, password, displayName)
	require.NoError(t, err)
	return u
}
