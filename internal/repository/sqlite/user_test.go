package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
)

func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, DisplayName: "Field Agent", PasswordHash: "$2a$04$hash"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "  Agent@Example.com ")

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "agent@example.com", u.Email)

	byEmail, err := db.GetUserByEmail(context.Background(), "AGENT@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "$2a$04$hash", byEmail.PasswordHash)

	byID, err := db.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Field Agent", byID.DisplayName)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "dup@example.com")

	err := db.CreateUser(context.Background(), &model.User{Email: "DUP@example.com", PasswordHash: "x"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByEmail(context.Background(), "ghost@example.com")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestRefreshTokenLifecycle(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "tok@example.com")
	ctx := context.Background()
	now := time.Now().UTC()

	tok := &model.RefreshToken{TokenHash: "hash-1", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, db.SaveRefreshToken(ctx, tok))

	got, err := db.GetRefreshToken(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
	assert.True(t, got.Active(now))

	require.NoError(t, db.RevokeRefreshToken(ctx, "hash-1", now))
	got, err = db.GetRefreshToken(ctx, "hash-1")
	require.NoError(t, err)
	assert.NotNil(t, got.RevokedAt)
	assert.False(t, got.Active(now))
}

func TestRevokeUserTokens(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "many@example.com")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	for _, h := range []string{"a", "b"} {
		require.NoError(t, db.SaveRefreshToken(ctx, &model.RefreshToken{TokenHash: h, UserID: u.ID, ExpiresAt: exp}))
	}
	require.NoError(t, db.RevokeUserTokens(ctx, u.ID, time.Now()))

	for _, h := range []string{"a", "b"} {
		got, err := db.GetRefreshToken(ctx, h)
		require.NoError(t, err)
		assert.NotNil(t, got.RevokedAt, "token %s should be revoked", h)
	}
}

func TestSessionStore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s, err := db.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	saved := &model.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		User:         model.User{ID: "u1", Email: "a@example.com"},
	}
	require.NoError(t, db.SaveSession(ctx, saved))

	saved.AccessToken = "access-2"
	require.NoError(t, db.SaveSession(ctx, saved))

	loaded, err := db.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "access-2", loaded.AccessToken)
	assert.Equal(t, "u1", loaded.User.ID)
	assert.True(t, saved.ExpiresAt.Equal(loaded.ExpiresAt))

	require.NoError(t, db.ClearSession(ctx))
	loaded, err = db.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
