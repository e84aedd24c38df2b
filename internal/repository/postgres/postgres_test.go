package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
)

// newTestDB connects to the database named by FIELD_SURVEY_TEST_POSTGRES_DSN.
// Tests that need it are skipped when the variable is unset.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("FIELD_SURVEY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FIELD_SURVEY_TEST_POSTGRES_DSN not set")
	}
	db, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.conn.Exec(`TRUNCATE forms, refresh_tokens, users`)
		db.Close()
	})
	return db
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("23505")))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestFormRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	f := &model.Form{
		RetailerName: "Karim Traders", BDOCode: "B1", FranchiseID: "F1", Address: "Road 4",
		Coordinates: "23.8,90.4", Image1: "a.jpg", Image2: "b.jpg", UserID: "owner-1",
	}
	require.NoError(t, db.Create(ctx, f))

	got, err := db.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Karim Traders", got.RetailerName)

	list, err := db.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, db.Delete(ctx, f.ID))
	_, err = db.GetByID(ctx, f.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestUserAndTokens(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := &model.User{Email: "pg@example.com", PasswordHash: "h"}
	require.NoError(t, db.CreateUser(ctx, u))
	err := db.CreateUser(ctx, &model.User{Email: "PG@example.com", PasswordHash: "h"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	require.NoError(t, db.SaveRefreshToken(ctx, &model.RefreshToken{
		TokenHash: "h1", UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, db.RevokeUserTokens(ctx, u.ID, time.Now()))

	tok, err := db.GetRefreshToken(ctx, "h1")
	require.NoError(t, err)
	assert.NotNil(t, tok.RevokedAt)
}
