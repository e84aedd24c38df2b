// Package postgres implements the backend repositories on PostgreSQL via lib/pq.
// It is selected when DATABASE_URL is set; otherwise the server uses SQLite.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/xid"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ repository.FormRepository         = (*DB)(nil)
	_ repository.UserRepository         = (*DB)(nil)
	_ repository.RefreshTokenRepository = (*DB)(nil)
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type DB struct {
	conn *sql.DB
}

// New connects to dsn, pings, and applies pending migrations.
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}
	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// runMigrations applies every embedded .sql file once, in name order, and
// records it in schema_migrations.
func runMigrations(conn *sql.DB) error {
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`); err != nil {
		return err
	}
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var exists int
		err := conn.QueryRow(`SELECT 1 FROM schema_migrations WHERE version = $1`, name).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking migration %s: %w", name, err)
		}
		b, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if _, err := conn.Exec(string(b)); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := conn.Exec(`INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

const formColumns = `id, retailer_name, bdo_code, franchise_id, address, coordinates, image_1, image_2, user_id, created_at`

func (db *DB) Create(ctx context.Context, form *model.Form) error {
	form.ID = xid.New().String()
	form.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO forms (`+formColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		form.ID, form.RetailerName, form.BDOCode, form.FranchiseID, form.Address,
		form.Coordinates, form.Image1, form.Image2, form.UserID, form.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating form: %w", err)
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.Form, error) {
	var f model.Form
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+formColumns+` FROM forms WHERE id = $1`, id,
	).Scan(&f.ID, &f.RetailerName, &f.BDOCode, &f.FranchiseID, &f.Address,
		&f.Coordinates, &f.Image1, &f.Image2, &f.UserID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("form", id)
		}
		return nil, fmt.Errorf("postgres: getting form %s: %w", id, err)
	}
	return &f, nil
}

func (db *DB) ListByOwner(ctx context.Context, ownerID string) ([]model.Form, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+formColumns+` FROM forms WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing forms: %w", err)
	}
	defer rows.Close()

	forms := []model.Form{}
	for rows.Next() {
		var f model.Form
		if err := rows.Scan(&f.ID, &f.RetailerName, &f.BDOCode, &f.FranchiseID, &f.Address,
			&f.Coordinates, &f.Image1, &f.Image2, &f.UserID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning form row: %w", err)
		}
		forms = append(forms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating forms: %w", err)
	}
	return forms, nil
}

func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM forms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting form %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("form", id)
	}
	return nil
}

func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("postgres: creating user: %w", err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `SELECT id, email, display_name, password_hash, created_at, updated_at FROM users WHERE id = $1`, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `SELECT id, email, display_name, password_hash, created_at, updated_at FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
}

func (db *DB) getUser(ctx context.Context, query, arg string) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", arg)
		}
		return nil, fmt.Errorf("postgres: getting user: %w", err)
	}
	return &u, nil
}

func (db *DB) SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		token.TokenHash, token.UserID, token.ExpiresAt.UTC(), token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: saving refresh token: %w", err)
	}
	return nil
}

func (db *DB) GetRefreshToken(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var (
		t       model.RefreshToken
		revoked pq.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT token_hash, user_id, expires_at, revoked_at, created_at FROM refresh_tokens WHERE token_hash = $1`,
		tokenHash,
	).Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("refresh token", "(redacted)")
		}
		return nil, fmt.Errorf("postgres: getting refresh token: %w", err)
	}
	if revoked.Valid {
		at := revoked.Time
		t.RevokedAt = &at
	}
	return &t, nil
}

func (db *DB) RevokeRefreshToken(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL`,
		at.UTC(), tokenHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: revoking refresh token: %w", err)
	}
	return nil
}

func (db *DB) RevokeUserTokens(ctx context.Context, userID string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`,
		at.UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("postgres: revoking tokens for user %s: %w", userID, err)
	}
	return nil
}
