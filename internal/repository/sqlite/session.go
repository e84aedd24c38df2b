package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/repository"
)

var _ repository.SessionStore = (*DB)(nil)

// LoadSession returns the persisted client session, or (nil, nil) if none.
func (db *DB) LoadSession(ctx context.Context) (*model.Session, error) {
	var payload string
	err := db.conn.QueryRowContext(ctx,
		`SELECT payload FROM auth_sessions WHERE id = 1`,
	).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: loading session: %w", err)
	}

	var s model.Session
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, fmt.Errorf("sqlite: decoding session: %w", err)
	}
	return &s, nil
}

// SaveSession replaces the persisted session.
func (db *DB) SaveSession(ctx context.Context, session *model.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("sqlite: encoding session: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO auth_sessions (id, payload, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving session: %w", err)
	}
	return nil
}

func (db *DB) ClearSession(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM auth_sessions`); err != nil {
		return fmt.Errorf("sqlite: clearing session: %w", err)
	}
	return nil
}
