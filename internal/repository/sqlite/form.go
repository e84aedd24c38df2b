package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/repository"
)

// Compile-time check that *DB satisfies the interface.
var _ repository.FormRepository = (*DB)(nil)

const formColumns = `id, retailer_name, bdo_code, franchise_id, address, coordinates, image_1, image_2, user_id, created_at`

// Create inserts a form and fills in ID and CreatedAt.
//
// xid ids sort by creation time, which gives ListByOwner a stable tie-breaker
// when two rows share a timestamp.
func (db *DB) Create(ctx context.Context, form *model.Form) error {
	form.ID = xid.New().String()
	form.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO forms (`+formColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		form.ID,
		form.RetailerName,
		form.BDOCode,
		form.FranchiseID,
		form.Address,
		form.Coordinates,
		form.Image1,
		form.Image2,
		form.UserID,
		form.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating form: %w", err)
	}

	return nil
}

// GetByID returns apperror.NotFound when no row matches.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Form, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+formColumns+` FROM forms WHERE id = ?`,
		id,
	)

	form, err := scanForm(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("form", id)
		}
		return nil, fmt.Errorf("sqlite: getting form %s: %w", id, err)
	}

	return form, nil
}

// ListByOwner returns the owner's forms, newest first.
func (db *DB) ListByOwner(ctx context.Context, ownerID string) ([]model.Form, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+formColumns+`
		 FROM forms
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing forms: %w", err)
	}
	defer rows.Close()

	forms := []model.Form{}
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning form row: %w", err)
		}
		forms = append(forms, *form)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating forms: %w", err)
	}

	return forms, nil
}

func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM forms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting form %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("form", id)
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanForm(s scanner) (*model.Form, error) {
	var f model.Form
	err := s.Scan(
		&f.ID,
		&f.RetailerName,
		&f.BDOCode,
		&f.FranchiseID,
		&f.Address,
		&f.Coordinates,
		&f.Image1,
		&f.Image2,
		&f.UserID,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
