package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clavionx/backend/internal/db"
	"clavionx/backend/internal/lockout/domain"
)

// PostgresRepository stores records in login_security and serializes updates with SELECT ... FOR UPDATE.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a lockout repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Get returns the record for userID, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*domain.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `
		SELECT user_id, attempts, window_start, locked_until
		FROM login_security WHERE user_id = $1
	`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query login_security: %w", err)
	}
	return rec, nil
}

// Update runs fn on the row locked FOR UPDATE and writes the result back in the same transaction.
func (r *PostgresRepository) Update(ctx context.Context, userID string, fn func(rec *domain.Record) error) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO login_security (user_id, attempts) VALUES ($1, 0)
			ON CONFLICT (user_id) DO NOTHING
		`, userID); err != nil {
			return fmt.Errorf("ensure login_security row: %w", err)
		}
		rec, err := scanRecord(tx.QueryRowContext(ctx, `
			SELECT user_id, attempts, window_start, locked_until
			FROM login_security WHERE user_id = $1
			FOR UPDATE
		`, userID))
		if err != nil {
			return fmt.Errorf("lock login_security row: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE login_security
			SET attempts = $2, window_start = $3, locked_until = $4
			WHERE user_id = $1
		`, userID, rec.Attempts, db.NullTime(rec.WindowStart), db.NullTime(rec.LockedUntil)); err != nil {
			return fmt.Errorf("update login_security: %w", err)
		}
		return nil
	})
}

func scanRecord(row *sql.Row) (*domain.Record, error) {
	var (
		rec                      domain.Record
		windowStart, lockedUntil sql.NullTime
	)
	if err := row.Scan(&rec.UserID, &rec.Attempts, &windowStart, &lockedUntil); err != nil {
		return nil, err
	}
	rec.WindowStart = db.TimePtr(windowStart)
	rec.LockedUntil = db.TimePtr(lockedUntil)
	return &rec, nil
}
