package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clavionx/backend/internal/db"
	"clavionx/backend/internal/password/domain"
)

const resetColumns = `id, user_id, token_hash, expires_at, used_at, created_at`

// PostgresResetRepository stores reset tokens in the password_reset_tokens table.
type PostgresResetRepository struct {
	db *sql.DB
}

// NewPostgresResetRepository returns a reset token repository backed by conn.
func NewPostgresResetRepository(conn *sql.DB) *PostgresResetRepository {
	return &PostgresResetRepository{db: conn}
}

func scanReset(row *sql.Row) (*domain.ResetToken, error) {
	var (
		t      domain.ResetToken
		usedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &usedAt, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.UsedAt = db.TimePtr(usedAt)
	return &t, nil
}

// ReplaceActive voids the user's valid tokens and inserts t under a per-user advisory lock.
func (r *PostgresResetRepository) ReplaceActive(ctx context.Context, t *domain.ResetToken, now time.Time) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := db.LockKey(ctx, tx, db.LockPasswordReset, t.UserID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE password_reset_tokens
			SET used_at = $2
			WHERE user_id = $1 AND used_at IS NULL AND expires_at > $2
		`, t.UserID, now); err != nil {
			return fmt.Errorf("supersede reset tokens: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO password_reset_tokens (`+resetColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, db.NullTime(t.UsedAt), t.CreatedAt); err != nil {
			return fmt.Errorf("insert reset token: %w", err)
		}
		return nil
	})
}

// GetValid returns the valid token with tokenHash, or nil.
func (r *PostgresResetRepository) GetValid(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	t, err := scanReset(r.db.QueryRowContext(ctx, `
		SELECT `+resetColumns+` FROM password_reset_tokens
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
	`, tokenHash, now))
	if err != nil {
		return nil, fmt.Errorf("get reset token: %w", err)
	}
	return t, nil
}

// Consume is a single conditional UPDATE: at most one caller can mark a given token used.
func (r *PostgresResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	t, err := scanReset(r.db.QueryRowContext(ctx, `
		UPDATE password_reset_tokens
		SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING `+resetColumns,
		tokenHash, now))
	if err != nil {
		return nil, fmt.Errorf("consume reset token: %w", err)
	}
	return t, nil
}

// DeleteStale removes expired tokens and used tokens older than usedBefore.
func (r *PostgresResetRepository) DeleteStale(ctx context.Context, now, usedBefore time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM password_reset_tokens
		WHERE expires_at < $1 OR used_at < $2
	`, now, usedBefore)
	if err != nil {
		return 0, fmt.Errorf("delete reset tokens: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
