package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clavionx/backend/internal/db"
	"clavionx/backend/internal/mfa/domain"
)

const tokenColumns = `id, user_id, verification_code, method, expires_at, used, attempts, max_attempts, created_at, used_at`

// PostgresRepository stores tokens in two_factor_tokens.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanToken(row *sql.Row) (*domain.Token, error) {
	var (
		t      domain.Token
		method string
		usedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.CodeHash, &method, &t.ExpiresAt, &t.Used, &t.Attempts, &t.MaxAttempts, &t.CreatedAt, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Method = domain.Method(method)
	t.UsedAt = db.TimePtr(usedAt)
	return &t, nil
}

// ReplaceActive supersedes the user's valid tokens and inserts t under a per-user advisory lock.
func (r *PostgresRepository) ReplaceActive(ctx context.Context, t *domain.Token, now time.Time) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := db.LockKey(ctx, tx, db.LockTwoFactorTokens, t.UserID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE two_factor_tokens
			SET used = TRUE, used_at = $2
			WHERE user_id = $1 AND NOT used AND expires_at > $2 AND attempts < max_attempts
		`, t.UserID, now); err != nil {
			return fmt.Errorf("supersede tokens: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO two_factor_tokens (`+tokenColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, t.ID, t.UserID, t.CodeHash, string(t.Method), t.ExpiresAt, t.Used, t.Attempts, t.MaxAttempts, t.CreatedAt, db.NullTime(t.UsedAt)); err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
		return nil
	})
}

// Consume is a single conditional UPDATE: at most one caller can flip a given token to used.
func (r *PostgresRepository) Consume(ctx context.Context, userID, codeHash string, now time.Time) (*domain.Token, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx, `
		UPDATE two_factor_tokens
		SET used = TRUE, used_at = $3
		WHERE id = (
			SELECT id FROM two_factor_tokens
			WHERE user_id = $1 AND verification_code = $2
			  AND NOT used AND expires_at > $3 AND attempts < max_attempts
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE
		) AND NOT used AND attempts < max_attempts
		RETURNING `+tokenColumns,
		userID, codeHash, now))
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	return t, nil
}

// IncrementAttempts bumps attempts on the matching (or newest) valid token.
func (r *PostgresRepository) IncrementAttempts(ctx context.Context, userID, codeHash string, now time.Time) (*domain.Token, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx, `
		UPDATE two_factor_tokens
		SET attempts = attempts + 1
		WHERE id = (
			SELECT id FROM two_factor_tokens
			WHERE user_id = $1 AND NOT used AND expires_at > $3 AND attempts < max_attempts
			ORDER BY (verification_code = $2) DESC, created_at DESC
			LIMIT 1
			FOR UPDATE
		) AND NOT used AND attempts < max_attempts
		RETURNING `+tokenColumns,
		userID, codeHash, now))
	if err != nil {
		return nil, fmt.Errorf("increment attempts: %w", err)
	}
	return t, nil
}

// InvalidateActive marks the user's valid tokens used in one UPDATE.
func (r *PostgresRepository) InvalidateActive(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE two_factor_tokens
		SET used = TRUE, used_at = $2
		WHERE user_id = $1 AND NOT used AND expires_at > $2 AND attempts < max_attempts
	`, userID, now)
	if err != nil {
		return 0, fmt.Errorf("invalidate tokens: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Burn marks the token used.
func (r *PostgresRepository) Burn(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE two_factor_tokens SET used = TRUE, used_at = $2 WHERE id = $1 AND NOT used`, id, now)
	return err
}

// Latest returns the user's newest token, or nil.
func (r *PostgresRepository) Latest(ctx context.Context, userID string) (*domain.Token, error) {
	return scanToken(r.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+` FROM two_factor_tokens
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1
	`, userID))
}

// HasValid reports whether the user has a valid token.
func (r *PostgresRepository) HasValid(ctx context.Context, userID string, now time.Time) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM two_factor_tokens
			WHERE user_id = $1 AND NOT used AND expires_at > $2 AND attempts < max_attempts
		)
	`, userID, now).Scan(&ok)
	return ok, err
}

// DeleteStale removes expired tokens and used tokens older than usedBefore.
func (r *PostgresRepository) DeleteStale(ctx context.Context, now, usedBefore time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM two_factor_tokens
		WHERE expires_at < $1 OR (used AND used_at < $2)
	`, now, usedBefore)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
