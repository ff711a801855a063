// Package dbtest opens a migrated Postgres database for repository tests.
package dbtest

import (
	"database/sql"
	"os"
	"testing"

	"clavionx/backend/internal/db"
	"clavionx/backend/internal/db/migrate"
)

// Open returns a database migrated to the latest schema, or skips the test when
// TEST_DATABASE_URL is not set. All rows are deleted when the test finishes.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres test")
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(`TRUNCATE audit_logs, password_reset_tokens, password_history, login_security, trusted_devices, two_factor_tokens, sessions, users`)
		_ = conn.Close()
	})
	return conn
}

// InsertUser creates a minimal user row so rows referencing users(id) can be inserted.
func InsertUser(t *testing.T, conn *sql.DB, id string) {
	t.Helper()
	_, err := conn.Exec(`INSERT INTO users (id, username, email, password_hash) VALUES ($1, $1, $1 || '@example.com', 'x')`, id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}
