// Package storagetest provides migrated throwaway databases for tests.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bookswap/internal/storage"

	"github.com/google/uuid"
)

// New returns a migrated SQLite database living in t's temp dir. It is closed
// when the test finishes.
func New(t testing.TB) *storage.DB {
	t.Helper()
	return NewAt(t, filepath.Join(t.TempDir(), "bookswap.db"))
}

// NewAt is like New but uses the given file path, which lets property tests
// create a fresh database per iteration.
func NewAt(t testing.TB, path string) *storage.DB {
	t.Helper()
	db, err := storage.Open(string(storage.SQLite), path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a bare user row so tests can own books without going
// through the account directory.
func CreateUser(t testing.TB, db *storage.DB, username string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO users (id, username, password_hash, salt, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, username, "x", "x", time.Now().UTC())
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return id
}
