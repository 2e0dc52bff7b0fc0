package storage

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		username      VARCHAR(20) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		salt          TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id         VARCHAR(5) PRIMARY KEY,
		title      VARCHAR(100) NOT NULL,
		author     VARCHAR(100) NOT NULL,
		available  BOOLEAN NOT NULL DEFAULT TRUE,
		owner_id   UUID NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS books_available_idx ON books (available)`,
	`CREATE INDEX IF NOT EXISTS books_owner_idx ON books (owner_id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id              VARCHAR(26) PRIMARY KEY,
		kind            VARCHAR(16) NOT NULL,
		recipient_id    UUID NOT NULL REFERENCES users(id),
		proposer_id     UUID NOT NULL REFERENCES users(id),
		book_id         VARCHAR(5) NOT NULL REFERENCES books(id),
		offered_book_id VARCHAR(5) REFERENCES books(id),
		reply_to        VARCHAR(26) UNIQUE REFERENCES notifications(id),
		message         TEXT NOT NULL,
		is_read         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_inbox_idx ON notifications (recipient_id, is_read)`,
	`CREATE TABLE IF NOT EXISTS events (
		id             BIGSERIAL PRIMARY KEY,
		aggregate_id   TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		event_data     JSONB NOT NULL,
		metadata       JSONB,
		version        INT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (aggregate_id, version)
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		salt          TEXT NOT NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		author     TEXT NOT NULL,
		available  BOOLEAN NOT NULL DEFAULT 1,
		owner_id   TEXT NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS books_available_idx ON books (available)`,
	`CREATE INDEX IF NOT EXISTS books_owner_idx ON books (owner_id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id              TEXT PRIMARY KEY,
		kind            TEXT NOT NULL,
		recipient_id    TEXT NOT NULL REFERENCES users(id),
		proposer_id     TEXT NOT NULL REFERENCES users(id),
		book_id         TEXT NOT NULL REFERENCES books(id),
		offered_book_id TEXT REFERENCES books(id),
		reply_to        TEXT UNIQUE REFERENCES notifications(id),
		message         TEXT NOT NULL,
		is_read         BOOLEAN NOT NULL DEFAULT 0,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_inbox_idx ON notifications (recipient_id, is_read)`,
	`CREATE TABLE IF NOT EXISTS events (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		aggregate_id   TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		event_data     TEXT NOT NULL,
		metadata       TEXT,
		version        INTEGER NOT NULL,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (aggregate_id, version)
	)`,
}

// Migrate creates any missing tables and indexes. It is safe to run on every
// start.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if d.dialect == SQLite {
		stmts = sqliteSchema
	}
	return d.WithTx(ctx, func(tx *Tx) error {
		for i, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration statement %d: %w", i, err)
			}
		}
		return nil
	})
}
