package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"bookswap/internal/config"
	"bookswap/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	root := newRootCmd(&config.Config{DatabaseDriver: "postgres"})
	root.SetArgs([]string{"--db-driver", "sqlite3", "--db-url", path, "migrate"})
	root.SetOut(&bytes.Buffer{})

	require.NoError(t, root.ExecuteContext(context.Background()))

	db, err := storage.Open(string(storage.SQLite), path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM books`).Scan(&n))
	assert.Zero(t, n)
}

func TestMigrateCommand_UnknownDriver(t *testing.T) {
	root := newRootCmd(&config.Config{})
	root.SetArgs([]string{"--db-driver", "oracle", "migrate"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.ExecuteContext(context.Background()))
}

func TestAddUserCommand_RequiresUsername(t *testing.T) {
	root := newRootCmd(&config.Config{})
	root.SetArgs([]string{"adduser"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.ExecuteContext(context.Background()))
}
