package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	w := buildDSN("/tmp/s.sqlite", ModeWrite)
	assert.True(t, strings.HasPrefix(w, "/tmp/s.sqlite?"))
	assert.Contains(t, w, "_journal_mode=WAL")
	assert.Contains(t, w, "_busy_timeout=5000")
	assert.Contains(t, w, "_txlock=immediate")

	r := buildDSN("/tmp/s.sqlite", ModeRead)
	assert.Contains(t, r, "_synchronous=NORMAL")
	assert.NotContains(t, r, "_txlock")
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "x.db"), Mode("bogus"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/x.db", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}

func TestOpenSQLitePair_PoolSizes(t *testing.T) {
	writeDB, readDB, err := OpenSQLitePair(filepath.Join(t.TempDir(), "x.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	assert.Equal(t, 1, writeDB.Stats().MaxOpenConnections)
	assert.Equal(t, 4, readDB.Stats().MaxOpenConnections)

	var mode string
	require.NoError(t, writeDB.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))
}

func TestRunMigrations_CreatesSessionsTable(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	_, err := writeDB.Exec(`INSERT INTO sessions (id, created_at, last_accessed_at, columns_json, metadata_json, payload)
		VALUES ('a', 0, 0, '[]', '{}', x'00')`)
	require.NoError(t, err)

	var n int
	require.NoError(t, readDB.QueryRow("SELECT count(*) FROM sessions").Scan(&n))
	assert.Equal(t, 1, n)

	require.NoError(t, RunMigrations(context.Background(), writeDB), "re-running is a no-op")
}
