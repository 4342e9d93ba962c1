package db

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		mode       Mode
		wantTxLock bool
	}{
		{mode: ModeWrite, wantTxLock: true},
		{mode: ModeRead},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			dsn := buildDSN("/tmp/etl_meta.sqlite", tt.mode)
			assert.True(t, strings.HasPrefix(dsn, "/tmp/etl_meta.sqlite?"))
			assert.Contains(t, dsn, "_journal_mode=WAL")
			assert.Contains(t, dsn, "_busy_timeout=5000")
			assert.Contains(t, dsn, "_synchronous=NORMAL")
			assert.Equal(t, tt.wantTxLock, strings.Contains(dsn, "_txlock=immediate"))
		})
	}
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "meta.db"), "append", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local", "nested", "etl_meta.sqlite")
	db, err := OpenSQLite(path, ModeWrite, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpenSQLitePair(t *testing.T) {
	writeDB, readDB, err := OpenSQLitePair(filepath.Join(t.TempDir(), "meta.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = writeDB.Close()
		_ = readDB.Close()
	})

	assert.Equal(t, 1, writeDB.Stats().MaxOpenConnections)
	assert.Equal(t, 4, readDB.Stats().MaxOpenConnections)

	_, err = writeDB.Exec("CREATE TABLE nums (n INTEGER)")
	require.NoError(t, err)
	for i := range 50 {
		_, err = writeDB.Exec("INSERT INTO nums (n) VALUES (?)", i)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var count int
			errs[i] = readDB.QueryRow("SELECT count(*) FROM nums").Scan(&count)
		}()
	}
	wg.Wait()
	for i, e := range errs {
		assert.NoError(t, e, "reader %d failed", i)
	}
}

func TestRunMigrations(t *testing.T) {
	writeDB, _ := OpenTestSQLite(t)

	var n int
	require.NoError(t, writeDB.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'pipeline_runs'").Scan(&n))
	assert.Equal(t, 1, n)

	// Re-running is a no-op.
	require.NoError(t, RunMigrations(writeDB))
}
