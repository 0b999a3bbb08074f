package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/qxfer/errors"
)

func TestOpen(t *testing.T) {
	t.Run("opens database successfully", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var foreignKeys int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
		assert.Equal(t, 1, foreignKeys)

		var busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		db, err := Open("/invalid/nonexistent/path/db.sqlite", nil)
		if err == nil && db != nil {
			err = db.Ping()
			db.Close()
		}
		assert.Error(t, err)
	})

	t.Run("creates database file if it doesn't exist", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "new.db")
		_, err := os.Stat(dbPath)
		assert.True(t, os.IsNotExist(err))

		db, err := Open(dbPath, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer db.Close()

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})
}

func TestOpenWithMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "instance.db")

	db, err := OpenWithMigrations(dbPath, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"schema_migrations", "content_types", "entities", "links", "media_files", "configuration", "instance_metadata"} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "twice.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db, nil))
	require.NoError(t, Migrate(db, nil))

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 2, applied)
}

func TestOpenWithMigrations_ErrorsCarryStack(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath, nil)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE content_types (uid INTEGER)")
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE schema_migrations (version TEXT PRIMARY KEY, applied_at DATETIME)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO schema_migrations (version) VALUES ('000')")
	require.NoError(t, err)
	// Make 001 fail: the index references a column the stale table lacks.
	_, err = db.Exec("CREATE TABLE entities (id TEXT)")
	require.NoError(t, err)
	db.Close()

	db, err = OpenWithMigrations(dbPath, nil)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "001_create_instance_tables.sql")
	assert.Contains(t, fmt.Sprintf("%+v", err), "migrate.go")
	assert.NotNil(t, errors.GetStack(err))
}

func TestIsDatabaseClosed(t *testing.T) {
	assert.False(t, IsDatabaseClosed(nil))
	assert.True(t, IsDatabaseClosed(errors.Wrap(ErrDatabaseClosed, "write entity")))
	assert.True(t, IsDatabaseClosed(fmt.Errorf("sql: database is closed")))
	assert.False(t, IsDatabaseClosed(errors.New("disk I/O error")))

	db, err := Open(filepath.Join(t.TempDir(), "closed.db"), nil)
	require.NoError(t, err)
	db.Close()
	_, err = db.Exec("SELECT 1")
	assert.True(t, IsDatabaseClosed(err))
}
