package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/qxfer/logger"
)

func TestLoadMigrations(t *testing.T) {
	all, err := loadMigrations()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, migration{version: "000", name: "000_create_schema_migrations.sql"}, all[0])
	assert.Equal(t, migration{version: "001", name: "001_create_instance_tables.sql"}, all[1])
}

func TestAppliedMigrations(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	versions, err := AppliedMigrations(db)
	require.NoError(t, err)
	assert.Empty(t, versions)

	require.NoError(t, Migrate(db, nil))
	versions, err = AppliedMigrations(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"000", "001"}, versions)
}

func TestMigrate_LogsAppliedMigrations(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "logged.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()

	require.NoError(t, Migrate(db, log))
	applied := logs.FilterMessage("Applied migration").All()
	require.Len(t, applied, 2)
	assert.Equal(t, "000_create_schema_migrations.sql", applied[0].ContextMap()[logger.FieldMigration])
	assert.Equal(t, "001", applied[1].ContextMap()[logger.FieldVersion])
	assert.Equal(t, 1, logs.FilterMessage("Migrations complete").Len())

	logs.TakeAll()
	require.NoError(t, Migrate(db, log))
	assert.Zero(t, logs.Len(), "nothing pending, nothing logged at info")
}
