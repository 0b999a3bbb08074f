package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/logger"
)

//go:embed sqlite/migrations/*.sql
var migrationFS embed.FS

const migrationDir = "sqlite/migrations"

// bootstrapVersion creates schema_migrations itself and always runs first.
const bootstrapVersion = "000"

// migration is one embedded SQL file, named <version>_<description>.sql
type migration struct {
	version string
	name    string
}

// loadMigrations lists the embedded migrations in version order.
func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir(migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	seen := map[string]string{}
	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, _, ok := strings.Cut(entry.Name(), "_")
		if !ok || version == "" {
			return nil, errors.Newf("migration %s has no <version>_ prefix", entry.Name())
		}
		if prev, dup := seen[version]; dup {
			return nil, errors.Newf("migrations %s and %s share version %s", prev, entry.Name(), version)
		}
		seen[version] = entry.Name()
		out = append(out, migration{version: version, name: entry.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	if len(out) == 0 || out[0].version != bootstrapVersion {
		return nil, errors.Newf("migration %s_*.sql is missing", bootstrapVersion)
	}
	return out, nil
}

// AppliedMigrations returns the versions recorded in schema_migrations, in order.
// A database that was never migrated has none.
func AppliedMigrations(db *sql.DB) ([]string, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations')").Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, "look up schema_migrations")
	}
	if !exists {
		return nil, nil
	}

	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, "list applied migrations")
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan migration version")
		}
		versions = append(versions, v)
	}
	return versions, errors.Wrap(rows.Err(), "list applied migrations")
}

// Migrate applies every embedded migration the database has not recorded yet.
// Each migration runs in its own transaction together with its bookkeeping row.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	all, err := loadMigrations()
	if err != nil {
		return err
	}
	applied, err := AppliedMigrations(db)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	if len(applied) == 0 {
		log.Debugw("Database has no schema_migrations yet")
	}

	started := time.Now()
	var ran []string
	for _, m := range all {
		if done[m.version] {
			log.Debugw("Migration already applied", logger.FieldMigration, m.name)
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
		log.Infow("Applied migration", logger.FieldMigration, m.name, logger.FieldVersion, m.version)
		ran = append(ran, m.name)
	}

	if len(ran) > 0 {
		log.Infow("Migrations complete",
			logger.FieldCount, len(ran),
			logger.FieldDurationMS, time.Since(started).Milliseconds(),
		)
	}
	return nil
}

func apply(db *sql.DB, m migration) error {
	stmt, err := migrationFS.ReadFile(path.Join(migrationDir, m.name))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.name)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.name)
	}
	if _, err := tx.Exec(string(stmt)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "execute %s", m.name)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s", m.name)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.name)
}
