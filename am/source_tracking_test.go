package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settingFor finds a key in the introspection output
func settingFor(t *testing.T, intro *ConfigIntrospection, key string) SettingInfo {
	t.Helper()
	for _, s := range intro.Settings {
		if s.Key == key {
			return s
		}
	}
	t.Fatalf("setting %s not reported", key)
	return SettingInfo{}
}

// TestSourceTrackingIntegration runs the full load -> introspection flow
// against a temporary home and project directory
func TestSourceTrackingIntegration(t *testing.T) {
	setup := func(t *testing.T) (home, project string) {
		t.Helper()
		Reset()
		t.Cleanup(Reset)

		tempDir := t.TempDir()
		home = filepath.Join(tempDir, "home")
		project = filepath.Join(tempDir, "work", "site")
		require.NoError(t, os.MkdirAll(filepath.Join(home, ".qxfer"), 0755))
		require.NoError(t, os.MkdirAll(filepath.Join(project, "nested"), 0755))

		t.Setenv("HOME", home)
		t.Chdir(filepath.Join(project, "nested"))
		return home, project
	}

	t.Run("project config wins over user config", func(t *testing.T) {
		home, project := setup(t)

		userPath := filepath.Join(home, ".qxfer", ConfigFileName)
		writeFile(t, userPath, `
[transfer]
window = 4
conflict_strategy = "merge"

[archive]
compress = false
`)
		projectPath := filepath.Join(project, ConfigFileName)
		writeFile(t, projectPath, `
[transfer]
window = 64
`)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 64, cfg.Transfer.Window)
		assert.Equal(t, "merge", cfg.Transfer.ConflictStrategy)
		assert.False(t, cfg.Archive.Compress)

		intro, err := GetConfigIntrospection()
		require.NoError(t, err)
		assert.Equal(t, projectPath, intro.ConfigFile)

		window := settingFor(t, intro, "transfer.window")
		assert.Equal(t, SourceProject, window.Source)
		assert.Equal(t, projectPath, window.SourcePath)

		strategy := settingFor(t, intro, "transfer.conflict_strategy")
		assert.Equal(t, SourceUser, strategy.Source)
		assert.Equal(t, userPath, strategy.SourcePath)

		matching := settingFor(t, intro, "transfer.version_matching")
		assert.Equal(t, SourceDefault, matching.Source)
	})

	t.Run("environment wins over files", func(t *testing.T) {
		_, project := setup(t)

		writeFile(t, filepath.Join(project, ConfigFileName), `
[instance]
database_path = "project.db"
`)
		t.Setenv("QXFER_INSTANCE_DATABASE_PATH", "env.db")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "env.db", cfg.GetDatabasePath())

		intro, err := GetConfigIntrospection()
		require.NoError(t, err)
		dbPath := settingFor(t, intro, "instance.database_path")
		assert.Equal(t, SourceEnvironment, dbPath.Source)
		assert.Equal(t, "QXFER_INSTANCE_DATABASE_PATH", dbPath.SourcePath)
	})

	t.Run("no files leaves defaults", func(t *testing.T) {
		setup(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultWindow, cfg.Transfer.Window)
		assert.Equal(t, DefaultDatabasePath, cfg.GetDatabasePath())

		intro, err := GetConfigIntrospection()
		require.NoError(t, err)
		for _, s := range intro.Settings {
			assert.Equal(t, SourceDefault, s.Source, s.Key)
		}
	})

	t.Run("set persists into the user config", func(t *testing.T) {
		home, _ := setup(t)

		require.NoError(t, Set(UserConfigPath(), "transfer.version_matching", "minor"))
		assert.FileExists(t, filepath.Join(home, ".qxfer", ConfigFileName))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "minor", cfg.Transfer.VersionMatching)
		assert.Equal(t, SourceUser, ConfigSources["transfer.version_matching"].Source)
	})
}
