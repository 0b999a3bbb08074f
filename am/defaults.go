package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("transfer.conflict_strategy", DefaultConflictStrategy)
	v.SetDefault("transfer.version_matching", DefaultVersionMatching)
	v.SetDefault("transfer.exclude", []string{})
	v.SetDefault("transfer.event_buffer", DefaultEventBuffer)
	v.SetDefault("transfer.window", DefaultWindow)

	v.SetDefault("archive.compress", true)
	v.SetDefault("archive.max_chunk_bytes", DefaultMaxChunkBytes)

	v.SetDefault("instance.database_path", DefaultDatabasePath)
	v.SetDefault("instance.max_writes_per_second", 0) // unlimited

	v.SetDefault("log.json", false)
}

// BindEnvVars explicitly binds paths that are commonly overridden per invocation
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("instance.database_path", "QXFER_INSTANCE_DATABASE_PATH")
	v.BindEnv("archive.path", "QXFER_ARCHIVE_PATH")
	v.BindEnv("log.json", "QXFER_LOG_JSON")
}

// GetDatabasePath returns the configured instance database path
func (c *Config) GetDatabasePath() string {
	if c.Instance.DatabasePath == "" {
		return DefaultDatabasePath
	}
	return c.Instance.DatabasePath
}

// GetMaxChunkBytes returns the archive chunk size with the default applied
func (c *Config) GetMaxChunkBytes() int64 {
	if c.Archive.MaxChunkBytes == 0 {
		return DefaultMaxChunkBytes
	}
	return c.Archive.MaxChunkBytes
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Transfer: {ConflictStrategy: %s, VersionMatching: %s, Exclude: %v}, Archive: %s, Instance: %s}",
		c.Transfer.ConflictStrategy, c.Transfer.VersionMatching, c.Transfer.Exclude, c.Archive.Path, c.GetDatabasePath())
}
