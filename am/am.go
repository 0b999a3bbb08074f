package am

// Config represents the core qxfer configuration
type Config struct {
	Transfer TransferConfig `mapstructure:"transfer" toml:"transfer" json:"transfer" yaml:"transfer"`
	Archive  ArchiveConfig  `mapstructure:"archive" toml:"archive" json:"archive" yaml:"archive"`
	Instance InstanceConfig `mapstructure:"instance" toml:"instance" json:"instance" yaml:"instance"`
	Log      LogConfig      `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
}

// TransferConfig configures the transfer engine
type TransferConfig struct {
	ConflictStrategy string   `mapstructure:"conflict_strategy" toml:"conflict_strategy" json:"conflict_strategy" yaml:"conflict_strategy"` // restore, merge, skip
	VersionMatching  string   `mapstructure:"version_matching" toml:"version_matching" json:"version_matching" yaml:"version_matching"`     // ignore, exact, major, minor, patch
	Exclude          []string `mapstructure:"exclude" toml:"exclude" json:"exclude" yaml:"exclude"`                                         // stage names never transferred
	EventBuffer      int      `mapstructure:"event_buffer" toml:"event_buffer" json:"event_buffer" yaml:"event_buffer"`                     // per-subscriber channel capacity
	Window           int      `mapstructure:"window" toml:"window" json:"window" yaml:"window"`                                             // records in flight between read and write
}

// ArchiveConfig configures the local-file archive provider
type ArchiveConfig struct {
	Path          string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
	Compress      bool   `mapstructure:"compress" toml:"compress" json:"compress" yaml:"compress"`                             // zstd over the whole tar stream
	MaxChunkBytes int64  `mapstructure:"max_chunk_bytes" toml:"max_chunk_bytes" json:"max_chunk_bytes" yaml:"max_chunk_bytes"` // start a new JSONL chunk past this size
}

// InstanceConfig configures the SQLite-backed live instance provider
type InstanceConfig struct {
	DatabasePath       string  `mapstructure:"database_path" toml:"database_path" json:"database_path" yaml:"database_path"`
	Version            string  `mapstructure:"version" toml:"version" json:"version" yaml:"version"`                                                         // reported when the database carries none
	MaxWritesPerSecond float64 `mapstructure:"max_writes_per_second" toml:"max_writes_per_second" json:"max_writes_per_second" yaml:"max_writes_per_second"` // 0 = unlimited
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
}

// Default values
const (
	DefaultConflictStrategy = "restore"
	DefaultVersionMatching  = "ignore"
	DefaultEventBuffer      = 256
	DefaultWindow           = 16
	DefaultMaxChunkBytes    = 256 * 1024
	DefaultDatabasePath     = "qxfer.db"
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
