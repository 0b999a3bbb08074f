package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/qxfer/errors"
)

// ConfigFileName is the name of user and project config files
const ConfigFileName = "qxfer.toml"

var (
	globalConfig  *Config
	viperInstance *viper.Viper
	loadMu        sync.Mutex

	// ConfigSources records which file last set each key during the merge
	ConfigSources = map[string]SourceInfo{}
)

// Load reads the qxfer configuration using Viper
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	loadMu.Lock()
	defer loadMu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Defaults only; a pinned file ignores environment overrides
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", configPath)
	}
	return config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViper initializes Viper with configuration sources and defaults.
// Callers hold loadMu.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("QXFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)

	// Precedence (lowest to highest): system < user < project < env vars
	mergeConfigFiles(v, configPaths())

	viperInstance = v
	return v
}

// UserConfigPath returns ~/.qxfer/qxfer.toml, or "" when there is no home directory
func UserConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".qxfer", ConfigFileName)
}

type sourcedPath struct {
	source ConfigSource
	path   string
}

func configPaths() []sourcedPath {
	paths := []sourcedPath{{SourceSystem, filepath.Join("/etc/qxfer", ConfigFileName)}}
	if user := UserConfigPath(); user != "" {
		paths = append(paths, sourcedPath{SourceUser, user})
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, sourcedPath{SourceProject, project})
	}
	return paths
}

// findProjectConfig walks up from the working directory looking for qxfer.toml.
// Returns the first match, or "" if none is found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges each existing file over v in order, tracking sources
func mergeConfigFiles(v *viper.Viper, paths []sourcedPath) {
	for _, p := range paths {
		if _, err := os.Stat(p.path); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(p.path)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		// Files land in the config layer, so environment variables still win
		if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
			continue
		}
		for _, key := range tempViper.AllKeys() {
			ConfigSources[key] = SourceInfo{Source: p.source, Path: p.path}
		}
	}
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	return GetViper().GetString(key)
}

// GetBool returns a configuration value as bool using dot notation
func GetBool(key string) bool {
	return GetViper().GetBool(key)
}

// GetInt returns a configuration value as int using dot notation
func GetInt(key string) int {
	return GetViper().GetInt(key)
}
