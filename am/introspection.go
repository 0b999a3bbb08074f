package am

import (
	"os"
	"sort"
	"strings"

	"github.com/teranos/qxfer/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/qxfer/qxfer.toml
	SourceUser        ConfigSource = "user"        // ~/.qxfer/qxfer.toml
	SourceProject     ConfigSource = "project"     // nearest qxfer.toml upward
	SourceEnvironment ConfigSource = "environment" // QXFER_* env vars
)

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"` // File path or env var name
}

// ConfigIntrospection provides metadata about the active configuration
type ConfigIntrospection struct {
	ConfigFile string        `json:"config_file"` // Path to active config file
	Settings   []SettingInfo `json:"settings"`    // All settings with sources
}

// GetConfigIntrospection returns detailed information about active configuration
// using the sources tracked during actual configuration loading
func GetConfigIntrospection() (*ConfigIntrospection, error) {
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}
	v := GetViper()

	introspection := &ConfigIntrospection{
		ConfigFile: activeConfigFile(),
		Settings:   make([]SettingInfo, 0),
	}

	// Get all effective settings from merged Viper config
	allSettings := v.AllSettings()

	flattenSettingsWithSources(allSettings, "", introspection, ConfigSources)

	return introspection, nil
}

// SourceInfo tracks where a configuration value originated
// Used internally for building configuration introspection data
type SourceInfo struct {
	Source ConfigSource // The type of config source (default, system, user, etc.)
	Path   string       // File path or environment variable name
}

// flattenSettingsWithSources flattens settings and assigns sources from sourceMap
func flattenSettingsWithSources(settings map[string]interface{}, prefix string, introspection *ConfigIntrospection, sourceMap map[string]SourceInfo) {
	// Sort keys for deterministic iteration
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		// Check if value is a nested map
		if nestedMap, ok := value.(map[string]interface{}); ok {
			flattenSettingsWithSources(nestedMap, fullKey, introspection, sourceMap)
			continue
		}

		// Get source from sourceMap, default to SourceDefault if not found
		sourceInfo := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sourceMap[fullKey]; ok {
			sourceInfo = si
		}

		envKey := "QXFER_" + strings.ToUpper(strings.ReplaceAll(fullKey, ".", "_"))
		if envValue := os.Getenv(envKey); envValue != "" {
			sourceInfo = SourceInfo{
				Source: SourceEnvironment,
				Path:   envKey,
			}
		}

		introspection.Settings = append(introspection.Settings, SettingInfo{
			Key:        fullKey,
			Value:      value,
			Source:     sourceInfo.Source,
			SourcePath: sourceInfo.Path,
		})
	}
}

// activeConfigFile returns the highest-precedence config file that exists
func activeConfigFile() string {
	active := ""
	for _, p := range configPaths() {
		if _, err := os.Stat(p.path); err == nil {
			active = p.path
		}
	}
	return active
}
