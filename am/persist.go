package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/logger"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	// .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		// Not fatal for the save
		logger.Warnw("Failed to delete old config backup", logger.FieldPath, back3, logger.FieldError, err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// Save writes cfg as TOML to configPath, keeping up to three previous versions.
// An empty path saves to the user config file.
func Save(cfg *Config, configPath string) (string, error) {
	if configPath == "" {
		configPath = UserConfigPath()
		if configPath == "" {
			return "", errors.New("could not determine home directory")
		}
	}

	if err := cfg.Validate(); err != nil {
		return "", errors.Wrap(err, "refusing to save invalid config")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", filepath.Dir(configPath))
	}

	if err := createBackup(configPath); err != nil {
		return "", errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", configPath)
	}

	return configPath, nil
}

// Set updates a single dot-notation key in the TOML file at configPath,
// leaving every other key as written.
func Set(configPath, key string, value any) error {
	config := map[string]any{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &config); err != nil {
			return errors.Wrapf(err, "failed to parse %s", configPath)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to read %s", configPath)
	}

	section, field, ok := strings.Cut(key, ".")
	if !ok || section == "" || field == "" {
		return errors.NewInvalidOptionsError("config key %q must be <section>.<field>", key)
	}
	table, _ := config[section].(map[string]any)
	if table == nil {
		table = map[string]any{}
	}
	table[field] = value
	config[section] = table

	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(configPath))
	}
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", configPath)
	}
	return nil
}
