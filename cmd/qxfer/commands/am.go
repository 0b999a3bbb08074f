package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/qxfer/am"
	"github.com/teranos/qxfer/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage qxfer configuration",
	Long: `am: manage qxfer configuration ("I am")

Display and manage qxfer configuration settings.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (QXFER_* prefix)
3. Project config (nearest qxfer.toml, searching up directories)
4. User config (~/.qxfer/qxfer.toml)
5. System config (/etc/qxfer/qxfer.toml)
6. Default values

Examples:
  qxfer am show                              # Show current configuration
  qxfer am show --format json                # Show configuration in JSON format
  qxfer am get transfer.conflict_strategy    # Get specific config value
  qxfer am set transfer.window 32            # Persist a value in the user config
  qxfer am validate                          # Validate current configuration
  qxfer am where                             # Show where each value comes from`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current qxfer configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., archive.path, transfer.window)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a configuration value",
	Long: `Write a value into the user config (~/.qxfer/qxfer.toml), or into the
file given with --file. The previous file is kept as .back1 (up to three).`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the current qxfer configuration is valid",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long:  `Show every effective setting together with the source that set it.`,
	RunE:  runAmWhere,
}

var (
	configFormat string
	setFile      string
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amSetCmd.Flags().StringVar(&setFile, "file", "", "Config file to write (default: user config)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	out := cmd.OutOrStdout()

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# qxfer configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# qxfer configuration\n%s", string(data))

	default:
		return errors.NewInvalidOptionsError("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	path := setFile
	if path == "" {
		path = am.UserConfigPath()
	}
	if path == "" {
		return errors.New("could not determine home directory, use --file")
	}

	if err := am.Set(path, args[0], parseValue(args[1])); err != nil {
		return err
	}

	// The edited file must still load as a valid configuration
	cfg, err := am.LoadFromFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "%s now holds an invalid configuration", path),
			"the previous version is kept as "+path+".back1",
		)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s = %v (%s)\n", args[0], args[1], path)
	am.Reset()
	return nil
}

// parseValue keeps numbers and booleans typed in TOML
func parseValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case int, float64, bool, []any:
		return v
	default:
		return raw
	}
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return errors.Wrap(err, "failed to get config introspection")
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  1. [DEFAULT]  Built-in defaults")
	fmt.Fprintln(out, "  2. [SYSTEM]   /etc/qxfer/qxfer.toml")
	fmt.Fprintln(out, "  3. [USER]     ~/.qxfer/qxfer.toml")
	fmt.Fprintln(out, "  4. [PROJECT]  ./qxfer.toml (searches up directories)")
	fmt.Fprintln(out, "  5. [ENV]      QXFER_* environment variables")
	fmt.Fprintln(out)
	if intro.ConfigFile != "" {
		fmt.Fprintf(out, "Active file: %s\n\n", intro.ConfigFile)
	}

	bySource := map[am.ConfigSource][]am.SettingInfo{}
	for _, s := range intro.Settings {
		bySource[s.Source] = append(bySource[s.Source], s)
	}

	order := []am.ConfigSource{am.SourceDefault, am.SourceSystem, am.SourceUser, am.SourceProject, am.SourceEnvironment}
	for _, source := range order {
		settings := bySource[source]
		if len(settings) == 0 {
			continue
		}
		sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
		fmt.Fprintf(out, "%s: %d settings\n", source, len(settings))
		for _, s := range settings {
			if s.SourcePath != "" && source != am.SourceDefault {
				fmt.Fprintf(out, "  %s = %v  (%s)\n", s.Key, s.Value, s.SourcePath)
			} else {
				fmt.Fprintf(out, "  %s = %v\n", s.Key, s.Value)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}
