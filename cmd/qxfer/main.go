package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/qxfer/am"
	"github.com/teranos/qxfer/cmd/qxfer/commands"
	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/logger"
)

var rootCmd = &cobra.Command{
	Use:   "qxfer",
	Short: "qxfer - Move content platform data between instances and archives",
	Long: `qxfer - Move content platform data between instances and archives.

A transfer runs five stages in order: schemas, entities, links, media and
configuration. Each stage streams records from a source to a destination.

Available commands:
  export   - Write an instance into an archive file
  import   - Load an archive file into an instance
  transfer - Copy one instance into another
  am       - Manage qxfer configuration ("I am")
  version  - Show version information

Examples:
  qxfer export --from site.db --file backup           # writes backup.tar.zst
  qxfer import --file backup.tar.zst --to staging.db
  qxfer transfer --from site.db --to staging.db --conflict-strategy merge
  qxfer export --exclude media,configuration --json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if !cmd.Flags().Changed("json") {
			if cfg, err := am.Load(); err == nil {
				jsonOutput = cfg.Log.JSON
			}
		}
		if err := logger.InitializeWithVerbosity(jsonOutput, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "Emit JSON lines instead of terminal output")

	rootCmd.AddCommand(commands.ExportCmd)
	rootCmd.AddCommand(commands.ImportCmd)
	rootCmd.AddCommand(commands.TransferCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
