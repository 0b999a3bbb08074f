package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teranos/qxfer/am"
	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/logger"
	"github.com/teranos/qxfer/provider/archive"
	"github.com/teranos/qxfer/provider/instance"
	"github.com/teranos/qxfer/reporter"
	"github.com/teranos/qxfer/transfer"
)

// ExportCmd writes an instance into an archive
var ExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an instance into an archive file",
	Long: `Stream every stage of an instance database into a tar archive of
JSON-lines chunks. The archive is zstd compressed unless --compress=false.

Examples:
  qxfer export --from site.db --file backup
  qxfer export --file backup --exclude media --compress=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		from := stringFlag(cmd.Flags(), "from", cfg.GetDatabasePath())
		file := stringFlag(cmd.Flags(), "file", cfg.Archive.Path)
		if file == "" {
			return errors.NewInvalidOptionsError("export needs --file or archive.path")
		}
		compress := cfg.Archive.Compress
		if cmd.Flags().Changed("compress") {
			compress, _ = cmd.Flags().GetBool("compress")
		}

		src := instance.NewSource(instance.Options{DatabasePath: from, Version: cfg.Instance.Version})
		dst := archive.NewDestination(archive.DestinationOptions{
			Path:          file,
			Compress:      compress,
			MaxChunkBytes: cfg.GetMaxChunkBytes(),
		})
		return runCommand(cmd, cfg, src, dst)
	},
}

// ImportCmd loads an archive into an instance
var ImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load an archive file into an instance",
	Long: `Stream an archive written by export into an instance database.
Existing data is handled by --conflict-strategy: restore (default) empties
each stage first, merge overwrites matching records, skip keeps them.

Examples:
  qxfer import --file backup.tar.zst --to staging.db
  qxfer import --file backup.tar.zst --to staging.db --conflict-strategy skip`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		file := stringFlag(cmd.Flags(), "file", cfg.Archive.Path)
		if file == "" {
			return errors.NewInvalidOptionsError("import needs --file or archive.path")
		}
		to := stringFlag(cmd.Flags(), "to", cfg.GetDatabasePath())

		src := archive.NewSource(archive.SourceOptions{Path: file})
		dst := instance.NewDestination(instance.Options{
			DatabasePath:       to,
			Version:            cfg.Instance.Version,
			MaxWritesPerSecond: cfg.Instance.MaxWritesPerSecond,
		})
		return runCommand(cmd, cfg, src, dst)
	},
}

// TransferCmd copies one instance into another
var TransferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Copy one instance into another",
	Long: `Stream every stage of one instance database straight into another.

Examples:
  qxfer transfer --from site.db --to staging.db
  qxfer transfer --from site.db --to staging.db --version-matching minor`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		if from == "" || to == "" {
			return errors.NewInvalidOptionsError("transfer needs both --from and --to")
		}
		if from == to {
			return errors.NewInvalidOptionsError("source and destination are the same database %s", from)
		}

		src := instance.NewSource(instance.Options{DatabasePath: from, Version: cfg.Instance.Version})
		dst := instance.NewDestination(instance.Options{
			DatabasePath:       to,
			Version:            cfg.Instance.Version,
			MaxWritesPerSecond: cfg.Instance.MaxWritesPerSecond,
		})
		return runCommand(cmd, cfg, src, dst)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{ExportCmd, ImportCmd, TransferCmd} {
		addTransferFlags(cmd.Flags())
	}

	ExportCmd.Flags().String("from", "", "Source instance database (default: instance.database_path)")
	ExportCmd.Flags().String("file", "", "Archive path; the extension follows --compress (default: archive.path)")
	ExportCmd.Flags().Bool("compress", true, "zstd-compress the archive (default: archive.compress)")

	ImportCmd.Flags().String("file", "", "Archive to read (default: archive.path)")
	ImportCmd.Flags().String("to", "", "Destination instance database (default: instance.database_path)")

	TransferCmd.Flags().String("from", "", "Source instance database")
	TransferCmd.Flags().String("to", "", "Destination instance database")
}

func addTransferFlags(fs *pflag.FlagSet) {
	fs.StringSlice("exclude", nil, "Stages to skip: schemas, entities, links, media, configuration")
	fs.String("version-matching", "", "Platform version check: ignore, exact, major, minor, patch")
	fs.String("conflict-strategy", "", "How the destination treats existing data: restore, merge, skip")
}

// loadConfig applies command line overrides to the loaded configuration
func loadConfig(fs *pflag.FlagSet) (*am.Config, error) {
	loaded, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	cfg := *loaded

	if fs.Changed("exclude") {
		cfg.Transfer.Exclude, _ = fs.GetStringSlice("exclude")
	}
	if fs.Changed("version-matching") {
		cfg.Transfer.VersionMatching, _ = fs.GetString("version-matching")
	}
	if fs.Changed("conflict-strategy") {
		cfg.Transfer.ConflictStrategy, _ = fs.GetString("conflict-strategy")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func stringFlag(fs *pflag.FlagSet, name, fallback string) string {
	if v, _ := fs.GetString(name); v != "" {
		return v
	}
	return fallback
}

func runCommand(cmd *cobra.Command, cfg *am.Config, src, dst transfer.Provider) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var rep reporter.Reporter
	if jsonOutput {
		jr := reporter.NewJSONReporter(cmd.OutOrStdout())
		jr.Progress = verbosity >= logger.VerbosityDebug
		rep = jr
	} else {
		rep = reporter.NewCLIReporter(cmd.OutOrStdout(), verbosity)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.TransferOptions()
	if err != nil {
		return err
	}
	_, err = Run(ctx, src, dst, opts, rep)
	return err
}

// aborter is implemented by destinations that can discard an unfinished
// write, such as archives.
type aborter interface {
	Abort() error
}

// Run executes one transfer and reports it. On failure the destination is
// aborted when it supports that and both providers are closed; the transfer
// error is returned unchanged.
func Run(ctx context.Context, src, dst transfer.Provider, opts transfer.Options, rep reporter.Reporter) (*transfer.Results, error) {
	engine, err := transfer.New(src, dst, opts)
	if err != nil {
		rep.Error(err)
		return nil, err
	}
	log := logger.ComponentLogger("cli").With(logger.FieldTransferID, engine.ID())

	events := engine.Subscribe()
	done := reporter.Consume(rep, events)

	results, err := engine.Transfer(ctx)
	engine.Unsubscribe(events)
	<-done

	if dropped := engine.DroppedEvents(); dropped > 0 {
		log.Debugw("Progress events dropped by a slow reporter", logger.FieldCount, dropped)
	}

	if err != nil {
		if a, ok := dst.(aborter); ok {
			if aerr := a.Abort(); aerr != nil {
				log.Warnw("Failed to abort destination", logger.FieldError, aerr)
			}
		}
		// Close on a fresh context; ctx may be the reason the transfer stopped
		if cerr := engine.Close(context.Background()); cerr != nil {
			log.Warnw("Failed to close providers after error", logger.FieldError, cerr)
		}
		rep.Error(err)
		return nil, err
	}

	rep.Complete(results, engine.Progress())
	return results, nil
}
