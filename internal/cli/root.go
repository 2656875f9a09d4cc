package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/offcache/internal/config"
	"github.com/roach88/offcache/internal/local"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Config    string
	Database  string
	Signaling string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the offcache CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "offcache",
		Short: "offcache - offline-first local cache",
		Long: `An offline-first local cache for a remote document store.

Records are written to a local SQLite database and queued for sync;
sync pushes queued changes to the remote and reports which ids
committed and which were cancelled.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "offcache.yaml", "config file (.yaml, .json, or .cue)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "database path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Signaling, "signaling", "", "schema version signaling: upgrade-event|set-version (overrides config)")

	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewRemoveQueryCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewAggregateCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig reads the config file and applies flag overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Signaling != "" {
		cfg.Signaling = o.Signaling
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// newLogger logs to w at the configured level, or debug when verbose.
func (o *RootOptions) newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore loads the config and opens the local store it names. The
// caller closes the store.
func (o *RootOptions) openStore(cmd *cobra.Command) (*local.Store, *config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := o.newLogger(cmd.ErrOrStderr(), cfg)
	st := local.New(cfg.Database,
		local.WithSignaling(cfg.SignalingMode()),
		local.WithIDGenerator(cfg.IDGenerator()),
		local.WithLogger(logger),
	)
	return st, cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
