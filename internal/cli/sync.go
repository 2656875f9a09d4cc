package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/offcache/internal/config"
	"github.com/roach88/offcache/internal/engine"
	"github.com/roach88/offcache/internal/local"
	"github.com/roach88/offcache/internal/remote"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	All        bool
	Remote     string
	AppKey     string
	Timeout    time.Duration
	DryRun     bool
	MetricsOut string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync [collection]",
		Short: "Push queued changes to the remote",
		Long: `Push queued changes to the remote.

One pass dequeues the collection's changeset, deletes removed records in
one batch, and saves updated records one at a time. The result lists the
ids that committed and the ids that were cancelled. Cancelled ids are not
requeued; save them again to retry.

Exit codes:
  0 - The pass ran (cancelled ids are reported, not failed)
  1 - The pass could not run
  2 - Command error (no remote configured, etc.)

With --dry-run the changeset stays queued and no remote is contacted. The
result lists the ids a pass would save, delete, and cancel.

Examples:
  offcache sync books --remote https://api.example.com --app-key kid_x
  offcache sync --all --metrics-out sync.prom
  offcache sync books --dry-run`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.All == (len(args) == 1) {
				return NewExitError(ExitCommandError, "give a collection or --all, not both")
			}
			return runSync(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "sync every collection with queued changes")
	cmd.Flags().StringVar(&opts.Remote, "remote", "", "remote base URL (overrides config)")
	cmd.Flags().StringVar(&opts.AppKey, "app-key", "", "remote app key (overrides config)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-request timeout (overrides config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show what a pass would push without running it")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write sync metrics to this file in Prometheus text format")

	return cmd
}

func runSync(opts *SyncOptions, args []string, cmd *cobra.Command) error {
	st, cfg, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.DryRun {
		return runPreview(opts, args, st, cmd)
	}

	logger := opts.newLogger(cmd.ErrOrStderr(), cfg)
	target, err := opts.target(cfg, logger)
	if err != nil {
		return err
	}

	var (
		resp   *local.Response
		action string
	)
	if opts.All {
		resp, err = st.SyncAll(cmd.Context(), target)
		action = "sync all"
	} else {
		resp, err = st.Sync(cmd.Context(), args[0], target)
		action = "sync " + args[0]
	}

	if opts.MetricsOut != "" {
		if merr := writeMetrics(opts.MetricsOut); merr != nil {
			return WrapExitError(ExitFailure, "failed to write metrics", merr)
		}
	}

	out := opts.formatter(cmd)
	if resp != nil && err != nil {
		// Some passes ran; show them before the failure.
		if serr := out.Success(resp); serr != nil {
			return serr
		}
		return WrapExitError(ExitFailure, action+" failed", err)
	}
	return out.Response(resp, err)
}

// runPreview classifies pending ids without touching the log or a remote.
func runPreview(opts *SyncOptions, args []string, st *local.Store, cmd *cobra.Command) error {
	var (
		resp *local.Response
		err  error
	)
	if opts.All {
		resp, err = st.PreviewAll(cmd.Context())
	} else {
		resp, err = st.Preview(cmd.Context(), args[0])
	}
	return opts.formatter(cmd).Response(resp, err)
}

// target builds the sync target from flags and config.
func (o *SyncOptions) target(cfg *config.Config, logger *slog.Logger) (engine.Target, error) {
	baseURL := cfg.Remote.BaseURL
	if o.Remote != "" {
		baseURL = o.Remote
	}
	appKey := cfg.Remote.AppKey
	if o.AppKey != "" {
		appKey = o.AppKey
	}
	if baseURL == "" {
		return nil, missingArg("remote base URL (--remote or remote.base_url)")
	}

	timeout, err := cfg.Remote.TimeoutDuration()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid remote timeout", err)
	}
	if o.Timeout > 0 {
		timeout = o.Timeout
	}

	httpOpts := []remote.HTTPOption{remote.WithLogger(logger)}
	if timeout > 0 {
		httpOpts = append(httpOpts, remote.WithTimeout(timeout))
	}
	for k, v := range cfg.Remote.Headers {
		httpOpts = append(httpOpts, remote.WithHeader(k, v))
	}
	t, err := remote.NewHTTP(baseURL, appKey, httpOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid remote", err)
	}
	return t, nil
}

// writeMetrics gathers the engine's collectors into a fresh registry and
// writes them as a textfile, for node_exporter's textfile collector.
func writeMetrics(path string) error {
	reg := prometheus.NewRegistry()
	for _, c := range engine.Collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register collector: %w", err)
		}
	}
	return prometheus.WriteToTextfile(path, reg)
}
