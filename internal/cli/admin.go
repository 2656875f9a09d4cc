package cli

import (
	"github.com/spf13/cobra"
)

// NewPendingCommand creates the pending command.
func NewPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending <collection>",
		Short: "Show the changeset queued for sync",
		Long: `Show the changeset queued for sync without consuming it.

Each id maps to the last-modified time it was first queued with, or null.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			return opts.formatter(cmd).Response(st.Pending(cmd.Context(), args[0]))
		},
	}
}

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	Yes bool
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop every local record, cache entry, and queued change",
		Long: `Drop every local record, cache entry, and queued change.

Queued changes that were never synced are lost. Requires --yes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return missingArg("--yes")
			}
			st, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			return opts.formatter(cmd).Response(st.Purge(cmd.Context()))
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm the purge")
	return cmd
}
