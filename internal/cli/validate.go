package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/offcache/internal/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a config file and print the effective settings",
		Long: `Validate a config file and print the effective settings.

YAML and JSON files are checked for unknown fields; CUE files are
unified with the built-in schema, which supplies defaults. Flag
overrides (--db, --signaling) are applied before printing.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				rootOpts.Config = args[0]
			}
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				out := rootOpts.formatter(cmd)
				if ferr := out.Error("INVALID_CONFIG", err.Error(), nil); ferr != nil {
					return ferr
				}
				return err
			}
			return rootOpts.formatter(cmd).Success(redacted(cfg))
		},
	}
}

// redacted returns a copy of cfg safe to print.
func redacted(cfg *config.Config) *config.Config {
	c := *cfg
	if c.Remote.AppKey != "" {
		c.Remote.AppKey = "<redacted>"
	}
	return &c
}
