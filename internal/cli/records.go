package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/query"
)

// readArg returns arg, or standard input when arg is "-".
func readArg(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read stdin", err)
	}
	return data, nil
}

func parseDocArg(cmd *cobra.Command, arg string) (doc.Document, error) {
	data, err := readArg(cmd, arg)
	if err != nil {
		return nil, err
	}
	d, err := doc.Decode(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid document JSON", err)
	}
	return d, nil
}

func parseQueryArg(cmd *cobra.Command, arg string) (*query.Query, error) {
	data, err := readArg(cmd, arg)
	if err != nil {
		return nil, err
	}
	q, err := query.Parse(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid query", err)
	}
	return q, nil
}

// NewSaveCommand creates the save command.
func NewSaveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <collection> <document-json|->",
		Short: "Save a record locally and queue it for sync",
		Long: `Save a record locally and queue it for sync.

A record without an _id gets one generated.

Examples:
  offcache save books '{"_id":"k1","title":"Dune"}'
  echo '{"title":"Emma"}' | offcache save books -`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDocArg(cmd, args[1])
			if err != nil {
				return err
			}
			st, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			return opts.formatter(cmd).Response(st.Save(cmd.Context(), args[0], d))
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <collection> <id>",
		Short:         "Read one record from the local cache",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			return opts.formatter(cmd).Response(st.Query(cmd.Context(), args[0], args[1]))
		},
	}
}

// NewFindCommand creates the find command.
func NewFindCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find <collection> <query-json|->",
		Short: "Answer a query from the query cache",
		Long: `Answer a query from the query cache.

Only queries previously cached with "put queryWithQuery" are answered;
records removed since are skipped.

Example:
  offcache find books '{"filter":{"shelf":"a"},"sort":{"title":1}}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQueryArg(cmd, args[1])
			if err != nil {
				return err
			}
			st, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			return opts.formatter(cmd).Response(st.QueryWithQuery(cmd.Context(), args[0], q))
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <collection> <id>",
		Short:         "Remove a record locally and queue the removal for sync",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			d := doc.Document{doc.FieldID: args[1]}
			return opts.formatter(cmd).Response(st.Remove(cmd.Context(), args[0], d))
		},
	}
}

// NewRemoveQueryCommand creates the remove-query command. Removal by query
// is not supported offline; the command exists so scripts get the same
// UNSUPPORTED_OPERATION answer the API gives.
func NewRemoveQueryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove-query <collection> <query-json|->",
		Short:         "Remove records by query (unsupported offline)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQueryArg(cmd, args[1])
			if err != nil {
				return err
			}
			st, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			return opts.formatter(cmd).Response(st.RemoveWithQuery(cmd.Context(), args[0], q))
		},
	}
}

func missingArg(name string) error {
	return NewExitError(ExitCommandError, fmt.Sprintf("%s is required", name))
}
