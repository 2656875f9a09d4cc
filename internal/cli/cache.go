package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/offcache/internal/objectstore"
	"github.com/roach88/offcache/internal/query"
)

// NewPutCommand creates the put command.
func NewPutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <aggregation|query|queryWithQuery> <collection> <key> [data-json|-]",
		Short: "Write remote results into the local caches",
		Long: `Write remote results into the local caches without queueing a sync.

  aggregation     key is an aggregation object, data its result
  query           key is a record id, data the record
  queryWithQuery  key is a query object, data the list of matching records

Omitting data evicts the entry on the query kinds.

Examples:
  offcache put query books k1 '{"_id":"k1","title":"Dune"}'
  offcache put queryWithQuery books '{"filter":{"shelf":"a"}}' '[{"_id":"k1"}]'
  offcache put queryWithQuery books '{"filter":{"shelf":"a"}}'`,
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := objectstore.ParsePutKind(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid put kind", err)
			}
			data := json.RawMessage("null")
			if len(args) == 4 {
				raw, err := readArg(cmd, args[3])
				if err != nil {
					return err
				}
				if !json.Valid(raw) {
					return NewExitError(ExitCommandError, "data is not valid JSON")
				}
				data = raw
			}

			st, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			return opts.formatter(cmd).Response(st.Put(cmd.Context(), kind, args[1], args[2], data))
		},
	}
}

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate <collection> <aggregation-json|->",
		Short: "Answer an aggregation from the aggregation cache",
		Long: `Answer an aggregation from the aggregation cache.

Example:
  offcache aggregate books '{"key":{"shelf":true},"initial":{"n":0},"reduce":"function(c,a){a.n++}"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readArg(cmd, args[1])
			if err != nil {
				return err
			}
			a, err := query.ParseAggregation(raw)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid aggregation", err)
			}

			st, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			return opts.formatter(cmd).Response(st.Aggregate(cmd.Context(), args[0], a))
		},
	}
}
