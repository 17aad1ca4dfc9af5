package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/haystack"
)

// QueryFlags selects the query of a read or watch.
type QueryFlags struct {
	IDs    []string
	Filter string
	Expr   string
}

func (q *QueryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&q.IDs, "ids", nil, "record ids to read (comma separated)")
	cmd.Flags().StringVar(&q.Filter, "filter", "", "Haystack filter")
	cmd.Flags().StringVar(&q.Expr, "expr", "", "Axon-style expression (readAll, read, readById, readByIds)")
}

// Query returns the selected query. Exactly one flag must be set.
func (q *QueryFlags) Query() (binding.Query, error) {
	n := 0
	for _, set := range []bool{len(q.IDs) > 0, q.Filter != "", q.Expr != ""} {
		if set {
			n++
		}
	}
	if n != 1 {
		return nil, NewExitError(ExitCommandError, "exactly one of --ids, --filter or --expr is required")
	}
	switch {
	case len(q.IDs) > 0:
		ids := make([]haystack.Ref, len(q.IDs))
		for i, id := range q.IDs {
			ids[i] = parseRef(id)
		}
		return binding.ByIDs{IDs: ids}, nil
	case q.Filter != "":
		return binding.ByFilter{Filter: q.Filter}, nil
	}
	return binding.ByExpr{Expr: q.Expr}, nil
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	var q QueryFlags

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Resolve a query once and print the records",
		Long: `Resolve a query through a one-shot binding and print the result.

Exit codes:
  0 - Query resolved
  1 - Query failed (READ_FAILED, OPS_ONLY, ...)
  2 - Command error

Examples:
  haybind read --filter "point and temp"
  haybind read --ids @ahu1,@ahu2
  haybind read --expr "readAll(equip)" --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(rootOpts, &q, cmd)
		},
	}
	q.register(cmd)

	return cmd
}

func runRead(opts *RootOptions, q *QueryFlags, cmd *cobra.Command) error {
	query, err := q.Query()
	if err != nil {
		return err
	}
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	r := binding.NewResolver(s.engine)
	r.ResolveQuery(s.ctx, query)
	defer r.Close()
	if err := s.settle(); err != nil {
		return err
	}

	formatter := newFormatter(opts, cmd)
	state := r.State()
	if state.Err != nil {
		code := errorCode(state.Err)
		if err := formatter.Error(code, state.Err.Error(), nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s failed", query.Text()))
	}
	formatter.VerboseLog("%d record(s) for %s", len(state.Data), query.Text())
	return formatter.Grid(state.Data)
}
