package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/haybind/internal/binding"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Query QueryFlags
	Label string
	Poll  time.Duration

	// Updates stops the watch after this many pushes. Zero watches
	// until interrupted.
	Updates uint64
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a query and print every state change",
		Long: `Resolve a query, subscribe to the resulting records and print the
binding state each time it changes. Runs until interrupted or until
--updates pushes have arrived.

Examples:
  haybind watch --filter "point and temp"
  haybind watch --ids @sp1 --poll 1s --updates 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}
	opts.Query.register(cmd)
	cmd.Flags().StringVar(&opts.Label, "label", "", "subscription label")
	cmd.Flags().DurationVar(&opts.Poll, "poll", 0, "poll interval (default from config)")
	cmd.Flags().Uint64Var(&opts.Updates, "updates", 0, "stop after this many updates (0 = run until interrupted)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	query, err := opts.Query.Query()
	if err != nil {
		return err
	}
	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()
	stop := s.notifyInterrupt()
	defer stop()

	w := binding.NewWatcher(s.engine)
	w.Watch(s.ctx, binding.WatchRequest{Query: query, Label: opts.Label, PollInterval: opts.Poll})
	defer w.Close()

	formatter := newFormatter(opts.RootOptions, cmd)
	name := query.Text()
	if opts.Label != "" {
		name = opts.Label
	}
	s.logger.Info("watching", "query", query.Text(), "label", opts.Label)

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-w.Changed():
			state := w.State()
			if state.IsLoading {
				continue
			}
			if err := formatter.State(name, state); err != nil {
				return err
			}
			if opts.Updates > 0 && state.UpdateCount >= opts.Updates {
				return nil
			}
		}
	}
}
