package cli

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/board"
)

// BoardOptions holds flags for the board command.
type BoardOptions struct {
	*RootOptions
	Only []string
	Live bool
}

// boardBinding is a running board entry.
type boardBinding struct {
	name    string
	state   func() binding.State
	trigger *binding.Trigger
	close   func()
}

// NewBoardCommand creates the board command.
func NewBoardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BoardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "board <board-dir>",
		Short: "Run the bindings of a board and print their states",
		Long: `Load a board of CUE bindings, start every binding and print the
settled states. Bindings marked live, or all bindings with --live, keep
watching and print each change until interrupted.

Example board file:

  binding: zoneTemps: {
    filter: "point and temp and zone"
    live:   true
    poll:   "2s"
  }
  binding: ahus: expr: "readAll(ahu)"

Examples:
  haybind board ./board
  haybind board ./board --only zoneTemps --live`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoard(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "run only these bindings")
	cmd.Flags().BoolVar(&opts.Live, "live", false, "watch every binding")

	return cmd
}

func runBoard(opts *BoardOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	b, loadErrors := board.Load(dir, board.LoadModeFailFast)
	if len(loadErrors) > 0 {
		return outputLoadError(formatter, loadErrors[0])
	}
	selected, err := selectBindings(b, opts.Only)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	running := make([]boardBinding, 0, len(selected))
	live := false
	for _, bnd := range selected {
		if bnd.Live || opts.Live {
			live = true
			w := binding.NewWatcher(s.engine)
			w.Watch(s.ctx, bnd.Request())
			running = append(running, boardBinding{name: bnd.Name, state: w.State, trigger: w.Cell().Trigger(), close: w.Close})
			continue
		}
		r := binding.NewResolver(s.engine)
		r.ResolveQuery(s.ctx, bnd.Query)
		running = append(running, boardBinding{name: bnd.Name, state: r.State, trigger: r.Cell().Trigger(), close: r.Close})
	}
	defer func() {
		for _, rb := range running {
			rb.close()
		}
	}()
	s.logger.Debug("board started", "dir", dir, "bindings", len(running), "live", live)

	if err := s.settle(); err != nil {
		return err
	}
	failed := 0
	for _, rb := range running {
		state := rb.state()
		if state.Err != nil {
			failed++
		}
		if err := formatter.State(rb.name, state); err != nil {
			return err
		}
	}
	if !live {
		if failed > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d binding(s) failed", failed))
		}
		return nil
	}
	return streamBoard(s, formatter, running)
}

// streamBoard prints every later state change until the session ends.
// Trigger listeners run on the engine goroutine, so they only mark the
// binding dirty and wake the printer.
func streamBoard(s *session, formatter *OutputFormatter, running []boardBinding) error {
	stop := s.notifyInterrupt()
	defer stop()

	dirty := make([]atomic.Bool, len(running))
	wake := make(chan struct{}, 1)
	for i, rb := range running {
		cancel := rb.trigger.Listen(func(uint64) {
			dirty[i].Store(true)
			select {
			case wake <- struct{}{}:
			default:
			}
		})
		defer cancel()
	}

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-wake:
			for i := range running {
				if !dirty[i].Swap(false) {
					continue
				}
				state := running[i].state()
				if state.IsLoading {
					continue
				}
				if err := formatter.State(running[i].name, state); err != nil {
					return err
				}
			}
		}
	}
}

func selectBindings(b *board.Board, only []string) ([]board.Binding, error) {
	if len(only) == 0 {
		return b.Bindings, nil
	}
	out := make([]board.Binding, 0, len(only))
	for _, name := range only {
		bnd, ok := b.Lookup(name)
		if !ok {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("no binding %q in board", name))
		}
		out = append(out, bnd)
	}
	return out, nil
}
