package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/haystack"
	"github.com/roach88/haybind/internal/scalar"
	"github.com/roach88/haybind/internal/store"
)

// WriteOptions holds flags for the write command.
type WriteOptions struct {
	*RootOptions
	Level    int
	Who      string
	Duration time.Duration
}

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "write <point-id> <value>",
		Short: "Write a point through its live binding",
		Long: `Write a value into a point's priority array and print the array.

Level and who default to the write settings of the config. A value of
null releases the level.

Examples:
  haybind write @sp1 "n:72 °F"
  haybind write @sp1 72 --level 8 --who operator --duration 1h
  haybind write @sp1 null --level 8`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(opts, args[0], args[1], cmd)
		},
	}
	cmd.Flags().IntVar(&opts.Level, "level", 0, "priority level 1-17 (default from config)")
	cmd.Flags().StringVar(&opts.Who, "who", "", "writer identity (default from config)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "hold the level for this long (0 = permanent)")

	return cmd
}

func runWrite(opts *WriteOptions, id, arg string, cmd *cobra.Command) error {
	v, err := parseValue(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid value", err)
	}
	if _, ok := v.(haystack.Null); ok {
		v = nil
	}

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := readRecord(s, id)
	if err != nil {
		return err
	}
	p := scalar.NewPoint(s.ctx, s.engine, rec)
	defer p.Close()
	// Write into an open binding so the echo lands on its row.
	if err := s.settle(); err != nil {
		return err
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	wo := client.WriteOptions{Level: opts.Level, Who: opts.Who, Duration: opts.Duration}
	if err := p.Writer()(s.ctx, v, wo); err != nil {
		return writeFailed(formatter, err)
	}
	if err := s.settle(); err != nil {
		return err
	}
	formatter.VerboseLog("curVal now %v", haystack.ToNative(p.Value()))

	arr, err := s.store.WriteArray(s.ctx, parseRef(id))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read write array", err)
	}
	return formatter.Grid(arr)
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	var writeTag string

	cmd := &cobra.Command{
		Use:   "commit <id> <tag> <value>",
		Short: "Set one tag of a record through its live binding",
		Long: `Commit a tag value and print the updated record.

A value of null or "-:" removes the tag. --write-tag commits to a
different tag than the one read, as tag bindings with a separate write
tag do.

Examples:
  haybind commit @ahu1 dis "AHU-1 North"
  haybind commit @ahu1 occupied m:
  haybind commit @ahu1 occupied null`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(rootOpts, args[0], args[1], args[2], writeTag, cmd)
		},
	}
	cmd.Flags().StringVar(&writeTag, "write-tag", "", "tag to commit to (default: the read tag)")

	return cmd
}

func runCommit(opts *RootOptions, id, tag, arg, writeTag string, cmd *cobra.Command) error {
	v, err := parseValue(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid value", err)
	}
	if _, ok := v.(haystack.Null); ok {
		v = nil
	}

	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := readRecord(s, id)
	if err != nil {
		return err
	}
	var tagOpts []scalar.Option
	if writeTag != "" {
		tagOpts = append(tagOpts, scalar.WithWriteTag(writeTag))
	}
	t := scalar.NewTag(s.ctx, s.engine, rec, tag, tagOpts...)
	defer t.Close()
	if err := s.settle(); err != nil {
		return err
	}

	formatter := newFormatter(opts, cmd)
	if err := t.Writer()(s.ctx, v, client.WriteOptions{}); err != nil {
		return writeFailed(formatter, err)
	}
	if err := s.settle(); err != nil {
		return err
	}
	return formatter.Grid(haystack.Grid{t.Entity()})
}

func readRecord(s *session, id string) (haystack.Dict, error) {
	g, err := s.store.ReadByIDs(s.ctx, []haystack.Ref{parseRef(id)})
	if errors.Is(err, store.ErrNotFound) {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("record %s not found", id), err)
	}
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to read record", err)
	}
	return g[0], nil
}

func writeFailed(formatter *OutputFormatter, err error) error {
	var we *binding.WriteError
	if !errors.As(err, &we) {
		return WrapExitError(ExitFailure, "write failed", err)
	}
	if ferr := formatter.Error(string(we.Code), we.Message, map[string]string{"id": we.ID, "tag": we.Tag}); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitFailure, "write failed", err)
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Load records from a YAML seed file",
		Long: `Store every record of a seed file, replacing records with the same id.

Seed files hold a "records" list; values use the JSON v3 prefixes
("m:" marker, "n:72 °F" number, "@p1" ref).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := newLogger(cfg, opts, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	st, err := store.Open(cfg.DB.Path, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	n, err := st.Seed(commandContext(cmd), path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to seed database", err)
	}
	formatter := newFormatter(opts, cmd)
	if opts.Format == "json" {
		return formatter.Success(map[string]any{"records": n, "db": cfg.DB.Path})
	}
	return formatter.Success(fmt.Sprintf("Seeded %d record(s) into %s", n, cfg.DB.Path))
}
