package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/haybind/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite golden traces instead of comparing
	Filter string // glob over scenario file names, extension stripped
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Note   string   `json:"note,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult aggregates every scenario run by one invocation.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run binding scenarios",
		Long: `Run binding scenarios using the harness framework.

Each scenario seeds a scratch store, drives bindings step by step and
checks the settled states against its assertions and, when present, the
golden trace in <scenarios-dir>/golden/<file>.golden.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  haybind test ./scenarios
  haybind test ./scenarios --filter "point_*"
  haybind test ./scenarios --update
  haybind test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := scenarioFiles(dir, opts.Filter)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	text := opts.Format != "json"
	w := cmd.OutOrStdout()
	if text && len(files) == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	var logger *slog.Logger
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, file := range files {
		sr := checkScenario(file, opts.Update, logger)
		if text {
			printScenario(w, sr)
		}
		result.add(sr)
	}

	var failure error
	if result.Failed > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	if !text {
		resp := CLIResponse{Status: "ok", Data: result}
		if failure != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_TEST_FAILED", Message: failure.Error()}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if failure == nil {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
	return failure
}

// scenarioFiles lists *.yaml and *.yml under dir, skipping golden/
// directories, optionally narrowed by a name glob.
func scenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && path != dir && d.Name() == "golden":
			return filepath.SkipDir
		case d.IsDir():
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func failed(name, format string, args ...any) ScenarioResult {
	return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
}

// checkScenario loads, runs and judges one scenario file. Golden traces
// are judged before assertions so a stale golden is reported even when
// the assertions hold.
func checkScenario(file string, update bool, logger *slog.Logger) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed(filepath.Base(file), "load error: %v", err)
	}

	var runOpts []harness.Option
	if logger != nil {
		runOpts = append(runOpts, harness.WithLogger(logger))
	}
	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return failed(scenario.Name, "execution error: %v", err)
	}

	trace, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		return failed(scenario.Name, "marshal trace: %v", err)
	}

	golden := goldenPath(file)
	out := ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}

	if update {
		if err := writeGolden(golden, trace); err != nil {
			return failed(scenario.Name, "golden update error: %v", err)
		}
		out.Pass, out.Errors, out.Note = true, nil, "golden updated"
		return out
	}

	want, err := os.ReadFile(golden)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return out
	case err != nil:
		return failed(scenario.Name, "golden read error: %v", err)
	case !bytes.Equal(want, trace):
		return failed(scenario.Name, "Golden file mismatch (run with --update to regenerate)")
	}
	return out
}

func printScenario(w io.Writer, sr ScenarioResult) {
	mark := "✓"
	if !sr.Pass {
		mark = "✗"
	}
	if sr.Note != "" {
		fmt.Fprintf(w, "%s %s (%s)\n", mark, sr.Name, sr.Note)
	} else {
		fmt.Fprintf(w, "%s %s\n", mark, sr.Name)
	}
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// goldenPath maps dir/name.yaml to dir/golden/name.golden.
func goldenPath(file string) string {
	base := filepath.Base(file)
	return filepath.Join(filepath.Dir(file), "golden", strings.TrimSuffix(base, filepath.Ext(base))+".golden")
}

func writeGolden(path string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, trace, 0o644)
}
