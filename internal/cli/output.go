package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/haystack"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Binding or scenario failure (read failed, write rejected, scenarios failed)
	ExitCommandError = 2 // Command error (bad flags, missing files, database not found)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "READ_FAILED", "E101", ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Grid outputs records: a Hayson grid in JSON, a YAML list of records in
// the seed file notation otherwise.
func (f *OutputFormatter) Grid(g haystack.Grid) error {
	if f.Format == "json" {
		return f.Success(g)
	}
	return writeRecords(f.Writer, g)
}

// State outputs one binding state.
func (f *OutputFormatter) State(name string, s binding.State) error {
	view := newStateView(name, s)
	if f.Format == "json" {
		return f.Success(view)
	}
	fmt.Fprintln(f.Writer, view.summary())
	if view.Error != nil {
		fmt.Fprintf(f.Writer, "  error: %s\n", view.Error.Message)
	}
	if f.Verbose || view.Error == nil {
		return writeRecords(f.Writer, s.Data)
	}
	return nil
}

// StateView is the printable form of a binding state.
type StateView struct {
	Name      string        `json:"name"`
	Loading   bool          `json:"loading"`
	Completed uint64        `json:"completed"`
	Updates   uint64        `json:"updates"`
	Rows      haystack.Grid `json:"rows"`
	Error     *CLIError     `json:"error,omitempty"`
}

func newStateView(name string, s binding.State) StateView {
	v := StateView{
		Name:      name,
		Loading:   s.IsLoading,
		Completed: s.CompletedCount,
		Updates:   s.UpdateCount,
		Rows:      s.Data,
	}
	if s.Err != nil {
		v.Error = &CLIError{Code: errorCode(s.Err), Message: s.Err.Error()}
	}
	return v
}

func (v StateView) summary() string {
	s := fmt.Sprintf("%s: loading=%t completed=%d updates=%d rows=%d",
		v.Name, v.Loading, v.Completed, v.Updates, len(v.Rows))
	if v.Error != nil {
		s += " error=" + v.Error.Code
	}
	return s
}

func writeRecords(w io.Writer, g haystack.Grid) error {
	rows := make([]any, len(g))
	for i, row := range g {
		rows[i] = haystack.ToNative(row)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rows); err != nil {
		return err
	}
	return enc.Close()
}

// errorCode returns the binding error code carried by err, or the
// generic code for anything else.
func errorCode(err error) string {
	var (
		re *binding.ResolutionError
		se *binding.SubscriptionError
		we *binding.WriteError
	)
	switch {
	case errors.As(err, &re):
		return string(re.Code)
	case errors.As(err, &se):
		return string(se.Code)
	case errors.As(err, &we):
		return string(we.Code)
	}
	return ErrCodeGeneric
}

// ErrCodeGeneric labels failures that carry no binding error code.
const ErrCodeGeneric = "E001"
