package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/haystack"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"records": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"records": float64(3)}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("READ_FAILED", "record not found", map[string]string{"id": "p9"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "READ_FAILED", resp.Error.Code)
	assert.Equal(t, "record not found", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("E103", "bad filter", map[string]string{"file": "board.cue"}))
	assert.Contains(t, buf.String(), "Error [E103]: bad filter")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E103", "bad filter", map[string]string{"file": "board.cue"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, diag := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: tt.verbose}

			formatter.VerboseLog("Found %d file(s)", 2)

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Equal(t, "Found 2 file(s)\n", diag.String())
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestOutputFormatter_GridText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	g := haystack.Grid{
		{"id": haystack.Ref{ID: "p1"}, "point": haystack.Marker{}, "curVal": haystack.Number{Val: 72, Unit: "°F"}},
	}
	require.NoError(t, formatter.Grid(g))
	out := buf.String()
	assert.Contains(t, out, "- curVal: n:72 °F\n")
	assert.Contains(t, out, "  id: r:p1\n")
	assert.Contains(t, out, "  point: ")
}

func TestOutputFormatter_GridJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Grid(haystack.Grid{{"id": haystack.Ref{ID: "p1"}}}))

	var resp struct {
		Status string        `json:"status"`
		Data   haystack.Grid `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, haystack.Ref{ID: "p1"}, resp.Data[0]["id"])
}

func TestOutputFormatter_State(t *testing.T) {
	state := binding.State{
		Data:           haystack.Grid{{"id": haystack.Ref{ID: "p1"}}},
		CompletedCount: 2,
		UpdateCount:    1,
		Err:            &binding.SubscriptionError{Code: binding.ErrCodePollFailed, Message: "db locked"},
	}

	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, formatter.State("temps", state))
	assert.Contains(t, buf.String(), "temps: loading=false completed=2 updates=1 rows=1 error=POLL_FAILED")
	assert.Contains(t, buf.String(), "  error: db locked")
	assert.NotContains(t, buf.String(), "r:p1", "rows are only listed in verbose mode when the state has an error")

	buf.Reset()
	formatter.Format = "json"
	require.NoError(t, formatter.State("temps", state))
	var resp struct {
		Data struct {
			Name      string    `json:"name"`
			Completed uint64    `json:"completed"`
			Error     *CLIError `json:"error"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "temps", resp.Data.Name)
	assert.Equal(t, uint64(2), resp.Data.Completed)
	require.NotNil(t, resp.Data.Error)
	assert.Equal(t, "POLL_FAILED", resp.Data.Error.Code)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&binding.ResolutionError{Code: binding.ErrCodeOpsOnly}, "OPS_ONLY"},
		{fmt.Errorf("wrapped: %w", &binding.SubscriptionError{Code: binding.ErrCodeSubscribeFailed}), "SUBSCRIBE_FAILED"},
		{&binding.WriteError{Code: binding.ErrCodeNoTarget}, "NO_TARGET"},
		{errors.New("plain"), ErrCodeGeneric},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err))
	}
}

func TestExitError(t *testing.T) {
	base := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", base)

	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("run: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(base))
	assert.Equal(t, "no scenarios", NewExitError(ExitFailure, "no scenarios").Error())
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want haystack.Value
	}{
		{"72", haystack.Number{Val: 72}},
		{"72.5", haystack.Number{Val: 72.5}},
		{"n:72 °F", haystack.Number{Val: 72, Unit: "°F"}},
		{"m:", haystack.Marker{}},
		{"-:", haystack.Remove{}},
		{"@ahu1", haystack.Ref{ID: "ahu1"}},
		{"true", haystack.Bool(true)},
		{"null", haystack.Null{}},
		{"AHU 1", haystack.Str("AHU 1")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseValue(tt.in)
			require.NoError(t, err)
			assert.True(t, haystack.Equal(tt.want, got), "got %#v", got)
		})
	}
}
