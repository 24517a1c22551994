package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONResponses(t *testing.T) {
	tests := []struct {
		name    string
		write   func(f *OutputFormatter) error
		status  string
		runID   string
		errCode string
		keys    []string
	}{
		{
			name:   "success without run",
			write:  func(f *OutputFormatter) error { return f.Success(map[string]int{"candidates": 3}) },
			status: "ok",
			keys:   []string{"status", "data"},
		},
		{
			name: "success in run",
			write: func(f *OutputFormatter) error {
				return f.SuccessRun("0192c8e4-run", map[string]int{"queries": 2})
			},
			status: "ok",
			runID:  "0192c8e4-run",
			keys:   []string{"status", "data", "run_id"},
		},
		{
			name: "parse error with position",
			write: func(f *OutputFormatter) error {
				return f.Error(ErrCodeParse, "unexpected \"FROM\"", map[string]int{"line": 1, "column": 12})
			},
			status:  "error",
			errCode: ErrCodeParse,
			keys:    []string{"status", "error"},
		},
		{
			name: "patch step failed",
			write: func(f *OutputFormatter) error {
				return f.Error(ErrCodePatch, "step 2: target not found", nil)
			},
			status:  "error",
			errCode: ErrCodePatch,
			keys:    []string{"status", "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, tt.write(&OutputFormatter{Format: "json", Writer: buf}))

			var raw map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
			keys := make([]string, 0, len(raw))
			for k := range raw {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.keys, keys)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.runID, resp.RunID)
			if tt.errCode == "" {
				assert.Nil(t, resp.Error)
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.errCode, resp.Error.Code)
		})
	}
}

func TestOutputFormatter_JSONErrorDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeParse, "unexpected \"FROM\"", map[string]int{"line": 1, "column": 12}))

	var resp struct {
		Error struct {
			Details map[string]int `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, map[string]int{"line": 1, "column": 12}, resp.Error.Details)
}

func TestOutputFormatter_TextSuccessRun(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

	require.NoError(t, formatter.SuccessRun("0192c8e4-run", "SELECT id FROM orders"))
	assert.Equal(t, "SELECT id FROM orders\n", out.String())
	assert.Equal(t, "run 0192c8e4-run\n", errOut.String())

	out.Reset()
	errOut.Reset()
	require.NoError(t, formatter.Success("3 candidates validated"))
	assert.Equal(t, "3 candidates validated\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	details := map[string]string{"dsn": "file:orders.db"}
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut, Verbose: tt.verbose}

			require.NoError(t, formatter.Error(ErrCodeDatabase, "cannot connect", details))
			assert.Empty(t, out.String())
			assert.Contains(t, errOut.String(), "Error [E007]: cannot connect")
			if tt.wantDetails {
				assert.Contains(t, errOut.String(), "Details: map[dsn:file:orders.db]")
			} else {
				assert.NotContains(t, errOut.String(), "Details:")
			}
		})
	}
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
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut, Verbose: tt.verbose}

			formatter.VerboseLog("validating %d candidates", 4)

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Equal(t, "validating 4 candidates\n", errOut.String())
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "no dsn")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitSuccess, "fine", nil))
	assert.Equal(t, ExitSuccess, GetExitCode(wrapped))
}

func TestExitError_Message(t *testing.T) {
	err := WrapExitError(ExitFailure, "original query failed", errors.New("no such table: t"))
	assert.Equal(t, "original query failed: no such table: t", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "no such table")
	assert.Equal(t, "bare", NewExitError(ExitFailure, "bare").Error())
}
