package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qfleet/internal/validate"
)

func validateArgs(t *testing.T, extra ...string) []string {
	t.Helper()
	db := itemsDB(t)
	dir := t.TempDir()
	args := []string{
		"validate",
		writeFile(t, dir, "original.sql", "SELECT id FROM items WHERE qty > 0"),
		writeFile(t, dir, "same.sql", "SELECT id FROM items WHERE qty >= 1"),
		writeFile(t, dir, "wrong.sql", "SELECT id FROM items"),
		writeFile(t, dir, "broken.sql", "SELECT nope FROM items"),
		"--dialect", "sqlite", "--driver", "sqlite", "--dsn", db, "--runs", "2", "--timeout", "5s",
	}
	return append(args, extra...)
}

func decodeValidation(t *testing.T, out string) ValidationResult {
	t.Helper()
	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestValidateJSON(t *testing.T) {
	out, _, err := execute(t, "", validateArgs(t, "--format", "json")...)
	require.NoError(t, err)

	res := decodeValidation(t, out)
	assert.Equal(t, validate.MethodTrimmedMean, res.Method)
	require.Len(t, res.Results, 3)

	assert.Equal(t, "same", res.Results[0].CandidateID)
	assert.True(t, res.Results[0].RowsMatch)
	assert.NotEqual(t, validate.StatusWrongResults, res.Results[0].Status)
	assert.NotEqual(t, validate.StatusError, res.Results[0].Status)

	assert.Equal(t, "wrong", res.Results[1].CandidateID)
	assert.Equal(t, validate.StatusWrongResults, res.Results[1].Status)
	assert.False(t, res.Results[1].RowsMatch)

	assert.Equal(t, "broken", res.Results[2].CandidateID)
	assert.Equal(t, validate.StatusError, res.Results[2].Status)
	assert.NotEmpty(t, res.Results[2].Error)
}

func TestValidateRace(t *testing.T) {
	out, _, err := execute(t, "", validateArgs(t, "--race", "--format", "json")...)
	require.NoError(t, err)

	res := decodeValidation(t, out)
	assert.Equal(t, validate.MethodRace, res.Method)
	require.Len(t, res.Results, 3)
	assert.Equal(t, validate.StatusWrongResults, res.Results[1].Status)
	assert.Contains(t, res.Ranking, validate.OriginalID)
}

func TestValidateText(t *testing.T) {
	out, _, err := execute(t, "", validateArgs(t)...)
	require.NoError(t, err)
	assert.Contains(t, out, "CANDIDATE")
	assert.Contains(t, out, "WRONG_RESULTS")
	assert.Contains(t, out, "broken")
}

func TestValidateWithCache(t *testing.T) {
	args := validateArgs(t, "--format", "json", "--cache-dir", t.TempDir())

	first, _, err := execute(t, "", args...)
	require.NoError(t, err)
	second, _, err := execute(t, "", args...)
	require.NoError(t, err)

	a, b := decodeValidation(t, first), decodeValidation(t, second)
	require.Len(t, b.Results, 3)
	assert.Equal(t, a.Results[1].Status, b.Results[1].Status)
}

func TestValidateOriginalFails(t *testing.T) {
	db := itemsDB(t)
	dir := t.TempDir()
	_, _, err := execute(t, "",
		"validate",
		writeFile(t, dir, "original.sql", "SELECT id FROM missing_table"),
		writeFile(t, dir, "cand.sql", "SELECT 1"),
		"--driver", "sqlite", "--dsn", db, "--dialect", "sqlite",
	)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateNeedsDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	_, _, err := execute(t, "",
		"validate",
		writeFile(t, dir, "a.sql", "SELECT 1"),
		writeFile(t, dir, "b.sql", "SELECT 1"),
	)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVariantID(t *testing.T) {
	assert.Equal(t, "fast", variantID("rewrites/fast.sql"))
	assert.Equal(t, "plain", variantID("plain"))
	assert.Equal(t, "stdin", variantID("-"))
}
