package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qfleet/internal/report"
	"github.com/roach88/qfleet/internal/validate"
)

const batchYAML = `queries:
  - id: stocked
    sql: SELECT id FROM items WHERE qty > 0
    candidates:
      - sql: SELECT id FROM items
      - sql: SELECT id FROM items WHERE qty > 0
  - id: broken
    sql: SELECT id FROM (SELECT 1
`

func runArgs(t *testing.T, batch string, extra ...string) []string {
	t.Helper()
	db := itemsDB(t)
	path := writeFile(t, t.TempDir(), "batch.yaml", batch)
	args := []string{
		"run", path,
		"--dialect", "sqlite", "--driver", "sqlite", "--dsn", db,
		"--runs", "2", "--timeout", "5s", "--workers", "2", "--examples-per-worker", "0",
	}
	return append(args, extra...)
}

func TestRunJSON(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "run.json")
	out, _, err := execute(t, "", runArgs(t, batchYAML, "--format", "json", "--manifest", manifest)...)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		RunID  string    `json:"run_id"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, resp.RunID, resp.Data.Manifest.RunID)
	assert.Equal(t, 2, resp.Data.Manifest.Summary.Total)

	byID := map[string]report.Entry{}
	for _, e := range resp.Data.Manifest.Entries {
		byID[e.QueryID] = e
	}
	assert.Equal(t, validate.StatusWrongResults, byID["stocked"].Status)
	assert.Equal(t, 1, byID["stocked"].Candidates)
	assert.Equal(t, validate.StatusError, byID["broken"].Status)

	f, err := os.Open(manifest)
	require.NoError(t, err)
	defer f.Close()
	m, err := report.ReadManifest(f)
	require.NoError(t, err)
	assert.Equal(t, resp.RunID, m.RunID)
	assert.Len(t, m.Entries, 2)
}

func TestRunText(t *testing.T) {
	out, _, err := execute(t, "", runArgs(t, batchYAML)...)
	require.NoError(t, err)
	assert.Contains(t, out, "| Query")
	assert.Contains(t, out, "stocked")
	assert.Contains(t, out, "2 queries")
}

func TestRunFollowPrintsEvents(t *testing.T) {
	_, errOut, err := execute(t, "", runArgs(t, batchYAML, "--follow")...)
	require.NoError(t, err)
	assert.Contains(t, errOut, "query_started")
}

func TestRunRequiresControlForApproval(t *testing.T) {
	_, _, err := execute(t, "", runArgs(t, batchYAML, "--require-approval")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--control")
}

func TestRunApprovedFromControl(t *testing.T) {
	batch := `queries:
  - id: stocked
    sql: SELECT id FROM items WHERE qty > 0
    candidates:
      - sql: SELECT id FROM items WHERE qty >= 1
`
	out, _, err := execute(t, "{\"type\":\"approve\"}\n", runArgs(t, batch, "--require-approval", "--control", "--format", "json")...)
	require.NoError(t, err)

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Manifest.Entries, 1)
	assert.Equal(t, 1, resp.Data.Manifest.Entries[0].Candidates)
}

func TestRunInvalidBatch(t *testing.T) {
	_, _, err := execute(t, "", runArgs(t, "queries: []\n")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLoadBatch(t *testing.T) {
	b, err := LoadBatch([]byte(`queries:
  - id: q1
    sql: SELECT 1
    candidates:
      - sql: SELECT 2
      - plan:
          plan_id: p
          steps:
            - op: insert_cte
              by_node_id: s1
              cte_name: one
              cte_query_sql: SELECT 1
`))
	require.NoError(t, err)
	require.Len(t, b.Queries, 1)
	require.Len(t, b.Queries[0].Candidates, 2)

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no queries", "queries: []\n", "no queries"},
		{"missing id", "queries:\n  - sql: SELECT 1\n", "id is required"},
		{"missing sql", "queries:\n  - id: q\n", "sql is required"},
		{"duplicate", "queries:\n  - id: q\n    sql: SELECT 1\n  - id: q\n    sql: SELECT 2\n", "duplicate query id"},
		{"unknown field", "queries:\n  - id: q\n    sql: SELECT 1\n    weight: 2\n", "failed to parse YAML"},
		{"bad plan", "queries:\n  - id: q\n    sql: SELECT 1\n    candidates:\n      - plan:\n          plan_id: p\n          steps: []\n", "candidates[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBatch([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
