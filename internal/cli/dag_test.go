package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dagQuery = `WITH big AS (SELECT id FROM items WHERE qty > 3)
SELECT i.name FROM items i WHERE i.id IN (SELECT id FROM big)`

func TestDAGText(t *testing.T) {
	out, _, err := execute(t, dagQuery, "dag", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "dag s1")
	assert.Contains(t, out, "big (cte)")
}

func TestDAGJSON(t *testing.T) {
	out, _, err := execute(t, dagQuery, "dag", "-", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Graphs []struct {
				StmtID string `json:"stmt_id"`
			} `json:"graphs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Graphs, 1)
	assert.Equal(t, "s1", resp.Data.Graphs[0].StmtID)
}

func TestDAGExplain(t *testing.T) {
	path := itemsDB(t)
	out, _, err := execute(t, dagQuery, "dag", "-", "--explain", "--dialect", "sqlite", "--driver", "sqlite", "--dsn", path)
	require.NoError(t, err)
	assert.Contains(t, out, "dag s1")
	assert.Contains(t, out, "cost")
}

func TestDAGExplainNeedsDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := execute(t, dagQuery, "dag", "-", "--explain")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no database configured")
}

func TestDAGNoQuery(t *testing.T) {
	_, _, err := execute(t, "CREATE TABLE t (id INTEGER)", "dag", "-")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
