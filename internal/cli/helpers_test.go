package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/qfleet/internal/sqlexec"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeFile writes content under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// itemsDB creates a SQLite file database with a small items table and
// returns its path. Tests open it with the pure Go "sqlite" driver.
func itemsDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.db")
	db, err := sqlexec.Open(context.Background(), "sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Exec(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, qty INTEGER)"))
	require.NoError(t, db.Exec(ctx, "INSERT INTO items VALUES (1, 'bolt', 10), (2, 'nut', 0), (3, 'gear', 4)"))
	return path
}
