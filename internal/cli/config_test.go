package cli

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qfleet/internal/ir"
)

func resolve(t *testing.T, path string, args ...string) (Settings, error) {
	t.Helper()
	v, err := loadConfig(path)
	if err != nil {
		return Settings{}, err
	}
	cmd := &cobra.Command{Use: "probe"}
	addDialectFlag(cmd)
	addDatabaseFlags(cmd)
	addValidationFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	require.NoError(t, bindFlags(v, cmd))
	return settingsFrom(v)
}

func TestConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := resolve(t, "")
	require.NoError(t, err)
	assert.Equal(t, ir.DialectDuckDB, s.Dialect)
	assert.Equal(t, "sqlite3", s.Driver)
	assert.Equal(t, "", s.DSN)
	assert.Equal(t, 3, s.Runs)
	assert.Equal(t, 300*time.Second, s.Timeout)
	assert.False(t, s.Race)
	assert.Equal(t, 4, s.Workers)
	assert.Equal(t, 3, s.ExamplesPerWorker)
	assert.Equal(t, 1000, s.BusCapacity)
	assert.False(t, s.RequireApproval)
	assert.Equal(t, "", s.CacheDir)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "qfleet.yaml", `
dialect: postgres
dsn: postgres://localhost/app
runs: 5
timeout: 30s
workers: 2
require_approval: true
`)

	s, err := resolve(t, "")
	require.NoError(t, err)
	assert.Equal(t, ir.DialectPostgres, s.Dialect)
	assert.Equal(t, "postgres://localhost/app", s.DSN)
	assert.Equal(t, 5, s.Runs)
	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.Equal(t, 2, s.Workers)
	assert.True(t, s.RequireApproval)
	assert.Equal(t, 1000, s.BusCapacity, "unset keys keep defaults")
}

func TestConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "qfleet.yaml", "runs: 5\n")
	t.Setenv("QFLEET_RUNS", "7")

	s, err := resolve(t, "")
	require.NoError(t, err)
	assert.Equal(t, 7, s.Runs)
}

func TestConfigFlagOverridesEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QFLEET_RUNS", "7")

	s, err := resolve(t, "", "--runs", "9", "--dialect", "sqlite")
	require.NoError(t, err)
	assert.Equal(t, 9, s.Runs)
	assert.Equal(t, ir.DialectSQLite, s.Dialect)
}

func TestConfigUnsetFlagKeepsFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "qfleet.yaml", "dsn: ./app.db\n")

	s, err := resolve(t, "", "--runs", "2")
	require.NoError(t, err)
	assert.Equal(t, "./app.db", s.DSN)
}

func TestConfigExplicitFileMustExist(t *testing.T) {
	_, err := resolve(t, "/nonexistent/qfleet.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestConfigRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := resolve(t, "", "--dialect", "oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dialect")

	_, err = resolve(t, "", "--runs", "-1")
	require.Error(t, err)
}
