package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/qfleet/internal/ir"
	"github.com/roach88/qfleet/internal/pipeline"
)

const (
	configFileName = "qfleet"
	configFileType = "yaml"
	envPrefix      = "QFLEET"

	cfgKeyDialect           = "dialect"
	cfgKeyDriver            = "driver"
	cfgKeyDSN               = "dsn"
	cfgKeyRuns              = "runs"
	cfgKeyTimeout           = "timeout"
	cfgKeyRace              = "race"
	cfgKeyWorkers           = "workers"
	cfgKeyExamplesPerWorker = "examples_per_worker"
	cfgKeyBusCapacity       = "bus_capacity"
	cfgKeyRequireApproval   = "require_approval"
	cfgKeyCacheDir          = "cache_dir"
	cfgKeyCatalog           = "catalog"
)

// configKeys lists every key a command flag may override. The flag name is
// the key with underscores replaced by dashes.
var configKeys = []string{
	cfgKeyDialect, cfgKeyDriver, cfgKeyDSN, cfgKeyRuns, cfgKeyTimeout, cfgKeyRace,
	cfgKeyWorkers, cfgKeyExamplesPerWorker, cfgKeyBusCapacity, cfgKeyRequireApproval,
	cfgKeyCacheDir, cfgKeyCatalog,
}

// Settings is the resolved configuration: flags over QFLEET_* environment
// variables over qfleet.yaml over defaults.
type Settings struct {
	Dialect           ir.Dialect
	Driver            string
	DSN               string
	Runs              int
	Timeout           time.Duration
	Race              bool
	Workers           int
	ExamplesPerWorker int
	BusCapacity       int
	RequireApproval   bool
	CacheDir          string
	Catalog           string
}

// loadConfig reads the config file with Viper. With an explicit path the
// file must exist; otherwise qfleet.yaml in the working directory is read
// when present and a missing file is not an error.
func loadConfig(path string) (*viper.Viper, error) {
	d := pipeline.DefaultConfig()

	v := viper.New()
	v.SetDefault(cfgKeyDialect, string(d.Dialect))
	v.SetDefault(cfgKeyDriver, "sqlite3")
	v.SetDefault(cfgKeyDSN, "")
	v.SetDefault(cfgKeyRuns, d.Runs)
	v.SetDefault(cfgKeyTimeout, d.Timeout)
	v.SetDefault(cfgKeyRace, d.Race)
	v.SetDefault(cfgKeyWorkers, d.Workers)
	v.SetDefault(cfgKeyExamplesPerWorker, d.ExamplesPerWorker)
	v.SetDefault(cfgKeyBusCapacity, d.BusCapacity)
	v.SetDefault(cfgKeyRequireApproval, d.RequireApproval)
	v.SetDefault(cfgKeyCacheDir, "")
	v.SetDefault(cfgKeyCatalog, "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// bindFlags lets the command's flags override configuration keys.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for _, key := range configKeys {
		f := cmd.Flags().Lookup(strings.ReplaceAll(key, "_", "-"))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	}
	return nil
}

// settingsFrom resolves and checks the settings held by v.
func settingsFrom(v *viper.Viper) (Settings, error) {
	dialect, err := ir.ParseDialect(v.GetString(cfgKeyDialect))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid %s: %w", cfgKeyDialect, err)
	}
	s := Settings{
		Dialect:           dialect,
		Driver:            v.GetString(cfgKeyDriver),
		DSN:               v.GetString(cfgKeyDSN),
		Runs:              v.GetInt(cfgKeyRuns),
		Timeout:           v.GetDuration(cfgKeyTimeout),
		Race:              v.GetBool(cfgKeyRace),
		Workers:           v.GetInt(cfgKeyWorkers),
		ExamplesPerWorker: v.GetInt(cfgKeyExamplesPerWorker),
		BusCapacity:       v.GetInt(cfgKeyBusCapacity),
		RequireApproval:   v.GetBool(cfgKeyRequireApproval),
		CacheDir:          v.GetString(cfgKeyCacheDir),
		Catalog:           v.GetString(cfgKeyCatalog),
	}
	if err := s.PipelineConfig().Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// PipelineConfig converts the settings for the pipeline.
func (s Settings) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Dialect:           s.Dialect,
		Workers:           s.Workers,
		ExamplesPerWorker: s.ExamplesPerWorker,
		Runs:              s.Runs,
		Timeout:           s.Timeout,
		Race:              s.Race,
		RequireApproval:   s.RequireApproval,
		BusCapacity:       s.BusCapacity,
	}
}

// addDialectFlag, addDatabaseFlags and addValidationFlags register the
// flags bindFlags knows about. Their defaults are placeholders: an unset
// flag never overrides the config.
func addDialectFlag(cmd *cobra.Command) {
	cmd.Flags().String("dialect", "", "SQL dialect (duckdb|postgres|snowflake|sqlite|mysql|ansi)")
}

func addDatabaseFlags(cmd *cobra.Command) {
	cmd.Flags().String("driver", "", "database/sql driver (sqlite3|sqlite)")
	cmd.Flags().String("dsn", "", "data source name")
}

func addValidationFlags(cmd *cobra.Command) {
	cmd.Flags().Int("runs", 0, "timed executions per query")
	cmd.Flags().Duration("timeout", 0, "per-execution timeout")
	cmd.Flags().Bool("race", false, "validate with a simultaneous race instead of repeated runs")
	cmd.Flags().String("cache-dir", "", "badger directory for cached validation results")
}
