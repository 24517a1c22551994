package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qfleet/internal/sqlexec"
	"github.com/roach88/qfleet/internal/validate"
)

// ValidationResult is the JSON payload of the validate command.
type ValidationResult struct {
	Method  validate.Method   `json:"method"`
	Results []validate.Result `json:"results"`
	Ranking []string          `json:"ranking,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <original.sql> <candidate.sql>...",
		Short: "Compare candidate rewrites against the original query",
		Long: `Run the original query and every candidate on the configured database,
check that each candidate returns the same rows, and classify its speedup.

Each candidate is named after its file. By default every query runs
--runs times and the first (warmup) run is discarded; with --race all
queries start together on separate connections.

Exit codes:
  0 - Every candidate was judged (see the status column)
  1 - The original query failed
  2 - Command error (no dsn, unreadable files, bad configuration)

Examples:
  qfleet validate orig.sql rewrite1.sql rewrite2.sql --driver sqlite --dsn ./data.db
  qfleet validate orig.sql fast.sql --race --format json`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], args[1:], cmd)
		},
	}
	addDialectFlag(cmd)
	addDatabaseFlags(cmd)
	addValidationFlags(cmd)
	return cmd
}

func runValidate(opts *RootOptions, originalPath string, candidatePaths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	s, err := opts.settings(cmd)
	if err != nil {
		return err
	}
	original, err := readInput(cmd, originalPath)
	if err != nil {
		return err
	}
	variants := make([]validate.Variant, 0, len(candidatePaths))
	for _, p := range candidatePaths {
		sql, err := readInput(cmd, p)
		if err != nil {
			return err
		}
		variants = append(variants, validate.Variant{ID: variantID(p), SQL: string(sql)})
	}

	db, err := openDB(cmd, s)
	if err != nil {
		_ = f.Error(ErrCodeDatabase, err.Error(), nil)
		return err
	}
	defer db.Close()

	v, closeCache, err := newValidator(s)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer closeCache()

	out := ValidationResult{Method: validate.MethodTrimmedMean}
	ctx := cmd.Context()
	if s.Race {
		race, err := v.Race(ctx, db, string(original), variants)
		if err != nil {
			_ = f.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitFailure, "validation failed", err)
		}
		out.Method = validate.MethodRace
		out.Results = race.Results
		out.Ranking = race.Ranking
	} else {
		out.Results, err = v.ValidateAll(ctx, db, string(original), variants)
		if err != nil {
			_ = f.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitFailure, "validation failed", err)
		}
	}

	if f.Format == "json" {
		return f.Success(out)
	}
	fmt.Fprintf(f.Writer, "%-24s %-14s %8s  %s\n", "CANDIDATE", "STATUS", "SPEEDUP", "DETAIL")
	for _, r := range out.Results {
		detail := ""
		switch {
		case r.Error != "":
			detail = r.Error
		case r.Mismatch != nil:
			detail = r.Mismatch.Reason
		case r.Cached:
			detail = "cached"
		}
		fmt.Fprintf(f.Writer, "%-24s %-14s %7.2fx  %s\n", r.CandidateID, r.Status, r.Speedup, detail)
	}
	if len(out.Ranking) > 0 {
		fmt.Fprintf(f.Writer, "race order: %s\n", strings.Join(out.Ranking, " < "))
	}
	return nil
}

// variantID names a candidate after its file.
func variantID(path string) string {
	if path == "-" {
		return "stdin"
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// openDB connects to the configured database.
func openDB(cmd *cobra.Command, s Settings) (*sqlexec.DB, error) {
	if s.DSN == "" {
		return nil, NewExitError(ExitCommandError, "no database configured: set dsn in qfleet.yaml, QFLEET_DSN or --dsn")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := sqlexec.Open(ctx, s.Driver, s.DSN, sqlexec.WithDialect(s.Dialect))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot connect to database", err)
	}
	return db, nil
}

// newValidator builds a validator from the settings, with a badger result
// cache when cache_dir is set. The returned func closes the cache.
func newValidator(s Settings) (*validate.Validator, func(), error) {
	opts := []validate.Option{
		validate.WithRuns(s.Runs),
		validate.WithTimeout(s.Timeout),
		validate.WithDialect(s.Dialect),
	}
	closeCache := func() {}
	if s.CacheDir != "" {
		cache, err := validate.OpenBadgerCache(s.CacheDir)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "cannot open validation cache", err)
		}
		opts = append(opts, validate.WithCache(cache), validate.WithCacheNamespace(s.Driver+" "+s.DSN))
		closeCache = func() { _ = cache.Close() }
	}
	return validate.NewValidator(opts...), closeCache, nil
}
