package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qfleet/internal/candidate"
	"github.com/roach88/qfleet/internal/console"
	"github.com/roach88/qfleet/internal/fleet"
	"github.com/roach88/qfleet/internal/harness"
	"github.com/roach88/qfleet/internal/pipeline"
	"github.com/roach88/qfleet/internal/report"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Follow   bool
	Control  bool
	Manifest string
}

// Batch is the input of the run command: queries plus the rewrites each
// worker proposes for them.
type Batch struct {
	Queries []BatchQuery `yaml:"queries"`
}

// BatchQuery is one query of a batch. Worker n proposes Candidates[n-1];
// workers beyond the list propose nothing.
type BatchQuery struct {
	ID         string                  `yaml:"id"`
	SQL        string                  `yaml:"sql"`
	Candidates []harness.CandidateSpec `yaml:"candidates"`
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Manifest report.Manifest `json:"manifest"`
	Dropped  int64           `json:"dropped_events"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <batch.yaml>",
		Short: "Run a batch of queries through the full pipeline",
		Long: `Take every query of a batch through parse, DAG, candidate generation,
validation and ranking, and print the leaderboard.

The batch file lists queries and, for each, the rewrites proposed by the
fleet workers (worker n answers with the n-th candidate). A candidate is
either full SQL or a patch plan against the original.

With --control, newline-delimited control messages ({"type":"pause"},
{"type":"resume"}, {"type":"approve"}) are read from standard input.
require_approval needs --control, since nothing else can approve.

Exit codes:
  0 - The batch completed (see the leaderboard for per-query status)
  1 - The run was interrupted
  2 - Command error (bad batch file, no dsn, bad configuration)

Examples:
  qfleet run batch.yaml --dsn ./data.db --driver sqlite
  qfleet run batch.yaml --follow --manifest run.json
  printf '{"type":"approve"}\n' | qfleet run batch.yaml --require-approval --control`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	addDialectFlag(cmd)
	addDatabaseFlags(cmd)
	addValidationFlags(cmd)
	cmd.Flags().Int("workers", 0, "fleet size")
	cmd.Flags().Int("examples-per-worker", -1, "catalog examples handed to each worker")
	cmd.Flags().Int("bus-capacity", 0, "event bus size")
	cmd.Flags().Bool("require-approval", false, "wait for an approve message before publishing each query")
	cmd.Flags().String("catalog", "", "example catalog YAML")
	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "print fleet events to stderr as they happen")
	cmd.Flags().BoolVar(&opts.Control, "control", false, "read control messages from stdin")
	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "write the JSON manifest to this path")

	return cmd
}

// LoadBatch reads and checks a batch file. Unknown fields are rejected.
func LoadBatch(data []byte) (*Batch, error) {
	var b Batch
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(b.Queries) == 0 {
		return nil, fmt.Errorf("invalid batch: no queries")
	}
	seen := make(map[string]bool)
	for i, q := range b.Queries {
		switch {
		case q.ID == "":
			return nil, fmt.Errorf("invalid batch: queries[%d]: id is required", i)
		case seen[q.ID]:
			return nil, fmt.Errorf("invalid batch: duplicate query id %q", q.ID)
		case q.SQL == "":
			return nil, fmt.Errorf("invalid batch: query %s: sql is required", q.ID)
		}
		seen[q.ID] = true
		for j, c := range q.Candidates {
			if c.SQL != "" && c.Plan != nil {
				return nil, fmt.Errorf("invalid batch: query %s: candidates[%d]: sql and plan are mutually exclusive", q.ID, j)
			}
			if _, err := c.PlanFor(); err != nil {
				return nil, fmt.Errorf("invalid batch: query %s: candidates[%d]: %w", q.ID, j, err)
			}
		}
	}
	return &b, nil
}

// replayProposer answers from the batch file.
func replayProposer(b *Batch) (candidate.Proposer, error) {
	byQuery := make(map[string][]candidate.Proposal, len(b.Queries))
	for _, q := range b.Queries {
		props := make([]candidate.Proposal, len(q.Candidates))
		for i, c := range q.Candidates {
			plan, err := c.PlanFor()
			if err != nil {
				return nil, err
			}
			props[i] = candidate.Proposal{SQL: c.SQL, Plan: plan, Transforms: c.Transforms}
		}
		byQuery[q.ID] = props
	}
	return candidate.ProposerFunc(func(_ context.Context, a candidate.Assignment) (candidate.Proposal, error) {
		props := byQuery[a.QueryID]
		if a.WorkerID < 1 || a.WorkerID > len(props) {
			return candidate.Proposal{}, fmt.Errorf("no proposal for worker %d", a.WorkerID)
		}
		return props[a.WorkerID-1], nil
	}), nil
}

func runBatch(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	s, err := opts.settings(cmd)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	if s.RequireApproval && !opts.Control {
		err := NewExitError(ExitCommandError, "require_approval needs --control: nothing could approve the run")
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}

	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	batch, err := LoadBatch(data)
	if err != nil {
		_ = f.Error(ErrCodeInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid batch file", err)
	}
	proposer, err := replayProposer(batch)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid batch file", err)
	}

	genOpts := []candidate.Option{
		candidate.WithWorkers(s.Workers),
		candidate.WithExamplesPerWorker(s.ExamplesPerWorker),
	}
	if s.Catalog != "" {
		cat, err := candidate.LoadCatalog(s.Catalog)
		if err != nil {
			_ = f.Error(ErrCodeConfig, err.Error(), nil)
			return WrapExitError(ExitCommandError, "cannot load catalog", err)
		}
		genOpts = append(genOpts, candidate.WithCatalog(cat.Examples))
	}
	gen := candidate.NewGenerator(proposer, genOpts...)

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

	p, err := pipeline.New(s.PipelineConfig(), db, gen, pipeline.WithValidator(v))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	followCtx, stopFollow := context.WithCancel(ctx)
	if opts.Follow {
		wg.Add(1)
		go func() {
			defer wg.Done()
			console.NewPrinter(cmd.ErrOrStderr()).Follow(followCtx, p.Bus())
		}()
	}
	if opts.Control {
		go func() {
			if err := fleet.ServeControl(ctx, cmd.InOrStdin(), p.Controller()); err != nil && ctx.Err() == nil {
				slog.Warn("control input failed", "error", err)
			}
		}()
	}

	queries := make([]pipeline.Query, len(batch.Queries))
	for i, q := range batch.Queries {
		queries[i] = pipeline.Query{ID: q.ID, SQL: q.SQL}
	}
	slog.Info("run starting", "run_id", p.RunID(), "queries", len(queries), "workers", s.Workers)
	board, _, runErr := p.RunBatch(ctx, queries)

	stopFollow()
	wg.Wait()

	if opts.Manifest != "" {
		if err := writeManifest(opts.Manifest, board); err != nil {
			return WrapExitError(ExitCommandError, "cannot write manifest", err)
		}
	}
	if runErr != nil {
		_ = f.Error(ErrCodeGeneric, "run interrupted", map[string]any{"run_id": p.RunID(), "error": runErr.Error()})
		return WrapExitError(ExitFailure, "run interrupted", runErr)
	}

	if f.Format == "json" {
		return f.SuccessRun(p.RunID(), RunResult{
			Manifest: report.Manifest{RunID: board.RunID, Summary: board.Summary(), Entries: board.Entries},
			Dropped:  p.Bus().Dropped(),
		})
	}
	fmt.Fprint(f.Writer, board.Markdown())
	return nil
}

func writeManifest(path string, board *report.Leaderboard) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := board.WriteManifest(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
