package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qfleet/internal/ir"
	"github.com/roach88/qfleet/internal/patch"
)

// Scenario defines a rewrite conformance scenario.
// A scenario loads fixtures into a fresh database, proposes a fixed set of
// candidate rewrites for one original query, and asserts on the verdicts
// the validator reaches.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Dialect is the SQL dialect of every statement. Defaults to sqlite.
	Dialect ir.Dialect `yaml:"dialect,omitempty"`

	// Runs is the number of timed executions per query. Defaults to 1.
	Runs int `yaml:"runs,omitempty"`

	// Timeout bounds every execution. Defaults to DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Fixtures are statements executed in order before validation, usually
	// CREATE TABLE and INSERT.
	Fixtures []string `yaml:"fixtures"`

	// Original is the query being rewritten.
	Original string `yaml:"original"`

	// Candidates are the rewrites proposed for Original, one per worker.
	Candidates []CandidateSpec `yaml:"candidates"`

	// Assertions validate the verdicts and the final database state.
	// Supported types: verdict, generation_failed, original_rows, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// CandidateSpec is one proposed rewrite: either a full query or a patch
// plan in the plan wire format.
type CandidateSpec struct {
	ID         string         `yaml:"id"`
	SQL        string         `yaml:"sql,omitempty"`
	Plan       map[string]any `yaml:"plan,omitempty"`
	Transforms []string       `yaml:"transforms,omitempty"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type is the assertion type.
	Type string `yaml:"type"`

	// Candidate names the candidate for verdict and generation_failed.
	Candidate string `yaml:"candidate,omitempty"`

	// Verdict is the expected verdict: correct, wrong_results or error.
	Verdict string `yaml:"verdict,omitempty"`

	// Reason is the expected generation failure reason.
	Reason string `yaml:"reason,omitempty"`

	// Count is the expected row count for original_rows.
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect describe a final_state check: exactly one row
	// of Table matches Where and carries the Expect values.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertVerdict          = "verdict"
	AssertGenerationFailed = "generation_failed"
	AssertOriginalRows     = "original_rows"
	AssertFinalState       = "final_state"
)

// Verdicts.
const (
	VerdictCorrect      = "correct"
	VerdictWrongResults = "wrong_results"
	VerdictError        = "error"
	VerdictNotGenerated = "not_generated"
)

// DefaultTimeout bounds scenario executions when none is set.
const DefaultTimeout = 10 * time.Second

// LoadScenario loads and validates a scenario from a YAML file.
// Unknown fields are rejected to catch typos.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// PlanFor decodes the candidate's plan through the plan wire schema.
func (c CandidateSpec) PlanFor() (*patch.Plan, error) {
	if c.Plan == nil {
		return nil, nil
	}
	data, err := json.Marshal(c.Plan)
	if err != nil {
		return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
	}
	p, err := patch.DecodePlan(data)
	if err != nil {
		return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
	}
	return &p, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Dialect == "" {
		s.Dialect = ir.DialectSQLite
	}
	if _, err := ir.ParseDialect(string(s.Dialect)); err != nil {
		return err
	}
	if s.Runs == 0 {
		s.Runs = 1
	}
	if s.Runs < 0 {
		return fmt.Errorf("runs must be positive")
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if s.Original == "" {
		return fmt.Errorf("original is required")
	}
	if len(s.Candidates) == 0 {
		return fmt.Errorf("at least one candidate is required")
	}

	seen := make(map[string]bool, len(s.Candidates))
	for i, c := range s.Candidates {
		if c.ID == "" {
			return fmt.Errorf("candidates[%d]: id is required", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("candidates[%d]: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = true
		if c.SQL != "" && c.Plan != nil {
			return fmt.Errorf("candidates[%d]: sql and plan are mutually exclusive", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, i, seen); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int, candidates map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertVerdict:
		if !candidates[a.Candidate] {
			return fmt.Errorf("assertions[%d]: unknown candidate %q", index, a.Candidate)
		}
		switch a.Verdict {
		case VerdictCorrect, VerdictWrongResults, VerdictError, VerdictNotGenerated:
		default:
			return fmt.Errorf("assertions[%d]: unknown verdict %q", index, a.Verdict)
		}
	case AssertGenerationFailed:
		if !candidates[a.Candidate] {
			return fmt.Errorf("assertions[%d]: unknown candidate %q", index, a.Candidate)
		}
	case AssertOriginalRows:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for original_rows", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
