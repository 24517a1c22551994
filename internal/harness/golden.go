package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the deterministic part of a scenario result. Timings,
// speedups and driver error text are left out so the snapshot is stable
// across machines.
type Snapshot struct {
	ScenarioName string    `json:"scenario_name"`
	OriginalRows int       `json:"original_rows"`
	Outcomes     []Outcome `json:"outcomes"`
}

// NewSnapshot builds the snapshot of result. Status is dropped for correct
// candidates, since WIN versus NEUTRAL depends on timing.
func NewSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{ScenarioName: name, OriginalRows: result.OriginalRows, Outcomes: make([]Outcome, len(result.Outcomes))}
	for i, o := range result.Outcomes {
		if o.Verdict == VerdictCorrect {
			o.Status = ""
		}
		s.Outcomes[i] = o
	}
	return s
}

// MarshalIndent renders the snapshot as golden file content.
func (s Snapshot) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the outcomes against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).MarshalIndent()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
