package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/qfleet/internal/sqlexec"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Outcomes []Outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Outcomes) > 0 {
		fmt.Fprintf(&buf, "\nOutcomes:\n")
		for i, o := range e.Outcomes {
			fmt.Fprintf(&buf, "  [%d] %s %s", i+1, o.Candidate, o.Verdict)
			if o.Failure != "" {
				fmt.Fprintf(&buf, " (%s)", o.Failure)
			}
			if o.Error != "" {
				fmt.Fprintf(&buf, ": %s", o.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

func assertVerdict(result *Result, a Assertion) error {
	o, ok := result.Outcome(a.Candidate)
	if !ok {
		return &AssertionError{
			Type:     AssertVerdict,
			Expected: fmt.Sprintf("candidate %s", a.Candidate),
			Actual:   "no outcome recorded",
			Outcomes: result.Outcomes,
		}
	}
	if o.Verdict != a.Verdict {
		return &AssertionError{
			Type:     AssertVerdict,
			Expected: fmt.Sprintf("candidate %s is %s", a.Candidate, a.Verdict),
			Actual:   o.Verdict,
			Outcomes: result.Outcomes,
		}
	}
	return nil
}

// assertGenerationFailed checks the candidate never reached validation,
// and for the given reason when one is set.
func assertGenerationFailed(result *Result, a Assertion) error {
	o, _ := result.Outcome(a.Candidate)
	if o.Verdict != VerdictNotGenerated {
		return &AssertionError{
			Type:     AssertGenerationFailed,
			Expected: fmt.Sprintf("candidate %s fails generation", a.Candidate),
			Actual:   fmt.Sprintf("verdict %s", o.Verdict),
			Outcomes: result.Outcomes,
		}
	}
	if a.Reason != "" && o.Failure != a.Reason {
		return &AssertionError{
			Type:     AssertGenerationFailed,
			Expected: fmt.Sprintf("failure reason %s", a.Reason),
			Actual:   fmt.Sprintf("failure reason %s", o.Failure),
			Outcomes: result.Outcomes,
		}
	}
	return nil
}

func assertOriginalRows(result *Result, a Assertion) error {
	if result.OriginalRows != a.Count {
		return &AssertionError{
			Type:     AssertOriginalRows,
			Expected: fmt.Sprintf("%d rows", a.Count),
			Actual:   fmt.Sprintf("%d rows", result.OriginalRows),
		}
	}
	return nil
}

// assertFinalState checks exactly one row of the table matches Where and
// carries the Expect values. Candidates run against the fixture data, so
// this is how a scenario proves validation left it untouched.
func assertFinalState(ctx context.Context, db *sqlexec.DB, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}
	whereSQL, whereArgs, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", a.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	rows, err := db.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	switch rows.Len() {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", rows.Len()),
		}
	}

	actual := make(map[string]any, len(rows.Columns))
	for i, col := range rows.Columns {
		actual[col] = rows.Values[0][i]
	}
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		want := a.Expect[key]
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, rows.Columns),
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, want, want),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, got, got),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterised WHERE clause. Keys are sorted
// for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		if !validIdentifier.MatchString(k) {
			return "", nil, fmt.Errorf("invalid column name %q: must match pattern %s", k, validIdentifier.String())
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, k+" = ?")
		args = append(args, where[k])
	}
	return strings.Join(conds, " AND "), args, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML value against a value read back from
// the database. SQLite returns int64 for integers and float64 for reals.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		s, ok := actual.(string)
		return ok && exp == s
	case int:
		switch a := actual.(type) {
		case int64:
			return int64(exp) == a
		case float64:
			return float64(exp) == a
		}
		return false
	case float64:
		switch a := actual.(type) {
		case float64:
			return exp == a
		case int64:
			return exp == float64(a)
		}
		return false
	case bool:
		switch a := actual.(type) {
		case bool:
			return exp == a
		case int64:
			return exp == (a != 0)
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, db *sqlexec.DB) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertVerdict:
			err = assertVerdict(result, a)
		case AssertGenerationFailed:
			err = assertGenerationFailed(result, a)
		case AssertOriginalRows:
			err = assertOriginalRows(result, a)
		case AssertFinalState:
			if db == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(ctx, db, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
