package harness

// Outcome is what happened to one scenario candidate.
type Outcome struct {
	Candidate string `json:"candidate"`
	Verdict   string `json:"verdict"`

	// Failure is the generation failure reason when Verdict is
	// not_generated.
	Failure string `json:"failure,omitempty"`

	// Status is the validator status, empty when no candidate was built.
	Status        string `json:"status,omitempty"`
	RowsMatch     bool   `json:"rows_match"`
	CandidateRows int    `json:"candidate_rows"`
	Mismatch      string `json:"mismatch,omitempty"`

	// SQL is the candidate as validated. Neither it nor Error is part of
	// a snapshot: rendering and driver messages vary between versions.
	SQL   string `json:"-"`
	Error string `json:"-"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every assertion held.
	Pass bool `json:"pass"`

	// OriginalRows is the row count of the original query.
	OriginalRows int `json:"original_rows"`

	// Outcomes follow the scenario's candidate order.
	Outcomes []Outcome `json:"outcomes"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Outcomes: []Outcome{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns the outcome for candidate id.
func (r *Result) Outcome(id string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Candidate == id {
			return o, true
		}
	}
	return Outcome{}, false
}
