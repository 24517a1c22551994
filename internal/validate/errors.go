package validate

import (
	"errors"
	"fmt"
)

// ErrOriginalFailed reports that the baseline query itself could not be
// measured, so no candidate can be judged.
var ErrOriginalFailed = errors.New("original query failed")

// ResultMismatch describes why a candidate's rows differ from the
// original's. It is recorded on the Result rather than returned.
type ResultMismatch struct {
	OriginalRows  int    `json:"original_rows"`
	CandidateRows int    `json:"candidate_rows"`
	Reason        string `json:"reason"`
}

func (m *ResultMismatch) Error() string {
	return fmt.Sprintf("result mismatch: %s", m.Reason)
}

// IsResultMismatch reports whether err is a ResultMismatch.
func IsResultMismatch(err error) bool {
	var m *ResultMismatch
	return errors.As(err, &m)
}
