package patch

import (
	"errors"
	"fmt"
)

// Fatal plan errors. Apply returns these instead of a Result.
var (
	ErrEmptyPlan   = errors.New("patch plan has no steps")
	ErrInvalidPlan = errors.New("invalid patch plan")
)

// ResolutionReason explains why an anchor could not be resolved.
type ResolutionReason string

const (
	ReasonNotFound     ResolutionReason = "not_found"
	ReasonAmbiguous    ResolutionReason = "ambiguous"
	ReasonKindMismatch ResolutionReason = "kind_mismatch"
)

// AnchorResolutionError reports a step whose target anchor did not resolve
// to exactly one node of an acceptable kind. It aborts the plan; the
// proposer is expected to retry against a fresh node map.
type AnchorResolutionError struct {
	Step    int
	StmtID  string
	Anchor  string
	Reason  ResolutionReason
	Matches int
}

// Error implements the error interface.
func (e *AnchorResolutionError) Error() string {
	switch e.Reason {
	case ReasonAmbiguous:
		return fmt.Sprintf("step %d: anchor %s in %s is ambiguous (%d matches)", e.Step, e.Anchor, e.StmtID, e.Matches)
	case ReasonKindMismatch:
		return fmt.Sprintf("step %d: anchor %s in %s does not address a top-level predicate", e.Step, e.Anchor, e.StmtID)
	}
	return fmt.Sprintf("step %d: anchor %s not found in %s", e.Step, e.Anchor, e.StmtID)
}

// IsAnchorResolution reports whether err is an AnchorResolutionError.
// Uses errors.As to handle wrapped errors.
func IsAnchorResolution(err error) bool {
	var ae *AnchorResolutionError
	return errors.As(err, &ae)
}

// StepErrorCode categorizes non-anchor step failures.
type StepErrorCode string

const (
	CodeDuplicateCTE     StepErrorCode = "DUPLICATE_CTE"
	CodeUnknownStatement StepErrorCode = "UNKNOWN_STATEMENT"
	CodeFragmentParse    StepErrorCode = "FRAGMENT_PARSE"
	CodeNotReplaceable   StepErrorCode = "NOT_REPLACEABLE"
	CodeNotDeletable     StepErrorCode = "NOT_DELETABLE"
	CodeRenderVerify     StepErrorCode = "RENDER_VERIFY"
)

// StepError is a failed step that is not an anchor miss.
type StepError struct {
	Code    StepErrorCode
	Step    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %d: %s: %s: %v", e.Step, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("step %d: %s: %s", e.Step, e.Code, e.Message)
}

func (e *StepError) Unwrap() error { return e.Err }

// HasCode reports whether err is a StepError with the given code.
func HasCode(err error, code StepErrorCode) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func stepErr(step int, code StepErrorCode, err error, format string, args ...any) *StepError {
	return &StepError{Code: code, Step: step, Message: fmt.Sprintf(format, args...), Err: err}
}
