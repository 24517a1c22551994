package validate

import (
	"math"
	"time"
)

// Status is the verdict on one candidate.
type Status string

const (
	StatusWin          Status = "WIN"
	StatusImproved     Status = "IMPROVED"
	StatusNeutral      Status = "NEUTRAL"
	StatusRegression   Status = "REGRESSION"
	StatusError        Status = "ERROR"
	StatusWrongResults Status = "WRONG_RESULTS"
)

// Speedup thresholds.
const (
	WinSpeedup      = 1.10
	ImprovedMin     = 1.00
	RegressionBelow = 0.95
)

// Method names how timings were obtained.
type Method string

const (
	MethodTrimmedMean Method = "trimmed_mean"
	MethodRace        Method = "race"
)

// Classify maps a measured speedup to a status. A row mismatch wins over
// any speedup.
func Classify(speedup float64, rowsMatch bool) Status {
	switch {
	case !rowsMatch:
		return StatusWrongResults
	case speedup >= WinSpeedup:
		return StatusWin
	case speedup >= ImprovedMin:
		return StatusImproved
	case speedup >= RegressionBelow:
		return StatusNeutral
	}
	return StatusRegression
}

// Survives reports whether a candidate with this status may be ranked.
func (s Status) Survives() bool {
	return s != StatusError && s != StatusWrongResults && s != ""
}

// TrimmedMean averages samples after dropping the first (warmup) run. A
// single sample is returned as is.
func TrimmedMean(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if len(samples) > 1 {
		samples = samples[1:]
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return sum / time.Duration(len(samples))
}

// Speedup returns original/candidate, rounded to four decimals. Zero
// durations are floored at one microsecond.
func Speedup(original, candidate time.Duration) float64 {
	const floor = time.Microsecond
	if original < floor {
		original = floor
	}
	if candidate < floor {
		candidate = floor
	}
	r := float64(original) / float64(candidate)
	return math.Round(r*10000) / 10000
}
