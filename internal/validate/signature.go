package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/qfleet/internal/executor"
	"github.com/roach88/qfleet/internal/ir"
)

// Signature summarises a result set for comparison.
type Signature struct {
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
	Hash    string `json:"hash"`
	Ordered bool   `json:"ordered"`
}

// RowSignature hashes rows. Unordered signatures sort the per-row hashes
// first, so row order does not matter but duplicate counts do.
func RowSignature(rows *executor.Rows, ordered bool) Signature {
	sig := Signature{Ordered: ordered}
	if rows == nil {
		return sig
	}
	sig.Rows = len(rows.Values)
	sig.Columns = len(rows.Columns)

	hashes := make([]string, len(rows.Values))
	for i, row := range rows.Values {
		h := sha256.New()
		for _, v := range row {
			h.Write([]byte(canonicalValue(v)))
			h.Write([]byte{0})
		}
		hashes[i] = hex.EncodeToString(h.Sum(nil))
	}
	if !ordered {
		sort.Strings(hashes)
	}
	sum := sha256.Sum256([]byte(strings.Join(hashes, "\n")))
	sig.Hash = hex.EncodeToString(sum[:])
	return sig
}

// Compare checks a candidate signature against the original. It returns
// nil when they match.
func Compare(original, candidate Signature) *ResultMismatch {
	switch {
	case original.Rows != candidate.Rows:
		return &ResultMismatch{
			OriginalRows:  original.Rows,
			CandidateRows: candidate.Rows,
			Reason:        fmt.Sprintf("row count %d, want %d", candidate.Rows, original.Rows),
		}
	case original.Columns != candidate.Columns:
		return &ResultMismatch{
			OriginalRows:  original.Rows,
			CandidateRows: candidate.Rows,
			Reason:        fmt.Sprintf("column count %d, want %d", candidate.Columns, original.Columns),
		}
	case original.Hash != candidate.Hash:
		reason := "row contents differ"
		if original.Ordered {
			reason = "row contents or order differ"
		}
		return &ResultMismatch{
			OriginalRows:  original.Rows,
			CandidateRows: candidate.Rows,
			Reason:        reason,
		}
	}
	return nil
}

// canonicalValue renders a driver value so that equal values from
// different queries compare equal: integral floats print as integers and
// byte slices as text.
func canonicalValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case []byte:
		return "s:" + string(x)
	case string:
		return "s:" + x
	case bool:
		return "b:" + strconv.FormatBool(x)
	case int:
		return "n:" + strconv.FormatInt(int64(x), 10)
	case int32:
		return "n:" + strconv.FormatInt(int64(x), 10)
	case int64:
		return "n:" + strconv.FormatInt(x, 10)
	case uint64:
		return "n:" + strconv.FormatUint(x, 10)
	case float32:
		return canonicalFloat(float64(x))
	case float64:
		return canonicalFloat(x)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("v:%v", v)
}

func canonicalFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return "n:" + strconv.FormatInt(int64(f), 10)
	}
	return "n:" + strconv.FormatFloat(f, 'g', 12, 64)
}

// OrdersOutput reports whether the final statement sorts its output with
// a top-level ORDER BY.
func OrdersOutput(stmts []*ir.Statement) bool {
	if len(stmts) == 0 {
		return false
	}
	root := stmts[len(stmts)-1].Root
	return root.Kind == ir.KindQuery && root.Child(ir.KindOrderBy) != nil
}
