package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/roach88/qfleet/internal/validate"
)

// Entry is the outcome for one query.
type Entry struct {
	QueryID      string          `json:"query_id"`
	Status       validate.Status `json:"status"`
	Speedup      float64         `json:"speedup"`
	OriginalSQL  string          `json:"original_sql"`
	OptimizedSQL string          `json:"optimized_sql"`
	CandidateID  string          `json:"candidate_id,omitempty"`
	WorkerID     int             `json:"worker_id,omitempty"`
	Method       validate.Method `json:"method,omitempty"`
	Score        int             `json:"score,omitempty"`
	Transforms   []string        `json:"transforms,omitempty"`
	Candidates   int             `json:"candidates"`
	Error        string          `json:"error,omitempty"`
}

// Leaderboard collects entries for one run.
type Leaderboard struct {
	RunID   string  `json:"run_id"`
	Entries []Entry `json:"entries"`
}

// Summary counts entries by status.
type Summary struct {
	Total  int                     `json:"total"`
	Counts map[validate.Status]int `json:"counts"`
}

// Manifest is the JSON document WriteManifest produces.
type Manifest struct {
	RunID   string  `json:"run_id"`
	Summary Summary `json:"summary"`
	Entries []Entry `json:"entries"`
}

var statusRank = map[validate.Status]int{
	validate.StatusWin:          0,
	validate.StatusImproved:     1,
	validate.StatusNeutral:      2,
	validate.StatusRegression:   3,
	validate.StatusWrongResults: 4,
	validate.StatusError:        5,
}

// New creates an empty leaderboard.
func New(runID string) *Leaderboard {
	return &Leaderboard{RunID: runID}
}

// Add appends an entry.
func (l *Leaderboard) Add(e Entry) {
	l.Entries = append(l.Entries, e)
}

// Sort orders entries by status, then speedup, then query id.
func (l *Leaderboard) Sort() {
	sort.SliceStable(l.Entries, func(i, j int) bool {
		a, b := l.Entries[i], l.Entries[j]
		if ra, rb := rank(a.Status), rank(b.Status); ra != rb {
			return ra < rb
		}
		if a.Speedup != b.Speedup {
			return a.Speedup > b.Speedup
		}
		return a.QueryID < b.QueryID
	})
}

func rank(s validate.Status) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return len(statusRank)
}

// Summary counts the entries.
func (l *Leaderboard) Summary() Summary {
	s := Summary{Total: len(l.Entries), Counts: make(map[validate.Status]int)}
	for _, e := range l.Entries {
		s.Counts[e.Status]++
	}
	return s
}

// Markdown renders the leaderboard as a markdown table.
func (l *Leaderboard) Markdown() string {
	if len(l.Entries) == 0 {
		return "_No queries_\n"
	}

	var b strings.Builder
	headers := []string{"Query", "Status", "Speedup", "Worker", "Score", "Transforms"}
	// Left alignment for headers too; the markdown renderer centres them
	// otherwise.
	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignLeft
	}
	table := tablewriter.NewTable(&b,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, e := range l.Entries {
		worker := "-"
		if e.WorkerID > 0 {
			worker = fmt.Sprintf("%d", e.WorkerID)
		}
		table.Append([]string{
			e.QueryID,
			string(e.Status),
			fmt.Sprintf("%.2fx", e.Speedup),
			worker,
			fmt.Sprintf("%d", e.Score),
			strings.Join(e.Transforms, ", "),
		})
	}
	table.Render()

	s := l.Summary()
	fmt.Fprintf(&b, "\n_%d queries: %d WIN, %d IMPROVED, %d NEUTRAL, %d REGRESSION, %d WRONG_RESULTS, %d ERROR_\n",
		s.Total,
		s.Counts[validate.StatusWin],
		s.Counts[validate.StatusImproved],
		s.Counts[validate.StatusNeutral],
		s.Counts[validate.StatusRegression],
		s.Counts[validate.StatusWrongResults],
		s.Counts[validate.StatusError],
	)
	return b.String()
}

// WriteManifest writes the leaderboard as indented JSON.
func (l *Leaderboard) WriteManifest(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Manifest{RunID: l.RunID, Summary: l.Summary(), Entries: l.Entries})
}

// ReadManifest parses a manifest written by WriteManifest.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}
