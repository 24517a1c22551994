package validate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/qfleet/internal/executor"
)

// OriginalID names the original query in a race ranking.
const OriginalID = "original"

// RaceResult is the outcome of Race.
type RaceResult struct {
	// Original is the original query's elapsed time.
	Original time.Duration `json:"original_ns"`

	// Results holds one entry per candidate, in input order.
	Results []Result `json:"results"`

	// Ranking lists participant ids fastest first. Failed participants
	// come last, in finishing order.
	Ranking []string `json:"ranking"`
}

type participant struct {
	id       string
	sql      string
	elapsed  time.Duration
	finished int64
	rows     *executor.Rows
	err      error
}

// Race runs the original and every candidate concurrently, one session
// each. No participant starts its timer until all have a session.
//
// When the original fails the race has no baseline and an error wrapping
// ErrOriginalFailed is returned.
func (v *Validator) Race(ctx context.Context, ex executor.Executor, original string, candidates []Variant) (*RaceResult, error) {
	parts := make([]*participant, 0, len(candidates)+1)
	parts = append(parts, &participant{id: OriginalID, sql: original})
	for _, c := range candidates {
		parts = append(parts, &participant{id: c.ID, sql: c.SQL})
	}

	var (
		ready  sync.WaitGroup
		done   sync.WaitGroup
		start  = make(chan struct{})
		finish atomic.Int64
	)
	ready.Add(len(parts))
	done.Add(len(parts))
	for _, p := range parts {
		go func(p *participant) {
			defer done.Done()
			run, release, err := v.acquire(ctx, ex)
			ready.Done()
			if err != nil {
				p.err = err
				p.finished = finish.Add(1)
				return
			}
			defer release()

			<-start
			t0 := v.clock.Now()
			p.rows, p.err = run(ctx, p.sql, v.timeout)
			p.elapsed = v.clock.Now().Sub(t0)
			if p.err == nil {
				p.err = v.overran(p.sql, p.elapsed)
			}
			p.finished = finish.Add(1)
		}(p)
	}
	ready.Wait()
	close(start)
	done.Wait()

	for _, p := range parts {
		if p.err != nil {
			v.recover(ctx, ex, p.err)
			break
		}
	}
	orig := parts[0]
	if orig.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOriginalFailed, orig.err)
	}

	ordered := v.ordersOutput(original)
	origSig := RowSignature(orig.rows, ordered)
	out := &RaceResult{Original: orig.elapsed}
	for _, p := range parts[1:] {
		r := Result{
			CandidateID:   p.id,
			Method:        MethodRace,
			OriginalTimes: []time.Duration{orig.elapsed},
			OriginalAvg:   orig.elapsed,
			Original:      origSig,
		}
		if p.err != nil {
			r.Status = StatusError
			r.Error = p.err.Error()
			r.Timeout = executor.IsTimeout(p.err)
		} else {
			r.CandidateTimes = []time.Duration{p.elapsed}
			r.CandidateAvg = p.elapsed
			r.Candidate = RowSignature(p.rows, ordered)
			judge(&r)
		}
		v.logResult(r)
		out.Results = append(out.Results, r)
	}

	ranked := append([]*participant(nil), parts...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.err == nil) != (b.err == nil) {
			return a.err == nil
		}
		if a.err == nil && a.elapsed != b.elapsed {
			return a.elapsed < b.elapsed
		}
		return a.finished < b.finished
	})
	for _, p := range ranked {
		out.Ranking = append(out.Ranking, p.id)
	}
	return out, nil
}

type runFunc func(ctx context.Context, sql string, timeout time.Duration) (*executor.Rows, error)

// acquire returns a run function bound to an exclusive session when the
// executor offers them, and to the executor itself otherwise.
func (v *Validator) acquire(ctx context.Context, ex executor.Executor) (runFunc, func(), error) {
	s, ok := ex.(executor.Sessioner)
	if !ok {
		return ex.Execute, func() {}, nil
	}
	sess, err := s.Session(ctx)
	if err != nil {
		return nil, nil, &executor.ExecutionError{SQL: "", Err: err}
	}
	return sess.Execute, func() { sess.Close() }, nil
}
