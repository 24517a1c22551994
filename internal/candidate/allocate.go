package candidate

import "sort"

// Allocate assigns up to k examples to each of n workers.
//
// Examples are ranked by speedup and interleaved across families, then
// dealt round-robin, so worker i's first example is the i-th best. No
// example is given to two workers until every distinct example has been
// dealt once. After that, examples are reused, never twice to the same
// worker.
func Allocate(examples []Example, n, k int) [][]Example {
	out := make([][]Example, n)
	if n <= 0 || k <= 0 || len(examples) == 0 {
		return out
	}
	order := interleaveFamilies(examples)
	per := k
	if per > len(order) {
		per = len(order)
	}

	held := make([]map[string]bool, n)
	for w := range held {
		held[w] = make(map[string]bool, per)
	}
	next := 0
	for round := 0; round < per; round++ {
		for w := 0; w < n; w++ {
			for tries := 0; tries < len(order); tries++ {
				e := order[next%len(order)]
				next++
				if !held[w][e.ID] {
					held[w][e.ID] = true
					out[w] = append(out[w], e)
					break
				}
			}
		}
	}
	return out
}

// interleaveFamilies orders examples best-first while alternating
// families: the best of each family, then the second best of each, and
// so on. Families are ordered by their best example.
func interleaveFamilies(examples []Example) []Example {
	ranked := append([]Example(nil), examples...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Speedup != ranked[j].Speedup {
			return ranked[i].Speedup > ranked[j].Speedup
		}
		return ranked[i].ID < ranked[j].ID
	})

	var families []string
	byFamily := make(map[string][]Example)
	for _, e := range ranked {
		if _, ok := byFamily[e.Family]; !ok {
			families = append(families, e.Family)
		}
		byFamily[e.Family] = append(byFamily[e.Family], e)
	}

	out := make([]Example, 0, len(ranked))
	for depth := 0; len(out) < len(ranked); depth++ {
		for _, f := range families {
			if depth < len(byFamily[f]) {
				out = append(out, byFamily[f][depth])
			}
		}
	}
	return out
}
