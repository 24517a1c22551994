// Package harness provides conformance testing for query rewrites.
//
// A scenario loads fixtures into a private in-memory SQLite database,
// offers a fixed set of candidate rewrites for one original query, runs
// them through candidate generation and validation exactly as the
// pipeline does, and asserts on the verdicts.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	dialect: sqlite
//	runs: 2
//	timeout: 5s
//	fixtures:
//	  - CREATE TABLE t (id INTEGER PRIMARY KEY, qty INTEGER)
//	  - INSERT INTO t VALUES (1, 5), (2, 0)
//	original: SELECT id FROM t WHERE qty > 0
//	candidates:
//	  - id: rewrite
//	    sql: SELECT id FROM t WHERE qty <> 0
//	  - id: patched
//	    plan:
//	      plan_id: p1
//	      steps:
//	        - op: insert_cte
//	          by_node_id: s1
//	          cte_name: positive
//	          cte_query_sql: SELECT id FROM t WHERE qty > 0
//	assertions:
//	  - type: verdict
//	    candidate: rewrite
//	    verdict: correct
//	  - type: final_state
//	    table: t
//	    where: { id: 1 }
//	    expect: { qty: 5 }
//
// # Assertion Types
//
//   - verdict: the candidate is correct, wrong_results, error or not_generated
//   - generation_failed: the candidate never reached validation, optionally for a given reason
//   - original_rows: the original query returns exactly Count rows
//   - final_state: one row of a table matches Where and carries the Expect values
//
// # Golden Files
//
// Timings vary from run to run, so a verdict is correctness only: a
// candidate that matches the original's rows is "correct" whether it won
// or regressed. RunWithGolden compares the remaining deterministic fields
// against testdata/golden/{name}.golden.
package harness
