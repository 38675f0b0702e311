// Package harness runs scripted data-access scenarios against entitydb
// tables and checks the resulting trace.
//
// A scenario declares its tables in CUE, then applies a sequence of table
// operations. Every step and every entity change reported by the tables'
// observers is recorded in a trace, which assertions and golden files
// compare against.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	backend: memory            # or sqlite
//	schema: |
//	  table: items: {
//	    entity: "Item"
//	    fields: { name: string, size: int }
//	  }
//	specs:
//	  - path/to/tables.cue     # relative to the scenario file
//	steps:
//	  - op: insert
//	    table: items
//	    values: { name: a, size: 1 }
//	  - op: query
//	    table: items
//	    where: { gt: { size: 0 } }
//	    order: -size
//	    expect: { ids: [1] }
//	  - op: insert
//	    table: items
//	    id: 1
//	    expect: { error: DUPLICATE_KEY }
//	assertions:
//	  - type: trace_contains
//	    op: inserted
//	    table: items
//	  - type: final_state
//	    table: items
//	    where: { eq: { name: a } }
//	    expect: { size: 1 }
//
// # Step Operations
//
//   - insert, update: store values (and stream payloads) under an optional id
//   - get: load one entity by id
//   - delete: remove one entity by id
//   - delete_where: bulk delete, optionally one entity at a time
//   - query, count: run a filtered, optionally ordered query
//   - begin, commit, rollback: nested transaction control
//
// # Assertion Types
//
//   - trace_contains: an event with the given op (and table, id) exists
//   - trace_order: step ops appear in the given order
//   - trace_count: an op appears exactly N times
//   - row_count: a filtered count over a table
//   - final_state: every matching row carries the expected values
//
// # Deterministic Testing
//
// Every scenario runs against a fresh database, with sequence identities
// starting at 1, so traces are identical across runs and can be compared
// with golden files:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/crud.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
