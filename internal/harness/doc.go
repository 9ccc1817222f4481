// Package harness runs cohort definitions end to end: it compiles a
// portable definition against a backend with the SQLite dialect, executes
// the statements over fixture tables and checks the result.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: latest_positive
//	description: "What this scenario validates"
//	backend: backends/test.yaml        # or a builtin name such as tpp
//	definition: definitions/latest.json
//	fixtures:
//	  - table: t
//	    columns: [patient_id, positive, date]
//	    rows:
//	      - [1, true, "2020-01-01"]
//	expect:
//	  columns: [patient_id, value]
//	  rows:
//	    - [1, "2020-01-01"]
//	assertions:
//	  - type: stage_count
//	    count: 2
//	  - type: sql_contains
//	    statement: 2
//	    text: "ROW_NUMBER() OVER"
//
// A scenario may instead set expect_error to one of table_not_found,
// column_not_found, codelist_system, validation or invariant; compilation
// must then fail with that kind of error and nothing is executed.
//
// # Assertion Types
//
//   - row_count: the result has exactly count rows
//   - one_row_per_patient: no patient_id appears twice
//   - stage_count: exactly count staging statements
//   - sql_contains: a statement (1-based; 0 is the final select) contains
//     text, exactly count times if count is set
//   - patient_row: the row for a patient matches values (subset match)
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory SQLite database. Result rows are sorted
// by patient_id and compiled statements are deterministic, so a run can be
// compared with a golden snapshot via RunWithGolden.
//
// SQLite has no boolean type: expected booleans may be written as true and
// false and compare equal to 1 and 0.
package harness
