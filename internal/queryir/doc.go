// Package queryir provides the cohort query intermediate representation (IR).
//
// A cohort definition is an ordered mapping from output names to query
// chains. Every chain starts at a BaseTable, is narrowed by zero or more
// FilteredTable nodes and ends in an output-bearing Value: either a column
// read from exactly one Row per patient, or an aggregate over all rows of a
// patient.
//
//	[authoring / deserialization] -> [Query IR] -> [querysql Compiler] -> SQL
//
// SEALED INTERFACES:
//
// Node, Table, Value and Operand are sealed interfaces using the marker
// method pattern. Only types in this package implement them, so the
// compiler and serializer can switch exhaustively:
//
//	switch n := node.(type) {
//	case *BaseTable:
//	case *FilteredTable:
//	case *Row:
//	case *ValueFromRow:
//	case *ValueFromAggregate:
//	}
//
// IDENTITY:
//
// Nodes are always handled by pointer and are never mutated after
// construction. Two nodes built independently from identical fields are
// different nodes: the compiler groups outputs by the identity of their
// source, so sharing a sub-chain means sharing the pointer.
//
//	positives := From("sgss_sars_cov_2").Where("positive_result", Lit(ir.IRBool(true)))
//	first := positives.Earliest()
//	cohort.Add("first_date", first.Get("date"))  // same Row ...
//	cohort.Add("first_code", first.Get("code"))  // ... one staging statement
//
// Use Equal to compare two graphs structurally.
//
// DYNAMIC FILTERS:
//
// A FilteredTable's Value may itself be a Value from elsewhere in the graph
// ("tests between the first and last positive date"). This makes the
// definition a DAG rather than a forest; Walk and Topological visit each
// node once regardless of how many paths reach it.
package queryir
