package queryir

import (
	"fmt"

	"github.com/roach88/cohortql/internal/ir"
)

// Node is any vertex of the query graph.
//
// This is a sealed interface - only pointer types in this package
// implement it.
type Node interface {
	queryNode() // Marker method - seals interface to this package
}

// Table is a row source: a BaseTable or a FilteredTable.
type Table interface {
	Node
	tableNode()
}

// Operand is anything that can stand on the right-hand side of a filter or
// be bound to an output name: a Value or a Literal.
type Operand interface {
	operand()
}

// Value is an output-bearing node: one scalar per patient.
type Value interface {
	Node
	Operand
	valueNode()
}

// Operator is a filter comparison.
type Operator int

const (
	Eq Operator = iota
	Lt
	Le
	Gt
	Ge
)

var operatorNames = map[Operator]string{
	Eq: "eq",
	Lt: "lt",
	Le: "le",
	Gt: "gt",
	Ge: "ge",
}

func (op Operator) String() string {
	if s, ok := operatorNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(op))
}

// Valid reports whether op is one of the defined operators.
func (op Operator) Valid() bool {
	_, ok := operatorNames[op]
	return ok
}

// ParseOperator returns the operator with the given name ("eq", "lt", ...).
func ParseOperator(s string) (Operator, error) {
	for op, name := range operatorNames {
		if name == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// AggregateFunc is the per-patient aggregate applied by ValueFromAggregate.
type AggregateFunc int

const (
	Count AggregateFunc = iota
	Exists
	Min
	Max
	Sum
	Avg
)

var aggregateNames = map[AggregateFunc]string{
	Count:  "count",
	Exists: "exists",
	Min:    "min",
	Max:    "max",
	Sum:    "sum",
	Avg:    "avg",
}

func (f AggregateFunc) String() string {
	if s, ok := aggregateNames[f]; ok {
		return s
	}
	return fmt.Sprintf("AggregateFunc(%d)", int(f))
}

// Valid reports whether f is one of the defined aggregate functions.
func (f AggregateFunc) Valid() bool {
	_, ok := aggregateNames[f]
	return ok
}

// ParseAggregateFunc returns the aggregate function with the given name.
func ParseAggregateFunc(s string) (AggregateFunc, error) {
	for f, name := range aggregateNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown aggregate function %q", s)
}

// BaseTable is a logical source table, the root of every chain.
type BaseTable struct {
	Name string
}

// FilteredTable restricts Source to rows where Column <Operator> Value.
// Chained filters are conjunctive.
type FilteredTable struct {
	Source   Table
	Column   string
	Operator Operator
	Value    Operand
}

// Row selects exactly one row per patient from Source, ordered by
// SortColumns. Descending reverses every sort key together.
// Ties are broken by whatever order the warehouse yields.
type Row struct {
	Source      Table
	SortColumns []string
	Descending  bool
}

// ValueFromRow is the value of Column on the row selected by Source.
type ValueFromRow struct {
	Source *Row
	Column string
}

// ValueFromAggregate aggregates Column over every row of Source per
// patient. Column is empty for Count (all rows) and Exists.
type ValueFromAggregate struct {
	Source   Table
	Function AggregateFunc
	Column   string
}

// Literal is a constant operand. System names the coding system of a code
// list ("ctv3"); it is empty for ordinary values.
type Literal struct {
	Value  ir.IRValue
	System string
}

func (*BaseTable) queryNode()          {}
func (*FilteredTable) queryNode()      {}
func (*Row) queryNode()                {}
func (*ValueFromRow) queryNode()       {}
func (*ValueFromAggregate) queryNode() {}

func (*BaseTable) tableNode()     {}
func (*FilteredTable) tableNode() {}

func (*ValueFromRow) valueNode()       {}
func (*ValueFromAggregate) valueNode() {}

func (*ValueFromRow) operand()       {}
func (*ValueFromAggregate) operand() {}
func (Literal) operand()             {}

// Lit wraps a literal value as an operand.
func Lit(v ir.IRValue) Literal {
	return Literal{Value: v}
}

// Codelist returns a code list operand. Filtering a column with Eq and a
// code list matches any of the codes.
func Codelist(system string, codes ...string) Literal {
	arr := make(ir.IRArray, len(codes))
	for i, c := range codes {
		arr[i] = ir.IRString(c)
	}
	return Literal{Value: arr, System: system}
}

// Kind returns a short lowercase name of the node's variant.
func Kind(n Node) string {
	switch n.(type) {
	case *BaseTable:
		return "base_table"
	case *FilteredTable:
		return "filtered_table"
	case *Row:
		return "row"
	case *ValueFromRow:
		return "value_from_row"
	case *ValueFromAggregate:
		return "value_from_aggregate"
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", n)
	}
}
