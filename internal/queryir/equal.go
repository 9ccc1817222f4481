package queryir

import (
	"slices"

	"github.com/roach88/cohortql/internal/ir"
)

// Equal reports whether two operands are structurally identical: same node
// variants, same fields, same literals. Identity is ignored, so two
// independently built chains compare equal.
func Equal(a, b Operand) bool {
	return (&comparer{memo: make(map[[2]Node]bool)}).operands(a, b)
}

// EqualCohorts reports whether two cohorts have the same output names in
// the same order bound to structurally equal operands.
func EqualCohorts(a, b *Cohort) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Outputs) != len(b.Outputs) {
		return false
	}
	c := &comparer{memo: make(map[[2]Node]bool)}
	for i := range a.Outputs {
		if a.Outputs[i].Name != b.Outputs[i].Name {
			return false
		}
		if !c.operands(a.Outputs[i].Value, b.Outputs[i].Value) {
			return false
		}
	}
	return true
}

type comparer struct {
	memo map[[2]Node]bool
}

func (c *comparer) operands(a, b Operand) bool {
	switch x := a.(type) {
	case Literal:
		y, ok := b.(Literal)
		return ok && x.System == y.System && literalEqual(x.Value, y.Value)
	case Value:
		y, ok := b.(Value)
		return ok && c.nodes(x, y)
	case nil:
		return b == nil
	}
	return false
}

func (c *comparer) nodes(a, b Node) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	key := [2]Node{a, b}
	if eq, ok := c.memo[key]; ok {
		return eq
	}
	// Assume equal while comparing so shared sub-graphs terminate.
	c.memo[key] = true
	eq := c.compare(a, b)
	c.memo[key] = eq
	return eq
}

func (c *comparer) compare(a, b Node) bool {
	switch x := a.(type) {
	case *BaseTable:
		y, ok := b.(*BaseTable)
		return ok && x.Name == y.Name
	case *FilteredTable:
		y, ok := b.(*FilteredTable)
		return ok &&
			x.Column == y.Column &&
			x.Operator == y.Operator &&
			c.nodes(x.Source, y.Source) &&
			c.operands(x.Value, y.Value)
	case *Row:
		y, ok := b.(*Row)
		return ok &&
			x.Descending == y.Descending &&
			slices.Equal(x.SortColumns, y.SortColumns) &&
			c.nodes(x.Source, y.Source)
	case *ValueFromRow:
		y, ok := b.(*ValueFromRow)
		return ok && x.Column == y.Column && c.nodes(x.Source, y.Source)
	case *ValueFromAggregate:
		y, ok := b.(*ValueFromAggregate)
		return ok &&
			x.Function == y.Function &&
			x.Column == y.Column &&
			c.nodes(x.Source, y.Source)
	}
	return false
}

func literalEqual(a, b ir.IRValue) bool {
	switch x := a.(type) {
	case ir.IRArray:
		y, ok := b.(ir.IRArray)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !literalEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case ir.IRObject:
		y, ok := b.(ir.IRObject)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !literalEqual(v, w) {
				return false
			}
		}
		return true
	}
	return a == b
}
