package queryir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/cohortql/internal/ir"
)

// Violation describes one malformed part of a cohort definition.
type Violation struct {
	// Output is the first output (in cohort order) from which the offending
	// node is reachable; empty for cohort-level problems.
	Output  string
	Message string
}

func (v Violation) String() string {
	if v.Output == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Output, v.Message)
}

// ValidationError collects every violation found by Validate.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("invalid cohort definition (%d problems): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks that a cohort is well formed: a node-valued population
// output exists, output names are unique and not reserved, every chain is complete and
// acyclic, and literals are used where the compiler can render them.
//
// Validate is a pure function with no side effects. It returns nil or a
// *ValidationError listing every problem found.
func Validate(c *Cohort) error {
	v := &validator{}
	v.validateCohort(c)
	if len(v.violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: v.violations}
}

// validator accumulates violations during traversal.
type validator struct {
	violations []Violation
}

func (v *validator) add(output, format string, args ...any) {
	v.violations = append(v.violations, Violation{Output: output, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) validateCohort(c *Cohort) {
	if c == nil {
		v.add("", "cohort is nil")
		return
	}

	seen := make(map[string]bool)
	for _, o := range c.Outputs {
		if o.Name == "" {
			v.add("", "output with empty name")
		}
		if o.Name == PatientIDName {
			v.add(o.Name, "name is reserved for the patient key")
		}
		if seen[o.Name] {
			v.add(o.Name, "duplicate output name")
		}
		seen[o.Name] = true
	}

	pop, ok := c.Lookup(PopulationName)
	switch {
	case !ok:
		v.add("", "missing %q output", PopulationName)
	case pop == nil:
		v.add(PopulationName, "output is nil")
	default:
		if _, isValue := pop.(Value); !isValue {
			v.add(PopulationName, "must be a query value, not a literal")
		}
	}

	if _, err := Topological(c.Roots()); err != nil {
		v.add("", "%v", err)
		return
	}

	visited := make(map[Node]bool)
	for _, o := range c.Outputs {
		switch val := o.Value.(type) {
		case nil:
			v.add(o.Name, "output is nil")
		case Literal:
			if !ir.IsScalar(val.Value) {
				v.add(o.Name, "literal output must be a scalar, got %s", ir.TypeName(val.Value))
			}
		case Value:
			_ = Walk([]Node{val}, func(n Node) error {
				if visited[n] {
					return ErrSkipChildren
				}
				visited[n] = true
				v.validateNode(o.Name, n)
				return nil
			})
			if isNil(val) {
				v.add(o.Name, "output is nil")
			}
		}
	}
}

func (v *validator) validateNode(output string, n Node) {
	switch node := n.(type) {
	case *BaseTable:
		if node.Name == "" {
			v.add(output, "table with empty name")
		}
	case *FilteredTable:
		if isNil(node.Source) {
			v.add(output, "filter on %q has no source", node.Column)
		}
		if node.Column == "" {
			v.add(output, "filter with empty column")
		}
		if !node.Operator.Valid() {
			v.add(output, "filter on %q has unknown operator %s", node.Column, node.Operator)
		}
		switch val := node.Value.(type) {
		case nil:
			v.add(output, "filter on %q has no value", node.Column)
		case Literal:
			v.validateLiteral(output, val, node.Operator)
		case Value:
			if isNil(val) {
				v.add(output, "filter on %q has no value", node.Column)
			}
		}
	case *Row:
		if isNil(node.Source) {
			v.add(output, "row selection has no source")
		}
		if len(node.SortColumns) == 0 {
			v.add(output, "row selection has no sort columns")
		}
		for _, col := range node.SortColumns {
			if col == "" {
				v.add(output, "row selection has an empty sort column")
			}
		}
	case *ValueFromRow:
		if node.Source == nil {
			v.add(output, "column %q has no row", node.Column)
		}
		if node.Column == "" {
			v.add(output, "row value with empty column")
		}
	case *ValueFromAggregate:
		if isNil(node.Source) {
			v.add(output, "aggregate %s has no source", node.Function)
		}
		if !node.Function.Valid() {
			v.add(output, "unknown aggregate function %s", node.Function)
		}
		if node.Column == "" && node.Function != Count && node.Function != Exists {
			v.add(output, "aggregate %s requires a column", node.Function)
		}
	}
}

func (v *validator) validateLiteral(output string, lit Literal, op Operator) {
	switch val := lit.Value.(type) {
	case nil:
		v.add(output, "literal has no value")
	case ir.IRObject:
		v.add(output, "object literals are not supported")
	case ir.IRArray:
		if op != Eq {
			v.add(output, "list literal only supported with eq, got %s", op)
		}
		for i, elem := range val {
			if !ir.IsScalar(elem) {
				v.add(output, "list literal element %d is a %s", i, ir.TypeName(elem))
			}
		}
	case ir.IRNull:
		if op != Eq {
			v.add(output, "null literal only supported with eq, got %s", op)
		}
	}
}
