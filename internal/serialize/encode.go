package serialize

import (
	"fmt"
	"strconv"

	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/queryir"
)

// Attribute keys.
const (
	attrName        = "name"
	attrSource      = "source"
	attrColumn      = "column"
	attrOperator    = "operator"
	attrValue       = "value"
	attrSortColumns = "sort_columns"
	attrDescending  = "descending"
	attrFunction    = "function"
)

// Reference and code list markers.
const (
	refKey       = "node"
	systemKey    = "system"
	codesKey     = "codes"
	nodeIDPrefix = "#"
)

// ToPortable numbers every node reachable from the cohort's outputs and
// returns the node table. Dependencies get lower ids than the nodes that
// reference them. Strings must be valid UTF-8 in NFC, so that encoding
// never rewrites a literal.
func ToPortable(cohort *queryir.Cohort) (*Portable, error) {
	if cohort == nil {
		return nil, fmt.Errorf("cohort is nil")
	}

	nodes, err := queryir.Topological(cohort.Roots())
	if err != nil {
		return nil, err
	}

	e := &encoder{ids: make(map[queryir.Node]string, len(nodes))}
	for i, n := range nodes {
		e.ids[n] = nodeIDPrefix + strconv.Itoa(i+1)
	}

	p := &Portable{Version: ir.FormatVersion}
	for _, n := range nodes {
		attrs, err := e.attrs(n)
		if err == nil {
			err = ir.CheckStrings(attrs)
		}
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", e.ids[n], queryir.Kind(n), err)
		}
		p.Nodes = append(p.Nodes, NodeRecord{ID: e.ids[n], Type: queryir.Kind(n), Attrs: attrs})
	}

	for _, o := range cohort.Outputs {
		v, err := e.operand(o.Value)
		if err == nil {
			err = ir.CheckStrings(ir.IRArray{ir.IRString(o.Name), v})
		}
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.Name, err)
		}
		p.Outputs = append(p.Outputs, OutputRecord{Name: o.Name, Value: v})
	}
	return p, nil
}

type encoder struct {
	ids map[queryir.Node]string
}

func (e *encoder) ref(n queryir.Node) (ir.IRValue, error) {
	id, ok := e.ids[n]
	if !ok {
		return nil, fmt.Errorf("missing %s reference", queryir.Kind(n))
	}
	return ir.IRObject{refKey: ir.IRString(id)}, nil
}

func (e *encoder) attrs(n queryir.Node) (ir.IRObject, error) {
	switch node := n.(type) {
	case *queryir.BaseTable:
		return ir.IRObject{attrName: ir.IRString(node.Name)}, nil

	case *queryir.FilteredTable:
		src, err := e.ref(node.Source)
		if err != nil {
			return nil, err
		}
		val, err := e.operand(node.Value)
		if err != nil {
			return nil, err
		}
		return ir.IRObject{
			attrSource:   src,
			attrColumn:   ir.IRString(node.Column),
			attrOperator: ir.IRString(node.Operator.String()),
			attrValue:    val,
		}, nil

	case *queryir.Row:
		src, err := e.ref(node.Source)
		if err != nil {
			return nil, err
		}
		cols := make(ir.IRArray, len(node.SortColumns))
		for i, c := range node.SortColumns {
			cols[i] = ir.IRString(c)
		}
		return ir.IRObject{
			attrSource:      src,
			attrSortColumns: cols,
			attrDescending:  ir.IRBool(node.Descending),
		}, nil

	case *queryir.ValueFromRow:
		src, err := e.ref(node.Source)
		if err != nil {
			return nil, err
		}
		return ir.IRObject{
			attrSource: src,
			attrColumn: ir.IRString(node.Column),
		}, nil

	case *queryir.ValueFromAggregate:
		src, err := e.ref(node.Source)
		if err != nil {
			return nil, err
		}
		attrs := ir.IRObject{
			attrSource:   src,
			attrFunction: ir.IRString(node.Function.String()),
		}
		if node.Column != "" {
			attrs[attrColumn] = ir.IRString(node.Column)
		}
		return attrs, nil

	default:
		return nil, fmt.Errorf("unsupported node %T", n)
	}
}

// operand encodes a filter value or output: a node reference, a code list
// as {"system": ..., "codes": [...]}, or a plain literal.
func (e *encoder) operand(op queryir.Operand) (ir.IRValue, error) {
	switch val := op.(type) {
	case queryir.Value:
		return e.ref(val)
	case queryir.Literal:
		if val.Value == nil {
			return nil, fmt.Errorf("literal has no value")
		}
		if val.System != "" {
			return ir.IRObject{
				systemKey: ir.IRString(val.System),
				codesKey:  val.Value,
			}, nil
		}
		if _, ok := val.Value.(ir.IRObject); ok {
			return nil, fmt.Errorf("object literals cannot be serialized")
		}
		return val.Value, nil
	default:
		return nil, fmt.Errorf("missing operand")
	}
}
