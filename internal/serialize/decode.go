package serialize

import (
	"fmt"
	"slices"

	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/queryir"
)

// builder rebuilds one node variant from its attributes.
type builder func(d *decoder, id string, a attrs) (queryir.Node, error)

// builders is keyed by type tag; each tag is the queryir.Kind of the node it
// builds. It is filled in init because the builders recurse through
// decoder.node, which reads it.
var builders map[string]builder

func init() {
	builders = map[string]builder{
		"base_table":           buildBaseTable,
		"filtered_table":       buildFilteredTable,
		"row":                  buildRow,
		"value_from_row":       buildValueFromRow,
		"value_from_aggregate": buildValueFromAggregate,
	}

	variants := []queryir.Node{
		&queryir.BaseTable{},
		&queryir.FilteredTable{},
		&queryir.Row{},
		&queryir.ValueFromRow{},
		&queryir.ValueFromAggregate{},
	}
	seen := make(map[string]bool)
	for _, n := range variants {
		tag := queryir.Kind(n)
		if seen[tag] {
			panic(fmt.Sprintf("serialize: tag %q used by two node types", tag))
		}
		seen[tag] = true
		if _, ok := builders[tag]; !ok {
			panic(fmt.Sprintf("serialize: no builder for tag %q", tag))
		}
	}
	if len(seen) != len(builders) {
		panic("serialize: builder registered for an unknown tag")
	}
}

// FromPortable rebuilds a cohort. Each id yields exactly one node, so
// shared references come back as shared pointers.
func FromPortable(p *Portable) (*queryir.Cohort, error) {
	if p == nil {
		return nil, &DecodeError{Message: "definition is nil"}
	}
	if p.Version != ir.FormatVersion {
		return nil, &DecodeError{Message: fmt.Sprintf("unsupported format version %q (want %q)", p.Version, ir.FormatVersion)}
	}

	d := &decoder{
		records: make(map[string]NodeRecord, len(p.Nodes)),
		built:   make(map[string]queryir.Node, len(p.Nodes)),
		active:  make(map[string]bool),
	}
	for _, rec := range p.Nodes {
		if _, dup := d.records[rec.ID]; dup {
			return nil, &DecodeError{ID: rec.ID, Message: "duplicate id"}
		}
		if err := ir.CheckStrings(rec.Attrs); err != nil {
			return nil, &DecodeError{ID: rec.ID, Message: err.Error()}
		}
		d.records[rec.ID] = rec
	}

	// Build every record, including ones no output reaches, so a bad
	// record is never silently ignored.
	for _, rec := range p.Nodes {
		if _, err := d.node(rec.ID); err != nil {
			return nil, err
		}
	}

	cohort := queryir.NewCohort()
	seen := make(map[string]bool)
	for _, o := range p.Outputs {
		if seen[o.Name] {
			return nil, &DecodeError{Message: fmt.Sprintf("duplicate output %q", o.Name)}
		}
		seen[o.Name] = true
		if err := ir.CheckStrings(ir.IRArray{ir.IRString(o.Name), o.Value}); err != nil {
			return nil, &DecodeError{Message: fmt.Sprintf("output %q: %v", o.Name, err)}
		}

		op, err := d.operand("", o.Value)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.Name, err)
		}
		cohort.Add(o.Name, op)
	}
	return cohort, nil
}

type decoder struct {
	records map[string]NodeRecord
	built   map[string]queryir.Node
	active  map[string]bool
}

func (d *decoder) node(id string) (queryir.Node, error) {
	if n, ok := d.built[id]; ok {
		return n, nil
	}
	rec, ok := d.records[id]
	if !ok {
		return nil, &DecodeError{ID: id, Message: "unknown id"}
	}
	if d.active[id] {
		return nil, &DecodeError{ID: id, Message: "reference cycle"}
	}
	build, ok := builders[rec.Type]
	if !ok {
		return nil, &DecodeError{ID: id, Message: fmt.Sprintf("unknown type %q", rec.Type)}
	}

	d.active[id] = true
	a := attrs{id: id, values: rec.Attrs, used: make(map[string]bool)}
	n, err := build(d, id, a)
	delete(d.active, id)
	if err != nil {
		return nil, err
	}
	if err := a.checkUnused(); err != nil {
		return nil, err
	}

	d.built[id] = n
	return n, nil
}

// operand decodes a reference, a code list or a plain literal.
func (d *decoder) operand(owner string, v ir.IRValue) (queryir.Operand, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		if v == nil {
			return nil, &DecodeError{ID: owner, Message: "missing value"}
		}
		return queryir.Lit(v), nil
	}

	if ref, ok := refID(obj); ok {
		n, err := d.node(ref)
		if err != nil {
			return nil, err
		}
		val, ok := n.(queryir.Value)
		if !ok {
			return nil, &DecodeError{ID: owner, Message: fmt.Sprintf("%s is a %s, not a value", ref, queryir.Kind(n))}
		}
		return val, nil
	}

	system, hasSystem := obj[systemKey].(ir.IRString)
	codes, hasCodes := obj[codesKey]
	if hasSystem && hasCodes && len(obj) == 2 {
		return queryir.Literal{Value: codes, System: string(system)}, nil
	}
	return nil, &DecodeError{ID: owner, Message: "object value is neither a node reference nor a code list"}
}

func refID(obj ir.IRObject) (string, bool) {
	if len(obj) != 1 {
		return "", false
	}
	s, ok := obj[refKey].(ir.IRString)
	return string(s), ok
}

// attrs reads the attributes of one record and tracks which were used.
type attrs struct {
	id     string
	values ir.IRObject
	used   map[string]bool
}

func (a attrs) get(key string) (ir.IRValue, bool) {
	v, ok := a.values[key]
	if ok {
		a.used[key] = true
	}
	return v, ok
}

func (a attrs) missing(key string) error {
	return &DecodeError{ID: a.id, Message: fmt.Sprintf("missing attribute %q", key)}
}

func (a attrs) invalid(key string, v ir.IRValue) error {
	return &DecodeError{ID: a.id, Message: fmt.Sprintf("attribute %q: unexpected %s", key, ir.TypeName(v))}
}

func (a attrs) str(key string, optional bool) (string, error) {
	v, ok := a.get(key)
	if !ok {
		if optional {
			return "", nil
		}
		return "", a.missing(key)
	}
	s, ok := v.(ir.IRString)
	if !ok {
		return "", a.invalid(key, v)
	}
	return string(s), nil
}

func (a attrs) boolean(key string) (bool, error) {
	v, ok := a.get(key)
	if !ok {
		return false, a.missing(key)
	}
	b, ok := v.(ir.IRBool)
	if !ok {
		return false, a.invalid(key, v)
	}
	return bool(b), nil
}

func (a attrs) strings(key string) ([]string, error) {
	v, ok := a.get(key)
	if !ok {
		return nil, a.missing(key)
	}
	arr, ok := v.(ir.IRArray)
	if !ok {
		return nil, a.invalid(key, v)
	}
	out := make([]string, len(arr))
	for i, elem := range arr {
		s, ok := elem.(ir.IRString)
		if !ok {
			return nil, a.invalid(key, elem)
		}
		out[i] = string(s)
	}
	return out, nil
}

func (a attrs) ref(d *decoder, key string) (queryir.Node, error) {
	v, ok := a.get(key)
	if !ok {
		return nil, a.missing(key)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, a.invalid(key, v)
	}
	id, ok := refID(obj)
	if !ok {
		return nil, &DecodeError{ID: a.id, Message: fmt.Sprintf("attribute %q is not a node reference", key)}
	}
	return d.node(id)
}

func (a attrs) table(d *decoder, key string) (queryir.Table, error) {
	n, err := a.ref(d, key)
	if err != nil {
		return nil, err
	}
	t, ok := n.(queryir.Table)
	if !ok {
		return nil, &DecodeError{ID: a.id, Message: fmt.Sprintf("attribute %q references a %s, not a table", key, queryir.Kind(n))}
	}
	return t, nil
}

func (a attrs) checkUnused() error {
	var extra []string
	for k := range a.values {
		if !a.used[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		slices.Sort(extra)
		return &DecodeError{ID: a.id, Message: fmt.Sprintf("unknown attributes %v", extra)}
	}
	return nil
}

func buildBaseTable(_ *decoder, _ string, a attrs) (queryir.Node, error) {
	name, err := a.str(attrName, false)
	if err != nil {
		return nil, err
	}
	return queryir.From(name), nil
}

func buildFilteredTable(d *decoder, id string, a attrs) (queryir.Node, error) {
	src, err := a.table(d, attrSource)
	if err != nil {
		return nil, err
	}
	column, err := a.str(attrColumn, false)
	if err != nil {
		return nil, err
	}
	opName, err := a.str(attrOperator, false)
	if err != nil {
		return nil, err
	}
	op, err := queryir.ParseOperator(opName)
	if err != nil {
		return nil, &DecodeError{ID: id, Message: err.Error()}
	}
	raw, ok := a.get(attrValue)
	if !ok {
		return nil, a.missing(attrValue)
	}
	val, err := d.operand(id, raw)
	if err != nil {
		return nil, err
	}
	return &queryir.FilteredTable{Source: src, Column: column, Operator: op, Value: val}, nil
}

func buildRow(d *decoder, _ string, a attrs) (queryir.Node, error) {
	src, err := a.table(d, attrSource)
	if err != nil {
		return nil, err
	}
	cols, err := a.strings(attrSortColumns)
	if err != nil {
		return nil, err
	}
	desc, err := a.boolean(attrDescending)
	if err != nil {
		return nil, err
	}
	return &queryir.Row{Source: src, SortColumns: cols, Descending: desc}, nil
}

func buildValueFromRow(d *decoder, id string, a attrs) (queryir.Node, error) {
	n, err := a.ref(d, attrSource)
	if err != nil {
		return nil, err
	}
	row, ok := n.(*queryir.Row)
	if !ok {
		return nil, &DecodeError{ID: id, Message: fmt.Sprintf("source is a %s, not a row", queryir.Kind(n))}
	}
	column, err := a.str(attrColumn, false)
	if err != nil {
		return nil, err
	}
	return &queryir.ValueFromRow{Source: row, Column: column}, nil
}

func buildValueFromAggregate(d *decoder, id string, a attrs) (queryir.Node, error) {
	src, err := a.table(d, attrSource)
	if err != nil {
		return nil, err
	}
	fnName, err := a.str(attrFunction, false)
	if err != nil {
		return nil, err
	}
	fn, err := queryir.ParseAggregateFunc(fnName)
	if err != nil {
		return nil, &DecodeError{ID: id, Message: err.Error()}
	}
	column, err := a.str(attrColumn, true)
	if err != nil {
		return nil, err
	}
	return &queryir.ValueFromAggregate{Source: src, Function: fn, Column: column}, nil
}
