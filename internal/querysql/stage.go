package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/cohortql/internal/backend"
	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/queryir"
)

// scope renders the FROM side of one statement: the base source plus any
// temp tables joined for dynamic filter operands.
type scope struct {
	d      *Dialect
	alias  string
	src    *backend.Source
	joins  []string
	tables []string
	joined map[string]bool
}

func (s *scope) column(name string) (string, error) {
	if _, ok := s.src.Column(name); !ok {
		return "", &backend.ColumnNotFoundError{Table: s.src.Name, Column: name}
	}
	return s.d.Qualified(s.alias, name), nil
}

// join outer-joins a staged temp table on patient_id once per statement.
func (s *scope) join(table string) {
	if s.joined[table] {
		return
	}
	s.joined[table] = true
	s.tables = append(s.tables, table)
	s.joins = append(s.joins, fmt.Sprintf("LEFT OUTER JOIN %s ON %s = %s",
		s.d.QuoteIdent(table),
		s.d.Qualified(table, backend.PatientID),
		s.d.Qualified(s.alias, backend.PatientID)))
}

// stage renders one group's staging statement.
func (r *compilation) stage(g *group) (Stage, error) {
	sc, where, err := r.chain(g.source)
	if err != nil {
		return Stage{}, err
	}

	stage := Stage{
		Table:   g.table,
		Source:  sc.src.Name,
		Outputs: g.outputs,
		Columns: []string{backend.PatientID},
	}
	for _, col := range g.columns {
		stage.Columns = append(stage.Columns, col.name)
	}

	var sel *selectBuilder
	if g.row != nil {
		stage.Kind = "row"
		sel, err = r.rowSelect(g, sc, where)
	} else {
		stage.Kind = "aggregate"
		sel, err = r.aggregateSelect(g, sc, where)
	}
	if err != nil {
		return Stage{}, err
	}

	stage.DependsOn = sc.tables

	stage.SQL = r.d.materialize(g.table, sel)
	r.staged[g] = true
	return stage, nil
}

// chain resolves the base table of a chain and renders its filters in chain
// order.
func (r *compilation) chain(end queryir.Table) (*scope, []string, error) {
	chain := queryir.Chain(end)
	if len(chain) == 0 {
		return nil, nil, &InvariantError{Message: "chain has no nodes"}
	}
	base, ok := chain[0].(*queryir.BaseTable)
	if !ok {
		return nil, nil, &InvariantError{Node: queryir.Kind(chain[0]), Message: "chain does not start at a base table"}
	}

	src, err := r.c.registry.Resolve(base.Name)
	if err != nil {
		return nil, nil, err
	}

	sc := &scope{
		d:      r.d,
		alias:  base.Name,
		src:    src,
		joined: make(map[string]bool),
	}

	var where []string
	for _, node := range chain[1:] {
		ft, ok := node.(*queryir.FilteredTable)
		if !ok {
			return nil, nil, &InvariantError{Node: queryir.Kind(node), Message: "only filters may follow the base table"}
		}
		pred, err := r.predicate(sc, ft)
		if err != nil {
			return nil, nil, err
		}
		where = append(where, pred)
	}
	return sc, where, nil
}

func (r *compilation) predicate(sc *scope, ft *queryir.FilteredTable) (string, error) {
	lhs, err := sc.column(ft.Column)
	if err != nil {
		return "", err
	}

	switch val := ft.Value.(type) {
	case queryir.Literal:
		if val.System != "" {
			col, _ := sc.src.Column(ft.Column)
			if col.System != "" && col.System != val.System {
				return "", &CodelistSystemError{Table: sc.src.Name, Column: ft.Column, Want: col.System, Got: val.System}
			}
		}
		pred, err := r.d.CompareLiteral(lhs, ft.Operator, val.Value)
		if err != nil {
			return "", fmt.Errorf("filter on %s: %w", ft.Column, err)
		}
		return pred, nil

	case queryir.Value:
		ref, ok := r.columns[val]
		if !ok || !r.staged[ref.group] {
			return "", &InvariantError{Node: queryir.Kind(val), Message: fmt.Sprintf("filter on %q references a value that is not staged yet", ft.Column)}
		}
		sc.join(ref.group.table)
		return r.d.Compare(lhs, ft.Operator, r.d.Qualified(ref.group.table, ref.column))

	default:
		return "", &InvariantError{Node: queryir.Kind(ft), Message: fmt.Sprintf("filter on %q has no value", ft.Column)}
	}
}

func (sc *scope) from() string {
	if sc.src.IsQuery() {
		return "(" + sc.src.Query + ") AS " + sc.d.QuoteIdent(sc.alias)
	}

	cols := make([]string, len(sc.src.Columns))
	for i, c := range sc.src.Columns {
		cols[i] = sc.d.QuoteIdent(c.PhysicalName()) + " AS " + sc.d.QuoteIdent(c.Name)
	}
	return fmt.Sprintf("(SELECT %s FROM %s) AS %s",
		strings.Join(cols, ", "),
		sc.d.QuoteIdent(sc.src.PhysicalTable()),
		sc.d.QuoteIdent(sc.alias))
}

// rowSelect ranks the rows of each patient and keeps the first:
//
//	SELECT patient_id, <columns> FROM (
//	  SELECT ..., ROW_NUMBER() OVER (PARTITION BY patient_id ORDER BY <sort>) AS _row_num
//	  FROM <source> WHERE <filters>
//	) AS _ranked WHERE _row_num = 1
func (r *compilation) rowSelect(g *group, sc *scope, where []string) (*selectBuilder, error) {
	if len(g.row.SortColumns) == 0 {
		return nil, &InvariantError{Node: queryir.Kind(g.row), Message: "row selection has no sort columns"}
	}

	pid, err := sc.column(backend.PatientID)
	if err != nil {
		return nil, err
	}

	order := make([]string, len(g.row.SortColumns))
	for i, name := range g.row.SortColumns {
		col, err := sc.column(name)
		if err != nil {
			return nil, err
		}
		if g.row.Descending {
			col += " DESC"
		}
		order[i] = col
	}

	inner := &selectBuilder{
		from:  sc.from(),
		where: where,
	}
	outer := &selectBuilder{
		where: []string{r.d.QuoteIdent(rowNumberColumn) + " = 1"},
	}

	inner.columns = append(inner.columns, pid+" AS "+r.d.QuoteIdent(backend.PatientID))
	outer.columns = append(outer.columns, r.d.QuoteIdent(backend.PatientID))
	for _, gc := range g.columns {
		col, err := sc.column(gc.name)
		if err != nil {
			return nil, err
		}
		inner.columns = append(inner.columns, col+" AS "+r.d.QuoteIdent(gc.name))
		outer.columns = append(outer.columns, r.d.QuoteIdent(gc.name))
	}
	inner.columns = append(inner.columns, fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS %s",
		pid, strings.Join(order, ", "), r.d.QuoteIdent(rowNumberColumn)))
	inner.joins = sc.joins

	outer.from = "(" + inner.String() + ") AS " + r.d.QuoteIdent(rankedAlias)
	return outer, nil
}

// aggregateSelect computes one aggregate per column grouped by patient.
func (r *compilation) aggregateSelect(g *group, sc *scope, where []string) (*selectBuilder, error) {
	pid, err := sc.column(backend.PatientID)
	if err != nil {
		return nil, err
	}

	sel := &selectBuilder{
		from:    sc.from(),
		where:   where,
		groupBy: []string{pid},
	}
	sel.columns = append(sel.columns, pid+" AS "+r.d.QuoteIdent(backend.PatientID))

	for _, gc := range g.columns {
		agg, ok := gc.value.(*queryir.ValueFromAggregate)
		if !ok {
			return nil, &InvariantError{Node: queryir.Kind(gc.value), Message: "row value in aggregate group"}
		}
		expr, err := r.aggregateExpr(sc, agg)
		if err != nil {
			return nil, err
		}
		sel.columns = append(sel.columns, expr+" AS "+r.d.QuoteIdent(gc.name))
	}
	sel.joins = sc.joins
	return sel, nil
}

func (r *compilation) aggregateExpr(sc *scope, v *queryir.ValueFromAggregate) (string, error) {
	// Presence in the grouped result already means at least one row.
	if v.Function == queryir.Exists {
		return r.d.Literal(ir.IRBool(true))
	}

	if v.Column == "" {
		if v.Function == queryir.Count {
			return "COUNT(*)", nil
		}
		return "", &InvariantError{Node: queryir.Kind(v), Message: fmt.Sprintf("aggregate %s requires a column", v.Function)}
	}

	col, err := sc.column(v.Column)
	if err != nil {
		return "", err
	}

	switch v.Function {
	case queryir.Count, queryir.Min, queryir.Max, queryir.Sum, queryir.Avg:
		return strings.ToUpper(v.Function.String()) + "(" + col + ")", nil
	default:
		return "", &InvariantError{Node: queryir.Kind(v), Message: fmt.Sprintf("unknown aggregate function %s", v.Function)}
	}
}
