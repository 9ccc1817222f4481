// Package querysql compiles a cohort query graph into staged SQL.
//
// Compilation runs in four steps:
//
//  1. Grouping: every output-bearing value is keyed by its kind and the
//     identity of its immediate source (the same *Row, or the same table
//     node for aggregates). One group becomes one staging statement.
//  2. Staging: each group materializes patient_id plus the columns its
//     values need into a numbered temp table. Filters whose operand is a
//     value from another group outer-join that group's temp table.
//  3. Final assembly: the population group's table drives a final select
//     that outer-joins every other group and projects one column per output.
//  4. Rendering: literals are inlined through the Dialect.
//
// Groups are staged in dependency order, so a statement only references
// temp tables created by earlier statements.
package querysql

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/roach88/cohortql/internal/backend"
	"github.com/roach88/cohortql/internal/queryir"
)

// Internal names used by row selection; backends reject sources that use them.
const (
	rowNumberColumn = backend.RowNumberColumn
	rankedAlias     = backend.RankedAlias
)

// Compiler compiles cohorts against one backend in one dialect.
// A Compiler holds only read-only configuration and is safe for concurrent
// use; each call keeps its own state.
type Compiler struct {
	registry *backend.Registry
	dialect  *Dialect
	logger   zerolog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger used for debug events.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// NewCompiler creates a compiler. A nil dialect selects DefaultDialect.
func NewCompiler(registry *backend.Registry, dialect *Dialect, opts ...Option) *Compiler {
	if dialect == nil {
		dialect = DefaultDialect
	}
	c := &Compiler{
		registry: registry,
		dialect:  dialect,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() *Dialect {
	return c.dialect
}

// Compile returns the ordered SQL statements for a cohort: one staging
// statement per group followed by the final select.
func (c *Compiler) Compile(cohort *queryir.Cohort) ([]string, error) {
	plan, err := c.Plan(cohort)
	if err != nil {
		return nil, err
	}
	return plan.Statements(), nil
}

// Plan compiles a cohort and returns the staged plan with its SQL.
func (c *Compiler) Plan(cohort *queryir.Cohort) (*Plan, error) {
	if c.registry == nil {
		return nil, errors.New("compiler has no backend registry")
	}
	if cohort == nil {
		return nil, &InvariantError{Message: "cohort is nil"}
	}

	pop, ok := cohort.Population()
	if !ok {
		return nil, &InvariantError{Message: fmt.Sprintf("cohort needs a node-valued %q output", queryir.PopulationName)}
	}

	run := &compilation{
		c:       c,
		d:       c.dialect,
		groups:  make(map[groupKey]*group),
		columns: make(map[queryir.Value]columnRef),
		staged:  make(map[*group]bool),
	}

	if err := run.group(cohort); err != nil {
		return nil, err
	}

	plan := &Plan{Dialect: c.dialect.Name, Backend: c.registry.Name()}
	for _, g := range run.order {
		stage, err := run.stage(g)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", g.table, err)
		}
		plan.Stages = append(plan.Stages, stage)
		c.logger.Debug().
			Str("table", stage.Table).
			Str("kind", stage.Kind).
			Str("source", stage.Source).
			Strs("columns", stage.Columns).
			Strs("depends_on", stage.DependsOn).
			Msg("staged group")
	}

	if err := run.final(cohort, pop, plan); err != nil {
		return nil, err
	}
	c.logger.Debug().
		Int("stages", len(plan.Stages)).
		Int("outputs", len(plan.Outputs)).
		Msg("assembled final query")

	return plan, nil
}

// groupKey identifies a group: the value kind and its source node identity.
type groupKey struct {
	kind   string
	source queryir.Node
}

// group is one staging statement in the making.
type group struct {
	key     groupKey
	table   string
	row     *queryir.Row  // set for row groups
	source  queryir.Table // chain end the group reads from
	columns []groupColumn
	outputs []string
}

// groupColumn is one materialized column of a group.
type groupColumn struct {
	name  string
	value queryir.Value
}

// columnRef locates a value's result: temp table and column.
type columnRef struct {
	group  *group
	column string
}

// compilation is the per-call state of one Plan.
type compilation struct {
	c       *Compiler
	d       *Dialect
	seq     int
	order   []*group
	groups  map[groupKey]*group
	columns map[queryir.Value]columnRef
	staged  map[*group]bool
}

// group partitions every reachable value into groups, in dependency order.
func (r *compilation) group(cohort *queryir.Cohort) error {
	nodes, err := queryir.Topological(cohort.Roots())
	if err != nil {
		return &InvariantError{Message: err.Error()}
	}

	for _, n := range nodes {
		v, ok := n.(queryir.Value)
		if !ok {
			continue
		}
		if err := r.addValue(v); err != nil {
			return err
		}
	}

	for _, o := range cohort.Outputs {
		v, ok := o.Value.(queryir.Value)
		if !ok {
			continue
		}
		ref, ok := r.columns[v]
		if !ok {
			return &InvariantError{Node: queryir.Kind(v), Message: fmt.Sprintf("output %q is nil", o.Name)}
		}
		ref.group.outputs = append(ref.group.outputs, o.Name)
	}
	return nil
}

func (r *compilation) addValue(v queryir.Value) error {
	var (
		key    groupKey
		row    *queryir.Row
		source queryir.Table
		column string
	)

	switch val := v.(type) {
	case *queryir.ValueFromRow:
		if val.Source == nil {
			return &InvariantError{Node: queryir.Kind(val), Message: fmt.Sprintf("column %q has no row", val.Column)}
		}
		if val.Column == "" {
			return &InvariantError{Node: queryir.Kind(val), Message: "empty column"}
		}
		key = groupKey{kind: "row", source: val.Source}
		row = val.Source
		source = val.Source.Source
		column = val.Column
	case *queryir.ValueFromAggregate:
		if val.Source == nil {
			return &InvariantError{Node: queryir.Kind(val), Message: fmt.Sprintf("aggregate %s has no source", val.Function)}
		}
		key = groupKey{kind: "aggregate", source: val.Source}
		source = val.Source
		column = aggregateColumnName(val)
	default:
		return &InvariantError{Node: queryir.Kind(v), Message: "not an output-bearing value"}
	}

	g, ok := r.groups[key]
	if !ok {
		r.seq++
		g = &group{
			key:    key,
			table:  r.d.TempTable(r.seq),
			row:    row,
			source: source,
		}
		r.groups[key] = g
		r.order = append(r.order, g)
	}

	if !g.hasColumn(column) {
		g.columns = append(g.columns, groupColumn{name: column, value: v})
	}
	r.columns[v] = columnRef{group: g, column: column}
	return nil
}

func (g *group) hasColumn(name string) bool {
	if name == backend.PatientID {
		return true
	}
	for _, c := range g.columns {
		if c.name == name {
			return true
		}
	}
	return false
}

// aggregateColumnName names an aggregate's column: "<function>_<column>",
// or just the function when it takes no column.
func aggregateColumnName(v *queryir.ValueFromAggregate) string {
	if v.Column == "" {
		return v.Function.String()
	}
	return v.Function.String() + "_" + v.Column
}
