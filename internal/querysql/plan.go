package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/cohortql/internal/backend"
	"github.com/roach88/cohortql/internal/queryir"
)

// Plan is a compiled cohort: staging statements in execution order and the
// final select.
type Plan struct {
	Dialect string       `json:"dialect"`
	Backend string       `json:"backend"`
	Stages  []Stage      `json:"stages"`
	Outputs []OutputPlan `json:"outputs"`
	Final   string       `json:"final"`
}

// Stage is one staging statement materializing a group into a temp table.
type Stage struct {
	Table     string   `json:"table"`
	Kind      string   `json:"kind"` // "row" or "aggregate"
	Source    string   `json:"source"`
	Columns   []string `json:"columns"`
	Outputs   []string `json:"outputs,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
	SQL       string   `json:"sql"`
}

// OutputPlan locates one projected output in the final select.
type OutputPlan struct {
	Name   string `json:"name"`
	Table  string `json:"table,omitempty"`  // empty for literal outputs
	Column string `json:"column,omitempty"` // column in Table, or the rendered literal
}

// Statements returns every statement in execution order.
func (p *Plan) Statements() []string {
	stmts := make([]string, 0, len(p.Stages)+1)
	for _, s := range p.Stages {
		stmts = append(stmts, s.SQL)
	}
	return append(stmts, p.Final)
}

// final builds the result select: population's table joined to every other
// group, one column per non-population output in cohort order.
func (r *compilation) final(cohort *queryir.Cohort, pop queryir.Value, plan *Plan) error {
	popRef, ok := r.columns[pop]
	if !ok || !r.staged[popRef.group] {
		return &InvariantError{Node: queryir.Kind(pop), Message: "population value was not staged"}
	}

	base := popRef.group.table
	sel := &selectBuilder{from: r.d.QuoteIdent(base)}
	joined := map[string]bool{base: true}

	sel.columns = append(sel.columns, r.d.Qualified(base, backend.PatientID)+" AS "+r.d.QuoteIdent(backend.PatientID))
	cond, err := r.d.Compare(r.d.Qualified(base, popRef.column), queryir.Eq, r.d.True)
	if err != nil {
		return err
	}
	sel.where = []string{cond}

	for _, o := range cohort.Outputs {
		if o.Name == queryir.PopulationName {
			continue
		}

		switch val := o.Value.(type) {
		case queryir.Literal:
			lit, err := r.d.Literal(val.Value)
			if err != nil {
				return fmt.Errorf("output %s: %w", o.Name, err)
			}
			sel.columns = append(sel.columns, lit+" AS "+r.d.QuoteIdent(o.Name))
			plan.Outputs = append(plan.Outputs, OutputPlan{Name: o.Name, Column: lit})

		case queryir.Value:
			ref, ok := r.columns[val]
			if !ok || !r.staged[ref.group] {
				return &InvariantError{Node: queryir.Kind(val), Message: fmt.Sprintf("output %q was not staged", o.Name)}
			}
			table := ref.group.table
			if !joined[table] {
				joined[table] = true
				sel.joins = append(sel.joins, fmt.Sprintf("LEFT OUTER JOIN %s ON %s = %s",
					r.d.QuoteIdent(table),
					r.d.Qualified(table, backend.PatientID),
					r.d.Qualified(base, backend.PatientID)))
			}
			sel.columns = append(sel.columns, r.d.Qualified(table, ref.column)+" AS "+r.d.QuoteIdent(o.Name))
			plan.Outputs = append(plan.Outputs, OutputPlan{Name: o.Name, Table: table, Column: ref.column})

		default:
			return &InvariantError{Message: fmt.Sprintf("output %q is nil", o.Name)}
		}
	}

	plan.Final = sel.String()
	return nil
}

// Script joins statements into one executable script, each terminated by a
// semicolon and separated by a blank line.
func Script(statements []string) string {
	var sb strings.Builder
	for i, stmt := range statements {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(stmt)
		sb.WriteString(";\n")
	}
	return sb.String()
}
