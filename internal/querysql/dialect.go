package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/queryir"
)

// Dialect holds the quoting, literal and temp-table rules of one SQL target.
type Dialect struct {
	Name string

	// IdentOpen and IdentClose delimit quoted identifiers.
	IdentOpen  string
	IdentClose string

	// True and False are the boolean literals.
	True  string
	False string

	// TempPrefix is prepended to staged temp table names.
	TempPrefix string

	// SelectInto materializes stages with SELECT ... INTO <table>; otherwise
	// stages are wrapped in CREATE TEMPORARY TABLE <table> AS.
	SelectInto bool
}

// MSSQL is the dialect of the TPP warehouse.
var MSSQL = &Dialect{
	Name:       "mssql",
	IdentOpen:  "[",
	IdentClose: "]",
	True:       "1",
	False:      "0",
	TempPrefix: "#",
	SelectInto: true,
}

// SQLite is used by the scenario harness and local checks.
var SQLite = &Dialect{
	Name:       "sqlite",
	IdentOpen:  `"`,
	IdentClose: `"`,
	True:       "TRUE",
	False:      "FALSE",
}

// DefaultDialect is used when none is configured.
var DefaultDialect = MSSQL

// DialectByName returns a builtin dialect.
func DialectByName(name string) (*Dialect, error) {
	switch strings.ToLower(name) {
	case "mssql", "tsql", "sqlserver":
		return MSSQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q (want mssql or sqlite)", name)
	}
}

// QuoteIdent quotes a single identifier, doubling any closing delimiter.
func (d *Dialect) QuoteIdent(name string) string {
	return d.IdentOpen + strings.ReplaceAll(name, d.IdentClose, d.IdentClose+d.IdentClose) + d.IdentClose
}

// Qualified returns table.column with both parts quoted.
func (d *Dialect) Qualified(table, column string) string {
	return d.QuoteIdent(table) + "." + d.QuoteIdent(column)
}

// TempTable returns the name of the seq'th staged table.
func (d *Dialect) TempTable(seq int) string {
	return fmt.Sprintf("%sgroup_%d", d.TempPrefix, seq)
}

// materialize turns a select into a statement creating table.
func (d *Dialect) materialize(table string, sel *selectBuilder) string {
	if d.SelectInto {
		sel.into = d.QuoteIdent(table)
		return sel.String()
	}
	return "CREATE TEMPORARY TABLE " + d.QuoteIdent(table) + " AS\n" + sel.String()
}

// Literal renders a scalar literal inline.
func (d *Dialect) Literal(v ir.IRValue) (string, error) {
	switch val := v.(type) {
	case ir.IRNull:
		return "NULL", nil
	case ir.IRString:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'", nil
	case ir.IRInt:
		return strconv.FormatInt(int64(val), 10), nil
	case ir.IRBool:
		if val {
			return d.True, nil
		}
		return d.False, nil
	default:
		return "", fmt.Errorf("cannot inline %s literal", ir.TypeName(v))
	}
}

var operatorSQL = map[queryir.Operator]string{
	queryir.Eq: "=",
	queryir.Lt: "<",
	queryir.Le: "<=",
	queryir.Gt: ">",
	queryir.Ge: ">=",
}

// Compare renders lhs <op> rhs where rhs is an already rendered expression.
func (d *Dialect) Compare(lhs string, op queryir.Operator, rhs string) (string, error) {
	sqlOp, ok := operatorSQL[op]
	if !ok {
		return "", fmt.Errorf("unsupported operator %s", op)
	}
	return lhs + " " + sqlOp + " " + rhs, nil
}

// CompareLiteral renders lhs <op> literal. Eq with NULL renders IS NULL and
// Eq with a list renders IN (...); an empty list matches nothing.
func (d *Dialect) CompareLiteral(lhs string, op queryir.Operator, v ir.IRValue) (string, error) {
	switch val := v.(type) {
	case ir.IRNull:
		if op != queryir.Eq {
			return "", fmt.Errorf("NULL only supports eq, got %s", op)
		}
		return lhs + " IS NULL", nil
	case ir.IRArray:
		if op != queryir.Eq {
			return "", fmt.Errorf("list literal only supports eq, got %s", op)
		}
		if len(val) == 0 {
			return "1 = 0", nil
		}
		items := make([]string, len(val))
		for i, elem := range val {
			s, err := d.Literal(elem)
			if err != nil {
				return "", fmt.Errorf("list element %d: %w", i, err)
			}
			items[i] = s
		}
		return lhs + " IN (" + strings.Join(items, ", ") + ")", nil
	}

	rhs, err := d.Literal(v)
	if err != nil {
		return "", err
	}
	return d.Compare(lhs, op, rhs)
}

// selectBuilder assembles a single SELECT statement, one clause per line.
type selectBuilder struct {
	columns []string
	into    string
	from    string
	joins   []string
	where   []string
	groupBy []string
}

func (b *selectBuilder) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.columns, ", "))
	if b.into != "" {
		sb.WriteString("\nINTO ")
		sb.WriteString(b.into)
	}
	sb.WriteString("\nFROM ")
	sb.WriteString(b.from)
	for _, j := range b.joins {
		sb.WriteString("\n")
		sb.WriteString(j)
	}
	if len(b.where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(b.where, "\nAND "))
	}
	if len(b.groupBy) > 0 {
		sb.WriteString("\nGROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	return sb.String()
}
