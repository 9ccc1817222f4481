package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/queryir"
)

func TestDialectByName(t *testing.T) {
	tests := []struct {
		name string
		want *Dialect
	}{
		{"mssql", MSSQL},
		{"TSQL", MSSQL},
		{"sqlserver", MSSQL},
		{"sqlite", SQLite},
		{"sqlite3", SQLite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DialectByName(tt.name)
			require.NoError(t, err)
			assert.Same(t, tt.want, d)
		})
	}

	_, err := DialectByName("oracle")
	assert.ErrorContains(t, err, `unknown dialect "oracle"`)
}

func TestDialect_QuoteIdent(t *testing.T) {
	assert.Equal(t, "[a b]", MSSQL.QuoteIdent("a b"))
	assert.Equal(t, "[a]]b]", MSSQL.QuoteIdent("a]b"))
	assert.Equal(t, `"select"`, SQLite.QuoteIdent("select"))
	assert.Equal(t, `"a""b"`, SQLite.QuoteIdent(`a"b`))
	assert.Equal(t, `[#group_3].[date]`, MSSQL.Qualified(MSSQL.TempTable(3), "date"))
	assert.Equal(t, `"group_3"."date"`, SQLite.Qualified(SQLite.TempTable(3), "date"))
}

func TestDialect_Literal(t *testing.T) {
	tests := []struct {
		name    string
		d       *Dialect
		value   ir.IRValue
		want    string
		wantErr bool
	}{
		{"null", MSSQL, ir.IRNull{}, "NULL", false},
		{"string", MSSQL, ir.IRString("2020-01-01"), "'2020-01-01'", false},
		{"quote", SQLite, ir.IRString("it's"), "'it''s'", false},
		{"int", SQLite, ir.IRInt(-42), "-42", false},
		{"mssql true", MSSQL, ir.IRBool(true), "1", false},
		{"mssql false", MSSQL, ir.IRBool(false), "0", false},
		{"sqlite true", SQLite, ir.IRBool(true), "TRUE", false},
		{"sqlite false", SQLite, ir.IRBool(false), "FALSE", false},
		{"array", SQLite, ir.IRArray{ir.IRInt(1)}, "", true},
		{"object", SQLite, ir.IRObject{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.d.Literal(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialect_CompareLiteral(t *testing.T) {
	tests := []struct {
		name    string
		op      queryir.Operator
		value   ir.IRValue
		want    string
		wantErr bool
	}{
		{"eq", queryir.Eq, ir.IRInt(3), `"x" = 3`, false},
		{"lt", queryir.Lt, ir.IRInt(3), `"x" < 3`, false},
		{"le", queryir.Le, ir.IRString("2020-02-01"), `"x" <= '2020-02-01'`, false},
		{"gt", queryir.Gt, ir.IRInt(3), `"x" > 3`, false},
		{"ge", queryir.Ge, ir.IRInt(3), `"x" >= 3`, false},
		{"null", queryir.Eq, ir.IRNull{}, `"x" IS NULL`, false},
		{"null with lt", queryir.Lt, ir.IRNull{}, "", true},
		{"list", queryir.Eq, ir.IRArray{ir.IRString("a"), ir.IRString("b")}, `"x" IN ('a', 'b')`, false},
		{"empty list", queryir.Eq, ir.IRArray{}, "1 = 0", false},
		{"list with ge", queryir.Ge, ir.IRArray{ir.IRString("a")}, "", true},
		{"nested list", queryir.Eq, ir.IRArray{ir.IRArray{}}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SQLite.CompareLiteral(`"x"`, tt.op, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialect_Materialize(t *testing.T) {
	sel := func() *selectBuilder {
		return &selectBuilder{
			columns: []string{"a"},
			from:    "t",
			where:   []string{"a = 1", "b = 2"},
			groupBy: []string{"a"},
		}
	}

	assert.Equal(t, "SELECT a\nINTO [#group_1]\nFROM t\nWHERE a = 1\nAND b = 2\nGROUP BY a",
		MSSQL.materialize(MSSQL.TempTable(1), sel()))
	assert.Equal(t, "CREATE TEMPORARY TABLE \"group_1\" AS\nSELECT a\nFROM t\nWHERE a = 1\nAND b = 2\nGROUP BY a",
		SQLite.materialize(SQLite.TempTable(1), sel()))
}

func TestScript(t *testing.T) {
	assert.Equal(t, "", Script(nil))
	assert.Equal(t, "SELECT 1;\n", Script([]string{"SELECT 1"}))
	assert.Equal(t, "SELECT 1;\n\nSELECT 2;\n", Script([]string{"SELECT 1", "SELECT 2"}))
}
