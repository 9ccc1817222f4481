package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/cohortql/internal/ir"
)

func TestEqual(t *testing.T) {
	build := func(code string) Value {
		return From("clinical_events").
			Where("code", Codelist("ctv3", code)).
			Latest().
			Get("numeric_value")
	}

	assert.True(t, Equal(build("XE2q5"), build("XE2q5")))
	assert.False(t, Equal(build("XE2q5"), build("XE2q6")))
	assert.False(t, Equal(build("XE2q5"), Lit(ir.IRString("XE2q5"))))
	assert.True(t, Equal(Lit(ir.IRNull{}), Lit(ir.IRNull{})))
	assert.False(t, Equal(Lit(ir.IRInt(1)), Lit(ir.IRString("1"))))
	assert.False(t, Equal(Codelist("ctv3", "a"), Codelist("snomed", "a")))
}

func TestEqual_Variants(t *testing.T) {
	base := From("t")
	tests := []struct {
		name string
		a, b Operand
		want bool
	}{
		{"sort direction", base.Earliest().Get("d"), base.Latest().Get("d"), false},
		{"column", base.Latest().Get("a"), base.Latest().Get("b"), false},
		{"aggregate fn", base.Aggregate(Min, "x"), base.Aggregate(Max, "x"), false},
		{"operator", base.OnOrAfter("d", Lit(ir.IRInt(1))).Count(), base.OnOrBefore("d", Lit(ir.IRInt(1))).Count(), false},
		{"table name", From("a").Count(), From("b").Count(), false},
		{"same shape", base.Aggregate(Sum, "x"), From("t").Aggregate(Sum, "x"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestEqualCohorts(t *testing.T) {
	build := func() *Cohort {
		first := From("tests").Earliest().Get("date")
		return NewCohort().
			Add("population", From("tests").Exists()).
			Add("first", first).
			Add("count_after", From("events").OnOrAfter("date", first).Count())
	}

	assert.True(t, EqualCohorts(build(), build()))

	reordered := build()
	reordered.Outputs[1], reordered.Outputs[2] = reordered.Outputs[2], reordered.Outputs[1]
	assert.False(t, EqualCohorts(build(), reordered))
	assert.False(t, EqualCohorts(build(), nil))
	assert.True(t, EqualCohorts(nil, nil))
}
