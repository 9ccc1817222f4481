package queryir

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortql/internal/ir"
)

func TestValidate_WellFormed(t *testing.T) {
	positives := From("sgss_sars_cov_2").Where("positive_result", Lit(ir.IRBool(true)))
	first := positives.Earliest().Get("date")

	c := NewCohort().
		Add("population", positives.Exists()).
		Add("first_positive", first).
		Add("stp", From("practice_registrations").ActiveAsOf(first).Get("stp_code")).
		Add("study", Lit(ir.IRString("demo")))

	assert.NoError(t, Validate(c))
}

func TestValidate_Violations(t *testing.T) {
	pop := From("t").Exists()

	tests := []struct {
		name    string
		cohort  *Cohort
		message string
	}{
		{
			name:    "nil cohort",
			cohort:  nil,
			message: "cohort is nil",
		},
		{
			name:    "missing population",
			cohort:  NewCohort().Add("x", From("t").Count()),
			message: `missing "population" output`,
		},
		{
			name:    "literal population",
			cohort:  NewCohort().Add("population", Lit(ir.IRBool(true))),
			message: "must be a query value",
		},
		{
			name:    "empty table name",
			cohort:  NewCohort().Add("population", From("").Exists()),
			message: "table with empty name",
		},
		{
			name:    "row without sort columns",
			cohort:  NewCohort().Add("population", pop).Add("x", From("t").FirstBy().Get("x")),
			message: "row selection has no sort columns",
		},
		{
			name:    "aggregate without column",
			cohort:  NewCohort().Add("population", pop).Add("x", From("t").Aggregate(Max, "")),
			message: "aggregate max requires a column",
		},
		{
			name: "code list with ordering operator",
			cohort: NewCohort().Add("population",
				From("t").Filter("code", Lt, Codelist("ctv3", "a")).Exists()),
			message: "list literal only supported with eq, got lt",
		},
		{
			name: "filter without value",
			cohort: NewCohort().Add("population",
				From("t").Filter("code", Eq, nil).Exists()),
			message: `filter on "code" has no value`,
		},
		{
			name:    "list output",
			cohort:  NewCohort().Add("population", pop).Add("codes", Codelist("ctv3", "a")),
			message: "literal output must be a scalar, got array",
		},
		{
			name:    "reserved output name",
			cohort:  NewCohort().Add("population", pop).Add("patient_id", From("t").Count()),
			message: "patient_id: name is reserved for the patient key",
		},
		{
			name:    "nil row",
			cohort:  NewCohort().Add("population", pop).Add("x", &ValueFromRow{Column: "x"}),
			message: `column "x" has no row`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cohort)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidate_DuplicateOutput(t *testing.T) {
	c := &Cohort{Outputs: []Output{
		{Name: "population", Value: From("t").Exists()},
		{Name: "x", Value: From("t").Count()},
		{Name: "x", Value: From("t").Count()},
	}}

	err := Validate(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x: duplicate output name")
}

func TestValidate_Cycle(t *testing.T) {
	ft := &FilteredTable{Source: From("t"), Column: "date", Operator: Ge}
	agg := &ValueFromAggregate{Source: ft, Function: Min, Column: "date"}
	ft.Value = agg

	err := Validate(NewCohort().Add("population", agg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	c := NewCohort().
		Add("a", From("").Count()).
		Add("b", From("t").Aggregate(Sum, ""))

	err := Validate(c)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Violations, 3, fmt.Sprint(ve.Violations))
}
