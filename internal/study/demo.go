// Package study holds example cohort definitions built with the queryir
// builder.
package study

import (
	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/queryir"
)

// CreatinineCodes is the CTV3 code list for serum creatinine results.
var CreatinineCodes = []string{"XE2q5"}

// Demo is the SARS-CoV-2 example study against the TPP backend: patients
// with a positive SGSS test, their first and last positive test dates, the
// latest creatinine result between those dates and the STP of the practice
// they were registered with on the first positive date.
func Demo() *queryir.Cohort {
	positives := queryir.From("sgss_sars_cov_2").
		Where("positive_result", queryir.Lit(ir.IRBool(true)))

	firstPositive := positives.Earliest().Get("date")
	lastPositive := positives.Latest().Get("date")

	creatinine := queryir.From("clinical_events").
		Where("code", queryir.Codelist("ctv3", CreatinineCodes...)).
		Between("date", firstPositive, lastPositive).
		Latest()

	stp := queryir.From("practice_registrations").
		ActiveAsOf(firstPositive).
		Get("stp_code")

	return queryir.NewCohort().
		Add(queryir.PopulationName, positives.Exists()).
		Add("sgss_first_positive_test_date", firstPositive).
		Add("sgss_last_positive_test_date", lastPositive).
		Add("creatinine_value", creatinine.Get("numeric_value")).
		Add("creatinine_date", creatinine.Get("date")).
		Add("stp", stp)
}
