package backend

import "strings"

// TPPName is the name of the builtin TPP backend.
const TPPName = "tpp"

const sgssQuery = `
SELECT patient_id, date, 1 AS positive_result FROM sgss_positive
UNION ALL
SELECT patient_id, date, 0 AS positive_result FROM sgss_negative
`

// TPP returns the builtin backend for the TPP warehouse schema.
func TPP() *Registry {
	return MustRegistry(TPPName,
		Source{
			Name:  "clinical_events",
			Table: "CodedEvents",
			Columns: []Column{
				{Name: "code", Type: "code", Source: "CTV3Code", System: "ctv3"},
				{Name: "date", Type: "datetime", Source: "ConsultationDate"},
				{Name: "numeric_value", Type: "float", Source: "NumericValue"},
			},
		},
		Source{
			Name:  "sgss_sars_cov_2",
			Query: strings.TrimSpace(sgssQuery),
			Columns: []Column{
				{Name: "date", Type: "date"},
				{Name: "positive_result", Type: "boolean"},
			},
		},
		Source{
			Name:  "practice_registrations",
			Table: "RegistrationHistory",
			Columns: []Column{
				{Name: "date_start", Type: "date", Source: "StartDate"},
				{Name: "date_end", Type: "date", Source: "EndDate"},
				{Name: "stp_code", Type: "categorical", Source: "STPCode"},
			},
		},
	)
}

// Builtin returns a builtin backend by name.
func Builtin(name string) (*Registry, bool) {
	switch name {
	case TPPName:
		return TPP(), true
	}
	return nil, false
}
