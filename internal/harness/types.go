package harness

import "github.com/roach88/cohortql/internal/ir"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates overall success: the expected error occurred, or the
	// result matched Expect and every assertion held.
	Pass bool `json:"pass"`

	// Statements are the compiled statements, stages first.
	Statements []string `json:"statements"`

	// Columns are the final select's column names.
	Columns []string `json:"columns"`

	// Rows hold the final select's rows ordered by patient_id.
	Rows [][]ir.IRValue `json:"rows"`

	// Err is the compile error, if compilation failed as expected.
	Err error `json:"-"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Statements: []string{},
		Columns:    []string{},
		Rows:       [][]ir.IRValue{},
		Errors:     []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// stages returns the staging statements.
func (r *Result) stages() []string {
	if len(r.Statements) == 0 {
		return nil
	}
	return r.Statements[:len(r.Statements)-1]
}

// column returns the index of a result column, or -1.
func (r *Result) column(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
