package harness

import "github.com/roach88/cohortsql/internal/warehouse"

// CohortRow is one member period of the final cohort.
type CohortRow struct {
	PersonID  int64  `json:"person_id" yaml:"person_id" db:"person_id"`
	StartDate string `json:"start_date" yaml:"start_date" db:"start_date"`
	EndDate   string `json:"end_date" yaml:"end_date" db:"end_date"`
}

// UnitSnapshot records what one unit did.
type UnitSnapshot struct {
	Name string `json:"name"`

	// Error is the error code of a unit that failed to compile.
	Error string `json:"error,omitempty"`

	// Rows is the number of codeset rows written by concept_sets.
	Rows int `json:"rows,omitempty"`

	// Events are the events a query unit returned.
	Events []warehouse.EventKey `json:"events,omitempty"`
}

// Snapshot is the deterministic outcome of a scenario, compared against
// golden files.
type Snapshot struct {
	Scenario string         `json:"scenario"`
	Units    []UnitSnapshot `json:"units"`
	Cohort   []CohortRow    `json:"cohort"`
}

// Unit returns the snapshot of the named unit.
func (s *Snapshot) Unit(name string) (UnitSnapshot, bool) {
	for _, u := range s.Units {
		if u.Name == name {
			return u, true
		}
	}
	return UnitSnapshot{}, false
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	Snapshot *Snapshot `json:"snapshot"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
