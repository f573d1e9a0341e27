package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortsql/internal/warehouse"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Scenario: "s",
		Units: []UnitSnapshot{
			{Name: "concept_sets", Rows: 2},
			{Name: "primary_events", Events: []warehouse.EventKey{{PersonID: 1, EventID: 1}, {PersonID: 2, EventID: 1}}},
			{Name: "inclusion_rule_0", Events: []warehouse.EventKey{}},
			{Name: "censoring", Error: "UNSUPPORTED_COLUMN"},
		},
		Cohort: []CohortRow{
			{PersonID: 1, StartDate: "2020-01-01", EndDate: "2020-12-31"},
		},
	}
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	failures := EvaluateAssertions(testSnapshot(), []Assertion{
		{Type: AssertUnitEvents, Unit: "primary_events", Events: []warehouse.EventKey{{PersonID: 1, EventID: 1}, {PersonID: 2, EventID: 1}}},
		{Type: AssertUnitEvents, Unit: "inclusion_rule_0"},
		{Type: AssertUnitError, Unit: "censoring", Code: "UNSUPPORTED_COLUMN"},
		{Type: AssertCohortCount, Count: 1},
		{Type: AssertCohortRows, Rows: []CohortRow{{PersonID: 1, StartDate: "2020-01-01", EndDate: "2020-12-31"}}},
	})
	assert.Empty(t, failures)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		contains  []string
	}{
		{
			name:      "events differ",
			assertion: Assertion{Type: AssertUnitEvents, Unit: "primary_events", Events: []warehouse.EventKey{{PersonID: 1, EventID: 1}}},
			contains:  []string{"unit_events", "[(1,1)]", "[(1,1) (2,1)]"},
		},
		{
			name:      "events order matters",
			assertion: Assertion{Type: AssertUnitEvents, Unit: "primary_events", Events: []warehouse.EventKey{{PersonID: 2, EventID: 1}, {PersonID: 1, EventID: 1}}},
			contains:  []string{"[(2,1) (1,1)]"},
		},
		{
			name:      "unit missing",
			assertion: Assertion{Type: AssertUnitEvents, Unit: "end_strategy"},
			contains:  []string{"unit not compiled"},
		},
		{
			name:      "unit failed",
			assertion: Assertion{Type: AssertUnitEvents, Unit: "censoring"},
			contains:  []string{"unit failed with UNSUPPORTED_COLUMN"},
		},
		{
			name:      "wrong error code",
			assertion: Assertion{Type: AssertUnitError, Unit: "censoring", Code: "MALFORMED_CRITERION"},
			contains:  []string{"unit_error", "UNSUPPORTED_COLUMN"},
		},
		{
			name:      "no error",
			assertion: Assertion{Type: AssertUnitError, Unit: "primary_events", Code: "MALFORMED_CRITERION"},
			contains:  []string{"no error"},
		},
		{
			name:      "count",
			assertion: Assertion{Type: AssertCohortCount, Count: 3},
			contains:  []string{"3 cohort rows", "1 cohort rows"},
		},
		{
			name:      "rows",
			assertion: Assertion{Type: AssertCohortRows, Rows: []CohortRow{{PersonID: 1, StartDate: "2020-01-01", EndDate: "2021-01-01"}}},
			contains:  []string{"cohort_rows", "2021-01-01"},
		},
		{
			name:      "unknown type",
			assertion: Assertion{Type: "trace_contains"},
			contains:  []string{`unknown assertion type "trace_contains"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := EvaluateAssertions(testSnapshot(), []Assertion{tt.assertion})
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0], "assertions[0]")
			for _, s := range tt.contains {
				assert.Contains(t, failures[0], s)
			}
		})
	}
}

func TestEvaluateAssertions_EmptyCohortRows(t *testing.T) {
	s := testSnapshot()
	s.Cohort = []CohortRow{}
	assert.Empty(t, EvaluateAssertions(s, []Assertion{{Type: AssertCohortRows}}))
}

func TestAssertionError_ListsUnits(t *testing.T) {
	err := &AssertionError{
		Type:     AssertCohortCount,
		Expected: "1 cohort rows",
		Actual:   "0 cohort rows",
		Units:    testSnapshot().Units,
	}
	msg := err.Error()
	assert.Contains(t, msg, "[1] concept_sets []")
	assert.Contains(t, msg, "[2] primary_events [(1,1) (2,1)]")
	assert.Contains(t, msg, "[4] censoring error UNSUPPORTED_COLUMN")
}
