package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/cohortsql/internal/warehouse"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string
	Actual   string
	Units    []UnitSnapshot // All units for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nUnits:\n")
	for i, u := range e.Units {
		switch {
		case u.Error != "":
			fmt.Fprintf(&buf, "  [%d] %s error %s\n", i+1, u.Name, u.Error)
		default:
			fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, u.Name, formatEvents(u.Events))
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the snapshot and
// returns the failure messages.
func EvaluateAssertions(snapshot *Snapshot, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertUnitEvents:
			err = assertUnitEvents(snapshot, a)
		case AssertUnitError:
			err = assertUnitError(snapshot, a)
		case AssertCohortCount:
			err = assertCohortCount(snapshot, a)
		case AssertCohortRows:
			err = assertCohortRows(snapshot, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// assertUnitEvents compares the unit's events exactly. An empty
// expectation asserts that the unit returned nothing.
func assertUnitEvents(s *Snapshot, a Assertion) error {
	u, ok := s.Unit(a.Unit)
	if !ok {
		return &AssertionError{
			Type:     AssertUnitEvents,
			Expected: fmt.Sprintf("unit %s", a.Unit),
			Actual:   "unit not compiled",
			Units:    s.Units,
		}
	}
	if u.Error != "" {
		return &AssertionError{
			Type:     AssertUnitEvents,
			Expected: fmt.Sprintf("unit %s events %s", a.Unit, formatEvents(a.Events)),
			Actual:   "unit failed with " + u.Error,
			Units:    s.Units,
		}
	}
	if !sameEvents(u.Events, a.Events) {
		return &AssertionError{
			Type:     AssertUnitEvents,
			Expected: fmt.Sprintf("unit %s events %s", a.Unit, formatEvents(a.Events)),
			Actual:   formatEvents(u.Events),
			Units:    s.Units,
		}
	}
	return nil
}

func assertUnitError(s *Snapshot, a Assertion) error {
	u, ok := s.Unit(a.Unit)
	actual := "unit not compiled"
	if ok {
		actual = "no error"
		if u.Error != "" {
			actual = u.Error
		}
	}
	if actual != a.Code {
		return &AssertionError{
			Type:     AssertUnitError,
			Expected: fmt.Sprintf("unit %s error %s", a.Unit, a.Code),
			Actual:   actual,
			Units:    s.Units,
		}
	}
	return nil
}

func assertCohortCount(s *Snapshot, a Assertion) error {
	if len(s.Cohort) != a.Count {
		return &AssertionError{
			Type:     AssertCohortCount,
			Expected: fmt.Sprintf("%d cohort rows", a.Count),
			Actual:   fmt.Sprintf("%d cohort rows", len(s.Cohort)),
			Units:    s.Units,
		}
	}
	return nil
}

func assertCohortRows(s *Snapshot, a Assertion) error {
	if len(s.Cohort) == 0 && len(a.Rows) == 0 {
		return nil
	}
	if !reflect.DeepEqual(s.Cohort, a.Rows) {
		return &AssertionError{
			Type:     AssertCohortRows,
			Expected: fmt.Sprintf("%v", a.Rows),
			Actual:   fmt.Sprintf("%v", s.Cohort),
			Units:    s.Units,
		}
	}
	return nil
}

func sameEvents(actual, expected []warehouse.EventKey) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i := range actual {
		if actual[i] != expected[i] {
			return false
		}
	}
	return true
}

func formatEvents(events []warehouse.EventKey) string {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = fmt.Sprintf("(%d,%d)", e.PersonID, e.EventID)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
