// Package check runs advisory checks over a cohort expression.
//
// Checks never block compilation; the compiler does not call this package.
package check

import (
	"fmt"
	"sort"

	"github.com/roach88/cohortsql/internal/cohort"
)

// Severity ranks a warning.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Warning is one finding of a check.
type Warning struct {
	Severity Severity `json:"severity"`
	Check    string   `json:"check"`
	Message  string   `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Severity, w.Check, w.Message)
}

// Checker inspects an expression.
type Checker interface {
	Name() string
	Check(expr *cohort.CohortExpression) []Warning
}

// Default returns every built-in checker.
func Default() []Checker {
	return []Checker{
		UndefinedConceptSet{},
		UnusedConceptSet{},
		EmptyGroup{},
		NestedVisitOccurrence{},
	}
}

// Run applies checkers to expr, or the Default checkers when none are
// given. Warnings are ordered by severity, most severe first, and then by
// checker order.
func Run(expr *cohort.CohortExpression, checkers ...Checker) []Warning {
	if len(checkers) == 0 {
		checkers = Default()
	}
	warnings := []Warning{}
	if expr == nil {
		return warnings
	}
	for _, c := range checkers {
		warnings = append(warnings, c.Check(expr)...)
	}
	sort.SliceStable(warnings, func(i, j int) bool {
		return rank(warnings[i].Severity) > rank(warnings[j].Severity)
	})
	return warnings
}

// HasCritical reports whether any warning is critical.
func HasCritical(warnings []Warning) bool {
	for _, w := range warnings {
		if w.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

func rank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// UndefinedConceptSet reports criteria and demographic filters that name a
// concept set the expression does not define.
type UndefinedConceptSet struct{}

func (UndefinedConceptSet) Name() string { return "undefined_concept_set" }

func (c UndefinedConceptSet) Check(expr *cohort.CohortExpression) []Warning {
	defined := make(map[int]bool, len(expr.ConceptSets))
	for _, cs := range expr.ConceptSets {
		defined[cs.ID] = true
	}

	var out []Warning
	reported := make(map[int]bool)
	report := func(where string, id int) {
		if defined[id] || reported[id] {
			return
		}
		reported[id] = true
		out = append(out, Warning{
			Severity: SeverityCritical,
			Check:    c.Name(),
			Message:  fmt.Sprintf("%s references undefined concept set %d", where, id),
		})
	}

	walk(expr, visitor{
		criterion: func(_ cohort.CriterionID, crit cohort.Criterion, _ []enclosing) {
			for _, id := range cohort.CodesetIDs(crit) {
				report(crit.Kind().DisplayName()+" criteria", id)
			}
		},
		demographic: func(d cohort.DemographicCriteria) {
			for _, id := range demographicCodesets(d) {
				report("demographic criteria", id)
			}
		},
	})
	return out
}

// UnusedConceptSet reports concept sets nothing references.
type UnusedConceptSet struct{}

func (UnusedConceptSet) Name() string { return "unused_concept_set" }

func (c UnusedConceptSet) Check(expr *cohort.CohortExpression) []Warning {
	used := make(map[int]bool)
	walk(expr, visitor{
		criterion: func(_ cohort.CriterionID, crit cohort.Criterion, _ []enclosing) {
			for _, id := range cohort.CodesetIDs(crit) {
				used[id] = true
			}
		},
		demographic: func(d cohort.DemographicCriteria) {
			for _, id := range demographicCodesets(d) {
				used[id] = true
			}
		},
	})

	var out []Warning
	for _, cs := range expr.ConceptSets {
		if used[cs.ID] {
			continue
		}
		out = append(out, Warning{
			Severity: SeverityWarning,
			Check:    c.Name(),
			Message:  fmt.Sprintf("concept set %d (%s) is not used", cs.ID, cs.Name),
		})
	}
	return out
}

// EmptyGroup reports groups without members that can never be satisfied:
// ANY and AT_LEAST with a positive count.
type EmptyGroup struct{}

func (EmptyGroup) Name() string { return "empty_group" }

func (c EmptyGroup) Check(expr *cohort.CohortExpression) []Warning {
	var out []Warning
	walk(expr, visitor{
		group: func(path string, g cohort.CriteriaGroup) {
			if g.Len() > 0 {
				return
			}
			never := g.Type == cohort.GroupAny ||
				(g.Type == cohort.GroupAtLeast && g.Count != nil && *g.Count > 0)
			if !never {
				return
			}
			out = append(out, Warning{
				Severity: SeverityWarning,
				Check:    c.Name(),
				Message:  fmt.Sprintf("%s is an empty %s group and matches no events", path, g.Type),
			})
		},
	})
	return out
}

// NestedVisitOccurrence reports visit occurrence criteria used as
// correlated criteria of another criterion. RestrictVisit usually
// expresses the intent more directly.
type NestedVisitOccurrence struct{}

func (NestedVisitOccurrence) Name() string { return "nested_visit_occurrence" }

func (c NestedVisitOccurrence) Check(expr *cohort.CohortExpression) []Warning {
	var out []Warning
	walk(expr, visitor{
		criterion: func(_ cohort.CriterionID, crit cohort.Criterion, parents []enclosing) {
			if crit.Kind() != cohort.KindVisitOccurrence || len(parents) == 0 {
				return
			}
			parent := parents[len(parents)-1]
			out = append(out, Warning{
				Severity: SeverityWarning,
				Check:    c.Name(),
				Message: fmt.Sprintf("visit occurrence criteria is nested in %s criteria at %s; consider RestrictVisit",
					parent.kind.DisplayName(), parent.path),
			})
		},
	})
	return out
}

func demographicCodesets(d cohort.DemographicCriteria) []int {
	var ids []int
	for _, sel := range []*cohort.ConceptSetSelection{d.GenderCS, d.RaceCS, d.EthnicityCS} {
		if sel != nil {
			ids = append(ids, sel.CodesetID)
		}
	}
	return ids
}
