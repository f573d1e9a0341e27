package check

import (
	"fmt"

	"github.com/roach88/cohortsql/internal/cohort"
)

// visitor receives the nodes reachable from an expression's roots. Nil
// callbacks are skipped.
type visitor struct {
	// parents lists the criteria whose correlated groups enclose the
	// criterion, outermost first.
	criterion   func(id cohort.CriterionID, crit cohort.Criterion, parents []enclosing)
	group       func(path string, g cohort.CriteriaGroup)
	demographic func(d cohort.DemographicCriteria)
}

// enclosing is a criterion that owns a correlated group, and where it sits.
type enclosing struct {
	kind cohort.Kind
	path string
}

type walker struct {
	tree *cohort.Tree
	v    visitor
}

// walk visits primary criteria, additional criteria, inclusion rules and
// censoring criteria in that order. A node shared by several parents is
// visited once per reference.
func walk(expr *cohort.CohortExpression, v visitor) {
	w := &walker{tree: &expr.Tree, v: v}
	for i, id := range expr.PrimaryCriteria.CriteriaList {
		w.criterion(id, fmt.Sprintf("primary criteria %d", i), nil)
	}
	if expr.AdditionalCriteria != cohort.NoGroup {
		w.group(expr.AdditionalCriteria, "additional criteria", nil)
	}
	for i, rule := range expr.InclusionRules {
		if rule.Expression != cohort.NoGroup {
			w.group(rule.Expression, fmt.Sprintf("inclusion rule %d (%s)", i, rule.Name), nil)
		}
	}
	for i, id := range expr.CensoringCriteria {
		w.criterion(id, fmt.Sprintf("censoring criteria %d", i), nil)
	}
}

func (w *walker) criterion(id cohort.CriterionID, path string, parents []enclosing) {
	crit, nested, ok := w.tree.Criterion(id)
	if !ok {
		return
	}
	if w.v.criterion != nil {
		w.v.criterion(id, crit, parents)
	}
	if nested != cohort.NoGroup {
		inner := append(append([]enclosing(nil), parents...), enclosing{kind: crit.Kind(), path: path})
		w.group(nested, path+" correlated criteria", inner)
	}
}

func (w *walker) group(id cohort.GroupID, path string, parents []enclosing) {
	g, ok := w.tree.Group(id)
	if !ok {
		return
	}
	if w.v.group != nil {
		w.v.group(path, g)
	}
	for i, cid := range g.CriteriaList {
		cc, ok := w.tree.Correlated(cid)
		if !ok {
			continue
		}
		w.criterion(cc.Criteria, fmt.Sprintf("%s member %d", path, i), parents)
	}
	if w.v.demographic != nil {
		for _, d := range g.DemographicCriteriaList {
			w.v.demographic(d)
		}
	}
	for i, gid := range g.Groups {
		w.group(gid, fmt.Sprintf("%s group %d", path, i), parents)
	}
}
