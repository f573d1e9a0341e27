package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortsql/internal/cohort"
)

// newExpression has concept sets 1 and 2 and a primary condition on set 1.
func newExpression() *cohort.CohortExpression {
	expr := &cohort.CohortExpression{
		ConceptSets: []cohort.ConceptSet{{ID: 1, Name: "diabetes"}, {ID: 2, Name: "metformin"}},
	}
	id := expr.MustAddCriterion(cohort.ConditionOccurrence{CodesetID: cohort.Ptr(1)}, cohort.NoGroup)
	expr.PrimaryCriteria.CriteriaList = []cohort.CriterionID{id}
	return expr
}

func member(expr *cohort.CohortExpression, c cohort.Criterion, nested cohort.GroupID) cohort.CorrelatedID {
	id := expr.MustAddCriterion(c, nested)
	return expr.MustAddCorrelated(cohort.CorrelatedCriteria{Criteria: id})
}

func TestRun_Clean(t *testing.T) {
	expr := newExpression()
	m := member(expr, cohort.DrugExposure{CodesetID: cohort.Ptr(2)}, cohort.NoGroup)
	expr.AdditionalCriteria = expr.MustAddGroup(cohort.CriteriaGroup{Type: cohort.GroupAll, CriteriaList: []cohort.CorrelatedID{m}})

	warnings := Run(expr)
	assert.Empty(t, warnings)
	assert.NotNil(t, warnings)
	assert.False(t, HasCritical(warnings))
}

func TestRun_NilExpression(t *testing.T) {
	assert.Empty(t, Run(nil))
}

func TestUndefinedConceptSet(t *testing.T) {
	expr := newExpression()
	m1 := member(expr, cohort.DrugExposure{CodesetID: cohort.Ptr(7), RouteConceptCS: &cohort.ConceptSetSelection{CodesetID: 7}}, cohort.NoGroup)
	expr.AdditionalCriteria = expr.MustAddGroup(cohort.CriteriaGroup{
		Type:                    cohort.GroupAll,
		CriteriaList:            []cohort.CorrelatedID{m1},
		DemographicCriteriaList: []cohort.DemographicCriteria{{GenderCS: &cohort.ConceptSetSelection{CodesetID: 9, IsExclusion: true}}},
	})

	warnings := UndefinedConceptSet{}.Check(expr)
	require.Len(t, warnings, 2)
	assert.Equal(t, SeverityCritical, warnings[0].Severity)
	assert.Equal(t, "undefined_concept_set", warnings[0].Check)
	assert.Equal(t, "drug exposure criteria references undefined concept set 7", warnings[0].Message)
	assert.Equal(t, "demographic criteria references undefined concept set 9", warnings[1].Message)
	assert.True(t, HasCritical(warnings))
}

func TestUnusedConceptSet(t *testing.T) {
	warnings := UnusedConceptSet{}.Check(newExpression())
	require.Len(t, warnings, 1)
	assert.Equal(t, SeverityWarning, warnings[0].Severity)
	assert.Equal(t, "concept set 2 (metformin) is not used", warnings[0].Message)
}

func TestUnusedConceptSet_SeesCensoringAndRules(t *testing.T) {
	expr := newExpression()
	censor := expr.MustAddCriterion(cohort.DrugEra{CodesetID: cohort.Ptr(2)}, cohort.NoGroup)
	expr.CensoringCriteria = []cohort.CriterionID{censor}
	assert.Empty(t, UnusedConceptSet{}.Check(expr))
}

func TestEmptyGroup(t *testing.T) {
	tests := []struct {
		name  string
		group cohort.CriteriaGroup
		warn  bool
	}{
		{"all", cohort.CriteriaGroup{Type: cohort.GroupAll}, false},
		{"any", cohort.CriteriaGroup{Type: cohort.GroupAny}, true},
		{"at least 0", cohort.CriteriaGroup{Type: cohort.GroupAtLeast, Count: cohort.Ptr(0)}, false},
		{"at least 2", cohort.CriteriaGroup{Type: cohort.GroupAtLeast, Count: cohort.Ptr(2)}, true},
		{"at most 1", cohort.CriteriaGroup{Type: cohort.GroupAtMost, Count: cohort.Ptr(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := newExpression()
			rule := expr.MustAddGroup(tt.group)
			expr.InclusionRules = []cohort.InclusionRule{{Name: "r", Expression: rule}}

			warnings := EmptyGroup{}.Check(expr)
			if !tt.warn {
				assert.Empty(t, warnings)
				return
			}
			require.Len(t, warnings, 1)
			assert.Contains(t, warnings[0].Message, "inclusion rule 0 (r)")
			assert.Contains(t, warnings[0].Message, string(tt.group.Type))
		})
	}
}

func TestEmptyGroup_Nested(t *testing.T) {
	expr := newExpression()
	inner := expr.MustAddGroup(cohort.CriteriaGroup{Type: cohort.GroupAny})
	m := member(expr, cohort.ConditionOccurrence{CodesetID: cohort.Ptr(1)}, cohort.NoGroup)
	expr.AdditionalCriteria = expr.MustAddGroup(cohort.CriteriaGroup{
		Type:         cohort.GroupAll,
		CriteriaList: []cohort.CorrelatedID{m},
		Groups:       []cohort.GroupID{inner},
	})

	warnings := EmptyGroup{}.Check(expr)
	require.Len(t, warnings, 1)
	assert.Equal(t, "additional criteria group 0 is an empty ANY group and matches no events", warnings[0].Message)
}

func TestNestedVisitOccurrence(t *testing.T) {
	expr := newExpression()

	// A visit directly in the additional criteria is fine.
	direct := member(expr, cohort.VisitOccurrence{}, cohort.NoGroup)

	// A visit inside a drug exposure's correlated criteria is not.
	visit := member(expr, cohort.VisitOccurrence{}, cohort.NoGroup)
	nested := expr.MustAddGroup(cohort.CriteriaGroup{Type: cohort.GroupAll, CriteriaList: []cohort.CorrelatedID{visit}})
	drug := member(expr, cohort.DrugExposure{CodesetID: cohort.Ptr(2)}, nested)

	expr.AdditionalCriteria = expr.MustAddGroup(cohort.CriteriaGroup{
		Type:         cohort.GroupAny,
		CriteriaList: []cohort.CorrelatedID{direct, drug},
	})

	warnings := NestedVisitOccurrence{}.Check(expr)
	require.Len(t, warnings, 1)
	assert.Equal(t, "visit occurrence criteria is nested in drug exposure criteria at additional criteria member 1; consider RestrictVisit",
		warnings[0].Message)
}

func TestRun_OrdersBySeverity(t *testing.T) {
	expr := newExpression()
	bad := expr.MustAddCriterion(cohort.Death{CodesetID: cohort.Ptr(42)}, cohort.NoGroup)
	expr.CensoringCriteria = []cohort.CriterionID{bad}

	warnings := Run(expr, UnusedConceptSet{}, UndefinedConceptSet{})
	require.Len(t, warnings, 2)
	assert.Equal(t, SeverityCritical, warnings[0].Severity)
	assert.Equal(t, SeverityWarning, warnings[1].Severity)
	assert.Equal(t, "[CRITICAL] undefined_concept_set: death criteria references undefined concept set 42", warnings[0].String())
}
