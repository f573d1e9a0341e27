package compiler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortsql/internal/builder"
	"github.com/roach88/cohortsql/internal/cohort"
	"github.com/roach88/cohortsql/internal/render"
	"github.com/roach88/cohortsql/internal/warehouse"
)

// testDB executes compiled SQL on an in-memory warehouse.
type testDB struct {
	t   *testing.T
	ctx context.Context
	w   *warehouse.Warehouse
	sql *render.Normalizer
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()
	w, err := warehouse.Open()
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return &testDB{t: t, ctx: context.Background(), w: w, sql: render.NewNormalizer(render.DialectSQLite)}
}

func (d *testDB) load(table string, rows ...map[string]any) {
	d.t.Helper()
	require.NoError(d.t, d.w.Load(d.ctx, table, rows))
}

func (d *testDB) codeset(id int, concepts ...int) {
	d.t.Helper()
	for _, c := range concepts {
		d.load("Codesets", map[string]any{"codeset_id": id, "concept_id": c})
	}
}

func (d *testDB) prepare(sql string, bindings map[string]string) string {
	d.t.Helper()
	all := render.Merge(map[string]string{
		"cdm_database_schema": warehouse.Schema,
		IndexParameter:        "0",
	}, bindings)
	rendered, err := render.Render(sql, all)
	require.NoError(d.t, err)
	return d.sql.Normalize(rendered)
}

func (d *testDB) events(sql string) []warehouse.EventKey {
	d.t.Helper()
	events, err := d.w.Events(d.ctx, d.prepare(sql, nil))
	require.NoError(d.t, err)
	return events
}

func (d *testDB) persons(sql string) []int64 {
	d.t.Helper()
	out := []int64{}
	for _, e := range d.events(sql) {
		out = append(out, e.PersonID)
	}
	return out
}

// qualify materializes one index event on 2020-06-01 per person.
func (d *testDB) qualify(people ...int) {
	d.t.Helper()
	rows := make([]string, len(people))
	for i, p := range people {
		rows[i] = fmt.Sprintf("SELECT %d AS person_id, 1 AS event_id, '2020-06-01' AS start_date, '2020-06-01' AS end_date, "+
			"'2015-01-01' AS op_start_date, '2025-12-31' AS op_end_date, NULL AS visit_occurrence_id", p)
	}
	require.NoError(d.t, d.w.Materialize(d.ctx, "qualified_events", strings.Join(rows, "\nUNION ALL\n")))
}

func condition(id, person, concept int, date string) map[string]any {
	return map[string]any{
		"condition_occurrence_id": id,
		"person_id":               person,
		"condition_concept_id":    concept,
		"condition_start_date":    date,
	}
}

func observationPeriod(id, person int, start, end string) map[string]any {
	return map[string]any{
		"observation_period_id":         id,
		"person_id":                     person,
		"observation_period_start_date": start,
		"observation_period_end_date":   end,
	}
}

func TestE2E_GroupBooleanLaws(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.qualify(1, 2, 3)
	db.codeset(1, 100)
	db.codeset(2, 200)
	db.load("CONDITION_OCCURRENCE",
		condition(1, 1, 100, "2020-05-01"),
		condition(2, 1, 200, "2020-05-02"),
		condition(3, 2, 100, "2020-05-01"),
	)

	tests := []struct {
		name  string
		group cohort.CriteriaGroup
		empty bool
		want  []int64
	}{
		{"all", cohort.CriteriaGroup{Type: cohort.GroupAll}, false, []int64{1}},
		{"any", cohort.CriteriaGroup{Type: cohort.GroupAny}, false, []int64{1, 2}},
		{"at least 0", cohort.CriteriaGroup{Type: cohort.GroupAtLeast, Count: cohort.Ptr(0)}, false, []int64{1, 2, 3}},
		{"at least 1", cohort.CriteriaGroup{Type: cohort.GroupAtLeast, Count: cohort.Ptr(1)}, false, []int64{1, 2}},
		{"at least 2", cohort.CriteriaGroup{Type: cohort.GroupAtLeast, Count: cohort.Ptr(2)}, false, []int64{1}},
		{"at most 0", cohort.CriteriaGroup{Type: cohort.GroupAtMost, Count: cohort.Ptr(0)}, false, []int64{3}},
		{"at most 1", cohort.CriteriaGroup{Type: cohort.GroupAtMost, Count: cohort.Ptr(1)}, false, []int64{2, 3}},
		{"empty all", cohort.CriteriaGroup{Type: cohort.GroupAll}, true, []int64{1, 2, 3}},
		{"empty any", cohort.CriteriaGroup{Type: cohort.GroupAny}, true, []int64{}},
		{"empty at least 1", cohort.CriteriaGroup{Type: cohort.GroupAtLeast, Count: cohort.Ptr(1)}, true, []int64{}},
		{"empty at most 0", cohort.CriteriaGroup{Type: cohort.GroupAtMost, Count: cohort.Ptr(0)}, true, []int64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := &cohort.Tree{}
			g := tt.group
			if !tt.empty {
				g.CriteriaList = []cohort.CorrelatedID{
					conditionMember(tree, 1, cohort.CorrelatedCriteria{}),
					conditionMember(tree, 2, cohort.CorrelatedCriteria{}),
				}
			}
			id := tree.MustAddGroup(g)

			sql, err := c.GroupQuery(tree, id, "#qualified_events")
			require.NoError(t, err)
			assert.Equal(t, tt.want, db.persons(sql))
		})
	}
}

func TestE2E_NestedGroupsAndDemographics(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.qualify(1, 2, 3)
	db.codeset(1, 100)
	db.load("PERSON",
		map[string]any{"person_id": 1, "gender_concept_id": 8532, "year_of_birth": 1950},
		map[string]any{"person_id": 2, "gender_concept_id": 8507, "year_of_birth": 1990},
		map[string]any{"person_id": 3, "gender_concept_id": 8532, "year_of_birth": 2010},
	)
	db.load("CONDITION_OCCURRENCE", condition(1, 2, 100, "2020-05-01"))

	tree := &cohort.Tree{}
	inner := tree.MustAddGroup(cohort.CriteriaGroup{
		Type: cohort.GroupAny,
		DemographicCriteriaList: []cohort.DemographicCriteria{
			{Age: &cohort.NumericRange{Value: decimalOf(65), Op: cohort.OpGreaterOrEqual}},
		},
		CriteriaList: []cohort.CorrelatedID{conditionMember(tree, 1, cohort.CorrelatedCriteria{})},
	})
	top := tree.MustAddGroup(cohort.CriteriaGroup{
		Type:                    cohort.GroupAll,
		DemographicCriteriaList: []cohort.DemographicCriteria{{Age: &cohort.NumericRange{Value: decimalOf(18), Op: cohort.OpGreaterOrEqual}}},
		Groups:                  []cohort.GroupID{inner},
	})

	sql, err := c.GroupQuery(tree, top, "#qualified_events")
	require.NoError(t, err)
	// 1 is over 65, 2 has the condition, 3 is a minor.
	assert.Equal(t, []int64{1, 2}, db.persons(sql))
}

func TestE2E_WindowAnchoring(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.qualify(1, 2, 3, 4)
	db.codeset(1, 100)
	db.load("CONDITION_OCCURRENCE",
		condition(1, 1, 100, "2019-06-02"), // index - 365
		condition(2, 2, 100, "2019-06-01"), // index - 366
		condition(3, 3, 100, "2020-06-01"), // index
		condition(4, 4, 100, "2020-06-02"), // index + 1
	)

	tree := &cohort.Tree{}
	member := conditionMember(tree, 1, cohort.CorrelatedCriteria{
		StartWindow: cohort.Window{Start: cohort.Days(-365), End: cohort.Days(0)},
	})
	id := tree.MustAddGroup(cohort.CriteriaGroup{Type: cohort.GroupAll, CriteriaList: []cohort.CorrelatedID{member}})

	sql, err := c.GroupQuery(tree, id, "#qualified_events")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, db.persons(sql))
}

func TestE2E_ObservationPeriodRestriction(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.qualify(1)
	db.codeset(1, 100)
	db.load("CONDITION_OCCURRENCE", condition(1, 1, 100, "2014-12-31"))

	for _, ignore := range []bool{false, true} {
		tree := &cohort.Tree{}
		member := conditionMember(tree, 1, cohort.CorrelatedCriteria{IgnoreObservationPeriod: ignore})
		id := tree.MustAddGroup(cohort.CriteriaGroup{Type: cohort.GroupAll, CriteriaList: []cohort.CorrelatedID{member}})

		sql, err := c.GroupQuery(tree, id, "#qualified_events")
		require.NoError(t, err)
		if ignore {
			assert.Equal(t, []int64{1}, db.persons(sql))
		} else {
			assert.Empty(t, db.persons(sql))
		}
	}
}

func TestE2E_OccurrenceThreshold(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.qualify(1, 2, 3)
	db.codeset(1, 100)
	db.load("CONDITION_OCCURRENCE",
		condition(1, 1, 100, "2020-01-01"),
		condition(2, 2, 100, "2020-01-01"),
		condition(3, 2, 100, "2020-02-01"),
	)

	tests := []struct {
		name string
		occ  cohort.Occurrence
		want []int64
	}{
		{"exactly 1", cohort.Occurrence{Type: cohort.Exactly, Count: 1}, []int64{1}},
		{"exactly 0", cohort.Occurrence{Type: cohort.Exactly, Count: 0}, []int64{3}},
		{"at least 2", cohort.Occurrence{Type: cohort.AtLeast, Count: 2}, []int64{2}},
		{"at most 1", cohort.Occurrence{Type: cohort.AtMost, Count: 1}, []int64{1, 3}},
		{"exactly 1 distinct", cohort.Occurrence{Type: cohort.Exactly, Count: 1, IsDistinct: true}, []int64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := &cohort.Tree{}
			occ := tt.occ
			member := conditionMember(tree, 1, cohort.CorrelatedCriteria{Occurrence: &occ})
			id := tree.MustAddGroup(cohort.CriteriaGroup{Type: cohort.GroupAll, CriteriaList: []cohort.CorrelatedID{member}})

			sql, err := c.GroupQuery(tree, id, "#qualified_events")
			require.NoError(t, err)
			assert.Equal(t, tt.want, db.persons(sql))
		})
	}
}

func TestE2E_Negate(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.qualify(1, 2)
	db.codeset(1, 100)
	db.load("CONDITION_OCCURRENCE", condition(1, 1, 100, "2020-01-01"))

	tree := &cohort.Tree{}
	member := conditionMember(tree, 1, cohort.CorrelatedCriteria{Negate: true})
	id := tree.MustAddGroup(cohort.CriteriaGroup{Type: cohort.GroupAll, CriteriaList: []cohort.CorrelatedID{member}})

	sql, err := c.GroupQuery(tree, id, "#qualified_events")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, db.persons(sql))
}

// visitDetailFixture has a male and a female person, each with one visit
// detail in the year before their index event.
func visitDetailFixture(t *testing.T) *testDB {
	db := newTestDB(t)
	db.qualify(1, 2)
	db.load("PERSON",
		map[string]any{"person_id": 1, "gender_concept_id": 8507, "year_of_birth": 1970},
		map[string]any{"person_id": 2, "gender_concept_id": 8532, "year_of_birth": 1970},
	)
	db.load("PROVIDER",
		map[string]any{"provider_id": 5, "specialty_concept_id": 38004456},
		map[string]any{"provider_id": 6, "specialty_concept_id": 38004458},
	)
	db.load("VISIT_DETAIL",
		map[string]any{"visit_detail_id": 10, "person_id": 1, "provider_id": 5, "care_site_id": 30, "visit_detail_concept_id": 9201,
			"visit_detail_start_date": "2020-03-01", "visit_detail_end_date": "2020-03-02"},
		map[string]any{"visit_detail_id": 20, "person_id": 2, "provider_id": 6, "care_site_id": 31, "visit_detail_concept_id": 9201,
			"visit_detail_start_date": "2020-03-01", "visit_detail_end_date": "2020-03-02"},
	)
	db.load("CARE_SITE",
		map[string]any{"care_site_id": 30, "place_of_service_concept_id": 8717},
		map[string]any{"care_site_id": 31, "place_of_service_concept_id": 8756},
	)
	db.codeset(1, 8507)
	db.codeset(2, 38004456)
	db.codeset(3, 8717)
	return db
}

func TestE2E_VisitDetailCodesetPolarity(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := visitDetailFixture(t)

	query := func(vd cohort.VisitDetail) string {
		tree := &cohort.Tree{}
		crit := tree.MustAddCriterion(vd, cohort.NoGroup)
		member := tree.MustAddCorrelated(cohort.CorrelatedCriteria{
			Criteria:    crit,
			StartWindow: cohort.Window{Start: cohort.Days(-365), End: cohort.Days(0)},
			Occurrence:  &cohort.Occurrence{Type: cohort.Exactly, Count: 1},
		})
		id := tree.MustAddGroup(cohort.CriteriaGroup{Type: cohort.GroupAll, CriteriaList: []cohort.CorrelatedID{member}})
		sql, err := c.GroupQuery(tree, id, "#qualified_events")
		require.NoError(t, err)
		return sql
	}

	in := query(cohort.VisitDetail{GenderCS: &cohort.ConceptSetSelection{CodesetID: 1}})
	notIn := query(cohort.VisitDetail{GenderCS: &cohort.ConceptSetSelection{CodesetID: 1, IsExclusion: true}})
	assert.Equal(t, []int64{1}, db.persons(in))
	assert.Equal(t, []int64{2}, db.persons(notIn))

	in = query(cohort.VisitDetail{ProviderSpecialtyCS: &cohort.ConceptSetSelection{CodesetID: 2}})
	notIn = query(cohort.VisitDetail{ProviderSpecialtyCS: &cohort.ConceptSetSelection{CodesetID: 2, IsExclusion: true}})
	assert.Equal(t, []int64{1}, db.persons(in))
	assert.Equal(t, []int64{2}, db.persons(notIn))

	in = query(cohort.VisitDetail{PlaceOfServiceCS: &cohort.ConceptSetSelection{CodesetID: 3}})
	notIn = query(cohort.VisitDetail{PlaceOfServiceCS: &cohort.ConceptSetSelection{CodesetID: 3, IsExclusion: true}})
	assert.Equal(t, []int64{1}, db.persons(in))
	assert.Equal(t, []int64{2}, db.persons(notIn))
}

func TestE2E_EndWindowEventColumn(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.qualify(1)
	db.codeset(1, 100)
	row := condition(1, 1, 100, "2020-05-01")
	row["condition_end_date"] = "2020-07-01"
	db.load("CONDITION_OCCURRENCE", row)

	tests := []struct {
		name        string
		useEventEnd bool
		want        []int64
	}{
		{"event start", false, []int64{1}},
		{"event end", true, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := &cohort.Tree{}
			member := conditionMember(tree, 1, cohort.CorrelatedCriteria{
				StartWindow: cohort.Window{Start: cohort.Unbounded(), End: cohort.Unbounded()},
				EndWindow:   &cohort.Window{Start: cohort.Days(-365), End: cohort.Days(0), UseEventEnd: tt.useEventEnd},
			})
			id := tree.MustAddGroup(cohort.CriteriaGroup{Type: cohort.GroupAll, CriteriaList: []cohort.CorrelatedID{member}})

			sql, err := c.GroupQuery(tree, id, "#qualified_events")
			require.NoError(t, err)
			assert.Equal(t, tt.want, db.persons(sql))
		})
	}
}

func TestE2E_VisitAnchor(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	// Person 1's index event belongs to visit 7; person 2's has no visit.
	require.NoError(t, db.w.Materialize(db.ctx, "qualified_events",
		"SELECT 1 AS person_id, 1 AS event_id, '2020-06-01' AS start_date, '2020-06-01' AS end_date, "+
			"'2015-01-01' AS op_start_date, '2025-12-31' AS op_end_date, 7 AS visit_occurrence_id\n"+
			"UNION ALL\n"+
			"SELECT 2 AS person_id, 1 AS event_id, '2020-06-01' AS start_date, '2020-06-01' AS end_date, "+
			"'2015-01-01' AS op_start_date, '2025-12-31' AS op_end_date, NULL AS visit_occurrence_id"))
	db.load("VISIT_OCCURRENCE", map[string]any{
		"visit_occurrence_id": 7, "person_id": 1, "visit_concept_id": 9201,
		"visit_start_date": "2020-05-20", "visit_end_date": "2020-06-01",
	})
	db.codeset(1, 100)
	db.load("CONDITION_OCCURRENCE",
		condition(1, 1, 100, "2020-05-25"),
		condition(2, 2, 100, "2020-05-25"),
	)

	tests := []struct {
		name   string
		anchor cohort.WindowAnchor
		want   []int64
	}{
		{"visit start", cohort.AnchorVisit, []int64{1}},
		{"index start", cohort.AnchorIndex, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := &cohort.Tree{}
			member := conditionMember(tree, 1, cohort.CorrelatedCriteria{
				StartWindow: cohort.Window{Start: cohort.Days(0), End: cohort.Unbounded(), Anchor: tt.anchor},
			})
			id := tree.MustAddGroup(cohort.CriteriaGroup{Type: cohort.GroupAll, CriteriaList: []cohort.CorrelatedID{member}})

			sql, err := c.GroupQuery(tree, id, "#qualified_events")
			require.NoError(t, err)
			assert.Equal(t, tt.want, db.persons(sql))
		})
	}
}

func TestE2E_VersionGate(t *testing.T) {
	tree := &cohort.Tree{}
	id := tree.MustAddCriterion(cohort.CareSite{CodesetID: cohort.Ptr(1)}, cohort.NoGroup)

	_, err := newTestCompiler(t, "5.9").CriterionQuery(tree, id)
	require.Error(t, err)
	assert.True(t, builder.IsIncompatibleSchemaVersion(err))

	sql, err := newTestCompiler(t, "6.1").CriterionQuery(tree, id)
	require.NoError(t, err)

	db := newTestDB(t)
	db.codeset(1, 8717)
	db.load("CARE_SITE",
		map[string]any{"care_site_id": 1, "place_of_service_concept_id": 8717},
		map[string]any{"care_site_id": 2, "place_of_service_concept_id": 8756},
	)
	db.load("CARE_SITE_HISTORY",
		map[string]any{"care_site_history_id": 10, "person_id": 1, "care_site_id": 1, "start_date": "2020-01-01", "end_date": "2020-12-31"},
		map[string]any{"care_site_history_id": 11, "person_id": 2, "care_site_id": 2, "start_date": "2020-01-01", "end_date": "2020-12-31"},
	)
	assert.Equal(t, []warehouse.EventKey{{PersonID: 1, EventID: 10}}, db.events(sql))
}

func TestE2E_EveryKindExecutes(t *testing.T) {
	c := newTestCompiler(t, "6.1")
	db := newTestDB(t)

	for kind, crit := range map[cohort.Kind]cohort.Criterion{
		cohort.KindConditionOccurrence: cohort.ConditionOccurrence{CodesetID: cohort.Ptr(1), Ordinal: cohort.Ordinal{First: true}},
		cohort.KindConditionEra:        cohort.ConditionEra{EraLength: &cohort.NumericRange{Value: decimalOf(30), Op: cohort.OpGreaterThan}},
		cohort.KindDeviceExposure:      cohort.DeviceExposure{},
		cohort.KindDoseEra:             cohort.DoseEra{},
		cohort.KindDrugEra:             cohort.DrugEra{},
		cohort.KindDrugExposure:        cohort.DrugExposure{VisitFilter: cohort.VisitFilter{VisitType: []cohort.Concept{{ConceptID: 9201}}}},
		cohort.KindMeasurement:         cohort.Measurement{Abnormal: true},
		cohort.KindObservation:         cohort.Observation{},
		cohort.KindObservationPeriod:   cohort.ObservationPeriod{},
		cohort.KindPayerPlanPeriod:     cohort.PayerPlanPeriod{},
		cohort.KindProcedureOccurrence: cohort.ProcedureOccurrence{},
		cohort.KindSpecimen:            cohort.Specimen{},
		cohort.KindVisitOccurrence:     cohort.VisitOccurrence{PlaceOfServiceCS: &cohort.ConceptSetSelection{CodesetID: 1}},
		cohort.KindVisitDetail:         cohort.VisitDetail{},
		cohort.KindCareSite:            cohort.CareSite{CodesetID: cohort.Ptr(1)},
		cohort.KindLocationRegion:      cohort.LocationRegion{CodesetID: cohort.Ptr(1), StartDate: &cohort.DateRange{Value: "2020-01-01", Op: cohort.OpGreaterOrEqual}},
	} {
		tree := &cohort.Tree{}
		id := tree.MustAddCriterion(crit, cohort.NoGroup)
		sql, err := c.CriterionQuery(tree, id, cohort.ColumnDuration)
		require.NoError(t, err, kind)

		_, err = db.w.Events(db.ctx, db.prepare(sql, nil))
		assert.NoError(t, err, kind)
	}
}

func TestE2E_ConceptSetResolution(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.load("CONCEPT",
		map[string]any{"concept_id": 100},
		map[string]any{"concept_id": 101},
		map[string]any{"concept_id": 102, "invalid_reason": "D"},
		map[string]any{"concept_id": 103},
	)
	db.load("CONCEPT_ANCESTOR",
		map[string]any{"ancestor_concept_id": 100, "descendant_concept_id": 100},
		map[string]any{"ancestor_concept_id": 100, "descendant_concept_id": 101},
		map[string]any{"ancestor_concept_id": 100, "descendant_concept_id": 102},
		map[string]any{"ancestor_concept_id": 100, "descendant_concept_id": 103},
	)
	db.load("CONCEPT_RELATIONSHIP",
		map[string]any{"concept_id_1": 900, "concept_id_2": 100, "relationship_id": "Maps to"},
		map[string]any{"concept_id_1": 901, "concept_id_2": 100, "relationship_id": "Mapped from"},
	)

	s := &session{c: c, tree: &cohort.Tree{}}
	sql, err := s.conceptSets([]cohort.ConceptSet{
		{ID: 1, Expression: cohort.ConceptSetExpression{Items: []cohort.ConceptSetItem{
			{Concept: cohort.Concept{ConceptID: 100}, IncludeDescendants: true, IncludeMapped: true},
			{Concept: cohort.Concept{ConceptID: 103}, IsExcluded: true},
		}}},
		{ID: 2, Expression: cohort.ConceptSetExpression{Items: []cohort.ConceptSetItem{
			{Concept: cohort.Concept{ConceptID: 101}},
		}}},
		{ID: 3, Expression: cohort.ConceptSetExpression{Items: []cohort.ConceptSetItem{
			{Concept: cohort.Concept{ConceptID: 101}, IsExcluded: true},
		}}},
	})
	require.NoError(t, err)
	require.NoError(t, db.w.Exec(db.ctx, db.prepare(sql, nil)))

	var rows []struct {
		CodesetID int `db:"codeset_id"`
		ConceptID int `db:"concept_id"`
	}
	require.NoError(t, db.w.DB().Select(&rows, "SELECT codeset_id, concept_id FROM Codesets ORDER BY codeset_id, concept_id"))
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = fmt.Sprintf("%d:%d", r.CodesetID, r.ConceptID)
	}
	assert.Equal(t, []string{"1:100", "1:101", "1:900", "2:101"}, got)
}

func TestE2E_CohortEventTable(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.load("PERSON",
		map[string]any{"person_id": 1, "gender_concept_id": 8507},
		map[string]any{"person_id": 2, "gender_concept_id": 8532},
		map[string]any{"person_id": 3, "gender_concept_id": 8532},
	)
	db.load("OBSERVATION_PERIOD",
		observationPeriod(1, 1, "2019-01-01", "2021-12-31"),
		observationPeriod(2, 2, "2019-01-01", "2021-12-31"),
		observationPeriod(3, 3, "2019-01-01", "2021-12-31"),
	)
	db.load("cohort",
		map[string]any{"cohort_definition_id": 1, "subject_id": 1, "cohort_start_date": "2020-06-01", "cohort_end_date": "2020-06-30"},
		map[string]any{"cohort_definition_id": 1, "subject_id": 2, "cohort_start_date": "2020-06-01", "cohort_end_date": "2020-06-30"},
		map[string]any{"cohort_definition_id": 2, "subject_id": 3, "cohort_start_date": "2020-06-01", "cohort_end_date": "2020-06-30"},
	)

	tree := &cohort.Tree{}
	id := tree.MustAddGroup(cohort.CriteriaGroup{
		Type:                    cohort.GroupAll,
		DemographicCriteriaList: []cohort.DemographicCriteria{{Gender: []cohort.Concept{{ConceptID: 8532}}}},
	})
	sql, err := c.GroupQuery(tree, id, CohortEventTable("main.cohort", 1))
	require.NoError(t, err)
	assert.Equal(t, []warehouse.EventKey{{PersonID: 2, EventID: 1}}, db.events(sql))
}

// TestE2E_Pipeline runs every unit of a cohort in order.
func TestE2E_Pipeline(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.load("CONCEPT", map[string]any{"concept_id": 100}, map[string]any{"concept_id": 101})
	db.load("CONCEPT_ANCESTOR", map[string]any{"ancestor_concept_id": 100, "descendant_concept_id": 101})
	db.load("PERSON",
		map[string]any{"person_id": 1, "gender_concept_id": 8532},
		map[string]any{"person_id": 2, "gender_concept_id": 8507},
		map[string]any{"person_id": 3, "gender_concept_id": 8532},
		map[string]any{"person_id": 4, "gender_concept_id": 8507},
	)
	db.load("OBSERVATION_PERIOD",
		observationPeriod(1, 1, "2019-01-01", "2021-12-31"),
		observationPeriod(2, 2, "2019-01-01", "2021-12-31"),
		observationPeriod(3, 3, "2019-01-01", "2021-12-31"),
		observationPeriod(4, 4, "2019-01-01", "2020-05-10"),
	)
	db.load("CONDITION_OCCURRENCE",
		condition(1, 1, 100, "2020-01-01"),
		condition(2, 1, 101, "2020-03-01"),
		condition(3, 2, 100, "2020-02-01"),
		condition(4, 2, 100, "2020-04-01"),
		condition(5, 3, 100, "2020-05-01"),
		condition(6, 4, 100, "2020-05-01"),
		condition(7, 4, 999, "2020-05-02"),
	)
	db.load("DEATH", map[string]any{"person_id": 1, "death_date": "2020-06-01"})

	expr := sampleExpression()
	expr.PrimaryCriteria.Limit = cohort.LimitAll

	res, err := c.Compile(db.ctx, expr)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	unit := func(name string) Unit {
		u, ok := res.Unit(name)
		require.True(t, ok, name)
		return u
	}
	prepare := func(u Unit) string {
		return db.prepare(u.SQL, u.Bindings)
	}

	require.NoError(t, db.w.Exec(db.ctx, prepare(unit(UnitConceptSets))))
	require.NoError(t, db.w.Materialize(db.ctx, "qualified_events", prepare(unit(UnitPrimaryEvents))))

	all, err := db.w.Events(db.ctx, "SELECT * FROM qualified_events")
	require.NoError(t, err)
	assert.Equal(t, []warehouse.EventKey{
		{PersonID: 1, EventID: 1}, {PersonID: 1, EventID: 2},
		{PersonID: 2, EventID: 1}, {PersonID: 2, EventID: 2},
		{PersonID: 3, EventID: 1},
		{PersonID: 4, EventID: 1},
	}, all)

	additional, err := db.w.Events(db.ctx, prepare(unit(UnitAdditionalCriteria)))
	require.NoError(t, err)
	assert.Equal(t, []warehouse.EventKey{{PersonID: 1, EventID: 2}, {PersonID: 2, EventID: 2}}, additional)

	female, err := db.w.Events(db.ctx, prepare(unit(InclusionRuleUnit(0))))
	require.NoError(t, err)
	assert.Equal(t, []warehouse.EventKey{{PersonID: 1, EventID: 1}, {PersonID: 1, EventID: 2}, {PersonID: 3, EventID: 1}}, female)

	require.NoError(t, db.w.Materialize(db.ctx, "included_events", "SELECT * FROM qualified_events"))

	censored, err := db.w.Events(db.ctx, prepare(unit(UnitCensoring)))
	require.NoError(t, err)
	assert.Equal(t, []warehouse.EventKey{{PersonID: 1, EventID: 1}, {PersonID: 1, EventID: 2}}, censored)

	var ends []struct {
		PersonID int64  `db:"person_id"`
		EndDate  string `db:"end_date"`
	}
	require.NoError(t, db.w.DB().Select(&ends,
		"SELECT person_id, end_date FROM (\n"+prepare(unit(UnitEndStrategy))+"\n) T WHERE event_id = 1 ORDER BY person_id"))
	require.Len(t, ends, 4)
	assert.Equal(t, "2020-01-31", ends[0].EndDate)
	assert.Equal(t, "2020-05-31", ends[2].EndDate)
	assert.Equal(t, "2020-05-10", ends[3].EndDate, "clipped to the observation period end")
}

func TestE2E_PrimaryEventsLimitAndObservation(t *testing.T) {
	c := newTestCompiler(t, "5.4")
	db := newTestDB(t)
	db.codeset(1, 100)
	db.load("OBSERVATION_PERIOD",
		observationPeriod(1, 1, "2019-01-01", "2021-12-31"),
		observationPeriod(2, 2, "2019-01-01", "2021-12-31"),
	)
	db.load("CONDITION_OCCURRENCE",
		condition(1, 1, 100, "2020-01-10"),
		condition(2, 1, 100, "2020-03-01"),
		condition(3, 2, 100, "2019-01-15"),
	)

	tree := &cohort.Tree{}
	id := tree.MustAddCriterion(cohort.ConditionOccurrence{CodesetID: cohort.Ptr(1)}, cohort.NoGroup)
	s := &session{c: c, tree: tree}

	startDates := func(limit cohort.LimitType, prior int) []string {
		sql, err := s.primaryEvents(cohort.PrimaryCriteria{
			CriteriaList:      []cohort.CriterionID{id},
			ObservationWindow: cohort.ObservationWindow{PriorDays: prior},
			Limit:             limit,
		})
		require.NoError(t, err)
		var out []string
		require.NoError(t, db.w.DB().Select(&out,
			"SELECT start_date FROM (\n"+db.prepare(sql, nil)+"\n) P ORDER BY person_id, start_date"))
		return out
	}

	assert.Equal(t, []string{"2020-01-10", "2019-01-15"}, startDates(cohort.LimitFirst, 0))
	assert.Equal(t, []string{"2020-03-01", "2019-01-15"}, startDates(cohort.LimitLast, 0))
	assert.Equal(t, []string{"2020-01-10"}, startDates(cohort.LimitFirst, 30))
	assert.Equal(t, []string{"2020-01-10", "2020-03-01"}, startDates(cohort.LimitAll, 30))
}
