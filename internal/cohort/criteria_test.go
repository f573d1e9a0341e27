package cohort

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each variant must report the kind it is registered under.
func TestCriterion_KindMatchesVariant(t *testing.T) {
	variants := []Criterion{
		ConditionOccurrence{}, ConditionEra{}, Death{}, DeviceExposure{},
		DoseEra{}, DrugEra{}, DrugExposure{}, Measurement{}, Observation{},
		ObservationPeriod{}, PayerPlanPeriod{}, ProcedureOccurrence{},
		Specimen{}, VisitOccurrence{}, VisitDetail{}, CareSite{}, LocationRegion{},
	}
	require.Len(t, variants, len(AllKinds()))

	got := make(map[Kind]bool)
	for _, v := range variants {
		got[v.Kind()] = true
	}
	for _, k := range AllKinds() {
		assert.True(t, got[k], "no variant for %s", k)
	}
}

func TestCodesetIDs(t *testing.T) {
	c := ConditionOccurrence{
		CodesetID:              Ptr(1),
		ConditionTypeCS:        &ConceptSetSelection{CodesetID: 2},
		ConditionSourceConcept: Ptr(3),
		PersonFilter: PersonFilter{
			GenderFilter: GenderFilter{GenderCS: &ConceptSetSelection{CodesetID: 4, IsExclusion: true}},
		},
		VisitFilter: VisitFilter{VisitTypeCS: &ConceptSetSelection{CodesetID: 5}},
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, CodesetIDs(c))
}

func TestCodesetIDs_Empty(t *testing.T) {
	assert.Empty(t, CodesetIDs(ObservationPeriod{}))
	assert.Nil(t, CodesetIDs(nil))
}

func TestCriterion_DocumentShape(t *testing.T) {
	doc := `{
		"CodesetId": 7,
		"First": true,
		"OccurrenceStartDate": {"Value": "2020-01-01", "Op": "gt"},
		"Age": {"Value": 18, "Op": "gte"},
		"GenderCS": {"CodesetId": 2, "IsExclusion": false}
	}`
	var c ConditionOccurrence
	require.NoError(t, json.Unmarshal([]byte(doc), &c))

	require.NotNil(t, c.CodesetID)
	assert.Equal(t, 7, *c.CodesetID)
	assert.Equal(t, 1, c.Rank())
	assert.Equal(t, OpGreaterThan, c.OccurrenceStartDate.Op)
	require.NotNil(t, c.Age)
	assert.True(t, c.Age.Value.Equal(decimal.NewFromInt(18)))
	require.NotNil(t, c.GenderCS)
	assert.Equal(t, 2, c.GenderCS.CodesetID)
}

func TestOrdinal_Rank(t *testing.T) {
	assert.Equal(t, 0, Ordinal{}.Rank())
	assert.Equal(t, 1, Ordinal{First: true}.Rank())
	assert.Equal(t, 3, Ordinal{First: true, Nth: 3}.Rank())
}

func TestRangeOp(t *testing.T) {
	assert.True(t, OpNotBetween.Valid())
	assert.True(t, OpNotBetween.IsBetween())
	assert.False(t, OpEqual.IsBetween())
	assert.False(t, RangeOp("between").Valid())
}
