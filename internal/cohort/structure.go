package cohort

// WindowBound is one side of a temporal window. The offset in days is
// Days*Coeff; a nil Days leaves that side of the window open.
type WindowBound struct {
	Days  *int `json:"Days,omitempty"`
	Coeff int  `json:"Coeff"`
}

// Offset returns the signed day offset and whether the bound is set.
// A zero Coeff counts as +1.
func (b WindowBound) Offset() (int, bool) {
	if b.Days == nil {
		return 0, false
	}
	coeff := b.Coeff
	if coeff == 0 {
		coeff = 1
	}
	return *b.Days * coeff, true
}

// Days builds a bound at a signed day offset from the anchor.
func Days(offset int) WindowBound {
	if offset < 0 {
		return WindowBound{Days: Ptr(-offset), Coeff: -1}
	}
	return WindowBound{Days: Ptr(offset), Coeff: 1}
}

// Unbounded builds an open window side.
func Unbounded() WindowBound {
	return WindowBound{}
}

// WindowAnchor selects the dates a window is measured from.
type WindowAnchor string

const (
	// AnchorIndex measures from the index event (the default).
	AnchorIndex WindowAnchor = "index"
	// AnchorVisit measures from the visit the index event belongs to.
	AnchorVisit WindowAnchor = "visit"
)

// Window is a day-offset range relative to an anchor date. Both bounds are
// inclusive. UseIndexEnd measures from the anchor's end date instead of its
// start date; UseEventEnd compares the correlated event's end date instead
// of its start date.
type Window struct {
	Start       WindowBound  `json:"Start"`
	End         WindowBound  `json:"End"`
	UseIndexEnd bool         `json:"UseIndexEnd,omitempty"`
	UseEventEnd bool         `json:"UseEventEnd,omitempty"`
	Anchor      WindowAnchor `json:"Anchor,omitempty"`
}

// OccurrenceType is the comparison applied to a correlated event count.
type OccurrenceType int

const (
	Exactly OccurrenceType = 0
	AtMost  OccurrenceType = 1
	AtLeast OccurrenceType = 2
)

// Occurrence is a count requirement on correlated events. With IsDistinct
// the count is over distinct values of CountColumn (DOMAIN_CONCEPT when
// unset).
type Occurrence struct {
	Type        OccurrenceType `json:"Type"`
	Count       int            `json:"Count"`
	IsDistinct  bool           `json:"IsDistinct,omitempty"`
	CountColumn CriteriaColumn `json:"CountColumn,omitempty"`
}

// DefaultOccurrence is the requirement used when none is given: at least one.
func DefaultOccurrence() Occurrence {
	return Occurrence{Type: AtLeast, Count: 1}
}

// AdmitsZero reports whether an index event with no correlated events
// satisfies the requirement.
func (o Occurrence) AdmitsZero() bool {
	switch o.Type {
	case AtMost:
		return true
	default:
		return o.Count == 0
	}
}

// CorrelatedCriteria relates a criterion to the index event through windows
// and an occurrence count.
type CorrelatedCriteria struct {
	Criteria                CriterionID `json:"-"`
	StartWindow             Window      `json:"StartWindow"`
	EndWindow               *Window     `json:"EndWindow,omitempty"`
	Occurrence              *Occurrence `json:"Occurrence,omitempty"`
	RestrictVisit           bool        `json:"RestrictVisit,omitempty"`
	IgnoreObservationPeriod bool        `json:"IgnoreObservationPeriod,omitempty"`
	// Negate keeps the index events that do NOT satisfy the member.
	Negate bool `json:"Negate,omitempty"`
}

// DemographicCriteria filters index events by person attributes.
type DemographicCriteria struct {
	Age                 *NumericRange        `json:"Age,omitempty"`
	Gender              []Concept            `json:"Gender,omitempty"`
	GenderCS            *ConceptSetSelection `json:"GenderCS,omitempty"`
	Race                []Concept            `json:"Race,omitempty"`
	RaceCS              *ConceptSetSelection `json:"RaceCS,omitempty"`
	Ethnicity           []Concept            `json:"Ethnicity,omitempty"`
	EthnicityCS         *ConceptSetSelection `json:"EthnicityCS,omitempty"`
	OccurrenceStartDate *DateRange           `json:"OccurrenceStartDate,omitempty"`
	OccurrenceEndDate   *DateRange           `json:"OccurrenceEndDate,omitempty"`
}

// GroupType is the boolean combinator of a CriteriaGroup.
type GroupType string

const (
	GroupAll     GroupType = "ALL"
	GroupAny     GroupType = "ANY"
	GroupAtLeast GroupType = "AT_LEAST"
	GroupAtMost  GroupType = "AT_MOST"
)

// CriteriaGroup combines correlated criteria, demographic criteria and
// nested groups. Count is required for AT_LEAST and AT_MOST.
type CriteriaGroup struct {
	Type                    GroupType             `json:"Type"`
	Count                   *int                  `json:"Count,omitempty"`
	CriteriaList            []CorrelatedID        `json:"-"`
	DemographicCriteriaList []DemographicCriteria `json:"DemographicCriteriaList,omitempty"`
	Groups                  []GroupID             `json:"-"`
}

// Len returns the number of members.
func (g CriteriaGroup) Len() int {
	return len(g.CriteriaList) + len(g.DemographicCriteriaList) + len(g.Groups)
}
