package cohort

import "github.com/shopspring/decimal"

// Concept is a vocabulary concept reference.
type Concept struct {
	ConceptID     int64  `json:"CONCEPT_ID"`
	ConceptName   string `json:"CONCEPT_NAME,omitempty"`
	ConceptCode   string `json:"CONCEPT_CODE,omitempty"`
	DomainID      string `json:"DOMAIN_ID,omitempty"`
	VocabularyID  string `json:"VOCABULARY_ID,omitempty"`
	InvalidReason string `json:"INVALID_REASON,omitempty"`
}

// ConceptSetSelection references a concept set and the polarity of the
// membership test. IsExclusion selects values NOT in the set.
type ConceptSetSelection struct {
	CodesetID   int  `json:"CodesetId"`
	IsExclusion bool `json:"IsExclusion"`
}

// RangeOp is a comparison operator of a NumericRange or DateRange.
type RangeOp string

const (
	OpLessThan       RangeOp = "lt"
	OpLessOrEqual    RangeOp = "lte"
	OpEqual          RangeOp = "eq"
	OpNotEqual       RangeOp = "!eq"
	OpGreaterThan    RangeOp = "gt"
	OpGreaterOrEqual RangeOp = "gte"
	OpBetween        RangeOp = "bt"
	OpNotBetween     RangeOp = "!bt"
)

// Valid reports whether op is a known operator.
func (op RangeOp) Valid() bool {
	switch op {
	case OpLessThan, OpLessOrEqual, OpEqual, OpNotEqual,
		OpGreaterThan, OpGreaterOrEqual, OpBetween, OpNotBetween:
		return true
	}
	return false
}

// IsBetween reports whether op needs an Extent.
func (op RangeOp) IsBetween() bool {
	return op == OpBetween || op == OpNotBetween
}

// NumericRange filters a numeric column. Extent is required for the
// between operators.
type NumericRange struct {
	Value  decimal.Decimal  `json:"Value"`
	Extent *decimal.Decimal `json:"Extent,omitempty"`
	Op     RangeOp          `json:"Op"`
}

// DateRange filters a date column. Value and Extent are ISO dates
// (YYYY-MM-DD).
type DateRange struct {
	Value  string  `json:"Value"`
	Extent string  `json:"Extent,omitempty"`
	Op     RangeOp `json:"Op"`
}

// Ordinal restricts a criterion to the first or nth event per person,
// ordered by event date. Nth takes precedence over First.
type Ordinal struct {
	First bool `json:"First,omitempty"`
	Nth   int  `json:"Nth,omitempty"`
}

// Rank returns the requested 1-based position, or 0 when every event is kept.
func (o Ordinal) Rank() int {
	if o.Nth > 0 {
		return o.Nth
	}
	if o.First {
		return 1
	}
	return 0
}

// GenderFilter restricts events by the person's gender.
type GenderFilter struct {
	Gender   []Concept            `json:"Gender,omitempty"`
	GenderCS *ConceptSetSelection `json:"GenderCS,omitempty"`
}

// PersonFilter restricts events by attributes of the person at event start.
type PersonFilter struct {
	Age *NumericRange `json:"Age,omitempty"`
	GenderFilter
}

// EraAgeFilter is the person filter of era-like variants, where age can be
// measured at either end of the era.
type EraAgeFilter struct {
	AgeAtStart *NumericRange `json:"AgeAtStart,omitempty"`
	AgeAtEnd   *NumericRange `json:"AgeAtEnd,omitempty"`
	GenderFilter
}

// ProviderFilter restricts events by the specialty of the recording provider.
type ProviderFilter struct {
	ProviderSpecialty   []Concept            `json:"ProviderSpecialty,omitempty"`
	ProviderSpecialtyCS *ConceptSetSelection `json:"ProviderSpecialtyCS,omitempty"`
}

// VisitFilter restricts events by the concept of the visit they belong to.
type VisitFilter struct {
	VisitType   []Concept            `json:"VisitType,omitempty"`
	VisitTypeCS *ConceptSetSelection `json:"VisitTypeCS,omitempty"`
}

// Ptr returns a pointer to v. Handy for optional fields in literals.
func Ptr[T any](v T) *T {
	return &v
}
