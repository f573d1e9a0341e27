package cohort

// CohortExpression is a complete cohort definition. The embedded Tree owns
// every criterion and group the other fields reference.
type CohortExpression struct {
	Tree

	Title              string
	ConceptSets        []ConceptSet
	PrimaryCriteria    PrimaryCriteria
	AdditionalCriteria GroupID
	InclusionRules     []InclusionRule
	CensoringCriteria  []CriterionID
	EndStrategy        *EndStrategy
}

// ConceptSet is a named concept-set definition.
type ConceptSet struct {
	ID         int                  `json:"id"`
	Name       string               `json:"name"`
	Expression ConceptSetExpression `json:"expression"`
}

// ConceptSetExpression lists the items that make up a concept set.
type ConceptSetExpression struct {
	Items []ConceptSetItem `json:"items"`
}

// ConceptSetItem includes or excludes a concept, optionally with its
// descendants and the concepts mapped to it.
type ConceptSetItem struct {
	Concept            Concept `json:"concept"`
	IsExcluded         bool    `json:"isExcluded"`
	IncludeDescendants bool    `json:"includeDescendants"`
	IncludeMapped      bool    `json:"includeMapped"`
}

// LimitType selects which qualifying events per person are kept.
type LimitType string

const (
	LimitAll   LimitType = "All"
	LimitFirst LimitType = "First"
	LimitLast  LimitType = "Last"
)

// ObservationWindow is the continuous observation required before and after
// a primary event.
type ObservationWindow struct {
	PriorDays int `json:"PriorDays"`
	PostDays  int `json:"PostDays"`
}

// PrimaryCriteria defines the index events of the cohort.
type PrimaryCriteria struct {
	CriteriaList      []CriterionID
	ObservationWindow ObservationWindow
	Limit             LimitType
}

// InclusionRule is a named group every cohort member must satisfy.
type InclusionRule struct {
	Name        string
	Description string
	Expression  GroupID
}

// DateField names the index event date an end strategy offsets from.
type DateField string

const (
	DateFieldStart DateField = "StartDate"
	DateFieldEnd   DateField = "EndDate"
)

// DateOffsetStrategy ends cohort membership a fixed number of days after
// the index event.
type DateOffsetStrategy struct {
	DateField DateField `json:"DateField"`
	Offset    int       `json:"Offset"`
}

// EndStrategy determines the cohort end date of each member.
type EndStrategy struct {
	DateOffset *DateOffsetStrategy `json:"DateOffset,omitempty"`
}
