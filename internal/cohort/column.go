package cohort

// CriteriaColumn names a logical output column an enclosing query may request
// from a criterion query beyond the fixed minimal set.
type CriteriaColumn string

const (
	ColumnStartDate      CriteriaColumn = "START_DATE"
	ColumnEndDate        CriteriaColumn = "END_DATE"
	ColumnVisitID        CriteriaColumn = "VISIT_ID"
	ColumnVisitDetailID  CriteriaColumn = "VISIT_DETAIL_ID"
	ColumnDomainConcept  CriteriaColumn = "DOMAIN_CONCEPT"
	ColumnDuration       CriteriaColumn = "DURATION"
	ColumnQuantity       CriteriaColumn = "QUANTITY"
	ColumnDaysSupply     CriteriaColumn = "DAYS_SUPPLY"
	ColumnRefills        CriteriaColumn = "REFILLS"
	ColumnValueAsNumber  CriteriaColumn = "VALUE_AS_NUMBER"
	ColumnUnit           CriteriaColumn = "UNIT"
	ColumnRangeLow       CriteriaColumn = "RANGE_LOW"
	ColumnRangeHigh      CriteriaColumn = "RANGE_HIGH"
	ColumnEraOccurrences CriteriaColumn = "ERA_OCCURRENCES"
	ColumnGapDays        CriteriaColumn = "GAP_DAYS"
)

var columnAliases = map[CriteriaColumn]string{
	ColumnStartDate:      "start_date",
	ColumnEndDate:        "end_date",
	ColumnVisitID:        "visit_occurrence_id",
	ColumnVisitDetailID:  "visit_detail_id",
	ColumnDomainConcept:  "domain_concept_id",
	ColumnDuration:       "duration",
	ColumnQuantity:       "quantity",
	ColumnDaysSupply:     "days_supply",
	ColumnRefills:        "refills",
	ColumnValueAsNumber:  "value_as_number",
	ColumnUnit:           "unit_concept_id",
	ColumnRangeLow:       "range_low",
	ColumnRangeHigh:      "range_high",
	ColumnEraOccurrences: "era_occurrences",
	ColumnGapDays:        "gap_days",
}

// Alias returns the SQL column alias the column is exposed under.
// Unknown columns return "".
func (c CriteriaColumn) Alias() string {
	return columnAliases[c]
}

// Valid reports whether c is a known column.
func (c CriteriaColumn) Valid() bool {
	_, ok := columnAliases[c]
	return ok
}
