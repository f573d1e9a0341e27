package builder

import (
	"fmt"
	"strings"

	"github.com/roach88/cohortsql/internal/cohort"
)

// CodesetTable is the shared table holding concept-set membership.
const CodesetTable = "#Codesets"

// alwaysTrue is the predicate used when there is nothing to test.
const alwaysTrue = "(1 = 1)"

// CodesetExpression returns the membership predicate of column against
// concept set codesetID. With exclusion the predicate selects values NOT in
// the set. A nil codesetID yields a constant-true predicate.
func CodesetExpression(codesetID *int, column string, exclusion bool) string {
	if codesetID == nil {
		return alwaysTrue
	}
	op := "IN"
	if exclusion {
		op = "NOT IN"
	}
	return fmt.Sprintf("(%s %s (SELECT concept_id FROM %s WHERE codeset_id = %d))", column, op, CodesetTable, *codesetID)
}

// SelectionExpression is CodesetExpression with the polarity carried by the
// selection.
func SelectionExpression(column string, sel cohort.ConceptSetSelection) string {
	return CodesetExpression(&sel.CodesetID, column, sel.IsExclusion)
}

// codesetWithSource tests the standard concept column and, when given, the
// source concept column. Both must match.
func codesetWithSource(codesetID *int, column string, sourceID *int, sourceColumn string) string {
	var parts []string
	if codesetID != nil {
		parts = append(parts, CodesetExpression(codesetID, column, false))
	}
	if sourceID != nil {
		parts = append(parts, CodesetExpression(sourceID, sourceColumn, false))
	}
	if len(parts) == 0 {
		return alwaysTrue
	}
	return strings.Join(parts, " AND ")
}
