package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/cohortsql/internal/builder"
	"github.com/roach88/cohortsql/internal/cohort"
	"github.com/roach88/cohortsql/internal/sqltmpl"
)

// mapsTo is the relationship from source concepts to standard concepts.
var mapsTo = sqltmpl.QuoteString("Maps to")

// conceptSets fills #Codesets with the resolved members of every set.
func (s *session) conceptSets(sets []cohort.ConceptSet) (string, error) {
	seen := make(map[int]bool, len(sets))
	parts := make([]string, 0, len(sets))
	for _, cs := range sets {
		if seen[cs.ID] {
			return "", malformed("concept set %d is defined twice", cs.ID)
		}
		seen[cs.ID] = true

		q, err := s.conceptSetQuery(cs)
		if err != nil {
			return "", fmt.Errorf("concept set %d: %w", cs.ID, err)
		}
		parts = append(parts, q)
	}
	return fmt.Sprintf("INSERT INTO %s (codeset_id, concept_id)\n%s", builder.CodesetTable, strings.Join(parts, unionAll)), nil
}

// conceptSetQuery selects the members of one set: the included items with
// their descendants and mapped concepts, minus the excluded ones.
func (s *session) conceptSetQuery(cs cohort.ConceptSet) (string, error) {
	var include, exclude []cohort.ConceptSetItem
	for _, item := range cs.Expression.Items {
		if item.IsExcluded {
			exclude = append(exclude, item)
		} else {
			include = append(include, item)
		}
	}

	includeQuery := "SELECT concept_id FROM @cdm_database_schema.CONCEPT WHERE 1 = 0"
	if len(include) > 0 {
		includeQuery = conceptItemsQuery(include)
	}
	var excludeClause []string
	if len(exclude) > 0 {
		excludeClause = append(excludeClause, fmt.Sprintf(
			"  LEFT JOIN (\n%s\n  ) E ON I.concept_id = E.concept_id\n  WHERE E.concept_id IS NULL",
			conceptItemsQuery(exclude)))
	}

	return s.c.tmpl.conceptSet.Fill(sqltmpl.Values{
		"codesetId":     {strconv.Itoa(cs.ID)},
		"includeQuery":  {includeQuery},
		"excludeClause": excludeClause,
	})
}

// conceptItemsQuery resolves items to concept IDs. Descendants come from
// CONCEPT_ANCESTOR and only valid concepts are kept; mapped concepts are
// the sources with a valid 'Maps to' relationship onto an item (or onto a
// descendant, when descendants are included).
func conceptItemsQuery(items []cohort.ConceptSetItem) string {
	var all, descendants, mapped, mappedDescendants []string
	for _, item := range items {
		id := strconv.FormatInt(item.Concept.ConceptID, 10)
		all = append(all, id)
		if item.IncludeDescendants {
			descendants = append(descendants, id)
		}
		if item.IncludeMapped {
			mapped = append(mapped, id)
			if item.IncludeDescendants {
				mappedDescendants = append(mappedDescendants, id)
			}
		}
	}

	parts := []string{fmt.Sprintf(
		"SELECT concept_id FROM @cdm_database_schema.CONCEPT WHERE concept_id IN (%s)",
		strings.Join(all, ","))}
	if len(descendants) > 0 {
		parts = append(parts, fmt.Sprintf(
			"SELECT c.concept_id FROM @cdm_database_schema.CONCEPT c\n"+
				"JOIN @cdm_database_schema.CONCEPT_ANCESTOR ca ON c.concept_id = ca.descendant_concept_id\n"+
				"WHERE ca.ancestor_concept_id IN (%s) AND c.invalid_reason IS NULL",
			strings.Join(descendants, ",")))
	}
	if len(mapped) > 0 {
		parts = append(parts, fmt.Sprintf(
			"SELECT cr.concept_id_1 AS concept_id FROM @cdm_database_schema.CONCEPT_RELATIONSHIP cr\n"+
				"WHERE cr.concept_id_2 IN (%s) AND cr.relationship_id = %s AND cr.invalid_reason IS NULL",
			strings.Join(mapped, ","), mapsTo))
	}
	if len(mappedDescendants) > 0 {
		parts = append(parts, fmt.Sprintf(
			"SELECT cr.concept_id_1 AS concept_id FROM @cdm_database_schema.CONCEPT_RELATIONSHIP cr\n"+
				"JOIN @cdm_database_schema.CONCEPT_ANCESTOR ca ON cr.concept_id_2 = ca.descendant_concept_id\n"+
				"WHERE ca.ancestor_concept_id IN (%s) AND cr.relationship_id = %s AND cr.invalid_reason IS NULL",
			strings.Join(mappedDescendants, ","), mapsTo))
	}
	return strings.Join(parts, "\nUNION\n")
}
