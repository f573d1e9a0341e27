package builder

import "github.com/roach88/cohortsql/internal/cohort"

// Care site and location variants select a person's history entries. They
// have no ordinal and require a concept set.

var careSite = variant[cohort.CareSite]{
	kind: cohort.KindCareSite,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.care_site_concept_id",
	},
	codeset: func(c cohort.CareSite) string {
		return CodesetExpression(c.CodesetID, "cs.place_of_service_concept_id", false)
	},
	validate: func(c cohort.CareSite) error {
		if c.CodesetID == nil {
			return NewMalformedError(cohort.KindCareSite, "codeset is required")
		}
		return nil
	},
}

var locationRegion = variant[cohort.LocationRegion]{
	kind: cohort.KindLocationRegion,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.region_concept_id",
	},
	codeset: func(c cohort.LocationRegion) string {
		return CodesetExpression(c.CodesetID, "l.region_concept_id", false)
	},
	validate: func(c cohort.LocationRegion) error {
		if c.CodesetID == nil {
			return NewMalformedError(cohort.KindLocationRegion, "codeset is required")
		}
		return nil
	},
	filter: func(c cohort.LocationRegion, f *filters) {
		f.date("C.start_date", c.StartDate)
		f.date("C.end_date", c.EndDate)
	},
}
