package builder

import "github.com/roach88/cohortsql/internal/cohort"

var visitOccurrence = variant[cohort.VisitOccurrence]{
	kind:  cohort.KindVisitOccurrence,
	visit: true,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.visit_concept_id",
	},
	ordinal: &ordinal{partition: "vo.person_id", order: "vo.visit_start_date, vo.visit_occurrence_id"},
	codeset: func(c cohort.VisitOccurrence) string {
		return codesetWithSource(c.CodesetID, "vo.visit_concept_id", c.VisitSourceConcept, "vo.visit_source_concept_id")
	},
	filter: func(c cohort.VisitOccurrence, f *filters) {
		f.date("C.start_date", c.OccurrenceStartDate)
		f.date("C.end_date", c.OccurrenceEndDate)
		f.concepts("C.visit_type_concept_id", c.VisitType, c.VisitTypeExclude)
		f.codeset("C.visit_type_concept_id", c.VisitTypeCS)
		f.numeric(duration, c.VisitLength)
		f.placeOfService(c.PlaceOfServiceCS)
		f.person(c.PersonFilter)
		f.provider(c.ProviderFilter)
	},
}

var visitDetail = variant[cohort.VisitDetail]{
	kind:  cohort.KindVisitDetail,
	visit: true,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.visit_detail_concept_id",
		cohort.ColumnVisitDetailID: "C.visit_detail_id",
	},
	ordinal: &ordinal{partition: "vd.person_id", order: "vd.visit_detail_start_date, vd.visit_detail_id"},
	codeset: func(c cohort.VisitDetail) string {
		return codesetWithSource(c.CodesetID, "vd.visit_detail_concept_id", c.VisitDetailSourceConcept, "vd.visit_detail_source_concept_id")
	},
	filter: func(c cohort.VisitDetail, f *filters) {
		f.date("C.start_date", c.VisitDetailStartDate)
		f.date("C.end_date", c.VisitDetailEndDate)
		f.codeset("C.visit_detail_type_concept_id", c.VisitDetailTypeCS)
		f.numeric(duration, c.VisitDetailLength)
		f.age("C.start_date", c.Age)
		f.gender(cohort.GenderFilter{GenderCS: c.GenderCS})
		f.provider(cohort.ProviderFilter{ProviderSpecialtyCS: c.ProviderSpecialtyCS})
		f.placeOfService(c.PlaceOfServiceCS)
	},
}
