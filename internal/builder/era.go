package builder

import "github.com/roach88/cohortsql/internal/cohort"

// Era and period variants. None of them belong to a visit.

var conditionEra = variant[cohort.ConditionEra]{
	kind: cohort.KindConditionEra,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept:  "C.condition_concept_id",
		cohort.ColumnEraOccurrences: "C.condition_occurrence_count",
	},
	ordinal: &ordinal{partition: "ce.person_id", order: "ce.condition_era_start_date, ce.condition_era_id"},
	codeset: func(c cohort.ConditionEra) string {
		return CodesetExpression(c.CodesetID, "ce.condition_concept_id", false)
	},
	filter: func(c cohort.ConditionEra, f *filters) {
		f.date("C.start_date", c.EraStartDate)
		f.date("C.end_date", c.EraEndDate)
		f.numeric("C.condition_occurrence_count", c.OccurrenceCount)
		f.numeric(duration, c.EraLength)
		f.eraPerson(c.EraAgeFilter)
	},
}

var drugEra = variant[cohort.DrugEra]{
	kind: cohort.KindDrugEra,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept:  "C.drug_concept_id",
		cohort.ColumnEraOccurrences: "C.drug_exposure_count",
		cohort.ColumnGapDays:        "C.gap_days",
	},
	ordinal: &ordinal{partition: "dre.person_id", order: "dre.drug_era_start_date, dre.drug_era_id"},
	codeset: func(c cohort.DrugEra) string {
		return CodesetExpression(c.CodesetID, "dre.drug_concept_id", false)
	},
	filter: func(c cohort.DrugEra, f *filters) {
		f.date("C.start_date", c.EraStartDate)
		f.date("C.end_date", c.EraEndDate)
		f.numeric("C.drug_exposure_count", c.OccurrenceCount)
		f.numeric("C.gap_days", c.GapDays)
		f.numeric(duration, c.EraLength)
		f.eraPerson(c.EraAgeFilter)
	},
}

var doseEra = variant[cohort.DoseEra]{
	kind: cohort.KindDoseEra,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.drug_concept_id",
		cohort.ColumnUnit:          "C.unit_concept_id",
	},
	ordinal: &ordinal{partition: "dse.person_id", order: "dse.dose_era_start_date, dse.dose_era_id"},
	codeset: func(c cohort.DoseEra) string {
		return CodesetExpression(c.CodesetID, "dse.drug_concept_id", false)
	},
	filter: func(c cohort.DoseEra, f *filters) {
		f.date("C.start_date", c.EraStartDate)
		f.date("C.end_date", c.EraEndDate)
		f.concepts("C.unit_concept_id", c.Unit, false)
		f.codeset("C.unit_concept_id", c.UnitCS)
		f.numeric("C.dose_value", c.DoseValue)
		f.numeric(duration, c.EraLength)
		f.eraPerson(c.EraAgeFilter)
	},
}

var observationPeriod = variant[cohort.ObservationPeriod]{
	kind: cohort.KindObservationPeriod,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.period_type_concept_id",
	},
	ordinal: &ordinal{partition: "op.person_id", order: "op.observation_period_start_date, op.observation_period_id"},
	filter: func(c cohort.ObservationPeriod, f *filters) {
		f.date("C.start_date", c.PeriodStartDate)
		f.date("C.end_date", c.PeriodEndDate)
		f.concepts("C.period_type_concept_id", c.PeriodType, false)
		f.codeset("C.period_type_concept_id", c.PeriodTypeCS)
		f.numeric(duration, c.PeriodLength)
		f.age("C.start_date", c.AgeAtStart)
		f.age("C.end_date", c.AgeAtEnd)
	},
}

var payerPlanPeriod = variant[cohort.PayerPlanPeriod]{
	kind: cohort.KindPayerPlanPeriod,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.payer_concept_id",
	},
	ordinal: &ordinal{partition: "ppp.person_id", order: "ppp.payer_plan_period_start_date, ppp.payer_plan_period_id"},
	codeset: func(c cohort.PayerPlanPeriod) string {
		return codesetWithSource(c.PayerConcept, "ppp.payer_concept_id", c.PlanConcept, "ppp.plan_concept_id")
	},
	filter: func(c cohort.PayerPlanPeriod, f *filters) {
		f.date("C.start_date", c.PeriodStartDate)
		f.date("C.end_date", c.PeriodEndDate)
		f.numeric(duration, c.PeriodLength)
		f.eraPerson(c.EraAgeFilter)
	},
}
