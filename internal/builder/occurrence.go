package builder

import "github.com/roach88/cohortsql/internal/cohort"

// Variants over the *_OCCURRENCE style clinical tables. They all carry a
// visit and the shared person, provider and visit filters.

var conditionOccurrence = variant[cohort.ConditionOccurrence]{
	kind:  cohort.KindConditionOccurrence,
	visit: true,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.condition_concept_id",
	},
	ordinal: &ordinal{partition: "co.person_id", order: "co.condition_start_date, co.condition_occurrence_id"},
	codeset: func(c cohort.ConditionOccurrence) string {
		return codesetWithSource(c.CodesetID, "co.condition_concept_id", c.ConditionSourceConcept, "co.condition_source_concept_id")
	},
	filter: func(c cohort.ConditionOccurrence, f *filters) {
		f.date("C.start_date", c.OccurrenceStartDate)
		f.date("C.end_date", c.OccurrenceEndDate)
		f.concepts("C.condition_type_concept_id", c.ConditionType, c.ConditionTypeExclude)
		f.codeset("C.condition_type_concept_id", c.ConditionTypeCS)
		f.concepts("C.condition_status_concept_id", c.ConditionStatus, false)
		f.codeset("C.condition_status_concept_id", c.ConditionStatusCS)
		f.person(c.PersonFilter)
		f.provider(c.ProviderFilter)
		f.visit(c.VisitFilter)
	},
}

var deviceExposure = variant[cohort.DeviceExposure]{
	kind:  cohort.KindDeviceExposure,
	visit: true,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.device_concept_id",
		cohort.ColumnQuantity:      "C.quantity",
	},
	ordinal: &ordinal{partition: "de.person_id", order: "de.device_exposure_start_date, de.device_exposure_id"},
	codeset: func(c cohort.DeviceExposure) string {
		return codesetWithSource(c.CodesetID, "de.device_concept_id", c.DeviceSourceConcept, "de.device_source_concept_id")
	},
	filter: func(c cohort.DeviceExposure, f *filters) {
		f.date("C.start_date", c.OccurrenceStartDate)
		f.date("C.end_date", c.OccurrenceEndDate)
		f.concepts("C.device_type_concept_id", c.DeviceType, c.DeviceTypeExclude)
		f.codeset("C.device_type_concept_id", c.DeviceTypeCS)
		f.numeric("C.quantity", c.Quantity)
		f.person(c.PersonFilter)
		f.provider(c.ProviderFilter)
		f.visit(c.VisitFilter)
	},
}

var drugExposure = variant[cohort.DrugExposure]{
	kind:  cohort.KindDrugExposure,
	visit: true,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.drug_concept_id",
		cohort.ColumnQuantity:      "C.quantity",
		cohort.ColumnDaysSupply:    "C.days_supply",
		cohort.ColumnRefills:       "C.refills",
	},
	ordinal: &ordinal{partition: "de.person_id", order: "de.drug_exposure_start_date, de.drug_exposure_id"},
	codeset: func(c cohort.DrugExposure) string {
		return codesetWithSource(c.CodesetID, "de.drug_concept_id", c.DrugSourceConcept, "de.drug_source_concept_id")
	},
	filter: func(c cohort.DrugExposure, f *filters) {
		f.date("C.start_date", c.OccurrenceStartDate)
		f.date("C.end_date", c.OccurrenceEndDate)
		f.concepts("C.drug_type_concept_id", c.DrugType, c.DrugTypeExclude)
		f.codeset("C.drug_type_concept_id", c.DrugTypeCS)
		f.numeric("C.refills", c.Refills)
		f.numeric("C.quantity", c.Quantity)
		f.numeric("C.days_supply", c.DaysSupply)
		f.concepts("C.route_concept_id", c.RouteConcept, false)
		f.codeset("C.route_concept_id", c.RouteConceptCS)
		f.concepts("C.dose_unit_concept_id", c.DoseUnit, false)
		f.codeset("C.dose_unit_concept_id", c.DoseUnitCS)
		f.person(c.PersonFilter)
		f.provider(c.ProviderFilter)
		f.visit(c.VisitFilter)
	},
}

// abnormalMeasurement flags values outside the reference range or coded as
// abnormal (high, low).
const abnormalMeasurement = "(C.value_as_number < C.range_low OR C.value_as_number > C.range_high OR C.value_as_concept_id IN (4155142, 4155143))"

var measurement = variant[cohort.Measurement]{
	kind:  cohort.KindMeasurement,
	visit: true,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.measurement_concept_id",
		cohort.ColumnValueAsNumber: "C.value_as_number",
		cohort.ColumnUnit:          "C.unit_concept_id",
		cohort.ColumnRangeLow:      "C.range_low",
		cohort.ColumnRangeHigh:     "C.range_high",
	},
	ordinal: &ordinal{partition: "m.person_id", order: "m.measurement_date, m.measurement_id"},
	codeset: func(c cohort.Measurement) string {
		return codesetWithSource(c.CodesetID, "m.measurement_concept_id", c.MeasurementSourceConcept, "m.measurement_source_concept_id")
	},
	filter: func(c cohort.Measurement, f *filters) {
		f.date("C.start_date", c.OccurrenceStartDate)
		f.concepts("C.measurement_type_concept_id", c.MeasurementType, c.MeasurementTypeExclude)
		f.codeset("C.measurement_type_concept_id", c.MeasurementTypeCS)
		f.concepts("C.operator_concept_id", c.Operator, false)
		f.codeset("C.operator_concept_id", c.OperatorCS)
		f.numeric("C.value_as_number", c.ValueAsNumber)
		f.concepts("C.value_as_concept_id", c.ValueAsConcept, false)
		f.codeset("C.value_as_concept_id", c.ValueAsConceptCS)
		f.concepts("C.unit_concept_id", c.Unit, false)
		f.codeset("C.unit_concept_id", c.UnitCS)
		f.numeric("C.range_low", c.RangeLow)
		f.numeric("C.range_high", c.RangeHigh)
		if c.Abnormal {
			f.where(abnormalMeasurement)
		}
		f.person(c.PersonFilter)
		f.provider(c.ProviderFilter)
		f.visit(c.VisitFilter)
	},
}

var observation = variant[cohort.Observation]{
	kind:  cohort.KindObservation,
	visit: true,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.observation_concept_id",
		cohort.ColumnValueAsNumber: "C.value_as_number",
		cohort.ColumnUnit:          "C.unit_concept_id",
	},
	ordinal: &ordinal{partition: "o.person_id", order: "o.observation_date, o.observation_id"},
	codeset: func(c cohort.Observation) string {
		return codesetWithSource(c.CodesetID, "o.observation_concept_id", c.ObservationSourceConcept, "o.observation_source_concept_id")
	},
	filter: func(c cohort.Observation, f *filters) {
		f.date("C.start_date", c.OccurrenceStartDate)
		f.concepts("C.observation_type_concept_id", c.ObservationType, c.ObservationTypeExclude)
		f.codeset("C.observation_type_concept_id", c.ObservationTypeCS)
		f.numeric("C.value_as_number", c.ValueAsNumber)
		f.concepts("C.value_as_concept_id", c.ValueAsConcept, false)
		f.codeset("C.value_as_concept_id", c.ValueAsConceptCS)
		f.concepts("C.qualifier_concept_id", c.Qualifier, false)
		f.codeset("C.qualifier_concept_id", c.QualifierCS)
		f.concepts("C.unit_concept_id", c.Unit, false)
		f.codeset("C.unit_concept_id", c.UnitCS)
		f.person(c.PersonFilter)
		f.provider(c.ProviderFilter)
		f.visit(c.VisitFilter)
	},
}

var procedureOccurrence = variant[cohort.ProcedureOccurrence]{
	kind:  cohort.KindProcedureOccurrence,
	visit: true,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.procedure_concept_id",
		cohort.ColumnQuantity:      "C.quantity",
	},
	ordinal: &ordinal{partition: "po.person_id", order: "po.procedure_date, po.procedure_occurrence_id"},
	codeset: func(c cohort.ProcedureOccurrence) string {
		return codesetWithSource(c.CodesetID, "po.procedure_concept_id", c.ProcedureSourceConcept, "po.procedure_source_concept_id")
	},
	filter: func(c cohort.ProcedureOccurrence, f *filters) {
		f.date("C.start_date", c.OccurrenceStartDate)
		f.concepts("C.procedure_type_concept_id", c.ProcedureType, c.ProcedureTypeExclude)
		f.codeset("C.procedure_type_concept_id", c.ProcedureTypeCS)
		f.concepts("C.modifier_concept_id", c.Modifier, false)
		f.codeset("C.modifier_concept_id", c.ModifierCS)
		f.numeric("C.quantity", c.Quantity)
		f.person(c.PersonFilter)
		f.provider(c.ProviderFilter)
		f.visit(c.VisitFilter)
	},
}

var specimen = variant[cohort.Specimen]{
	kind: cohort.KindSpecimen,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.specimen_concept_id",
		cohort.ColumnQuantity:      "C.quantity",
		cohort.ColumnUnit:          "C.unit_concept_id",
	},
	ordinal: &ordinal{partition: "s.person_id", order: "s.specimen_date, s.specimen_id"},
	codeset: func(c cohort.Specimen) string {
		return CodesetExpression(c.CodesetID, "s.specimen_concept_id", false)
	},
	filter: func(c cohort.Specimen, f *filters) {
		f.date("C.start_date", c.OccurrenceStartDate)
		f.concepts("C.specimen_type_concept_id", c.SpecimenType, c.SpecimenTypeExclude)
		f.codeset("C.specimen_type_concept_id", c.SpecimenTypeCS)
		f.numeric("C.quantity", c.Quantity)
		f.concepts("C.unit_concept_id", c.Unit, false)
		f.codeset("C.unit_concept_id", c.UnitCS)
		f.concepts("C.anatomic_site_concept_id", c.AnatomicSite, false)
		f.codeset("C.anatomic_site_concept_id", c.AnatomicSiteCS)
		f.concepts("C.disease_status_concept_id", c.DiseaseStatus, false)
		f.codeset("C.disease_status_concept_id", c.DiseaseStatusCS)
		f.person(c.PersonFilter)
	},
}

var death = variant[cohort.Death]{
	kind: cohort.KindDeath,
	columns: map[cohort.CriteriaColumn]string{
		cohort.ColumnDomainConcept: "C.cause_concept_id",
	},
	codeset: func(c cohort.Death) string {
		return codesetWithSource(c.CodesetID, "d.cause_concept_id", c.DeathSourceConcept, "d.cause_source_concept_id")
	},
	filter: func(c cohort.Death, f *filters) {
		f.date("C.start_date", c.OccurrenceStartDate)
		f.concepts("C.death_type_concept_id", c.DeathType, c.DeathTypeExclude)
		f.codeset("C.death_type_concept_id", c.DeathTypeCS)
		f.person(c.PersonFilter)
	},
}
