package cohort

import "reflect"

// Criterion is a clinical-event filter. The set of variants is closed.
type Criterion interface {
	Kind() Kind
	criterion()
}

// ConditionOccurrence selects CONDITION_OCCURRENCE records.
type ConditionOccurrence struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	OccurrenceStartDate    *DateRange           `json:"OccurrenceStartDate,omitempty"`
	OccurrenceEndDate      *DateRange           `json:"OccurrenceEndDate,omitempty"`
	ConditionType          []Concept            `json:"ConditionType,omitempty"`
	ConditionTypeCS        *ConceptSetSelection `json:"ConditionTypeCS,omitempty"`
	ConditionTypeExclude   bool                 `json:"ConditionTypeExclude,omitempty"`
	ConditionStatus        []Concept            `json:"ConditionStatus,omitempty"`
	ConditionStatusCS      *ConceptSetSelection `json:"ConditionStatusCS,omitempty"`
	ConditionSourceConcept *int                 `json:"ConditionSourceConcept,omitempty"`
	PersonFilter
	ProviderFilter
	VisitFilter
}

// ConditionEra selects CONDITION_ERA records.
type ConditionEra struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	EraStartDate    *DateRange    `json:"EraStartDate,omitempty"`
	EraEndDate      *DateRange    `json:"EraEndDate,omitempty"`
	OccurrenceCount *NumericRange `json:"OccurrenceCount,omitempty"`
	EraLength       *NumericRange `json:"EraLength,omitempty"`
	EraAgeFilter
}

// Death selects DEATH records.
type Death struct {
	CodesetID           *int                 `json:"CodesetId,omitempty"`
	OccurrenceStartDate *DateRange           `json:"OccurrenceStartDate,omitempty"`
	DeathType           []Concept            `json:"DeathType,omitempty"`
	DeathTypeCS         *ConceptSetSelection `json:"DeathTypeCS,omitempty"`
	DeathTypeExclude    bool                 `json:"DeathTypeExclude,omitempty"`
	DeathSourceConcept  *int                 `json:"DeathSourceConcept,omitempty"`
	PersonFilter
}

// DeviceExposure selects DEVICE_EXPOSURE records.
type DeviceExposure struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	OccurrenceStartDate *DateRange           `json:"OccurrenceStartDate,omitempty"`
	OccurrenceEndDate   *DateRange           `json:"OccurrenceEndDate,omitempty"`
	DeviceType          []Concept            `json:"DeviceType,omitempty"`
	DeviceTypeCS        *ConceptSetSelection `json:"DeviceTypeCS,omitempty"`
	DeviceTypeExclude   bool                 `json:"DeviceTypeExclude,omitempty"`
	Quantity            *NumericRange        `json:"Quantity,omitempty"`
	DeviceSourceConcept *int                 `json:"DeviceSourceConcept,omitempty"`
	PersonFilter
	ProviderFilter
	VisitFilter
}

// DoseEra selects DOSE_ERA records.
type DoseEra struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	EraStartDate *DateRange           `json:"EraStartDate,omitempty"`
	EraEndDate   *DateRange           `json:"EraEndDate,omitempty"`
	Unit         []Concept            `json:"Unit,omitempty"`
	UnitCS       *ConceptSetSelection `json:"UnitCS,omitempty"`
	DoseValue    *NumericRange        `json:"DoseValue,omitempty"`
	EraLength    *NumericRange        `json:"EraLength,omitempty"`
	EraAgeFilter
}

// DrugEra selects DRUG_ERA records.
type DrugEra struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	EraStartDate    *DateRange    `json:"EraStartDate,omitempty"`
	EraEndDate      *DateRange    `json:"EraEndDate,omitempty"`
	OccurrenceCount *NumericRange `json:"OccurrenceCount,omitempty"`
	GapDays         *NumericRange `json:"GapDays,omitempty"`
	EraLength       *NumericRange `json:"EraLength,omitempty"`
	EraAgeFilter
}

// DrugExposure selects DRUG_EXPOSURE records.
type DrugExposure struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	OccurrenceStartDate *DateRange           `json:"OccurrenceStartDate,omitempty"`
	OccurrenceEndDate   *DateRange           `json:"OccurrenceEndDate,omitempty"`
	DrugType            []Concept            `json:"DrugType,omitempty"`
	DrugTypeCS          *ConceptSetSelection `json:"DrugTypeCS,omitempty"`
	DrugTypeExclude     bool                 `json:"DrugTypeExclude,omitempty"`
	Refills             *NumericRange        `json:"Refills,omitempty"`
	Quantity            *NumericRange        `json:"Quantity,omitempty"`
	DaysSupply          *NumericRange        `json:"DaysSupply,omitempty"`
	RouteConcept        []Concept            `json:"RouteConcept,omitempty"`
	RouteConceptCS      *ConceptSetSelection `json:"RouteConceptCS,omitempty"`
	DoseUnit            []Concept            `json:"DoseUnit,omitempty"`
	DoseUnitCS          *ConceptSetSelection `json:"DoseUnitCS,omitempty"`
	DrugSourceConcept   *int                 `json:"DrugSourceConcept,omitempty"`
	PersonFilter
	ProviderFilter
	VisitFilter
}

// Measurement selects MEASUREMENT records.
type Measurement struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	OccurrenceStartDate      *DateRange           `json:"OccurrenceStartDate,omitempty"`
	MeasurementType          []Concept            `json:"MeasurementType,omitempty"`
	MeasurementTypeCS        *ConceptSetSelection `json:"MeasurementTypeCS,omitempty"`
	MeasurementTypeExclude   bool                 `json:"MeasurementTypeExclude,omitempty"`
	Operator                 []Concept            `json:"Operator,omitempty"`
	OperatorCS               *ConceptSetSelection `json:"OperatorCS,omitempty"`
	ValueAsNumber            *NumericRange        `json:"ValueAsNumber,omitempty"`
	ValueAsConcept           []Concept            `json:"ValueAsConcept,omitempty"`
	ValueAsConceptCS         *ConceptSetSelection `json:"ValueAsConceptCS,omitempty"`
	Unit                     []Concept            `json:"Unit,omitempty"`
	UnitCS                   *ConceptSetSelection `json:"UnitCS,omitempty"`
	RangeLow                 *NumericRange        `json:"RangeLow,omitempty"`
	RangeHigh                *NumericRange        `json:"RangeHigh,omitempty"`
	Abnormal                 bool                 `json:"Abnormal,omitempty"`
	MeasurementSourceConcept *int                 `json:"MeasurementSourceConcept,omitempty"`
	PersonFilter
	ProviderFilter
	VisitFilter
}

// Observation selects OBSERVATION records.
type Observation struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	OccurrenceStartDate      *DateRange           `json:"OccurrenceStartDate,omitempty"`
	ObservationType          []Concept            `json:"ObservationType,omitempty"`
	ObservationTypeCS        *ConceptSetSelection `json:"ObservationTypeCS,omitempty"`
	ObservationTypeExclude   bool                 `json:"ObservationTypeExclude,omitempty"`
	ValueAsNumber            *NumericRange        `json:"ValueAsNumber,omitempty"`
	ValueAsConcept           []Concept            `json:"ValueAsConcept,omitempty"`
	ValueAsConceptCS         *ConceptSetSelection `json:"ValueAsConceptCS,omitempty"`
	Qualifier                []Concept            `json:"Qualifier,omitempty"`
	QualifierCS              *ConceptSetSelection `json:"QualifierCS,omitempty"`
	Unit                     []Concept            `json:"Unit,omitempty"`
	UnitCS                   *ConceptSetSelection `json:"UnitCS,omitempty"`
	ObservationSourceConcept *int                 `json:"ObservationSourceConcept,omitempty"`
	PersonFilter
	ProviderFilter
	VisitFilter
}

// ObservationPeriod selects OBSERVATION_PERIOD records.
type ObservationPeriod struct {
	Ordinal
	PeriodStartDate *DateRange           `json:"PeriodStartDate,omitempty"`
	PeriodEndDate   *DateRange           `json:"PeriodEndDate,omitempty"`
	PeriodType      []Concept            `json:"PeriodType,omitempty"`
	PeriodTypeCS    *ConceptSetSelection `json:"PeriodTypeCS,omitempty"`
	PeriodLength    *NumericRange        `json:"PeriodLength,omitempty"`
	AgeAtStart      *NumericRange        `json:"AgeAtStart,omitempty"`
	AgeAtEnd        *NumericRange        `json:"AgeAtEnd,omitempty"`
}

// PayerPlanPeriod selects PAYER_PLAN_PERIOD records. PayerConcept and
// PlanConcept are concept-set IDs.
type PayerPlanPeriod struct {
	Ordinal
	PeriodStartDate *DateRange    `json:"PeriodStartDate,omitempty"`
	PeriodEndDate   *DateRange    `json:"PeriodEndDate,omitempty"`
	PeriodLength    *NumericRange `json:"PeriodLength,omitempty"`
	PayerConcept    *int          `json:"PayerConcept,omitempty"`
	PlanConcept     *int          `json:"PlanConcept,omitempty"`
	EraAgeFilter
}

// ProcedureOccurrence selects PROCEDURE_OCCURRENCE records.
type ProcedureOccurrence struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	OccurrenceStartDate    *DateRange           `json:"OccurrenceStartDate,omitempty"`
	ProcedureType          []Concept            `json:"ProcedureType,omitempty"`
	ProcedureTypeCS        *ConceptSetSelection `json:"ProcedureTypeCS,omitempty"`
	ProcedureTypeExclude   bool                 `json:"ProcedureTypeExclude,omitempty"`
	Modifier               []Concept            `json:"Modifier,omitempty"`
	ModifierCS             *ConceptSetSelection `json:"ModifierCS,omitempty"`
	Quantity               *NumericRange        `json:"Quantity,omitempty"`
	ProcedureSourceConcept *int                 `json:"ProcedureSourceConcept,omitempty"`
	PersonFilter
	ProviderFilter
	VisitFilter
}

// Specimen selects SPECIMEN records.
type Specimen struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	OccurrenceStartDate *DateRange           `json:"OccurrenceStartDate,omitempty"`
	SpecimenType        []Concept            `json:"SpecimenType,omitempty"`
	SpecimenTypeCS      *ConceptSetSelection `json:"SpecimenTypeCS,omitempty"`
	SpecimenTypeExclude bool                 `json:"SpecimenTypeExclude,omitempty"`
	Quantity            *NumericRange        `json:"Quantity,omitempty"`
	Unit                []Concept            `json:"Unit,omitempty"`
	UnitCS              *ConceptSetSelection `json:"UnitCS,omitempty"`
	AnatomicSite        []Concept            `json:"AnatomicSite,omitempty"`
	AnatomicSiteCS      *ConceptSetSelection `json:"AnatomicSiteCS,omitempty"`
	DiseaseStatus       []Concept            `json:"DiseaseStatus,omitempty"`
	DiseaseStatusCS     *ConceptSetSelection `json:"DiseaseStatusCS,omitempty"`
	PersonFilter
}

// VisitOccurrence selects VISIT_OCCURRENCE records.
type VisitOccurrence struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	OccurrenceStartDate *DateRange           `json:"OccurrenceStartDate,omitempty"`
	OccurrenceEndDate   *DateRange           `json:"OccurrenceEndDate,omitempty"`
	VisitType           []Concept            `json:"VisitType,omitempty"`
	VisitTypeCS         *ConceptSetSelection `json:"VisitTypeCS,omitempty"`
	VisitTypeExclude    bool                 `json:"VisitTypeExclude,omitempty"`
	VisitLength         *NumericRange        `json:"VisitLength,omitempty"`
	PlaceOfServiceCS    *ConceptSetSelection `json:"PlaceOfServiceCS,omitempty"`
	VisitSourceConcept  *int                 `json:"VisitSourceConcept,omitempty"`
	PersonFilter
	ProviderFilter
}

// VisitDetail selects VISIT_DETAIL records. Its attribute filters are all
// concept-set selections.
type VisitDetail struct {
	CodesetID *int `json:"CodesetId,omitempty"`
	Ordinal
	VisitDetailStartDate     *DateRange           `json:"VisitDetailStartDate,omitempty"`
	VisitDetailEndDate       *DateRange           `json:"VisitDetailEndDate,omitempty"`
	VisitDetailTypeCS        *ConceptSetSelection `json:"VisitDetailTypeCS,omitempty"`
	VisitDetailLength        *NumericRange        `json:"VisitDetailLength,omitempty"`
	Age                      *NumericRange        `json:"Age,omitempty"`
	GenderCS                 *ConceptSetSelection `json:"GenderCS,omitempty"`
	ProviderSpecialtyCS      *ConceptSetSelection `json:"ProviderSpecialtyCS,omitempty"`
	PlaceOfServiceCS         *ConceptSetSelection `json:"PlaceOfServiceCS,omitempty"`
	VisitDetailSourceConcept *int                 `json:"VisitDetailSourceConcept,omitempty"`
}

// CareSite selects a person's care-site history entries whose care site
// belongs to the concept set. CodesetID is required.
type CareSite struct {
	CodesetID *int `json:"CodesetId,omitempty"`
}

// LocationRegion selects a person's location history entries whose region
// belongs to the concept set. CodesetID is required.
type LocationRegion struct {
	CodesetID *int       `json:"CodesetId,omitempty"`
	StartDate *DateRange `json:"StartDate,omitempty"`
	EndDate   *DateRange `json:"EndDate,omitempty"`
}

func (ConditionOccurrence) Kind() Kind { return KindConditionOccurrence }
func (ConditionEra) Kind() Kind        { return KindConditionEra }
func (Death) Kind() Kind               { return KindDeath }
func (DeviceExposure) Kind() Kind      { return KindDeviceExposure }
func (DoseEra) Kind() Kind             { return KindDoseEra }
func (DrugEra) Kind() Kind             { return KindDrugEra }
func (DrugExposure) Kind() Kind        { return KindDrugExposure }
func (Measurement) Kind() Kind         { return KindMeasurement }
func (Observation) Kind() Kind         { return KindObservation }
func (ObservationPeriod) Kind() Kind   { return KindObservationPeriod }
func (PayerPlanPeriod) Kind() Kind     { return KindPayerPlanPeriod }
func (ProcedureOccurrence) Kind() Kind { return KindProcedureOccurrence }
func (Specimen) Kind() Kind            { return KindSpecimen }
func (VisitOccurrence) Kind() Kind     { return KindVisitOccurrence }
func (VisitDetail) Kind() Kind         { return KindVisitDetail }
func (CareSite) Kind() Kind            { return KindCareSite }
func (LocationRegion) Kind() Kind      { return KindLocationRegion }

func (ConditionOccurrence) criterion() {}
func (ConditionEra) criterion()        {}
func (Death) criterion()               {}
func (DeviceExposure) criterion()      {}
func (DoseEra) criterion()             {}
func (DrugEra) criterion()             {}
func (DrugExposure) criterion()        {}
func (Measurement) criterion()         {}
func (Observation) criterion()         {}
func (ObservationPeriod) criterion()   {}
func (PayerPlanPeriod) criterion()     {}
func (ProcedureOccurrence) criterion() {}
func (Specimen) criterion()            {}
func (VisitOccurrence) criterion()     {}
func (VisitDetail) criterion()         {}
func (CareSite) criterion()            {}
func (LocationRegion) criterion()      {}

var (
	intPtrType    = reflect.TypeOf((*int)(nil))
	selectionType = reflect.TypeOf((*ConceptSetSelection)(nil))
)

// CodesetIDs returns every concept-set ID c references, in field order.
// Duplicates are kept.
func CodesetIDs(c Criterion) []int {
	if c == nil {
		return nil
	}
	var ids []int
	collectCodesets(reflect.ValueOf(c), &ids)
	return ids
}

func collectCodesets(v reflect.Value, ids *[]int) {
	if v.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch {
		case f.Type() == intPtrType:
			if !f.IsNil() {
				*ids = append(*ids, int(f.Elem().Int()))
			}
		case f.Type() == selectionType:
			if !f.IsNil() {
				*ids = append(*ids, f.Interface().(*ConceptSetSelection).CodesetID)
			}
		case f.Kind() == reflect.Struct && v.Type().Field(i).Anonymous:
			collectCodesets(f, ids)
		}
	}
}
