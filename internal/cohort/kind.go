package cohort

// Kind identifies a criterion variant.
//
// The string value is the key used for the variant in cohort-definition
// documents ({"ConditionOccurrence": {...}}).
type Kind string

const (
	KindConditionOccurrence Kind = "ConditionOccurrence"
	KindConditionEra        Kind = "ConditionEra"
	KindDeath               Kind = "Death"
	KindDeviceExposure      Kind = "DeviceExposure"
	KindDoseEra             Kind = "DoseEra"
	KindDrugEra             Kind = "DrugEra"
	KindDrugExposure        Kind = "DrugExposure"
	KindMeasurement         Kind = "Measurement"
	KindObservation         Kind = "Observation"
	KindObservationPeriod   Kind = "ObservationPeriod"
	KindPayerPlanPeriod     Kind = "PayerPlanPeriod"
	KindProcedureOccurrence Kind = "ProcedureOccurrence"
	KindSpecimen            Kind = "Specimen"
	KindVisitOccurrence     Kind = "VisitOccurrence"
	KindVisitDetail         Kind = "VisitDetail"
	KindCareSite            Kind = "CareSite"
	KindLocationRegion      Kind = "LocationRegion"
)

// kindInfo is the static metadata of a variant.
type kindInfo struct {
	display string
	// versions is a CDM version constraint (">= 5.0, < 6.0").
	versions string
}

var allKinds = []Kind{
	KindConditionOccurrence,
	KindConditionEra,
	KindDeath,
	KindDeviceExposure,
	KindDoseEra,
	KindDrugEra,
	KindDrugExposure,
	KindMeasurement,
	KindObservation,
	KindObservationPeriod,
	KindPayerPlanPeriod,
	KindProcedureOccurrence,
	KindSpecimen,
	KindVisitOccurrence,
	KindVisitDetail,
	KindCareSite,
	KindLocationRegion,
}

var kindTable = map[Kind]kindInfo{
	KindConditionOccurrence: {display: "condition occurrence", versions: ">= 5.0"},
	KindConditionEra:        {display: "condition era", versions: ">= 5.0"},
	KindDeath:               {display: "death", versions: ">= 5.0, < 6.0"},
	KindDeviceExposure:      {display: "device exposure", versions: ">= 5.0"},
	KindDoseEra:             {display: "dose era", versions: ">= 5.0"},
	KindDrugEra:             {display: "drug era", versions: ">= 5.0"},
	KindDrugExposure:        {display: "drug exposure", versions: ">= 5.0"},
	KindMeasurement:         {display: "measurement", versions: ">= 5.0"},
	KindObservation:         {display: "observation", versions: ">= 5.0"},
	KindObservationPeriod:   {display: "observation period", versions: ">= 5.0"},
	KindPayerPlanPeriod:     {display: "payer plan period", versions: ">= 5.0"},
	KindProcedureOccurrence: {display: "procedure occurrence", versions: ">= 5.0"},
	KindSpecimen:            {display: "specimen", versions: ">= 5.0"},
	KindVisitOccurrence:     {display: "visit occurrence", versions: ">= 5.0"},
	KindVisitDetail:         {display: "visit detail", versions: ">= 5.2"},
	KindCareSite:            {display: "care site", versions: ">= 6.1"},
	KindLocationRegion:      {display: "location region", versions: ">= 5.0"},
}

// AllKinds returns every criterion variant, in declaration order.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind resolves a document key to a Kind.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	_, ok := kindTable[k]
	return k, ok
}

// DisplayName returns the human-readable name used in messages.
func (k Kind) DisplayName() string {
	if info, ok := kindTable[k]; ok {
		return info.display
	}
	return string(k)
}

// SchemaVersions returns the CDM version constraint the variant can be
// compiled against. Unknown kinds return "".
func (k Kind) SchemaVersions() string {
	return kindTable[k].versions
}
