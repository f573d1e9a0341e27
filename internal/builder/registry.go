package builder

import (
	"fmt"

	"github.com/roach88/cohortsql/internal/cohort"
	"github.com/roach88/cohortsql/internal/resources"
)

// Registry holds exactly one builder per criterion kind.
type Registry struct {
	builders map[cohort.Kind]Builder
}

// NewRegistry builds every variant from the templates in src. A kind
// without a constructor or template fails here, before any compilation.
func NewRegistry(src resources.Source) (*Registry, error) {
	r := &Registry{builders: make(map[cohort.Kind]Builder)}
	for _, kind := range cohort.AllKinds() {
		text, err := src.Template(resources.CriterionTemplate(kind))
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		b, err := newBuilder(kind, text)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		r.builders[kind] = b
	}
	return r, nil
}

// Builder returns the builder for kind.
func (r *Registry) Builder(kind cohort.Kind) (Builder, error) {
	b, ok := r.builders[kind]
	if !ok {
		return nil, NewUnknownVariantError(kind, "no builder registered")
	}
	return b, nil
}

// newBuilder is the closed dispatch from kind to variant definition.
func newBuilder(kind cohort.Kind, text string) (Builder, error) {
	switch kind {
	case cohort.KindConditionOccurrence:
		return newSQLBuilder(conditionOccurrence, text)
	case cohort.KindConditionEra:
		return newSQLBuilder(conditionEra, text)
	case cohort.KindDeath:
		return newSQLBuilder(death, text)
	case cohort.KindDeviceExposure:
		return newSQLBuilder(deviceExposure, text)
	case cohort.KindDoseEra:
		return newSQLBuilder(doseEra, text)
	case cohort.KindDrugEra:
		return newSQLBuilder(drugEra, text)
	case cohort.KindDrugExposure:
		return newSQLBuilder(drugExposure, text)
	case cohort.KindMeasurement:
		return newSQLBuilder(measurement, text)
	case cohort.KindObservation:
		return newSQLBuilder(observation, text)
	case cohort.KindObservationPeriod:
		return newSQLBuilder(observationPeriod, text)
	case cohort.KindPayerPlanPeriod:
		return newSQLBuilder(payerPlanPeriod, text)
	case cohort.KindProcedureOccurrence:
		return newSQLBuilder(procedureOccurrence, text)
	case cohort.KindSpecimen:
		return newSQLBuilder(specimen, text)
	case cohort.KindVisitOccurrence:
		return newSQLBuilder(visitOccurrence, text)
	case cohort.KindVisitDetail:
		return newSQLBuilder(visitDetail, text)
	case cohort.KindCareSite:
		return newSQLBuilder(careSite, text)
	case cohort.KindLocationRegion:
		return newSQLBuilder(locationRegion, text)
	default:
		return nil, NewUnknownVariantError(kind, "no builder defined")
	}
}
