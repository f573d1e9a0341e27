package builder

import (
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/roach88/cohortsql/internal/cohort"
)

// Dispatcher routes criteria to their builder after checking the kind is
// available in the target CDM version.
type Dispatcher struct {
	registry    *Registry
	target      *version.Version
	constraints map[cohort.Kind]version.Constraints
}

// NewDispatcher parses the version constraint of every kind once.
func NewDispatcher(registry *Registry, target *version.Version) (*Dispatcher, error) {
	if target == nil {
		return nil, fmt.Errorf("dispatcher: target schema version is required")
	}
	d := &Dispatcher{
		registry:    registry,
		target:      target,
		constraints: make(map[cohort.Kind]version.Constraints),
	}
	for _, kind := range cohort.AllKinds() {
		c, err := version.NewConstraint(kind.SchemaVersions())
		if err != nil {
			return nil, fmt.Errorf("dispatcher: %s constraint %q: %w", kind, kind.SchemaVersions(), err)
		}
		d.constraints[kind] = c
	}
	return d, nil
}

// Target returns the configured CDM version.
func (d *Dispatcher) Target() *version.Version {
	return d.target
}

// CheckVersion fails with an incompatible schema version error when kind is
// not available in the target version.
func (d *Dispatcher) CheckVersion(kind cohort.Kind) error {
	c, ok := d.constraints[kind]
	if !ok {
		return NewUnknownVariantError(kind, "no version constraint")
	}
	if !c.Check(d.target) {
		return NewIncompatibleVersionError(kind, c.String(), d.target.Original())
	}
	return nil
}

// Builder returns the builder for c after the version check.
func (d *Dispatcher) Builder(c cohort.Criterion) (Builder, error) {
	if c == nil {
		return nil, NewUnknownVariantError("", "nil criterion")
	}
	if err := d.CheckVersion(c.Kind()); err != nil {
		return nil, err
	}
	return d.registry.Builder(c.Kind())
}

// Dispatch builds the criterion query for c.
func (d *Dispatcher) Dispatch(c cohort.Criterion, opts Options) (string, error) {
	b, err := d.Builder(c)
	if err != nil {
		return "", err
	}
	return b.Build(c, opts)
}
