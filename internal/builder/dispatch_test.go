package builder

import (
	"testing"

	"github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortsql/internal/cohort"
)

func newTestDispatcher(t *testing.T, target string) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(newTestRegistry(t), version.Must(version.NewVersion(target)))
	require.NoError(t, err)
	return d
}

func TestDispatch_VersionGate(t *testing.T) {
	careSite := cohort.CareSite{CodesetID: cohort.Ptr(1)}

	_, err := newTestDispatcher(t, "6.1").Dispatch(careSite, Options{})
	require.NoError(t, err)

	_, err = newTestDispatcher(t, "5.9").Dispatch(careSite, Options{})
	require.Error(t, err)
	assert.True(t, IsIncompatibleSchemaVersion(err))

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, cohort.KindCareSite, be.Kind)
	assert.Equal(t, "5.9", be.Details["target"])
	assert.Contains(t, be.Details["allowed"], "6.1")
}

func TestDispatch_VersionUpperBound(t *testing.T) {
	_, err := newTestDispatcher(t, "5.4").Dispatch(cohort.Death{}, Options{})
	require.NoError(t, err)

	err = newTestDispatcher(t, "6.0").CheckVersion(cohort.KindDeath)
	assert.True(t, IsIncompatibleSchemaVersion(err))
}

func TestDispatch_Nil(t *testing.T) {
	_, err := newTestDispatcher(t, "5.4").Dispatch(nil, Options{})
	assert.True(t, IsUnknownVariant(err))
}

func TestDispatch_GateRunsBeforeBuild(t *testing.T) {
	// A malformed criterion of an unavailable kind reports the version.
	_, err := newTestDispatcher(t, "5.4").Dispatch(cohort.CareSite{}, Options{})
	assert.True(t, IsIncompatibleSchemaVersion(err))
}

func TestNewDispatcher_RequiresTarget(t *testing.T) {
	_, err := NewDispatcher(newTestRegistry(t), nil)
	assert.Error(t, err)
}

func TestDispatcher_Target(t *testing.T) {
	assert.Equal(t, "5.3.1", newTestDispatcher(t, "5.3.1").Target().Original())
}
