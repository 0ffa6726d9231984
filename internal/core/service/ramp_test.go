package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRampStepBoundedByRate(t *testing.T) {
	ramp := NewRampRateController(0.1)
	require.Equal(t, 0.3, ramp.Step(0.2, 1.0, 1000))
	require.Equal(t, 0.4, ramp.Step(0.2, 1.0, 1000))
	require.Equal(t, 0.45, ramp.Step(0.2, 1.0, 500))
}

func TestRampReachesTargetWithoutOvershoot(t *testing.T) {
	require := require.New(t)

	ramp := NewRampRateController(0.1)
	require.Equal(0.3, ramp.Step(0.25, 0.3, 1000))
	require.Equal(0.3, ramp.Step(0.25, 0.3, 1000))

	down := NewRampRateController(0.1)
	require.Equal(0.3, down.Step(0.5, 0, 2000))
	require.Equal(0.0, down.Step(0.5, 0, 5000))
}

func TestRampClampsToUnitRange(t *testing.T) {
	require := require.New(t)

	ramp := NewRampRateController(1)
	require.Equal(1.0, ramp.Step(0.9, 1.5, 10000))

	ramp = NewRampRateController(1)
	require.Equal(0.0, ramp.Step(-0.3, -1, 10000))
}

func TestRampDisabled(t *testing.T) {
	ramp := NewRampRateController(0)
	require.Equal(t, 1.0, ramp.Step(0.2, 1.0, 10))
	require.Equal(t, 0.1, ramp.Step(0.2, 0.1, 10))
}

func TestRampStepAtUsesCallerClock(t *testing.T) {
	require := require.New(t)

	t0 := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	ramp := NewRampRateController(0.1)
	// first call seeds from the measured ratio
	require.Equal(0.2, ramp.StepAt(0.2, 1.0, t0))
	require.Equal(0.3, ramp.StepAt(0.2, 1.0, t0.Add(time.Second)))
	require.Equal(0.5, ramp.StepAt(0.2, 1.0, t0.Add(3*time.Second)))

	ramp.Reset()
	require.Equal(0.7, ramp.StepAt(0.7, 1.0, t0.Add(4*time.Second)))
}

func TestRampDeterministic(t *testing.T) {
	steps := []struct{ current, target, elapsed float64 }{
		{0.1, 0.9, 200}, {0.1, 0.9, 200}, {0.3, 0.2, 800}, {0.5, 0.7, 1000},
	}
	a := NewRampRateController(0.25)
	b := NewRampRateController(0.25)
	for _, s := range steps {
		require.Equal(t, a.Step(s.current, s.target, s.elapsed), b.Step(s.current, s.target, s.elapsed))
	}
}
