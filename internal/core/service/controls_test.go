package service

import (
	"testing"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"

	"github.com/stretchr/testify/require"
)

func TestOutputLimitPercentRaw(t *testing.T) {
	cases := []struct {
		ratio float64
		sf    int16
		want  uint16
	}{
		{1, -2, 10000},
		{0.5, 0, 50},
		{0.55821249, -2, 5582},
		{1.3, -2, 10000},
		{-0.2, -2, 0},
		{0.123, -1, 123},
	}
	for _, c := range cases {
		require.Equal(t, c.want, OutputLimitPercentRaw(c.ratio, c.sf), "ratio=%v sf=%v", c.ratio, c.sf)
	}
}

func TestControlsForLimit(t *testing.T) {
	write := ControlsFor(domain.Limit{RampedTargetPowerRatio: 0.42}, domain.InverterControls{OutputLimitPercentSF: -2}, 30*time.Second)
	require.Equal(t, domain.ControlsWrite{
		Connect:                  true,
		ConnectRevertSeconds:     30,
		OutputLimitEnabled:       true,
		OutputLimitPercentRaw:    4200,
		OutputLimitRevertSeconds: 30,
	}, write)
}

func TestControlsForDeenergize(t *testing.T) {
	write := ControlsFor(domain.Deenergize{}, domain.InverterControls{OutputLimitPercentSF: -2}, 0)
	require.Equal(t, domain.ControlsWrite{
		Connect:                  false,
		ConnectRevertSeconds:     60,
		OutputLimitEnabled:       false,
		OutputLimitPercentRaw:    0,
		OutputLimitRevertSeconds: 60,
	}, write)
}
