package device

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/pkg/sunspec_modbus"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInverterReadsMapToDomain(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	reader := sunspec_modbus.NewTestInverterModbusReader(10000, 6000)
	inv := NewSunSpecInverter(reader, zap.NewNop())
	require.NoError(inv.Connect(ctx))

	tel, err := inv.ReadTelemetry(ctx)
	require.NoError(err)
	require.Equal(6000.0, tel.PowerWatt)
	require.Equal(50.0, tel.FrequencyHz)

	np, err := inv.ReadNameplate(ctx)
	require.NoError(err)
	require.Equal(10000.0, np.MaxPowerWatt)
	require.Equal(uint16(domain.DER_TYPE_PV), np.DERType)

	st, err := inv.ReadStatus(ctx)
	require.NoError(err)
	require.True(st.PVConnected)
	require.Equal(sunspec_modbus.InverterStatusMPPTStr, st.OperatingState)

	ctrl, err := inv.ReadControls(ctx)
	require.NoError(err)
	require.True(ctrl.Connected)
	require.False(ctrl.OutputLimitEnabled)
	require.Equal(int16(sunspec_modbus.TEST_OUTPUT_LIMIT_SF), ctrl.OutputLimitPercentSF)
}

func TestInverterWriteControls(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	reader := sunspec_modbus.NewTestInverterModbusReader(10000, 6000)
	inv := NewSunSpecInverter(reader, zap.NewNop())

	require.NoError(inv.WriteControls(ctx, domain.ControlsWrite{
		Connect:                  true,
		ConnectRevertSeconds:     60,
		OutputLimitEnabled:       true,
		OutputLimitPercentRaw:    2500,
		OutputLimitRevertSeconds: 60,
	}))
	ctrl, err := inv.ReadControls(ctx)
	require.NoError(err)
	require.True(ctrl.OutputLimitEnabled)
	require.Equal(25.0, ctrl.OutputLimitPercent)
	require.Equal(time.Minute, ctrl.OutputLimitRevert)

	tel, err := inv.ReadTelemetry(ctx)
	require.NoError(err)
	require.Equal(2500.0, tel.PowerWatt)

	require.NoError(inv.WriteControls(ctx, domain.ControlsWrite{ConnectRevertSeconds: 60}))
	writes := reader.Writes()
	require.Len(writes, 2)
	require.Equal(uint16(sunspec_modbus.ConnDisconnect), writes[1].Conn)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv := NewSunSpecInverter(sunspec_modbus.NewTestInverterModbusReader(10000, 6000), zap.NewNop())
	_, err := inv.ReadTelemetry(ctx)
	require.ErrorIs(t, err, domain.ErrDeviceUnreachable)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		target error
	}{
		{sunspec_modbus.ErrNotSunSpec, domain.ErrProtocolMismatch},
		{fmt.Errorf("%w: blocks", sunspec_modbus.ErrMissingBlocks), domain.ErrProtocolMismatch},
		{modbus.ErrRequestTimedOut, domain.ErrDeviceTimeout},
		{context.DeadlineExceeded, domain.ErrDeviceTimeout},
		{errors.New("connection refused"), domain.ErrDeviceUnreachable},
		{sunspec_modbus.ErrTestFailure, domain.ErrDeviceUnreachable},
	}
	for _, tc := range cases {
		err := classify("read", tc.err)
		require.ErrorIs(t, err, tc.target)
		require.ErrorIs(t, err, tc.err)
	}
}

func TestMeterReadTelemetry(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	fleet := NewSimulatedFleet(config.SimulationConfig{
		LoadWatts:      1000,
		AvailableWatts: 3000,
		RatedWatts:     5000,
		InverterCount:  2,
	}, zap.NewNop())
	require.Len(fleet.Inverters, 2)
	require.NoError(fleet.Meter.Connect(ctx))

	snap, err := fleet.Meter.ReadTelemetry(ctx)
	require.NoError(err)
	// 1000 W load, 2 x 3000 W production
	require.Equal(-5000.0, snap.PowerWatt)
	require.Equal([]float64{-5000}, snap.PhasePowerWatt)
}
