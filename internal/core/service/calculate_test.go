package service

import (
	"math"
	"testing"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	controls []domain.ControlRecord
}

func (s *recordingSink) WriteControl(record domain.ControlRecord) {
	s.controls = append(s.controls, record)
}
func (s *recordingSink) WriteLimit(domain.ReconciledLimit)              {}
func (s *recordingSink) WriteDevicePoll(record domain.DevicePollRecord) {}

func inverter(watts, nameplate float64) domain.InverterSnapshot {
	return domain.InverterSnapshot{
		Telemetry: domain.InverterTelemetry{PowerWatt: watts},
		Nameplate: domain.Nameplate{DERType: domain.DER_TYPE_PV, MaxPowerWatt: nameplate},
		Controls:  domain.InverterControls{Connected: true, OutputLimitPercentSF: -2},
	}
}

func limitedInverter(watts, nameplate, pct float64) domain.InverterSnapshot {
	inv := inverter(watts, nameplate)
	inv.Controls.OutputLimitEnabled = true
	inv.Controls.OutputLimitPercent = pct
	return inv
}

func newTestCalculator(rate float64) (*DefaultControlCalculator, *recordingSink) {
	sink := &recordingSink{}
	return NewControlCalculator(DEFAULT_EXPORT_LIMIT_W, NewRampRateController(rate), sink, zap.NewNop()), sink
}

func TestCalculateTargetSolarWatts(t *testing.T) {
	cases := []struct {
		solar, site, exportLimit, want float64
	}{
		{2000, 5000, 5000, 12000},
		{5000, -4000, 5000, 6000},
		{8000, -7000, 5000, 6000},
		{8.13, -5.75, 0, 2.38},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CalculateTargetSolarWatts(c.solar, c.site, c.exportLimit),
			"solar=%v site=%v exportLimit=%v", c.solar, c.site, c.exportLimit)
	}
}

func TestTargetPowerRatioFromNameplate(t *testing.T) {
	cases := []struct {
		nameplate, target, want float64
	}{
		{10000, 5000, 0.5},
		{10000, 15000, 1},
		{10000, 0, 0},
		{10000, -500, 0},
		{3, 0.27, 0.09},
		{0, 5000, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, TargetPowerRatioFromNameplate(c.nameplate, c.target),
			"nameplate=%v target=%v", c.nameplate, c.target)
	}
}

func TestTargetPowerRatio(t *testing.T) {
	require := require.New(t)

	require.Equal(0.5, TargetPowerRatio(2000, 5000, 0.2))
	require.Equal(1.0, TargetPowerRatio(2000, 12000, 0.2))
	require.Equal(0.0, TargetPowerRatio(2000, -100, 0.2))

	// degenerate ratios fall back to a fixed policy
	require.Equal(STALLED_RATIO_NUDGE, TargetPowerRatio(0, 5000, 0))
	require.Equal(STALLED_RATIO_NUDGE, TargetPowerRatio(100, 5000, math.NaN()))
	require.Equal(0.0, TargetPowerRatio(5000, 5000, 0))
	require.Equal(0.0, TargetPowerRatio(200, 100, math.NaN()))
	require.Equal(STALLED_RATIO_NUDGE, TargetPowerRatio(0, 5000, 0.3))
}

func TestCurrentPowerRatio(t *testing.T) {
	require := require.New(t)

	require.Equal(0.2, CurrentPowerRatio([]domain.InverterSnapshot{inverter(2000, 10000)}))
	require.Equal(0.55, CurrentPowerRatio([]domain.InverterSnapshot{limitedInverter(2000, 10000, 55)}))
	require.Equal(0.4, CurrentPowerRatio([]domain.InverterSnapshot{inverter(2000, 10000), limitedInverter(100, 5000, 60)}))
	require.Equal(1.0, CurrentPowerRatio([]domain.InverterSnapshot{inverter(12000, 10000)}))
	require.Equal(0.0, CurrentPowerRatio([]domain.InverterSnapshot{inverter(-15, 10000)}))
	require.True(math.IsNaN(CurrentPowerRatio(nil)))
	require.True(math.IsNaN(CurrentPowerRatio([]domain.InverterSnapshot{inverter(2000, 0)})))
}

func TestCalculateEndToEndRamped(t *testing.T) {
	require := require.New(t)

	calc, sink := newTestCalculator(0.1)
	t0 := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	input := port.ControlInput{
		Limit: domain.ReconciledLimit{
			ExportLimitWatts: &domain.Winner[float64]{Value: 5000, Source: "fixed"},
		},
		Meter:     domain.MeterSnapshot{PowerWatt: 5000},
		Inverters: []domain.InverterSnapshot{inverter(2000, 10000)},
		Now:       t0,
	}

	cfg, record := calc.Calculate(input)
	require.Equal(domain.Limit{CurrentPowerRatio: 0.2, TargetPowerRatio: 1, RampedTargetPowerRatio: 0.2}, cfg)
	require.Equal(12000.0, record.ExportLimitTargetSolarWatts)
	require.Equal(12000.0, record.TargetSolarWatts)
	require.False(record.Deenergize)
	require.NotEmpty(record.Id)

	input.Now = t0.Add(time.Second)
	cfg, _ = calc.Calculate(input)
	require.Equal(domain.Limit{CurrentPowerRatio: 0.2, TargetPowerRatio: 1, RampedTargetPowerRatio: 0.3}, cfg)

	require.Len(sink.controls, 2)
	require.Equal(0.3, sink.controls[1].RampedTargetSolarPowerRatio)
}

func TestCalculateDeenergize(t *testing.T) {
	require := require.New(t)

	for _, limit := range []domain.ReconciledLimit{
		{Energize: &domain.Winner[bool]{Value: false, Source: "bus"}},
		{Connect: &domain.Winner[bool]{Value: false, Source: "schedule"}},
		{
			Energize:         &domain.Winner[bool]{Value: false, Source: "bus"},
			ExportLimitWatts: &domain.Winner[float64]{Value: 100000, Source: "fixed"},
		},
	} {
		calc, sink := newTestCalculator(0.1)
		cfg, record := calc.Calculate(port.ControlInput{
			Limit:     limit,
			Meter:     domain.MeterSnapshot{PowerWatt: 4000},
			Inverters: []domain.InverterSnapshot{inverter(300, 5000)},
			Now:       time.Now(),
		})
		require.Equal(domain.Deenergize{}, cfg)
		require.True(record.Deenergize)
		require.Len(sink.controls, 1)
	}
}

func TestCalculateDeenergizeRecordsTargets(t *testing.T) {
	require := require.New(t)

	calc, sink := newTestCalculator(0.1)
	t0 := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	input := port.ControlInput{
		Limit: domain.ReconciledLimit{
			Energize:         &domain.Winner[bool]{Value: false, Source: "bus"},
			ExportLimitWatts: &domain.Winner[float64]{Value: 5000, Source: "fixed"},
		},
		Meter:     domain.MeterSnapshot{PowerWatt: 5000},
		Inverters: []domain.InverterSnapshot{inverter(2000, 10000)},
		Now:       t0,
	}

	cfg, record := calc.Calculate(input)
	require.Equal(domain.Deenergize{}, cfg)
	require.True(record.Deenergize)
	require.Equal(5000.0, record.ExportLimitWatts)
	require.Equal(12000.0, record.ExportLimitTargetSolarWatts)
	require.Equal(12000.0, record.TargetSolarWatts)
	require.Equal(0.2, record.CurrentPowerRatio)
	require.Equal(1.0, record.TargetSolarPowerRatio)
	require.Equal(0.2, record.RampedTargetSolarPowerRatio)
	require.Equal(record, sink.controls[0])

	// the ramp re-seeds from the measured ratio once energized again
	input.Limit.Energize = nil
	input.Now = t0.Add(time.Second)
	cfg, _ = calc.Calculate(input)
	require.Equal(domain.Limit{CurrentPowerRatio: 0.2, TargetPowerRatio: 1, RampedTargetPowerRatio: 0.2}, cfg)
}

func TestCalculateDefaultsAndGenerationLimit(t *testing.T) {
	require := require.New(t)

	calc, _ := newTestCalculator(0)
	input := port.ControlInput{
		Meter:     domain.MeterSnapshot{PowerWatt: -1000},
		Inverters: []domain.InverterSnapshot{inverter(3000, 10000)},
		Now:       time.Now(),
	}
	cfg, record := calc.Calculate(input)
	require.Equal(float64(DEFAULT_EXPORT_LIMIT_W), record.ExportLimitWatts)
	require.Equal(3500.0, record.TargetSolarWatts)
	require.Equal(0.35, cfg.(domain.Limit).TargetPowerRatio)

	input.Limit.GenerationLimitWatts = &domain.Winner[float64]{Value: 2500, Source: "schedule"}
	cfg, record = calc.Calculate(input)
	require.Equal(2500.0, record.TargetSolarWatts)
	require.Equal(0.25, cfg.(domain.Limit).RampedTargetPowerRatio)
}

func TestCalculateStalledInverter(t *testing.T) {
	calc, _ := newTestCalculator(0)
	cfg, _ := calc.Calculate(port.ControlInput{
		Meter:     domain.MeterSnapshot{PowerWatt: 200},
		Inverters: []domain.InverterSnapshot{limitedInverter(0, 10000, 0)},
		Now:       time.Now(),
	})
	require.Equal(t, domain.Limit{CurrentPowerRatio: 0, TargetPowerRatio: 0.01, RampedTargetPowerRatio: 0.01}, cfg)
}
