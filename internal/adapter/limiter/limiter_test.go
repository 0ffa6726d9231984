package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/util"
	"github.com/berfenger/exportguard/pkg/number"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFixedLimiter(t *testing.T) {
	assert := assert.New(t)

	empty := NewFixedLimiter(config.FixedLimitConfig{})
	assert.True(empty.CurrentDirective().IsEmpty())
	assert.Equal(SOURCE_FIXED, empty.CurrentDirective().Source)

	connect := true
	export := 2000.0
	cfg := config.FixedLimitConfig{Connect: &connect, ExportLimitWatts: &export}
	l := NewFixedLimiter(cfg)
	export = 0
	d := l.CurrentDirective()
	assert.True(*d.Connect)
	assert.Nil(d.Energize)
	assert.Equal(2000.0, *d.ExportLimitWatts)
	assert.Nil(d.GenerationLimitWatts)
}

func TestScheduleLimiterWindow(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewScheduleLimiter()
	l.now = func() time.Time { return now }

	assert.True(l.CurrentDirective().IsEmpty())

	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)
	err := l.Set(ScheduleLimit{
		ExportLimit: &number.ScaledPower{Value: 15, Multiplier: 2},
		Energize:    domain.Bool(true),
		Start:       &start,
		End:         &end,
	})
	require.NoError(t, err)

	d := l.CurrentDirective()
	assert.Equal(SOURCE_SCHEDULE, d.Source)
	assert.Equal(1500.0, *d.ExportLimitWatts)
	assert.True(*d.Energize)

	// end is exclusive
	now = end
	assert.True(l.CurrentDirective().IsEmpty())
	now = start
	assert.False(l.CurrentDirective().IsEmpty())
	now = start.Add(-time.Second)
	assert.True(l.CurrentDirective().IsEmpty())
	assert.NotNil(l.Limit())

	l.Clear()
	now = start
	assert.True(l.CurrentDirective().IsEmpty())
	assert.Nil(l.Limit())
}

func TestScheduleLimiterValidation(t *testing.T) {
	l := NewScheduleLimiter()
	start := time.Now()

	err := l.Set(ScheduleLimit{Start: &start, End: &start})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = l.Set(ScheduleLimit{GenerationLimit: &number.ScaledPower{Value: -1}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, l.Limit())

	// open windows are always active
	require.NoError(t, l.Set(ScheduleLimit{GenerationLimit: &number.ScaledPower{Value: 5, Multiplier: 3}}))
	assert.Equal(t, 5000.0, *l.CurrentDirective().GenerationLimitWatts)
}

func TestDecodeBusPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		check   func(t *testing.T, d domain.ControlDirective)
	}{
		{
			name:    "full",
			payload: `{"opModConnect":true,"opModEnergize":false,"opModExpLimW":1500,"opModGenLimW":8000.5}`,
			check: func(t *testing.T, d domain.ControlDirective) {
				assert.True(t, *d.Connect)
				assert.False(t, *d.Energize)
				assert.Equal(t, 1500.0, *d.ExportLimitWatts)
				assert.Equal(t, 8000.5, *d.GenerationLimitWatts)
				assert.Equal(t, SOURCE_BUS, d.Source)
			},
		},
		{
			name:    "empty object",
			payload: `{}`,
			check: func(t *testing.T, d domain.ControlDirective) {
				assert.True(t, d.IsEmpty())
			},
		},
		{
			name:    "zero export",
			payload: `{"opModExpLimW":0}`,
			check: func(t *testing.T, d domain.ControlDirective) {
				assert.Equal(t, 0.0, *d.ExportLimitWatts)
			},
		},
		{name: "negative export", payload: `{"opModExpLimW":-1}`, wantErr: true},
		{name: "negative generation", payload: `{"opModGenLimW":-0.5}`, wantErr: true},
		{name: "wrong type", payload: `{"opModConnect":"yes"}`, wantErr: true},
		{name: "unknown field", payload: `{"exportLimit":10}`, wantErr: true},
		{name: "not json", payload: `lorem`, wantErr: true},
		{name: "overflow", payload: `{"opModExpLimW":1e400}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DecodeBusPayload([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			tt.check(t, d)
		})
	}
}

type fakeTransport struct {
	handler func([]byte)
	closed  bool
	err     error
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Subscribe(_ context.Context, handler func([]byte)) error {
	f.handler = handler
	return f.err
}

func (f *fakeTransport) Close() { f.closed = true }

func TestBusLimiterKeepsLastValid(t *testing.T) {
	assert := assert.New(t)

	transport := &fakeTransport{}
	l := NewBusLimiter(transport, zap.NewNop())
	require.NoError(t, l.Start(context.Background()))

	assert.True(l.CurrentDirective().IsEmpty())

	transport.handler([]byte(`{"opModExpLimW":500}`))
	assert.Equal(500.0, *l.CurrentDirective().ExportLimitWatts)

	transport.handler([]byte(`{"opModExpLimW":-500}`))
	assert.Equal(500.0, *l.CurrentDirective().ExportLimitWatts)

	transport.handler([]byte(`{"opModEnergize":false}`))
	d := l.CurrentDirective()
	assert.Nil(d.ExportLimitWatts)
	assert.False(*d.Energize)

	l.Stop()
	assert.True(transport.closed)
}

func TestTariffPresetWindows(t *testing.T) {
	tests := []struct {
		preset string
		zone   string
	}{
		{config.TARIFF_AUSGRID_EA029, "Australia/Sydney"},
		{config.TARIFF_SAPN_RELE2W, "Australia/Adelaide"},
	}
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			tariff, err := TariffPreset(tt.preset)
			require.NoError(t, err)
			loc, err := time.LoadLocation(tt.zone)
			require.NoError(t, err)

			at := func(h, m, s int) domain.ControlDirective {
				return tariff.DirectiveAt(time.Date(2024, 1, 15, h, m, s, 0, loc))
			}
			assert.Nil(t, at(9, 59, 59).ExportLimitWatts)
			assert.Equal(t, 0.0, *at(10, 0, 0).ExportLimitWatts)
			assert.Equal(t, 0.0, *at(15, 59, 59).ExportLimitWatts)
			assert.Nil(t, at(16, 0, 0).ExportLimitWatts)
			assert.Equal(t, tt.preset, at(12, 0, 0).Source)
		})
	}

	_, err := TariffPreset("lorem")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTariffEvaluatedInOwnZone(t *testing.T) {
	tariff, err := TariffPreset(config.TARIFF_AUSGRID_EA029)
	require.NoError(t, err)

	// 00:30 UTC in January is 11:30 AEDT
	d := tariff.DirectiveAt(time.Date(2024, 1, 15, 0, 30, 0, 0, time.UTC))
	assert.Equal(t, 0.0, *d.ExportLimitWatts)

	// 12:00 UTC is 23:00 in Sydney
	d = tariff.DirectiveAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	assert.Nil(t, d.ExportLimitWatts)
}

func TestClockTimePeriodMonths(t *testing.T) {
	p := ClockTimePeriod{
		Start:  ClockTime{Hour: 16},
		End:    ClockTime{Hour: 22},
		Months: []time.Month{time.November, time.December, time.January, time.February, time.March},
	}
	assert.True(t, p.Contains(time.Date(2024, 1, 10, 17, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, 1, 10, 22, 0, 0, 0, time.UTC)))
}

func TestTariffLimiterRefresh(t *testing.T) {
	tariff, err := TariffPreset(config.TARIFF_SAPN_RELE2W)
	require.NoError(t, err)

	l := NewTariffLimiter(tariff, zap.NewNop())
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, tariff.Location)
	l.now = func() time.Time { return now }

	l.Refresh()
	assert.True(t, l.CurrentDirective().IsEmpty())

	now = now.Add(time.Hour)
	// snapshot only moves on refresh
	assert.True(t, l.CurrentDirective().IsEmpty())
	l.Refresh()
	assert.Equal(t, 0.0, *l.CurrentDirective().ExportLimitWatts)
}

func TestTariffLimiterStartSchedulesRefresh(t *testing.T) {
	tariff, err := TariffPreset(config.TARIFF_AUSGRID_EA029)
	require.NoError(t, err)

	l := NewTariffLimiter(tariff, zap.NewNop())
	now := time.Date(2024, 3, 1, 11, 0, 0, 0, tariff.Location)
	l.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, l.Start(ctx))
	defer l.Stop()

	// Start refreshes before the first cron fire
	assert.Equal(t, 0.0, *l.CurrentDirective().ExportLimitWatts)

	require.NotNil(t, l.scheduler)
	assert.True(t, l.scheduler.IsStarted())
	keys, err := l.scheduler.GetJobKeys()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "tariff_"+tariff.Name, keys[0].Name())
}

type failingSource struct {
	FixedLimiter
	started, stopped bool
	err              error
}

func (f *failingSource) Name() string { return "failing" }

func (f *failingSource) Start(context.Context) error {
	f.started = true
	return f.err
}

func (f *failingSource) Stop() { f.stopped = true }

func TestRegistry(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	export := 3000.0
	cfg.Limits.Fixed.ExportLimitWatts = &export
	cfg.Limits.Schedule.Enable = true
	cfg.Limits.Tariff.Enable = true
	cfg.Limits.Tariff.Preset = config.TARIFF_AUSGRID_EA029

	r, err := RegistryFromConfig(&cfg, zap.NewNop())
	require.NoError(t, err)

	names := []string{}
	for _, s := range r.Sources() {
		names = append(names, s.Name())
	}
	assert.Equal([]string{SOURCE_FIXED, SOURCE_SCHEDULE, config.TARIFF_AUSGRID_EA029}, names)
	require.NotNil(t, r.Schedule())

	require.NoError(t, r.Schedule().Set(ScheduleLimit{ExportLimit: &number.ScaledPower{Value: 1}}))
	directives := r.Directives()
	assert.Len(directives, 3)
	assert.Equal(3000.0, *directives[0].ExportLimitWatts)
	assert.Equal(1.0, *directives[1].ExportLimitWatts)
	assert.Equal(config.TARIFF_AUSGRID_EA029, directives[2].Source)

	cfg.Limits.Bus.Enable = true
	cfg.Limits.Bus.Transport = "lorem"
	_, err = RegistryFromConfig(&cfg, zap.NewNop())
	assert.ErrorIs(err, domain.ErrInvalidInput)
}

func TestRegistryStartRollback(t *testing.T) {
	ok := &failingSource{}
	bad := &failingSource{err: errors.New("boom")}
	r := NewRegistry(NewFixedLimiter(config.FixedLimitConfig{}), ok, bad)

	err := r.Start(context.Background())
	assert.Error(t, err)
	assert.True(t, ok.started)
	assert.True(t, ok.stopped)
	assert.True(t, bad.started)
	assert.False(t, bad.stopped)
	assert.Nil(t, r.Schedule())
}
