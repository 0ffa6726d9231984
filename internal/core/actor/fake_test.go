package actor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/poller"

	"github.com/asynkron/protoactor-go/actor"
)

// fakeInverter is a scripted inverter connection safe for concurrent use.
type fakeInverter struct {
	mu         sync.Mutex
	telemetry  domain.InverterTelemetry
	controls   domain.InverterControls
	writes     []domain.ControlsWrite
	connectErr error
	readErr    error
	connects   atomic.Int32
	closes     atomic.Int32
}

func newFakeInverter(powerWatt float64) *fakeInverter {
	return &fakeInverter{
		telemetry: domain.InverterTelemetry{PowerWatt: powerWatt, FrequencyHz: 50, VoltageV: 230},
		controls:  domain.InverterControls{Connected: true, OutputLimitPercentSF: -2},
	}
}

func (f *fakeInverter) setReadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *fakeInverter) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeInverter) Writes() []domain.ControlsWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ControlsWrite(nil), f.writes...)
}

func (f *fakeInverter) Connect(ctx context.Context) error {
	f.connects.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakeInverter) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeInverter) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readErr
}

func (f *fakeInverter) ReadTelemetry(ctx context.Context) (*domain.InverterTelemetry, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.telemetry
	return &t, nil
}

func (f *fakeInverter) ReadNameplate(ctx context.Context) (*domain.Nameplate, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return &domain.Nameplate{DERType: domain.DER_TYPE_PV, MaxPowerWatt: 10000}, nil
}

func (f *fakeInverter) ReadStatus(ctx context.Context) (*domain.InverterStatus, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return &domain.InverterStatus{PVConnected: true, OperatingState: "MPPT"}, nil
}

func (f *fakeInverter) ReadControls(ctx context.Context) (*domain.InverterControls, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.controls
	return &c, nil
}

func (f *fakeInverter) WriteControls(ctx context.Context, values domain.ControlsWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, values)
	return nil
}

type fakeMeter struct {
	powerWatt float64
}

func (f *fakeMeter) Connect(ctx context.Context) error { return nil }

func (f *fakeMeter) Close() error { return nil }

func (f *fakeMeter) ReadTelemetry(ctx context.Context) (*domain.MeterSnapshot, error) {
	return &domain.MeterSnapshot{PowerWatt: f.powerWatt, FrequencyHz: 50}, nil
}

var errUnreachable = fmt.Errorf("lorem: %w", domain.ErrDeviceUnreachable)

func testDeviceOptions() DeviceOptions {
	return DeviceOptions{
		PollInterval: 50 * time.Millisecond,
		Retry: poller.RetryPolicy{
			Attempts:       2,
			Delay:          5 * time.Millisecond,
			AttemptTimeout: 200 * time.Millisecond,
		},
		ReconnectAfterFailures: 2,
		ReconnectDelay:         50 * time.Millisecond,
		RevertTimeout:          60 * time.Second,
	}
}

// recorder collects every message of the given type it receives. Requests
// of ApplyConfigurationRequest are answered.
type recorder[T any] struct {
	mu       sync.Mutex
	received []T
}

func (r *recorder[T]) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case T:
		r.mu.Lock()
		r.received = append(r.received, msg)
		r.mu.Unlock()
		if _, ok := any(msg).(domain.ApplyConfigurationRequest); ok && ctx.Sender() != nil {
			ctx.Respond(domain.ApplyConfigurationResponse{})
		}
	}
}

func (r *recorder[T]) Received() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.received...)
}
