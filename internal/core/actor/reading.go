package actor

import (
	"context"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/poller"
	"github.com/berfenger/exportguard/internal/core/port"
)

const (
	STEP_GRID      = "grid"
	STEP_NAMEPLATE = "nameplate"
	STEP_INVERTER  = "inverter"
	STEP_STATUS    = "status"
	STEP_CONTROLS  = "controls"
)

// Sample is one successful read sequence with the latency of each step.
type Sample[T any] struct {
	Value T
	Steps map[string]time.Duration
}

// InverterSequence reads nameplate, inverter, status and controls in that
// order. Any failing step fails the whole sequence.
func InverterSequence(conn port.InverterConnection) poller.Reader[Sample[domain.InverterSnapshot]] {
	return poller.ReaderFunc[Sample[domain.InverterSnapshot]](func(ctx context.Context) (Sample[domain.InverterSnapshot], error) {
		latency := poller.NewLatency()
		var out Sample[domain.InverterSnapshot]

		nameplate, err := poller.Step(ctx, latency, STEP_NAMEPLATE, conn.ReadNameplate)
		if err != nil {
			return out, err
		}
		telemetry, err := poller.Step(ctx, latency, STEP_INVERTER, conn.ReadTelemetry)
		if err != nil {
			return out, err
		}
		status, err := poller.Step(ctx, latency, STEP_STATUS, conn.ReadStatus)
		if err != nil {
			return out, err
		}
		controls, err := poller.Step(ctx, latency, STEP_CONTROLS, conn.ReadControls)
		if err != nil {
			return out, err
		}

		out.Value = domain.InverterSnapshot{
			Telemetry: *telemetry,
			Nameplate: *nameplate,
			Status:    *status,
			Controls:  *controls,
		}
		out.Steps = latency.Steps()
		return out, nil
	})
}

func MeterSequence(conn port.MeterConnection) poller.Reader[Sample[domain.MeterSnapshot]] {
	return poller.ReaderFunc[Sample[domain.MeterSnapshot]](func(ctx context.Context) (Sample[domain.MeterSnapshot], error) {
		latency := poller.NewLatency()
		snap, err := poller.Step(ctx, latency, STEP_GRID, conn.ReadTelemetry)
		if err != nil {
			return Sample[domain.MeterSnapshot]{}, err
		}
		return Sample[domain.MeterSnapshot]{Value: *snap, Steps: latency.Steps()}, nil
	})
}
