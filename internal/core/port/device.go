package port

import (
	"context"

	"github.com/berfenger/exportguard/internal/core/domain"
)

// InverterConnection is a decoded view of one inverter. Implementations
// return errors wrapping domain.ErrDeviceUnreachable, domain.ErrDeviceTimeout
// or domain.ErrProtocolMismatch.
type InverterConnection interface {
	Connect(ctx context.Context) error
	Close() error
	ReadTelemetry(ctx context.Context) (*domain.InverterTelemetry, error)
	ReadNameplate(ctx context.Context) (*domain.Nameplate, error)
	ReadStatus(ctx context.Context) (*domain.InverterStatus, error)
	ReadControls(ctx context.Context) (*domain.InverterControls, error)
	WriteControls(ctx context.Context, values domain.ControlsWrite) error
}

type MeterConnection interface {
	Connect(ctx context.Context) error
	Close() error
	ReadTelemetry(ctx context.Context) (*domain.MeterSnapshot, error)
}
