// Package device adapts SunSpec Modbus readers to the core device ports.
package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/port"
	"github.com/berfenger/exportguard/pkg/sunspec_modbus"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type SunSpecInverter struct {
	reader sunspec_modbus.InverterModbusReader
	logger *zap.Logger
}

func NewSunSpecInverter(reader sunspec_modbus.InverterModbusReader, logger *zap.Logger) *SunSpecInverter {
	return &SunSpecInverter{reader: reader, logger: logger}
}

func (inv *SunSpecInverter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return classify("connect", err)
	}
	if err := inv.reader.Open(); err != nil {
		return classify("connect", err)
	}
	info, err := inv.reader.GetInfo()
	if err != nil {
		return classify("info", err)
	}
	inv.logger.Info("inverter connected",
		zap.String("manufacturer", info.Manufacturer),
		zap.String("model", info.Model),
		zap.String("version", info.Version))
	return nil
}

func (inv *SunSpecInverter) Close() error {
	return inv.reader.Close()
}

func (inv *SunSpecInverter) ReadTelemetry(ctx context.Context) (*domain.InverterTelemetry, error) {
	ac, err := call(ctx, "telemetry", inv.reader.GetAC)
	if err != nil {
		return nil, err
	}
	return &domain.InverterTelemetry{
		PowerWatt:    ac.PowerWatt,
		FrequencyHz:  ac.FrequencyHz,
		VoltageV:     ac.PhaseAVoltage,
		OperatingRaw: ac.OperatingState,
	}, nil
}

func (inv *SunSpecInverter) ReadNameplate(ctx context.Context) (*domain.Nameplate, error) {
	np, err := call(ctx, "nameplate", inv.reader.GetNameplate)
	if err != nil {
		return nil, err
	}
	return &domain.Nameplate{
		DERType:      np.DERType,
		MaxPowerWatt: np.RatedPowerWatt,
	}, nil
}

func (inv *SunSpecInverter) ReadStatus(ctx context.Context) (*domain.InverterStatus, error) {
	st, err := call(ctx, "status", inv.reader.GetStatus)
	if err != nil {
		return nil, err
	}
	return &domain.InverterStatus{
		PVConnected:    st.Connected(),
		OperatingState: sunspec_modbus.InverterStatusToString(st.OperatingState),
	}, nil
}

func (inv *SunSpecInverter) ReadControls(ctx context.Context) (*domain.InverterControls, error) {
	c, err := call(ctx, "controls", inv.reader.GetControls)
	if err != nil {
		return nil, err
	}
	return &domain.InverterControls{
		Connected:            c.Conn == sunspec_modbus.ConnConnect,
		OutputLimitEnabled:   c.OutputLimitEnabled,
		OutputLimitPercent:   c.OutputLimitPercent,
		OutputLimitPercentSF: c.OutputLimitPercentSF,
		OutputLimitRevert:    time.Duration(c.OutputLimitRevertSeconds) * time.Second,
	}, nil
}

func (inv *SunSpecInverter) WriteControls(ctx context.Context, values domain.ControlsWrite) error {
	if err := ctx.Err(); err != nil {
		return classify("write", err)
	}
	conn := uint16(sunspec_modbus.ConnDisconnect)
	if values.Connect {
		conn = sunspec_modbus.ConnConnect
	}
	err := inv.reader.SetControls(sunspec_modbus.ImmediateControlsWrite{
		Conn:                     conn,
		ConnRevertSeconds:        values.ConnectRevertSeconds,
		OutputLimitPercentRaw:    values.OutputLimitPercentRaw,
		OutputLimitRevertSeconds: values.OutputLimitRevertSeconds,
		OutputLimitEnabled:       values.OutputLimitEnabled,
	})
	if err != nil {
		return classify("write", err)
	}
	return nil
}

type SunSpecMeter struct {
	reader sunspec_modbus.ACMeterModbusReader
	logger *zap.Logger
}

func NewSunSpecMeter(reader sunspec_modbus.ACMeterModbusReader, logger *zap.Logger) *SunSpecMeter {
	return &SunSpecMeter{reader: reader, logger: logger}
}

func (m *SunSpecMeter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return classify("connect", err)
	}
	if err := m.reader.Open(); err != nil {
		return classify("connect", err)
	}
	info, err := m.reader.GetInfo()
	if err != nil {
		return classify("info", err)
	}
	m.logger.Info("meter connected",
		zap.String("manufacturer", info.Manufacturer),
		zap.String("model", info.Model))
	return nil
}

func (m *SunSpecMeter) Close() error {
	return m.reader.Close()
}

func (m *SunSpecMeter) ReadTelemetry(ctx context.Context) (*domain.MeterSnapshot, error) {
	pf, err := call(ctx, "meter", m.reader.GetPowerFlow)
	if err != nil {
		return nil, err
	}
	return &domain.MeterSnapshot{
		PowerWatt:      pf.CurrentPowerFlowWatt,
		PhasePowerWatt: pf.PhasePowerFlowWatt,
		FrequencyHz:    pf.Frequency,
	}, nil
}

func call[T any](ctx context.Context, op string, fn func() (*T, error)) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(op, err)
	}
	value, err := fn()
	if err != nil {
		return nil, classify(op, err)
	}
	return value, nil
}

// classify maps transport errors onto the domain error taxonomy.
func classify(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, sunspec_modbus.ErrNotSunSpec), errors.Is(err, sunspec_modbus.ErrMissingBlocks):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrProtocolMismatch, err)
	case errors.Is(err, modbus.ErrRequestTimedOut), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%s: %w: %w", op, domain.ErrDeviceTimeout, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrDeviceUnreachable, err)
	}
}

// ensure interface compliance
var _ port.InverterConnection = (*SunSpecInverter)(nil)
var _ port.MeterConnection = (*SunSpecMeter)(nil)
