package sunspec_modbus

import (
	"errors"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type InverterIntSFModbusReader struct {
	ModbusClient

	blocks inverterIntSFModbusBlocks
}

func CreateInverterIntSFModbusReader(ip string, port uint, inverterAddress uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) (InverterModbusReader, error) {
	client, err := newTCPClient(ip, port, inverterAddress, timeout)
	if err != nil {
		return nil, err
	}
	var traceLogger *zap.Logger
	if logger != nil {
		traceLogger = logger.With(zap.String("target", "inverter"), zap.Uint8("inverter", inverterAddress))
	}
	return &InverterIntSFModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: instruments(traceLogger, instrumentation),
		},
	}, nil
}

func (inv *InverterIntSFModbusReader) Open() error {
	if err := inv.client.Open(); err != nil {
		return err
	}
	if err := inv.survey(); err != nil {
		_ = inv.client.Close()
		return err
	}
	return nil
}

func (inv *InverterIntSFModbusReader) Close() error {
	return inv.client.Close()
}

func (inv *InverterIntSFModbusReader) GetInfo() (*InverterInfo, error) {
	manufacturer, err := inv.readString(inv.blocks.common+2, 16)
	if err != nil {
		return nil, err
	}
	model, err := inv.readString(inv.blocks.common+18, 16)
	if err != nil {
		return nil, err
	}
	version, err := inv.readString(inv.blocks.common+42, 8)
	if err != nil {
		return nil, err
	}
	serial, err := inv.readString(inv.blocks.common+50, 16)
	if err != nil {
		return nil, err
	}
	return &InverterInfo{
		Manufacturer: manufacturer,
		Model:        model,
		Version:      version,
		Serial:       serial,
	}, nil
}

// GetAC reads W, W_SF, Hz, Hz_SF in one request, then PhVphA/V_SF and St.
func (inv *InverterIntSFModbusReader) GetAC() (*InverterAC, error) {
	power, err := inv.readRegisters(inv.blocks.inverter+14, 4, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	voltage, err := inv.readRegisters(inv.blocks.inverter+10, 4, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	state, err := inv.readRegister(inv.blocks.inverter+38, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &InverterAC{
		PowerWatt:      inv.applySFint16(int16(power[0]), power[1]),
		FrequencyHz:    inv.applySF(power[2], power[3]),
		PhaseAVoltage:  inv.applySF(voltage[0], voltage[3]),
		OperatingState: state,
	}, nil
}

func (inv *InverterIntSFModbusReader) GetNameplate() (*Nameplate, error) {
	regs, err := inv.readRegisters(inv.blocks.nameplate+2, 3, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &Nameplate{
		DERType:        regs[0],
		RatedPowerWatt: inv.applySF(regs[1], regs[2]),
	}, nil
}

func (inv *InverterIntSFModbusReader) GetStatus() (*InverterStatus, error) {
	pvConn, err := inv.readRegister(inv.blocks.status+2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	state, err := inv.readRegister(inv.blocks.inverter+38, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &InverterStatus{
		PVConn:         pvConn,
		OperatingState: state,
	}, nil
}

// GetControls reads [Conn_WinTms, Conn_RvrtTms, Conn, WMaxLimPct,
// WMaxLimPct_WinTms, WMaxLimPct_RvrtTms, WMaxLimPct_RmpTms, WMaxLim_Ena]
// and WMaxLimPct_SF.
func (inv *InverterIntSFModbusReader) GetControls() (*ImmediateControls, error) {
	if inv.blocks.controls == 0 {
		return nil, errors.New("sunspec: controls block not supported")
	}
	regs, err := inv.readRegisters(inv.blocks.controls+2, 8, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	sf, err := inv.readRegister(inv.blocks.controls+23, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &ImmediateControls{
		Conn:                     regs[2],
		ConnRevertSeconds:        regs[1],
		OutputLimitPercent:       inv.applySF(regs[3], sf),
		OutputLimitPercentSF:     int16(sf),
		OutputLimitRevertSeconds: regs[5],
		OutputLimitEnabled:       regs[7] == 1,
	}, nil
}

// SetControls disconnects before touching the limit, and sets the limit
// before connecting, so the device never runs unlimited in between.
func (inv *InverterIntSFModbusReader) SetControls(values ImmediateControlsWrite) error {
	if inv.blocks.controls == 0 {
		return errors.New("sunspec: controls block not supported")
	}
	if values.Conn == ConnDisconnect {
		if err := inv.writeConn(values); err != nil {
			return err
		}
		return inv.writeOutputLimit(values)
	}
	if err := inv.writeOutputLimit(values); err != nil {
		return err
	}
	return inv.writeConn(values)
}

func (inv *InverterIntSFModbusReader) writeConn(values ImmediateControlsWrite) error {
	// [Conn_WinTms, Conn_RvrtTms, Conn]
	return inv.writeRegisters(inv.blocks.controls+2, []uint16{0, values.ConnRevertSeconds, values.Conn})
}

func (inv *InverterIntSFModbusReader) writeOutputLimit(values ImmediateControlsWrite) error {
	// write 0 to WMaxLim_Ena. A new value won't be accepted without this step
	if err := inv.writeRegister(inv.blocks.controls+9, uint16(0)); err != nil {
		return err
	}
	if !values.OutputLimitEnabled {
		return inv.writeRegisters(inv.blocks.controls+5, []uint16{values.OutputLimitPercentRaw, 0, values.OutputLimitRevertSeconds, 0})
	}
	// [WMaxLimPct, WMaxLimPct_WinTms, WMaxLimPct_RvrtTms, WMaxLimPct_RmpTms, WMaxLim_Ena]
	return inv.writeRegisters(inv.blocks.controls+5, []uint16{values.OutputLimitPercentRaw, 0, values.OutputLimitRevertSeconds, 0, 1})
}
