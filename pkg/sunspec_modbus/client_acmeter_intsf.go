package sunspec_modbus

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type acMeterIntSFModbusBlocks struct {
	common  uint16
	acMeter uint16
	meterId uint16
}

func (blk *acMeterIntSFModbusBlocks) AllBlocksDefined() bool {
	return blk.common > 0 && blk.acMeter > 0
}

// phases reported by each meter model: 201 single, 202 split, 203/204 three
func (blk *acMeterIntSFModbusBlocks) phases() int {
	switch blk.meterId {
	case 201:
		return 1
	case 202:
		return 2
	default:
		return 3
	}
}

type ACMeterIntSFModbusReader struct {
	ModbusClient
	blocks acMeterIntSFModbusBlocks
}

func CreateACMeterIntSFModbusReader(ip string, port uint, acMeterAddress uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) (ACMeterModbusReader, error) {
	client, err := newTCPClient(ip, port, acMeterAddress, timeout)
	if err != nil {
		return nil, err
	}
	var traceLogger *zap.Logger
	if logger != nil {
		traceLogger = logger.With(zap.String("target", "acMeter"), zap.Uint8("acMeter", acMeterAddress))
	}
	return &ACMeterIntSFModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: instruments(traceLogger, instrumentation),
		},
	}, nil
}

func (reader *ACMeterIntSFModbusReader) Open() error {
	if err := reader.client.Open(); err != nil {
		return err
	}
	if err := reader.survey(); err != nil {
		_ = reader.client.Close()
		return err
	}
	return nil
}

func (reader *ACMeterIntSFModbusReader) Close() error {
	return reader.client.Close()
}

func (reader *ACMeterIntSFModbusReader) GetInfo() (*ACMeterInfo, error) {
	manufacturer, err := reader.readString(reader.blocks.common+2, 16)
	if err != nil {
		return nil, err
	}
	model, err := reader.readString(reader.blocks.common+18, 16)
	if err != nil {
		return nil, err
	}
	version, err := reader.readString(reader.blocks.common+42, 8)
	if err != nil {
		return nil, err
	}
	serial, err := reader.readString(reader.blocks.common+50, 16)
	if err != nil {
		return nil, err
	}
	return &ACMeterInfo{
		Manufacturer: manufacturer,
		Model:        model,
		Version:      version,
		Serial:       serial,
	}, nil
}

// GetPowerFlow reads [Hz, Hz_SF, W, WphA, WphB, WphC, W_SF] in one request.
func (reader *ACMeterIntSFModbusReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	regs, err := reader.readRegisters(reader.blocks.acMeter+16, 7, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	powerSF := regs[6]
	phases := make([]float64, 0, 3)
	for i := 0; i < reader.blocks.phases(); i++ {
		phases = append(phases, reader.applySFint16(int16(regs[3+i]), powerSF))
	}
	return &ACMeterPowerFlow{
		CurrentPowerFlowWatt: reader.applySFint16(int16(regs[2]), powerSF),
		PhasePowerFlowWatt:   phases,
		Frequency:            reader.applySF(regs[0], regs[1]),
	}, nil
}

func (reader *ACMeterIntSFModbusReader) survey() error {
	if err := checkSunSpecMarker(reader.ModbusClient); err != nil {
		return err
	}
	blocks := acMeterIntSFModbusBlocks{}
	err := walkBlocks(reader.client, func(block *modbusBlock) bool {
		switch {
		case block.id == SUNSPEC_WK_COMMON:
			blocks.common = block.baseAddr
		case block.id >= SUNSPEC_WK_METERS_MIN && block.id <= SUNSPEC_WK_METERS_MAX:
			blocks.acMeter = block.baseAddr
			blocks.meterId = block.id
		}
		return blocks.AllBlocksDefined()
	})
	if err != nil {
		return err
	}
	if !blocks.AllBlocksDefined() {
		return fmt.Errorf("%w (common, ac_meter): %+v", ErrMissingBlocks, blocks)
	}
	reader.blocks = blocks
	return nil
}
