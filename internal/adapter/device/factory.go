package device

import (
	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/port"
	"github.com/berfenger/exportguard/pkg/sunspec_modbus"

	"go.uber.org/zap"
)

// Fleet is the set of device connections the control loop drives.
type Fleet struct {
	Meter     port.MeterConnection
	Inverters []port.InverterConnection
}

func NewFleet(cfg config.DevicesConfig, logger *zap.Logger) (*Fleet, error) {
	if cfg.Simulate {
		return NewSimulatedFleet(cfg.Simulation, logger), nil
	}

	meterCfg := cfg.Resolve(cfg.Meter)
	meterReader, err := sunspec_modbus.CreateACMeterIntSFModbusReader(meterCfg.Host, meterCfg.Port,
		uint8(meterCfg.UnitId), cfg.Timeout(), logger, nil)
	if err != nil {
		return nil, err
	}

	fleet := &Fleet{
		Meter: NewSunSpecMeter(meterReader, logger.With(zap.Uint("unit_id", meterCfg.UnitId))),
	}
	for _, inv := range cfg.Inverters {
		invCfg := cfg.Resolve(inv)
		reader, err := sunspec_modbus.CreateInverterIntSFModbusReader(invCfg.Host, invCfg.Port,
			uint8(invCfg.UnitId), cfg.Timeout(), logger, nil)
		if err != nil {
			return nil, err
		}
		fleet.Inverters = append(fleet.Inverters,
			NewSunSpecInverter(reader, logger.With(zap.String("host", invCfg.Host), zap.Uint("unit_id", invCfg.UnitId))))
	}
	return fleet, nil
}

// NewSimulatedFleet wires in-memory inverters to an in-memory site meter.
func NewSimulatedFleet(cfg config.SimulationConfig, logger *zap.Logger) *Fleet {
	count := max(cfg.InverterCount, 1)
	readers := make([]*sunspec_modbus.TestInverterModbusReader, 0, count)
	fleet := &Fleet{}
	for range count {
		reader := sunspec_modbus.NewTestInverterModbusReader(cfg.RatedWatts, cfg.AvailableWatts)
		readers = append(readers, reader)
		fleet.Inverters = append(fleet.Inverters, NewSunSpecInverter(reader, logger))
	}
	fleet.Meter = NewSunSpecMeter(sunspec_modbus.NewTestACMeterModbusReader(cfg.LoadWatts, readers...), logger)
	return fleet
}
