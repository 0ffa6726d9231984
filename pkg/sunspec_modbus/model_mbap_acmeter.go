package sunspec_modbus

// ACMeterInfo is the common model block of the site meter.
type ACMeterInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
}

// ACMeterPowerFlow is one reading of the meter at the grid connection
// point. Power is positive while the site imports.
type ACMeterPowerFlow struct {
	CurrentPowerFlowWatt float64
	// only the phases the meter model reports
	PhasePowerFlowWatt []float64
	Frequency          float64
}

type ACMeterModbusReader interface {
	Open() error
	Close() error
	GetInfo() (*ACMeterInfo, error)
	GetPowerFlow() (*ACMeterPowerFlow, error)
}
