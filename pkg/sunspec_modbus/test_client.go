package sunspec_modbus

import (
	"errors"
	"math"
	"sync"

	"github.com/berfenger/exportguard/pkg/number"
)

var ErrTestFailure = errors.New("test reader: injected failure")

const TEST_OUTPUT_LIMIT_SF = -2

// TestInverterModbusReader is an in-memory inverter. Its AC output follows
// the available PV power, capped by the output limit while enabled.
type TestInverterModbusReader struct {
	mu        sync.Mutex
	rated     float64
	available float64
	controls  ImmediateControls
	failReads int
	writes    []ImmediateControlsWrite
}

func NewTestInverterModbusReader(ratedPowerWatt, availablePowerWatt float64) *TestInverterModbusReader {
	return &TestInverterModbusReader{
		rated:     ratedPowerWatt,
		available: availablePowerWatt,
		controls: ImmediateControls{
			Conn:                 ConnConnect,
			OutputLimitPercent:   100,
			OutputLimitPercentSF: TEST_OUTPUT_LIMIT_SF,
		},
	}
}

func (inv *TestInverterModbusReader) Open() error {
	return nil
}

func (inv *TestInverterModbusReader) Close() error {
	return nil
}

// FailReads makes the next n reads fail.
func (inv *TestInverterModbusReader) FailReads(n int) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.failReads = n
}

func (inv *TestInverterModbusReader) SetAvailablePower(watts float64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.available = watts
}

func (inv *TestInverterModbusReader) Writes() []ImmediateControlsWrite {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return append([]ImmediateControlsWrite(nil), inv.writes...)
}

func (inv *TestInverterModbusReader) fail() error {
	if inv.failReads > 0 {
		inv.failReads--
		return ErrTestFailure
	}
	return nil
}

func (inv *TestInverterModbusReader) GetInfo() (*InverterInfo, error) {
	return &InverterInfo{
		Manufacturer: "Exportguard",
		Model:        "Test inverter",
		Version:      "1.0",
		Serial:       "TEST-0001",
	}, nil
}

func (inv *TestInverterModbusReader) output() float64 {
	if inv.controls.Conn != ConnConnect {
		return 0
	}
	out := math.Min(inv.available, inv.rated)
	if inv.controls.OutputLimitEnabled {
		out = math.Min(out, number.WithPow10(inv.rated*inv.controls.OutputLimitPercent, -2))
	}
	return out
}

func (inv *TestInverterModbusReader) GetAC() (*InverterAC, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := inv.fail(); err != nil {
		return nil, err
	}
	return &InverterAC{
		PowerWatt:      inv.output(),
		FrequencyHz:    50,
		PhaseAVoltage:  230.4,
		OperatingState: InverterStatusMPPT,
	}, nil
}

func (inv *TestInverterModbusReader) GetNameplate() (*Nameplate, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := inv.fail(); err != nil {
		return nil, err
	}
	return &Nameplate{DERType: 4, RatedPowerWatt: inv.rated}, nil
}

func (inv *TestInverterModbusReader) GetStatus() (*InverterStatus, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := inv.fail(); err != nil {
		return nil, err
	}
	var pvConn uint16 = PVConnAvailable
	if inv.controls.Conn == ConnConnect {
		pvConn |= PVConnConnected | PVConnOperating
	}
	return &InverterStatus{PVConn: pvConn, OperatingState: InverterStatusMPPT}, nil
}

func (inv *TestInverterModbusReader) GetControls() (*ImmediateControls, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := inv.fail(); err != nil {
		return nil, err
	}
	c := inv.controls
	return &c, nil
}

func (inv *TestInverterModbusReader) SetControls(values ImmediateControlsWrite) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.writes = append(inv.writes, values)
	inv.controls.Conn = values.Conn
	inv.controls.ConnRevertSeconds = values.ConnRevertSeconds
	inv.controls.OutputLimitEnabled = values.OutputLimitEnabled
	inv.controls.OutputLimitRevertSeconds = values.OutputLimitRevertSeconds
	inv.controls.OutputLimitPercent = number.WithPow10(float64(values.OutputLimitPercentRaw), int32(inv.controls.OutputLimitPercentSF))
	return nil
}

// TestACMeterModbusReader is the site meter of a simulated installation:
// a constant load minus whatever the test inverters produce.
type TestACMeterModbusReader struct {
	mu        sync.Mutex
	loadWatt  float64
	inverters []*TestInverterModbusReader
	failReads int
}

func NewTestACMeterModbusReader(loadWatt float64, inverters ...*TestInverterModbusReader) *TestACMeterModbusReader {
	return &TestACMeterModbusReader{loadWatt: loadWatt, inverters: inverters}
}

func (reader *TestACMeterModbusReader) Open() error {
	return nil
}

func (reader *TestACMeterModbusReader) Close() error {
	return nil
}

func (reader *TestACMeterModbusReader) FailReads(n int) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.failReads = n
}

func (reader *TestACMeterModbusReader) SetLoad(watts float64) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.loadWatt = watts
}

func (reader *TestACMeterModbusReader) GetInfo() (*ACMeterInfo, error) {
	return &ACMeterInfo{
		Manufacturer: "Exportguard",
		Model:        "Test meter",
		Version:      "1.0",
		Serial:       "TEST-METER",
	}, nil
}

func (reader *TestACMeterModbusReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	if reader.failReads > 0 {
		reader.failReads--
		return nil, ErrTestFailure
	}
	site := reader.loadWatt
	for _, inv := range reader.inverters {
		inv.mu.Lock()
		site -= inv.output()
		inv.mu.Unlock()
	}
	return &ACMeterPowerFlow{
		CurrentPowerFlowWatt: site,
		PhasePowerFlowWatt:   []float64{site},
		Frequency:            50,
	}, nil
}

// ensure interface compliance
var _ InverterModbusReader = (*TestInverterModbusReader)(nil)
var _ ACMeterModbusReader = (*TestACMeterModbusReader)(nil)
var _ InverterModbusReader = (*InverterIntSFModbusReader)(nil)
var _ ACMeterModbusReader = (*ACMeterIntSFModbusReader)(nil)
