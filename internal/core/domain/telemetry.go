package domain

import "time"

const (
	DER_TYPE_PV      = 4
	DER_TYPE_PV_STOR = 82
)

// InverterTelemetry is the decoded AC side of an inverter.
type InverterTelemetry struct {
	PowerWatt    float64
	FrequencyHz  float64
	VoltageV     float64
	OperatingRaw uint16
}

type Nameplate struct {
	DERType      uint16
	MaxPowerWatt float64
}

type InverterStatus struct {
	PVConnected    bool
	OperatingState string
}

// InverterControls mirrors the immediate-controls block of the device.
// OutputLimitPercentSF is needed to encode writes back in the device's
// fixed-point representation.
type InverterControls struct {
	Connected            bool
	OutputLimitEnabled   bool
	OutputLimitPercent   float64
	OutputLimitPercentSF int16
	OutputLimitRevert    time.Duration
}

// InverterSnapshot is everything read from an inverter in one poll.
type InverterSnapshot struct {
	Telemetry InverterTelemetry
	Nameplate Nameplate
	Status    InverterStatus
	Controls  InverterControls
}

// MeterSnapshot is the site connection point. PowerWatt is positive on
// import and negative on export.
type MeterSnapshot struct {
	PowerWatt      float64
	PhasePowerWatt []float64
	FrequencyHz    float64
}

// ControlsWrite is a device write already encoded in register units.
type ControlsWrite struct {
	Connect                  bool
	ConnectRevertSeconds     uint16
	OutputLimitEnabled       bool
	OutputLimitPercentRaw    uint16
	OutputLimitRevertSeconds uint16
}
