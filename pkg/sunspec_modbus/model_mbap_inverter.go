package sunspec_modbus

import (
	"fmt"
)

const (
	InverterStatusOff          = 1
	InverterStatusSleeping     = 2
	InverterStatusStarting     = 3
	InverterStatusMPPT         = 4
	InverterStatusThrottled    = 5
	InverterStatusShuttingDown = 6
	InverterStatusFault        = 7
	InverterStatusStandby      = 8
)

const (
	InverterStatusOffStr          = "off"
	InverterStatusSleepingStr     = "sleeping"
	InverterStatusStartingStr     = "starting"
	InverterStatusMPPTStr         = "mppt_tracking"
	InverterStatusThrottledStr    = "throttled"
	InverterStatusShuttingDownStr = "shutting_down"
	InverterStatusFaultStr        = "fault"
	InverterStatusStandbyStr      = "standby"
	InverterStatusUnknown         = "unknown"
)

// PVConn bits (model 122)
const (
	PVConnConnected = 1 << 0
	PVConnAvailable = 1 << 1
	PVConnOperating = 1 << 2
)

// Conn values (model 123)
const (
	ConnDisconnect = 0
	ConnConnect    = 1
)

func InverterStatusToString(state uint16) string {
	switch state {
	case InverterStatusOff:
		return InverterStatusOffStr
	case InverterStatusSleeping:
		return InverterStatusSleepingStr
	case InverterStatusStarting:
		return InverterStatusStartingStr
	case InverterStatusMPPT:
		return InverterStatusMPPTStr
	case InverterStatusThrottled:
		return InverterStatusThrottledStr
	case InverterStatusShuttingDown:
		return InverterStatusShuttingDownStr
	case InverterStatusFault:
		return InverterStatusFaultStr
	case InverterStatusStandby:
		return InverterStatusStandbyStr
	default:
		return fmt.Sprintf("%s(%d)", InverterStatusUnknown, state)
	}
}

type InverterInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
}

// InverterAC is the AC side measurement of models 101-103.
type InverterAC struct {
	PowerWatt      float64
	FrequencyHz    float64
	PhaseAVoltage  float64
	OperatingState uint16
}

// Nameplate is model 120.
type Nameplate struct {
	DERType        uint16
	RatedPowerWatt float64
}

// InverterStatus is model 122.
type InverterStatus struct {
	PVConn         uint16
	OperatingState uint16
}

func (s InverterStatus) Connected() bool {
	return s.PVConn&PVConnConnected != 0
}

// ImmediateControls is model 123. OutputLimitPercent is already scaled.
type ImmediateControls struct {
	Conn                     uint16
	ConnRevertSeconds        uint16
	OutputLimitPercent       float64
	OutputLimitPercentSF     int16
	OutputLimitRevertSeconds uint16
	OutputLimitEnabled       bool
}

// ImmediateControlsWrite values are raw register values.
type ImmediateControlsWrite struct {
	Conn                     uint16
	ConnRevertSeconds        uint16
	OutputLimitPercentRaw    uint16
	OutputLimitRevertSeconds uint16
	OutputLimitEnabled       bool
}

type InverterModbusReader interface {
	Open() error
	Close() error
	GetInfo() (*InverterInfo, error)
	GetAC() (*InverterAC, error)
	GetNameplate() (*Nameplate, error)
	GetStatus() (*InverterStatus, error)
	GetControls() (*ImmediateControls, error)
	SetControls(values ImmediateControlsWrite) error
}
