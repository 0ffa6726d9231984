package domain

import "fmt"

// InverterConfiguration is the outcome of one control tick: either
// Deenergize or Limit. It is built fresh each tick and never cached.
type InverterConfiguration interface {
	fmt.Stringer
	inverterConfiguration()
}

type Deenergize struct{}

type Limit struct {
	CurrentPowerRatio      float64 `json:"currentPowerRatio"`
	TargetPowerRatio       float64 `json:"targetPowerRatio"`
	RampedTargetPowerRatio float64 `json:"rampedTargetPowerRatio"`
}

func (Deenergize) inverterConfiguration() {}

func (Deenergize) String() string {
	return "deenergize"
}

func (Limit) inverterConfiguration() {}

func (l Limit) String() string {
	return fmt.Sprintf("limit(current=%.4f target=%.4f ramped=%.4f)",
		l.CurrentPowerRatio, l.TargetPowerRatio, l.RampedTargetPowerRatio)
}

// ensure interface compliance
var _ InverterConfiguration = Deenergize{}
var _ InverterConfiguration = Limit{}
