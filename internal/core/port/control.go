package port

import (
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"
)

type RampController interface {
	Step(currentMeasuredRatio, targetRatio, elapsedMs float64) float64
	StepAt(currentMeasuredRatio, targetRatio float64, now time.Time) float64
	Reset()
}

// ControlInput is the consistent view the calculator works on for a tick.
type ControlInput struct {
	Limit     domain.ReconciledLimit
	Meter     domain.MeterSnapshot
	Inverters []domain.InverterSnapshot
	Now       time.Time
}

type ControlCalculator interface {
	Calculate(input ControlInput) (domain.InverterConfiguration, domain.ControlRecord)
}
