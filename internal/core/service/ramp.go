package service

import (
	"sync"
	"time"

	"github.com/berfenger/exportguard/internal/core/port"
	"github.com/berfenger/exportguard/pkg/number"

	"github.com/shopspring/decimal"
)

// RampRateController bounds how fast the commanded power ratio may move.
// Its state is seeded from the measured ratio on the first step, so a
// restart never produces a jump.
type RampRateController struct {
	mu            sync.Mutex
	ratePerSecond decimal.Decimal
	current       *decimal.Decimal
	lastUpdate    time.Time
}

// NewRampRateController takes the maximum ratio change per second. A rate
// of zero or less disables limiting.
func NewRampRateController(ratePerSecond float64) *RampRateController {
	return &RampRateController{
		ratePerSecond: decimal.NewFromFloat(ratePerSecond),
	}
}

func (r *RampRateController) Step(currentMeasuredRatio, targetRatio, elapsedMs float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step(currentMeasuredRatio, targetRatio, elapsedMs)
}

// StepAt is Step with the elapsed time taken from the previous call's
// timestamp. The first call counts as zero elapsed time.
func (r *RampRateController) StepAt(currentMeasuredRatio, targetRatio float64, now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var elapsedMs float64
	if !r.lastUpdate.IsZero() && now.After(r.lastUpdate) {
		elapsedMs = float64(now.Sub(r.lastUpdate)) / float64(time.Millisecond)
	}
	r.lastUpdate = now
	return r.step(currentMeasuredRatio, targetRatio, elapsedMs)
}

func (r *RampRateController) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
	r.lastUpdate = time.Time{}
}

func (r *RampRateController) step(currentMeasuredRatio, targetRatio, elapsedMs float64) float64 {
	target := decimal.NewFromFloat(number.Clamp(targetRatio, 0, 1))
	if r.current == nil {
		seed := decimal.NewFromFloat(number.Clamp(currentMeasuredRatio, 0, 1))
		r.current = &seed
	}
	if !r.ratePerSecond.IsPositive() {
		r.current = &target
		return target.InexactFloat64()
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	maxStep := r.ratePerSecond.Mul(decimal.NewFromFloat(elapsedMs)).Div(decimal.NewFromInt(1000))
	diff := target.Sub(*r.current)
	var next decimal.Decimal
	switch {
	case diff.Abs().LessThanOrEqual(maxStep):
		next = target
	case diff.IsPositive():
		next = r.current.Add(maxStep)
	default:
		next = r.current.Sub(maxStep)
	}
	next = decimal.Min(decimal.Max(next, decimal.Zero), decimal.NewFromInt(1))
	r.current = &next
	return next.InexactFloat64()
}

// ensure interface compliance
var _ port.RampController = (*RampRateController)(nil)
