package service

import (
	"math"

	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/port"
	"github.com/berfenger/exportguard/pkg/number"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DEFAULT_EXPORT_LIMIT_W       = 1500
	UNBOUNDED_GENERATION_LIMIT_W = 9007199254740991
	RATIO_DECIMALS               = 4
	// ratio used to leave a stalled state when more power is wanted
	STALLED_RATIO_NUDGE = 0.01
)

type DefaultControlCalculator struct {
	DefaultExportLimitWatts float64
	Ramp                    port.RampController
	Metrics                 port.MetricsSink
	Logger                  *zap.Logger
}

func NewControlCalculator(defaultExportLimitWatts float64, ramp port.RampController, metrics port.MetricsSink, logger *zap.Logger) *DefaultControlCalculator {
	return &DefaultControlCalculator{
		DefaultExportLimitWatts: defaultExportLimitWatts,
		Ramp:                    ramp,
		Metrics:                 metrics,
		Logger:                  logger,
	}
}

func (c *DefaultControlCalculator) Calculate(input port.ControlInput) (domain.InverterConfiguration, domain.ControlRecord) {
	energize := boolOr(input.Limit.Energize, true)
	connect := boolOr(input.Limit.Connect, true)

	siteWatts := input.Meter.PowerWatt
	solarWatts := number.Sum(lo.Map(input.Inverters, func(inv domain.InverterSnapshot, _ int) float64 {
		return inv.Telemetry.PowerWatt
	}))
	exportLimitWatts := floatOr(input.Limit.ExportLimitWatts, c.DefaultExportLimitWatts)
	generationLimitWatts := floatOr(input.Limit.GenerationLimitWatts, UNBOUNDED_GENERATION_LIMIT_W)

	exportLimitTargetSolarWatts := CalculateTargetSolarWatts(solarWatts, siteWatts, exportLimitWatts)
	targetSolarWatts := math.Min(exportLimitTargetSolarWatts, generationLimitWatts)
	currentPowerRatio := CurrentPowerRatio(input.Inverters)
	targetPowerRatio := TargetPowerRatio(solarWatts, targetSolarWatts, currentPowerRatio)
	rampedTargetPowerRatio := c.Ramp.StepAt(currentPowerRatio, targetPowerRatio, input.Now)

	limit := domain.Limit{
		CurrentPowerRatio:      finiteOrZero(number.Round(currentPowerRatio, RATIO_DECIMALS)),
		TargetPowerRatio:       number.Round(targetPowerRatio, RATIO_DECIMALS),
		RampedTargetPowerRatio: number.Round(rampedTargetPowerRatio, RATIO_DECIMALS),
	}

	record := domain.ControlRecord{
		Id:                          uuid.NewString(),
		Time:                        input.Now,
		SiteWatts:                   siteWatts,
		SolarWatts:                  solarWatts,
		ExportLimitWatts:            exportLimitWatts,
		GenerationLimitWatts:        generationLimitWatts,
		ExportLimitTargetSolarWatts: exportLimitTargetSolarWatts,
		TargetSolarWatts:            targetSolarWatts,
		CurrentPowerRatio:           limit.CurrentPowerRatio,
		TargetSolarPowerRatio:       limit.TargetPowerRatio,
		RampedTargetSolarPowerRatio: limit.RampedTargetPowerRatio,
	}

	if !energize || !connect {
		record.Deenergize = true
		// the next limit must re-seed from the measured ratio
		c.Ramp.Reset()
		c.emit(record)
		c.Logger.Debug("calculator: deenergize", zap.Bool("energize", energize), zap.Bool("connect", connect))
		return domain.Deenergize{}, record
	}

	c.emit(record)

	c.Logger.Debug("calculator: limit",
		zap.Float64("siteWatts", siteWatts),
		zap.Float64("solarWatts", solarWatts),
		zap.Float64("targetSolarWatts", targetSolarWatts),
		zap.Float64("currentPowerRatio", limit.CurrentPowerRatio),
		zap.Float64("targetPowerRatio", limit.TargetPowerRatio),
		zap.Float64("rampedTargetPowerRatio", limit.RampedTargetPowerRatio))

	return limit, record
}

func (c *DefaultControlCalculator) emit(record domain.ControlRecord) {
	if c.Metrics != nil {
		c.Metrics.WriteControl(record)
	}
}

// CalculateTargetSolarWatts returns the solar output that makes the site
// flow meet the export limit exactly. Site watts are positive on import.
func CalculateTargetSolarWatts(solarWatts, siteWatts, exportLimitWatts float64) float64 {
	solar := decimal.NewFromFloat(solarWatts)
	site := decimal.NewFromFloat(siteWatts)
	exportLimit := decimal.NewFromFloat(exportLimitWatts)
	return solar.Sub(site.Neg().Add(exportLimit.Neg())).InexactFloat64()
}

// CurrentPowerRatio averages the ratio of every inverter. An inverter not
// under output limiting is estimated from its output against nameplate,
// which underestimates the real ratio since efficiency is below 100%.
// The result is NaN when no ratio can be derived.
func CurrentPowerRatio(inverters []domain.InverterSnapshot) float64 {
	if len(inverters) == 0 {
		return math.NaN()
	}
	total := decimal.Zero
	for _, inv := range inverters {
		var ratio decimal.Decimal
		if inv.Controls.OutputLimitEnabled {
			ratio = decimal.NewFromFloat(inv.Controls.OutputLimitPercent).Div(decimal.NewFromInt(100))
		} else {
			if inv.Nameplate.MaxPowerWatt <= 0 {
				return math.NaN()
			}
			ratio = decimal.NewFromFloat(inv.Telemetry.PowerWatt).Div(decimal.NewFromFloat(inv.Nameplate.MaxPowerWatt))
			ratio = decimal.Min(ratio, decimal.NewFromInt(1))
		}
		total = total.Add(decimal.Max(ratio, decimal.Zero))
	}
	return total.Div(decimal.NewFromInt(int64(len(inverters)))).InexactFloat64()
}

// TargetPowerRatio scales the current ratio by the estimated capacity
// (current output / current ratio). A zero or unknown ratio cannot be
// scaled: it is nudged up when more power is wanted, else kept at zero.
func TargetPowerRatio(currentSolarWatts, targetSolarWatts, currentPowerRatio float64) float64 {
	fallback := func() float64 {
		if targetSolarWatts > currentSolarWatts {
			return STALLED_RATIO_NUDGE
		}
		return 0
	}
	if math.IsNaN(currentPowerRatio) || currentPowerRatio == 0 {
		return fallback()
	}
	capacity := decimal.NewFromFloat(currentSolarWatts).Div(decimal.NewFromFloat(currentPowerRatio))
	if !capacity.IsPositive() {
		return fallback()
	}
	ratio := decimal.NewFromFloat(targetSolarWatts).Div(capacity)
	return number.Clamp(ratio.InexactFloat64(), 0, 1)
}

// TargetPowerRatioFromNameplate is the ratio of the target against the
// rated power, in [0,1]. A missing nameplate yields 0.
func TargetPowerRatioFromNameplate(nameplateMaxWatts, targetSolarWatts float64) float64 {
	if nameplateMaxWatts <= 0 {
		return 0
	}
	ratio := decimal.NewFromFloat(targetSolarWatts).Div(decimal.NewFromFloat(nameplateMaxWatts))
	return number.Clamp(ratio.InexactFloat64(), 0, 1)
}

func boolOr(w *domain.Winner[bool], def bool) bool {
	if w == nil {
		return def
	}
	return w.Value
}

func floatOr(w *domain.Winner[float64], def float64) float64 {
	if w == nil {
		return def
	}
	return w.Value
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ensure interface compliance
var _ port.ControlCalculator = (*DefaultControlCalculator)(nil)
