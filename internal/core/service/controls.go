package service

import (
	"math"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"

	"github.com/shopspring/decimal"
)

const DEFAULT_REVERT_TIMEOUT = 60 * time.Second

// ControlsFor encodes a configuration into the values written to the
// device immediate controls. Both branches carry the revert timeout so
// the device falls back on its own if writes stop arriving.
func ControlsFor(configuration domain.InverterConfiguration, controls domain.InverterControls, revert time.Duration) domain.ControlsWrite {
	revertSeconds := revertSeconds(revert)
	switch cfg := configuration.(type) {
	case domain.Limit:
		return domain.ControlsWrite{
			Connect:                  true,
			ConnectRevertSeconds:     revertSeconds,
			OutputLimitEnabled:       true,
			OutputLimitPercentRaw:    OutputLimitPercentRaw(cfg.RampedTargetPowerRatio, controls.OutputLimitPercentSF),
			OutputLimitRevertSeconds: revertSeconds,
		}
	default:
		return domain.ControlsWrite{
			Connect:                  false,
			ConnectRevertSeconds:     revertSeconds,
			OutputLimitEnabled:       false,
			OutputLimitPercentRaw:    0,
			OutputLimitRevertSeconds: revertSeconds,
		}
	}
}

// OutputLimitPercentRaw converts a ratio to the device fixed-point percent
// (percent × 10^-sf), capped at 100% and rounded to the nearest unit.
func OutputLimitPercentRaw(ratio float64, sf int16) uint16 {
	if math.IsNaN(ratio) || ratio < 0 {
		ratio = 0
	}
	pct := decimal.NewFromFloat(math.Min(ratio, 1)).Mul(decimal.NewFromInt(100))
	raw := pct.Shift(-int32(sf)).Round(0).IntPart()
	if raw > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(raw)
}

func revertSeconds(revert time.Duration) uint16 {
	if revert <= 0 {
		revert = DEFAULT_REVERT_TIMEOUT
	}
	s := revert / time.Second
	if s > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(s)
}
