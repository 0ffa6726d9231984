package limiter

import (
	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/domain"
)

const (
	SOURCE_FIXED    = "fixed"
	SOURCE_SCHEDULE = "schedule"
	SOURCE_BUS      = "bus"
)

// FixedLimiter serves the limits set in the configuration file.
type FixedLimiter struct {
	directive domain.ControlDirective
}

func NewFixedLimiter(cfg config.FixedLimitConfig) *FixedLimiter {
	d := domain.ControlDirective{Source: SOURCE_FIXED}
	if cfg.Connect != nil {
		d.Connect = domain.Bool(*cfg.Connect)
	}
	if cfg.Energize != nil {
		d.Energize = domain.Bool(*cfg.Energize)
	}
	if cfg.ExportLimitWatts != nil {
		d.ExportLimitWatts = domain.Float(*cfg.ExportLimitWatts)
	}
	if cfg.GenerationLimitWatts != nil {
		d.GenerationLimitWatts = domain.Float(*cfg.GenerationLimitWatts)
	}
	return &FixedLimiter{directive: d}
}

func (l *FixedLimiter) Name() string {
	return SOURCE_FIXED
}

func (l *FixedLimiter) CurrentDirective() domain.ControlDirective {
	return l.directive
}
