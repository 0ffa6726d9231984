package limiter

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/pkg/number"
)

// ScheduleLimit is the active schedule limit. Start and End bound its
// validity window; a nil bound is open.
type ScheduleLimit struct {
	Connect         *bool               `json:"opModConnect,omitempty"`
	Energize        *bool               `json:"opModEnergize,omitempty"`
	ExportLimit     *number.ScaledPower `json:"opModExpLimW,omitempty"`
	GenerationLimit *number.ScaledPower `json:"opModGenLimW,omitempty"`
	Start           *time.Time          `json:"start,omitempty"`
	End             *time.Time          `json:"end,omitempty"`
}

func (l ScheduleLimit) Validate() error {
	if l.Start != nil && l.End != nil && !l.End.After(*l.Start) {
		return fmt.Errorf("schedule end must be after start: %w", domain.ErrInvalidInput)
	}
	for _, p := range []*number.ScaledPower{l.ExportLimit, l.GenerationLimit} {
		if p == nil {
			continue
		}
		if w := p.Watts(); w < 0 || math.IsInf(w, 0) || math.IsNaN(w) {
			return fmt.Errorf("schedule limit %d×10^%d W: %w", p.Value, p.Multiplier, domain.ErrInvalidInput)
		}
	}
	return nil
}

func (l ScheduleLimit) activeAt(t time.Time) bool {
	if l.Start != nil && t.Before(*l.Start) {
		return false
	}
	if l.End != nil && !t.Before(*l.End) {
		return false
	}
	return true
}

// ScheduleLimiter holds the limit pushed by a remote scheduler.
type ScheduleLimiter struct {
	limit atomic.Pointer[ScheduleLimit]
	now   func() time.Time
}

func NewScheduleLimiter() *ScheduleLimiter {
	return &ScheduleLimiter{now: time.Now}
}

func (l *ScheduleLimiter) Name() string {
	return SOURCE_SCHEDULE
}

func (l *ScheduleLimiter) Set(limit ScheduleLimit) error {
	if err := limit.Validate(); err != nil {
		return err
	}
	l.limit.Store(&limit)
	return nil
}

func (l *ScheduleLimiter) Clear() {
	l.limit.Store(nil)
}

// Limit returns the stored limit, regardless of its validity window.
func (l *ScheduleLimiter) Limit() *ScheduleLimit {
	return l.limit.Load()
}

func (l *ScheduleLimiter) CurrentDirective() domain.ControlDirective {
	d := domain.ControlDirective{Source: SOURCE_SCHEDULE}
	limit := l.limit.Load()
	if limit == nil || !limit.activeAt(l.now()) {
		return d
	}
	d.Connect = limit.Connect
	d.Energize = limit.Energize
	if limit.ExportLimit != nil {
		d.ExportLimitWatts = domain.Float(limit.ExportLimit.Watts())
	}
	if limit.GenerationLimit != nil {
		d.GenerationLimitWatts = domain.Float(limit.GenerationLimit.Watts())
	}
	return d
}
