package limiter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/domain"

	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const TARIFF_REFRESH_CRON = "0 * * * * *"

// ClockTime is a time of day without a date.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) seconds() int {
	return c.Hour*3600 + c.Minute*60
}

// ClockTimePeriod is a daily window, start inclusive and end exclusive.
// An empty Months list matches every month.
type ClockTimePeriod struct {
	Start  ClockTime
	End    ClockTime
	Months []time.Month
}

// Contains reports whether t falls inside the window, read on t's own
// wall clock. Callers convert t to the tariff location first.
func (p ClockTimePeriod) Contains(t time.Time) bool {
	if len(p.Months) > 0 && !lo.Contains(p.Months, t.Month()) {
		return false
	}
	s := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return s >= p.Start.seconds() && s < p.End.seconds()
}

type TariffRule struct {
	Period           ClockTimePeriod
	ExportLimitWatts float64
}

type Tariff struct {
	Name     string
	Location *time.Location
	Rules    []TariffRule
}

// DirectiveAt returns the limit in force at t. The first matching rule wins.
func (t Tariff) DirectiveAt(at time.Time) domain.ControlDirective {
	d := domain.ControlDirective{Source: t.Name}
	local := at.In(t.Location)
	if rule, ok := lo.Find(t.Rules, func(r TariffRule) bool { return r.Period.Contains(local) }); ok {
		d.ExportLimitWatts = domain.Float(rule.ExportLimitWatts)
	}
	return d
}

// TariffPreset returns one of the built-in two-way tariffs. Both charge
// for exports during the midday solar window, so exports are zeroed there.
func TariffPreset(name string) (Tariff, error) {
	var zone string
	switch name {
	case config.TARIFF_AUSGRID_EA029:
		zone = "Australia/Sydney"
	case config.TARIFF_SAPN_RELE2W:
		zone = "Australia/Adelaide"
	default:
		return Tariff{}, fmt.Errorf("unknown tariff preset %q: %w", name, domain.ErrInvalidInput)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Tariff{}, fmt.Errorf("tariff %s: %w", name, err)
	}
	return Tariff{
		Name:     name,
		Location: loc,
		Rules: []TariffRule{
			{
				Period: ClockTimePeriod{
					Start: ClockTime{Hour: 10},
					End:   ClockTime{Hour: 16},
				},
				ExportLimitWatts: 0,
			},
		},
	}, nil
}

// TariffLimiter serves a tariff snapshot refreshed every minute by a cron job.
type TariffLimiter struct {
	tariff    Tariff
	current   atomic.Pointer[domain.ControlDirective]
	now       func() time.Time
	scheduler quartz.Scheduler
	logger    *zap.Logger
}

func NewTariffLimiter(tariff Tariff, logger *zap.Logger) *TariffLimiter {
	l := &TariffLimiter{
		tariff: tariff,
		now:    time.Now,
		logger: logger.With(zap.String("limiter", tariff.Name)),
	}
	l.Refresh()
	return l
}

func (l *TariffLimiter) Name() string {
	return l.tariff.Name
}

func (l *TariffLimiter) CurrentDirective() domain.ControlDirective {
	return *l.current.Load()
}

func (l *TariffLimiter) Refresh() {
	d := l.tariff.DirectiveAt(l.now())
	prev := l.current.Swap(&d)
	if prev == nil || prev.String() != d.String() {
		l.logger.Info("tariff limiter: directive updated", zap.Stringer("directive", d))
	}
}

func (l *TariffLimiter) Start(ctx context.Context) error {
	l.Refresh()
	sched := quartz.NewStdScheduler()
	trigger, err := quartz.NewCronTriggerWithLoc(TARIFF_REFRESH_CRON, l.tariff.Location)
	if err != nil {
		return err
	}
	refresh := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		l.Refresh()
		return true, nil
	})
	sched.Start(ctx)
	err = sched.ScheduleJob(quartz.NewJobDetail(refresh, quartz.NewJobKey("tariff_"+l.tariff.Name)), trigger)
	if err != nil {
		sched.Stop()
		return err
	}
	l.scheduler = sched
	return nil
}

func (l *TariffLimiter) Stop() {
	if l.scheduler != nil {
		l.scheduler.Stop()
	}
}
