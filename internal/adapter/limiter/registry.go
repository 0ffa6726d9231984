package limiter

import (
	"context"
	"fmt"

	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/port"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

type lifecycle interface {
	Start(ctx context.Context) error
	Stop()
}

// Registry is the ordered set of enabled limit sources. The fixed source is
// always first.
type Registry struct {
	sources  []port.LimitSource
	schedule *ScheduleLimiter
	logger   *zap.Logger
}

func NewRegistry(sources ...port.LimitSource) *Registry {
	r := &Registry{sources: sources, logger: zap.NewNop()}
	for _, s := range sources {
		if sl, ok := s.(*ScheduleLimiter); ok {
			r.schedule = sl
		}
	}
	return r
}

// RegistryFromConfig builds every source enabled in cfg.
func RegistryFromConfig(cfg *config.Config, logger *zap.Logger) (*Registry, error) {
	sources := []port.LimitSource{NewFixedLimiter(cfg.Limits.Fixed)}
	if cfg.Limits.Schedule.Enable {
		sources = append(sources, NewScheduleLimiter())
	}
	if cfg.Limits.Bus.Enable {
		var transport BusTransport
		switch cfg.Limits.Bus.Transport {
		case config.BUS_TRANSPORT_MQTT:
			transport = NewMQTTTransport(cfg, cfg.Limits.Bus.Topic, logger)
		case config.BUS_TRANSPORT_NATS:
			transport = NewNATSTransport(cfg.NATS, cfg.Limits.Bus.Topic, logger)
		default:
			return nil, fmt.Errorf("unknown bus transport %q: %w", cfg.Limits.Bus.Transport, domain.ErrInvalidInput)
		}
		sources = append(sources, NewBusLimiter(transport, logger))
	}
	if cfg.Limits.Tariff.Enable {
		tariff, err := TariffPreset(cfg.Limits.Tariff.Preset)
		if err != nil {
			return nil, err
		}
		sources = append(sources, NewTariffLimiter(tariff, logger))
	}
	r := NewRegistry(sources...)
	r.logger = logger
	return r, nil
}

func (r *Registry) Sources() []port.LimitSource {
	return r.sources
}

func (r *Registry) Directives() []domain.ControlDirective {
	return lo.Map(r.sources, func(s port.LimitSource, _ int) domain.ControlDirective {
		return s.CurrentDirective()
	})
}

// Schedule returns the schedule source, or nil when it is disabled.
func (r *Registry) Schedule() *ScheduleLimiter {
	return r.schedule
}

// Start starts every source that owns a subscription or a job. On failure
// the sources already started are stopped.
func (r *Registry) Start(ctx context.Context) error {
	var started []lifecycle
	for _, s := range r.sources {
		lc, ok := s.(lifecycle)
		if !ok {
			continue
		}
		if err := lc.Start(ctx); err != nil {
			for _, st := range started {
				st.Stop()
			}
			return fmt.Errorf("start limit source %s: %w", s.Name(), err)
		}
		r.logger.Info("limit source started", zap.String("source", s.Name()))
		started = append(started, lc)
	}
	return nil
}

func (r *Registry) Stop() {
	for _, s := range r.sources {
		if lc, ok := s.(lifecycle); ok {
			lc.Stop()
		}
	}
}
