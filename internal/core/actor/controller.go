package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/exportguard/internal/core/cache"
	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/port"
	. "github.com/berfenger/exportguard/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type ControllerOptions struct {
	ApplyControl bool
	StaleAfter   time.Duration
}

// ControllerActor runs one control tick per round of fresh data: once
// every device cache has advanced since the previous tick it reads them,
// reconciles the limit sources, calculates the configuration and hands
// it to every inverter.
type ControllerActor struct {
	ActorWithStates
	stash          *Stash
	options        ControllerOptions
	meter          *cache.Cache[domain.MeterSnapshot]
	inverterCaches []*cache.Cache[domain.InverterSnapshot]
	inverters      []*actor.PID
	limits         port.LimitRegistry
	reconciler     port.LimitReconciler
	calculator     port.ControlCalculator
	metrics        port.MetricsSink
	eventStream    *eventstream.EventStream

	applyControl  bool
	tickPending   bool
	waitingData   bool
	ticks         uint64
	lastTick      time.Time
	lastLimit     domain.ReconciledLimit
	lastConfig    domain.InverterConfiguration
	lastRecord    *domain.ControlRecord
	staleReported map[string]bool
	// cache sequence consumed by the previous tick, per device
	lastSeq map[string]uint64

	logger *zap.Logger
}

type attachInverters struct {
	pids []*actor.PID
}

type controlTick struct {
}

func NewControllerActor(options ControllerOptions, meter *cache.Cache[domain.MeterSnapshot], inverterCaches []*cache.Cache[domain.InverterSnapshot],
	limits port.LimitRegistry, reconciler port.LimitReconciler, calculator port.ControlCalculator,
	metrics port.MetricsSink, eventStream *eventstream.EventStream, logger *zap.Logger) *ControllerActor {
	act := &ControllerActor{
		stash:          &Stash{},
		options:        options,
		meter:          meter,
		inverterCaches: inverterCaches,
		limits:         limits,
		reconciler:     reconciler,
		calculator:     calculator,
		metrics:        metrics,
		eventStream:    eventStream,
		applyControl:   options.ApplyControl,
		staleReported:  map[string]bool{},
		lastSeq:        map[string]uint64{},
		logger:         ActorLogger(domain.ACTOR_ID_CONTROLLER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(controllerStartingState{actor: act})
	return act
}

func (a *ControllerActor) Receive(context actor.Context) {
	a.Behavior.Receive(context)
}

// Starting state: waits for the inverter actors to be attached.

type controllerStartingState struct {
	actor *ControllerActor
}

func (state controllerStartingState) Name() string {
	return "starting"
}

func (state controllerStartingState) Receive(ctx actor.Context) {
	a := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		a.logger.Debug("controller@starting started")
		a.publish(domain.ApplyControlUpdateEvent(a.applyControl))
	case attachInverters:
		a.logger.Debug("controller@starting inverters attached", zap.Int("count", len(msg.pids)))
		a.inverters = msg.pids
		a.Become(controllerRunningState{actor: a})
		a.stash.UnstashAll(ctx)
	case domain.DataReady:
		// caches are read on the first tick after attach
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CONTROLLER,
			Healthy: false,
			State:   state.Name(),
		})
	case *actor.Restarting:
	default:
		a.logger.Debug("controller@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		a.stash.Stash(ctx, msg)
	}
}

// Running state

type controllerRunningState struct {
	actor *ControllerActor
}

func (state controllerRunningState) Name() string {
	return "running"
}

func (state controllerRunningState) Receive(ctx actor.Context) {
	a := state.actor
	switch msg := ctx.Message().(type) {
	case domain.DataReady:
		// coalesce notifications already queued into one tick
		if !a.tickPending {
			a.tickPending = true
			ctx.Send(ctx.Self(), controlTick{})
		}
	case controlTick:
		a.tickPending = false
		a.tick(ctx, time.Now())
	case domain.SetApplyControlRequest:
		changed := a.applyControl != msg.Enable
		a.applyControl = msg.Enable
		a.logger.Info("controller@running apply control", zap.Bool("enable", msg.Enable), zap.Bool("changed", changed))
		a.publish(domain.ApplyControlUpdateEvent(msg.Enable))
		Respond(ctx, msg, domain.SetApplyControlResponse{Changed: changed})
	case domain.GetControlStateRequest:
		Respond(ctx, msg, a.controlState())
	case domain.ApplyConfigurationResponse:
		if msg.HasResponseError() {
			a.logger.Warn("controller@running configuration not applied", zap.Error(msg.GetResponseError()))
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CONTROLLER,
			Healthy: true,
			State:   state.Name(),
			Detail:  fmt.Sprintf("ticks=%d apply_control=%t", a.ticks, a.applyControl),
		})
	case *actor.Restarting:
	default:
		a.logger.Debug("controller@running recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// tick runs a control iteration on the cached snapshots. It defers until
// every device has produced data at least once, and then until every
// device has produced new data since the previous tick. A device whose
// data went stale does not hold the round back.
func (a *ControllerActor) tick(ctx actor.Context, now time.Time) {
	meter, ok := a.meter.Load()
	if !ok {
		a.deferTick(a.meter.Id())
		return
	}
	seqs := map[string]uint64{a.meter.Id(): meter.Seq}
	stale := map[string]bool{a.meter.Id(): a.checkStale(a.meter.Id(), meter.UpdatedAt, now)}

	inverters := make([]domain.InverterSnapshot, 0, len(a.inverterCaches))
	for _, c := range a.inverterCaches {
		entry, ok := c.Load()
		if !ok {
			a.deferTick(c.Id())
			return
		}
		seqs[c.Id()] = entry.Seq
		stale[c.Id()] = a.checkStale(c.Id(), entry.UpdatedAt, now)
		inverters = append(inverters, entry.Value)
	}
	if a.waitingData {
		a.logger.Info("controller@running all devices reporting")
		a.waitingData = false
	}
	if waiting, ok := a.roundPending(seqs, stale); !ok {
		a.logger.Debug("controller@running round incomplete", zap.String("device", waiting))
		return
	}
	for id, seq := range seqs {
		a.lastSeq[id] = seq
	}

	limit, err := a.reconciler.Reconcile(a.limits.Directives())
	if err != nil {
		a.logger.Error("controller@running reconcile failed, skipping tick", zap.Error(err))
		return
	}
	if a.metrics != nil {
		a.metrics.WriteLimit(limit)
	}

	configuration, record := a.calculator.Calculate(port.ControlInput{
		Limit:     limit,
		Meter:     meter.Value,
		Inverters: inverters,
		Now:       now,
	})

	a.ticks++
	a.lastTick = now
	a.lastLimit = limit
	a.lastConfig = configuration
	a.lastRecord = &record

	for _, pid := range a.inverters {
		ctx.Request(pid, domain.ApplyConfigurationRequest{
			Configuration: configuration,
			DryRun:        !a.applyControl,
		})
	}
}

func (a *ControllerActor) deferTick(deviceId string) {
	if !a.waitingData {
		a.logger.Info("controller@running waiting for first data", zap.String("device", deviceId))
		a.waitingData = true
	}
}

// roundPending reports whether every device advanced since the previous
// tick. When it did not, the first device still pending is returned.
func (a *ControllerActor) roundPending(seqs map[string]uint64, stale map[string]bool) (string, bool) {
	ids := append([]string{a.meter.Id()}, lo.Map(a.inverterCaches, func(c *cache.Cache[domain.InverterSnapshot], _ int) string {
		return c.Id()
	})...)
	for _, id := range ids {
		if seqs[id] <= a.lastSeq[id] && !stale[id] {
			return id, false
		}
	}
	return "", true
}

func (a *ControllerActor) checkStale(deviceId string, updatedAt, now time.Time) bool {
	if a.options.StaleAfter <= 0 {
		return false
	}
	stale := now.Sub(updatedAt) > a.options.StaleAfter
	if stale && !a.staleReported[deviceId] {
		a.logger.Warn("controller@running device data is stale", zap.String("device", deviceId),
			zap.Duration("age", now.Sub(updatedAt)))
	} else if !stale && a.staleReported[deviceId] {
		a.logger.Info("controller@running device data is fresh again", zap.String("device", deviceId))
	}
	a.staleReported[deviceId] = stale
	return stale
}

func (a *ControllerActor) controlState() domain.GetControlStateResponse {
	return domain.GetControlStateResponse{
		ApplyControl:  a.applyControl,
		Ticks:         a.ticks,
		LastTick:      a.lastTick,
		Limit:         a.lastLimit,
		Configuration: a.lastConfig,
		Record:        a.lastRecord,
	}
}

func (a *ControllerActor) publish(event domain.SensorUpdateEvent) {
	if a.eventStream != nil {
		a.eventStream.Publish(event)
	}
}
