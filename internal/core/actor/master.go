package actor

import (
	"fmt"
	"log"
	"strings"
	"time"

	adactor "github.com/berfenger/exportguard/internal/adapter/actor"
	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/cache"
	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/port"
	. "github.com/berfenger/exportguard/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const HEALTH_CHECK_TIMEOUT = 1 * time.Second

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// ControlServices are the collaborators of the control loop.
type ControlServices struct {
	Limits      port.LimitRegistry
	Reconciler  port.LimitReconciler
	Calculator  port.ControlCalculator
	Metrics     port.MetricsSink
	EventStream *eventstream.EventStream
}

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	meterConn      port.MeterConnection
	inverterConns  []port.InverterConnection
	meterCache     *cache.Cache[domain.MeterSnapshot]
	inverterCaches []*cache.Cache[domain.InverterSnapshot]
	services       ControlServices

	currentHealthCheck healthCheckResult
	children           []*actor.PID
	controller         *actor.PID
	inverterActors     []*actor.PID
	mqttActor          *actor.PID
	mqttActorProvider  MQTTActorProvider
	logger             *zap.Logger
}

type healthCheckResult struct {
	expected  int
	received  int
	unhealthy []string
	respondTo *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, meter port.MeterConnection, inverters []port.InverterConnection,
	services ControlServices, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	inverterCaches := make([]*cache.Cache[domain.InverterSnapshot], len(inverters))
	for i := range inverters {
		inverterCaches[i] = cache.New[domain.InverterSnapshot](domain.InverterActorId(i))
	}
	if services.EventStream == nil {
		services.EventStream = &eventstream.EventStream{}
	}
	act := &MasterOfPuppetsActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		meterConn:         meter,
		inverterConns:     inverters,
		meterCache:        cache.New[domain.MeterSnapshot](domain.ACTOR_ID_METER),
		inverterCaches:    inverterCaches,
		services:          services,
		mqttActorProvider: mqttActorProvider,
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		controllerPID, err := state.startControllerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.controller = controllerPID

		meterPID, err := state.startMeterActor(ctx)
		if err != nil {
			panic(err)
		}

		inverterPIDs := make([]*actor.PID, 0, len(state.inverterConns))
		for i := range state.inverterConns {
			pid, err := state.startInverterActor(ctx, i)
			if err != nil {
				panic(err)
			}
			inverterPIDs = append(inverterPIDs, pid)
		}
		state.inverterActors = inverterPIDs
		ctx.Send(state.controller, attachInverters{pids: inverterPIDs})

		state.children = append([]*actor.PID{controllerPID, meterPID}, inverterPIDs...)

		if state.config.MQTT.Enable && state.mqttActorProvider != nil {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID
			state.children = append(state.children, mqttActorPID)

			if state.config.MQTT.HADiscoveryEnable {
				if _, err := state.startHADiscoveryActor(ctx); err != nil {
					panic(err)
				}
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(len(state.children))
		state.currentHealthCheck.respondTo = ctx.Sender()
		for _, child := range state.children {
			id := child.Id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(child, domain.ActorHealthRequest{}, HEALTH_CHECK_TIMEOUT/2), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
					Detail:  err.Error(),
				}
			})
		}

		ctx.SetReceiveTimeout(HEALTH_CHECK_TIMEOUT)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.ControllerRequest:
		state.logger.Debug("master@default controller request", zap.String("type", fmt.Sprintf("%T", msg)))
		ctx.Forward(state.controller)
	case adactor.ParsedCommand:
		// route Home Assistant commands to the controller
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := MQTTCommandToRequest(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid command", zap.Error(err))
			} else if cmd != nil {
				ctx.Send(state.controller, cmd)
			}
		}
	case domain.SetApplyControlResponse:
		state.logger.Debug("master@default apply control changed", zap.Bool("changed", msg.Changed))
	case *actor.Terminated:
		state.logger.Error("master@default child terminated", zap.String("who", msg.Who.Id))
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// children that did not answer in time are not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.received++
		if !msg.Healthy {
			state.currentHealthCheck.unhealthy = append(state.currentHealthCheck.unhealthy, healthDetail(msg))
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startControllerActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)

	options := ControllerOptions{
		ApplyControl: state.config.Control.ApplyControl && !state.config.DryRun,
		StaleAfter:   state.config.Control.StaleAfter(),
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		act := NewControllerActor(options, state.meterCache, state.inverterCaches, state.services.Limits,
			state.services.Reconciler, state.services.Calculator, state.services.Metrics,
			state.services.EventStream, state.logger)
		// on restart the inverters are already running
		if len(state.inverterActors) > 0 {
			act.inverters = state.inverterActors
			act.Become(controllerRunningState{actor: act})
		}
		return act
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_CONTROLLER)
}

func (state *MasterOfPuppetsActor) startMeterActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	options := DeviceOptionsFromConfig(&state.config)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(domain.ACTOR_ID_METER, state.meterConn, state.meterCache, state.controller,
			options, state.services.Metrics, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_METER)
}

func (state *MasterOfPuppetsActor) startInverterActor(ctx actor.Context, index int) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	id := domain.InverterActorId(index)
	options := DeviceOptionsFromConfig(&state.config)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewInverterActor(id, state.inverterConns[index], state.inverterCaches[index], state.controller,
			options, state.services.Metrics, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, id)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 30*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.controller, state.mqttActor, state.services.EventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, HADISCOVERY_ACTOR_ID)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.services.EventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *healthCheckResult) reset(expected int) {
	state.expected = expected
	state.received = 0
	state.unhealthy = nil
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.received >= state.expected
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allReceived() && len(state.unhealthy) == 0,
		State:   fmt.Sprintf("%d/%d", state.received-len(state.unhealthy), state.expected),
		Detail:  strings.Join(state.unhealthy, "; "),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}

func healthDetail(resp domain.ActorHealthResponse) string {
	if resp.Detail == "" {
		return fmt.Sprintf("%s(%s)", resp.Id, resp.State)
	}
	return fmt.Sprintf("%s(%s): %s", resp.Id, resp.State, resp.Detail)
}
