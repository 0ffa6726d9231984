package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const (
	HADISCOVERY_ACTOR_ID = "hadiscovery"
)

// HADiscoveryActor announces the control entities to Home Assistant once
// MQTT and the controller are up, then republishes the switch state.
type HADiscoveryActor struct {
	config          *config.Config
	behavior        actor.Behavior
	stash           *actorutil.Stash
	controllerActor *actor.PID
	mqttActor       *actor.PID
	eventStream     *eventstream.EventStream
	mqttHealthy     bool
	controllerUp    bool
	applyControl    bool
	healthyRecv     int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, controllerActor *actor.PID, mqttActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:          config,
		controllerActor: controllerActor,
		mqttActor:       mqttActor,
		eventStream:     eventStream,
		behavior:        actor.NewBehavior(),
		stash:           &actorutil.Stash{},
		logger:          actorutil.ActorLogger(HADISCOVERY_ACTOR_ID, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		state.healthyRecv = 0
		state.mqttHealthy = false
		state.controllerUp = false
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 5*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// Controller state Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.controllerActor, domain.GetControlStateRequest{}, 5*time.Second), func(err error) any {
			return domain.GetControlStateResponse{
				ControllerResponseMixIn: domain.ControllerResponseMixIn{
					ActorResponseMixIn: domain.ResponseFromError(err),
				},
			}
		})
		state.behavior.Become(state.WaitingReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@waiting ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		state.mqttHealthy = msg.Healthy
		state.tryPublish(ctx, nil)
	case domain.GetControlStateResponse:
		state.logger.Debug("hadiscovery@waiting GetControlStateResponse", zap.Bool("apply_control", msg.ApplyControl))
		state.healthyRecv++
		state.controllerUp = !msg.HasResponseError()
		state.tryPublish(ctx, &msg)
	default:
		state.logger.Debug("hadiscovery@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
}

func (state *HADiscoveryActor) tryPublish(ctx actor.Context, controlState *domain.GetControlStateResponse) {
	if controlState != nil && state.controllerUp {
		state.applyControl = controlState.ApplyControl
	}
	if state.healthyRecv < 2 {
		return
	}
	if !state.mqttHealthy || !state.controllerUp {
		panic(errors.New("MQTT actor or controller actor not ready"))
	}

	bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)
	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:  domain.ControlSensors(bridgeDevice),
		Switches: domain.ControlSwitches(bridgeDevice),
	})
	state.eventStream.Publish(domain.ApplyControlUpdateEvent(state.applyControl))
	state.logger.Info("hadiscovery@waiting discovery published")
	state.behavior.Become(state.Done)
}
