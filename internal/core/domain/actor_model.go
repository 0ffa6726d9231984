package domain

import (
	"fmt"

	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER     = "master"
	ACTOR_ID_CONTROLLER = "controller"
	ACTOR_ID_METER      = "meter"
	ACTOR_ID_INVERTER   = "inverter"
	ACTOR_ID_MQTT       = "mqtt"
)

func InverterActorId(index int) string {
	return fmt.Sprintf("%s_%d", ACTOR_ID_INVERTER, index)
}

// ActorRequestMixIn lets a request name a reply address other than its
// sender. Requests sent with RequestFuture leave it nil.
type ActorRequestMixIn struct {
	ReplyToPID *actor.PID
}

type ActorRequest interface {
	ReplyTo() *actor.PID
}

func (r ActorRequestMixIn) ReplyTo() *actor.PID {
	return r.ReplyToPID
}

// ActorResponseMixIn carries the failure of a request, nil on success.
type ActorResponseMixIn struct {
	ResponseError error
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

func ResponseFromError(err error) ActorResponseMixIn {
	return ActorResponseMixIn{ResponseError: err}
}

// DataReady is sent by a device actor each time its cache is replaced.
type DataReady struct {
	DeviceId string
	Seq      uint64
}

type ApplyConfigurationRequest struct {
	ActorRequestMixIn
	Configuration InverterConfiguration
	DryRun        bool
}

type ApplyConfigurationResponse struct {
	ActorResponseMixIn
	Write *ControlsWrite
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
	Detail  string
}
