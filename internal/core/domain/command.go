package domain

import (
	"fmt"
	"time"
)

// ControllerRequest

type ControllerRequest interface {
	ActorRequest
	ControllerCommand() string
}

type ControllerRequestMixIn struct {
	ActorRequestMixIn
}

func (r ControllerRequestMixIn) ControllerCommand() string {
	return fmt.Sprintf("%T", r)
}

// ControllerResponse

type ControllerResponse interface {
	ActorResponse
	ControllerResponse() string
}

type ControllerResponseMixIn struct {
	ActorResponseMixIn
}

func (r ControllerResponseMixIn) ControllerResponse() string {
	return fmt.Sprintf("%T", r)
}

// Controller commands

type SetApplyControlRequest struct {
	ControllerRequestMixIn
	Enable bool
}

type SetApplyControlResponse struct {
	ControllerResponseMixIn
	Changed bool
}

type GetControlStateRequest struct {
	ControllerRequestMixIn
}

type GetControlStateResponse struct {
	ControllerResponseMixIn
	ApplyControl  bool
	Ticks         uint64
	LastTick      time.Time
	Limit         ReconciledLimit
	Configuration InverterConfiguration
	Record        *ControlRecord
}

// ensure interface compliance
var _ ControllerRequest = (*SetApplyControlRequest)(nil)
var _ ControllerRequest = (*GetControlStateRequest)(nil)
var _ ControllerResponse = (*SetApplyControlResponse)(nil)
