package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorState is one state of an actor FSM. Name shows up in logs and
// health responses.
type ActorState interface {
	Name() string
	Receive(actor.Context)
}

// ActorWithStates drives a behavior from ActorState values and remembers
// which one is active.
type ActorWithStates struct {
	Behavior actor.Behavior
	current  ActorState
}

func (s *ActorWithStates) Become(state ActorState) {
	s.current = state
	s.Behavior.Become(state.Receive)
}

// StateName is the name of the active state, or "" before the first Become.
func (s *ActorWithStates) StateName() string {
	if s.current == nil {
		return ""
	}
	return s.current.Name()
}

// InState reports whether the active state has the given name.
func (s *ActorWithStates) InState(name string) bool {
	return s.StateName() == name
}
