package actorutil

import (
	"github.com/berfenger/exportguard/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// ReplyTarget is the explicit reply address of req, falling back to the
// sender of the current message.
func ReplyTarget(ctx actor.Context, req domain.ActorRequest) *actor.PID {
	if pid := req.ReplyTo(); pid != nil {
		return pid
	}
	return ctx.Sender()
}

func Respond(ctx actor.Context, req domain.ActorRequest, resp domain.ActorResponse) {
	if pid := req.ReplyTo(); pid != nil {
		ctx.Send(pid, resp)
		return
	}
	ctx.Respond(resp)
}
