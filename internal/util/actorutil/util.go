package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

// NewActorSystemWithZapLogger routes the actor system's slog output through
// the zap logger, at the zap logger's level.
func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	out := zap.NewStdLog(logger).Writer()
	level := slogLevel(logger.Level())
	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		})).With("system", system.ID)
	}))
}

func slogLevel(level zapcore.Level) slog.Level {
	switch {
	case level <= zapcore.DebugLevel:
		return slog.LevelDebug
	case level == zapcore.InfoLevel:
		return slog.LevelInfo
	case level == zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// MQTTCommandToRequest maps a Home Assistant command to a controller request.
// Unknown entities map to nil.
func MQTTCommandToRequest(cmd mqtt.ParsedMQTTCommand) (domain.ControllerRequest, error) {
	switch cmd.DeviceId {
	case domain.SWITCH_ID_APPLY_CONTROL:
		switch cmd.Payload {
		case mqtt.MQTT_PAYLOAD_ON:
			return domain.SetApplyControlRequest{Enable: true}, nil
		case mqtt.MQTT_PAYLOAD_OFF:
			return domain.SetApplyControlRequest{Enable: false}, nil
		default:
			return nil, fmt.Errorf("%w: switch payload %q", domain.ErrInvalidInput, cmd.Payload)
		}
	}
	return nil, nil
}
