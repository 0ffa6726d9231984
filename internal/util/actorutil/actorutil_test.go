package actorutil

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestBackgroundTaskRun(t *testing.T) {
	value, ok := NewBackgroundTaskNoError[int](nil, func() *int {
		v := 42
		return &v
	}).Run()
	assert.True(t, ok)
	assert.Equal(t, 42, value)
}

func TestBackgroundTaskRecover(t *testing.T) {
	boom := errors.New("boom")
	var recovered error
	value, ok := NewBackgroundTask[int](nil, func() (*int, error) {
		return nil, boom
	}).Recover(func(err error) int {
		recovered = err
		return -1
	}).Run()
	assert.True(t, ok)
	assert.Equal(t, -1, value)
	assert.ErrorIs(t, recovered, boom)
}

func TestBackgroundTaskTimeout(t *testing.T) {
	value, ok := NewBackgroundTaskNoError[int](nil, func() *int {
		time.Sleep(500 * time.Millisecond)
		v := 1
		return &v
	}).WithTimeout(20 * time.Millisecond).Recover(func(err error) int {
		return -1
	}).Run()
	assert.True(t, ok)
	assert.Equal(t, -1, value)
}

func TestBackgroundTaskFailureWithoutRecover(t *testing.T) {
	_, ok := NewBackgroundTask[int](nil, func() (*int, error) {
		return nil, errors.New("boom")
	}).Run()
	assert.False(t, ok)
}

type namedState string

func (s namedState) Name() string          { return string(s) }
func (s namedState) Receive(actor.Context) {}

func TestActorWithStatesName(t *testing.T) {
	s := ActorWithStates{Behavior: actor.NewBehavior()}
	assert.Equal(t, "", s.StateName())

	s.Become(namedState("polling"))
	assert.Equal(t, "polling", s.StateName())
	assert.True(t, s.InState("polling"))
	assert.False(t, s.InState("writing"))
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, slogLevel(zapcore.DebugLevel))
	assert.Equal(t, slog.LevelInfo, slogLevel(zapcore.InfoLevel))
	assert.Equal(t, slog.LevelWarn, slogLevel(zapcore.WarnLevel))
	assert.Equal(t, slog.LevelError, slogLevel(zapcore.ErrorLevel))
	assert.Equal(t, slog.LevelError, slogLevel(zapcore.FatalLevel))
}

func TestMQTTCommandToRequest(t *testing.T) {
	req, err := MQTTCommandToRequest(mqtt.ParsedMQTTCommand{DeviceId: domain.SWITCH_ID_APPLY_CONTROL, Command: "switch", Payload: "off"})
	assert.NoError(t, err)
	assert.Equal(t, domain.SetApplyControlRequest{Enable: false}, req)

	_, err = MQTTCommandToRequest(mqtt.ParsedMQTTCommand{DeviceId: domain.SWITCH_ID_APPLY_CONTROL, Command: "switch", Payload: "maybe"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	req, err = MQTTCommandToRequest(mqtt.ParsedMQTTCommand{DeviceId: "unknown", Payload: "on"})
	assert.NoError(t, err)
	assert.Nil(t, req)
}
