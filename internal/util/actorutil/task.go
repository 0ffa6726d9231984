package actorutil

import (
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var errNilResult = errors.New("background task returned no result")

// SafeBackgroundTask runs blocking device I/O off the actor goroutine and
// delivers exactly one message back: the result, or the recovered value
// when the task fails, panics or times out.
type SafeBackgroundTask[T any] struct {
	ctx     actor.Context
	fn      func() (*T, error)
	timeout time.Duration
	recover func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{ctx: ctx, fn: fn}
}

func NewBackgroundTaskNoError[T any](ctx actor.Context, fn func() *T) *SafeBackgroundTask[T] {
	return NewBackgroundTask(ctx, func() (*T, error) {
		return fn(), nil
	})
}

// WithTimeout bounds the task. Zero means no bound.
func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = timeout
	return t
}

// Recover maps a failure to the message sent instead of the result.
// Without it failures are dropped.
func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

// PipeTo runs the task on its own goroutine and sends the outcome to pid.
// The actor keeps processing its mailbox meanwhile.
func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	root := t.ctx.ActorSystem().Root
	go func() {
		if value, ok := t.Run(); ok {
			root.Send(pid, value)
		}
	}()
}

// Run executes the task on the calling goroutine. ok is false when the
// task failed and there is no recover function.
func (t *SafeBackgroundTask[T]) Run() (value T, ok bool) {
	result := io.RunSync(t.io())
	if result.Error == nil {
		return result.Value, true
	}
	if t.recover == nil {
		return value, false
	}
	return t.recover(result.Error), true
}

func (t *SafeBackgroundTask[T]) io() io.IO[T] {
	task := io.Map(io.Eval(t.fn), func(a *T) T {
		if a == nil {
			panic(errNilResult)
		}
		return *a
	})
	if t.timeout > 0 {
		task = io.WithTimeout[T](t.timeout)(task)
	}
	return task
}
