package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/cache"
	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/poller"
	"github.com/berfenger/exportguard/internal/core/port"
	"github.com/berfenger/exportguard/internal/core/service"
	. "github.com/berfenger/exportguard/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

var errNoSnapshot = errors.New("no snapshot read yet")

type DeviceOptions struct {
	PollInterval           time.Duration
	Retry                  poller.RetryPolicy
	ReconnectAfterFailures int
	ReconnectDelay         time.Duration
	RevertTimeout          time.Duration
}

func DeviceOptionsFromConfig(cfg *config.Config) DeviceOptions {
	return DeviceOptions{
		PollInterval: cfg.Devices.PollInterval(),
		Retry: poller.RetryPolicy{
			Attempts:       int(cfg.Devices.RetryAttempts),
			Delay:          cfg.Devices.RetryDelay(),
			AttemptTimeout: cfg.Devices.Timeout(),
		},
		ReconnectAfterFailures: int(cfg.Devices.ReconnectAfterFailures),
		ReconnectDelay:         max(cfg.Devices.PollInterval(), 1*time.Second),
		RevertTimeout:          cfg.Control.RevertTimeout(),
	}
}

// deviceDriver binds one device family to the polling actor.
type deviceDriver[T any] struct {
	connect func(ctx context.Context) error
	close   func() error
	reader  poller.Reader[Sample[T]]
	// nil on read-only devices
	encode func(configuration domain.InverterConfiguration, last T) domain.ControlsWrite
	write  func(ctx context.Context, values domain.ControlsWrite) error
}

// DeviceActor owns one device connection: it polls on its own timer,
// publishes every successful read to the cache and notifies the
// controller. Reads and writes of one device never overlap.
type DeviceActor[T any] struct {
	ActorWithStates
	id        string
	driver    deviceDriver[T]
	cache     *cache.Cache[T]
	notify    *actor.PID
	options   DeviceOptions
	metrics   port.MetricsSink
	scheduler *scheduler.TimerScheduler
	runCtx    context.Context
	cancelRun context.CancelFunc

	failures     int
	lastError    error
	pollInFlight bool
	pollDue      bool
	pending      *pendingWrite

	logger *zap.Logger
}

type pendingWrite struct {
	request domain.ApplyConfigurationRequest
	replyTo *actor.PID
}

type connectTick struct {
}

type pollTick struct {
}

type connectResult struct {
	err error
}

type pollResult[T any] struct {
	result    poller.Result[Sample[T]]
	startedAt time.Time
}

type writeResult struct {
	write   domain.ControlsWrite
	err     error
	replyTo *actor.PID
}

func NewInverterActor(id string, conn port.InverterConnection, snapshots *cache.Cache[domain.InverterSnapshot], notify *actor.PID,
	options DeviceOptions, metrics port.MetricsSink, logger *zap.Logger) *DeviceActor[domain.InverterSnapshot] {
	return newDeviceActor(id, deviceDriver[domain.InverterSnapshot]{
		connect: conn.Connect,
		close:   conn.Close,
		reader:  InverterSequence(conn),
		encode: func(configuration domain.InverterConfiguration, last domain.InverterSnapshot) domain.ControlsWrite {
			return service.ControlsFor(configuration, last.Controls, options.RevertTimeout)
		},
		write: conn.WriteControls,
	}, snapshots, notify, options, metrics, logger)
}

func NewMeterActor(id string, conn port.MeterConnection, snapshots *cache.Cache[domain.MeterSnapshot], notify *actor.PID,
	options DeviceOptions, metrics port.MetricsSink, logger *zap.Logger) *DeviceActor[domain.MeterSnapshot] {
	return newDeviceActor(id, deviceDriver[domain.MeterSnapshot]{
		connect: conn.Connect,
		close:   conn.Close,
		reader:  MeterSequence(conn),
	}, snapshots, notify, options, metrics, logger)
}

func newDeviceActor[T any](id string, driver deviceDriver[T], snapshots *cache.Cache[T], notify *actor.PID,
	options DeviceOptions, metrics port.MetricsSink, logger *zap.Logger) *DeviceActor[T] {
	if options.Retry.AttemptTimeout <= 0 {
		options.Retry.AttemptTimeout = poller.DEFAULT_ATTEMPT_TIMEOUT
	}
	if options.ReconnectDelay <= 0 {
		options.ReconnectDelay = options.PollInterval
	}
	act := &DeviceActor[T]{
		id:      id,
		driver:  driver,
		cache:   snapshots,
		notify:  notify,
		options: options,
		metrics: metrics,
		logger:  ActorLogger(id, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(deviceDisconnectedState[T]{actor: act})
	return act
}

func (a *DeviceActor[T]) Receive(context actor.Context) {
	a.Behavior.Receive(context)
}

// Disconnected state

type deviceDisconnectedState[T any] struct {
	actor *DeviceActor[T]
}

func (state deviceDisconnectedState[T]) Name() string {
	return "disconnected"
}

func (state deviceDisconnectedState[T]) Receive(ctx actor.Context) {
	a := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		a.logger.Debug("device@disconnected started")
		a.scheduler = scheduler.NewTimerScheduler(ctx)
		a.runCtx, a.cancelRun = context.WithCancel(context.Background())
		ctx.Send(ctx.Self(), connectTick{})
	case connectTick:
		a.logger.Debug("device@disconnected connect")
		a.connect(ctx)
		a.Become(deviceConnectingState[T]{actor: a})
	case domain.ApplyConfigurationRequest:
		a.reject(ctx, msg, domain.ErrDeviceUnreachable)
	case domain.ActorHealthRequest:
		ctx.Respond(a.health(false))
	case *actor.Stopping:
		a.shutdown()
	case *actor.Restarting:
		a.shutdown()
	default:
		a.logger.Debug("device@disconnected recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Connecting state

type deviceConnectingState[T any] struct {
	actor *DeviceActor[T]
}

func (state deviceConnectingState[T]) Name() string {
	return "connecting"
}

func (state deviceConnectingState[T]) Receive(ctx actor.Context) {
	a := state.actor
	switch msg := ctx.Message().(type) {
	case connectResult:
		if msg.err == nil {
			a.logger.Info("device@connecting connected")
			a.failures = 0
			a.lastError = nil
			a.Become(devicePollingState[T]{actor: a})
			ctx.Send(ctx.Self(), pollTick{})
			return
		}
		a.lastError = msg.err
		if errors.Is(msg.err, domain.ErrProtocolMismatch) {
			a.stop(ctx, msg.err)
			return
		}
		a.logger.Warn("device@connecting connect failed", zap.Error(msg.err), zap.Duration("retry_in", a.options.ReconnectDelay))
		a.scheduler.RequestOnce(a.options.ReconnectDelay, ctx.Self(), connectTick{})
		a.Become(deviceDisconnectedState[T]{actor: a})
	case domain.ApplyConfigurationRequest:
		a.reject(ctx, msg, domain.ErrDeviceUnreachable)
	case domain.ActorHealthRequest:
		ctx.Respond(a.health(false))
	case *actor.Stopping:
		a.shutdown()
	case *actor.Restarting:
		a.shutdown()
	default:
		a.logger.Debug("device@connecting recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Polling state

type devicePollingState[T any] struct {
	actor *DeviceActor[T]
}

func (state devicePollingState[T]) Name() string {
	return "polling"
}

func (state devicePollingState[T]) Receive(ctx actor.Context) {
	a := state.actor
	switch msg := ctx.Message().(type) {
	case pollTick:
		if !a.pollInFlight {
			a.poll(ctx)
		}
	case pollResult[T]:
		a.onPollResult(ctx, msg)
	case domain.ApplyConfigurationRequest:
		a.apply(ctx, msg)
	case domain.ActorHealthRequest:
		ctx.Respond(a.health(a.failures == 0))
	case *actor.Stopping:
		a.shutdown()
	case *actor.Restarting:
		a.shutdown()
	default:
		a.logger.Debug("device@polling recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Writing state

type deviceWritingState[T any] struct {
	actor *DeviceActor[T]
}

func (state deviceWritingState[T]) Name() string {
	return "writing"
}

func (state deviceWritingState[T]) Receive(ctx actor.Context) {
	a := state.actor
	switch msg := ctx.Message().(type) {
	case writeResult:
		if msg.err != nil {
			a.logger.Error("device@writing write failed", zap.Error(msg.err), zap.Any("write", msg.write))
		} else {
			a.logger.Debug("device@writing written", zap.Any("write", msg.write))
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, domain.ApplyConfigurationResponse{
				ActorResponseMixIn: domain.ResponseFromError(msg.err),
				Write:              &msg.write,
			})
		}
		a.Become(devicePollingState[T]{actor: a})
		if a.pollDue {
			a.pollDue = false
			a.poll(ctx)
		} else if a.pending != nil {
			a.startWrite(ctx, *a.pending)
		}
	case pollTick:
		a.pollDue = true
	case domain.ApplyConfigurationRequest:
		a.apply(ctx, msg)
	case domain.ActorHealthRequest:
		ctx.Respond(a.health(a.failures == 0))
	case *actor.Stopping:
		a.shutdown()
	case *actor.Restarting:
		a.shutdown()
	default:
		a.logger.Debug("device@writing recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Stopped state

type deviceStoppedState[T any] struct {
	actor *DeviceActor[T]
}

func (state deviceStoppedState[T]) Name() string {
	return "stopped"
}

func (state deviceStoppedState[T]) Receive(ctx actor.Context) {
	a := state.actor
	switch msg := ctx.Message().(type) {
	case domain.ApplyConfigurationRequest:
		a.reject(ctx, msg, domain.ErrProtocolMismatch)
	case domain.ActorHealthRequest:
		ctx.Respond(a.health(false))
	case *actor.Stopping:
		a.shutdown()
	default:
		a.logger.Debug("device@stopped recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (a *DeviceActor[T]) connect(ctx actor.Context) {
	timeout := a.options.Retry.AttemptTimeout
	runCtx := a.runCtx
	NewBackgroundTaskNoError(ctx, func() *connectResult {
		cctx, cancel := context.WithTimeout(runCtx, timeout)
		defer cancel()
		return &connectResult{err: a.driver.connect(cctx)}
	}).WithTimeout(timeout + time.Second).Recover(func(err error) connectResult {
		return connectResult{err: fmt.Errorf("%w: %w", domain.ErrDeviceTimeout, err)}
	}).PipeTo(ctx.Self())
}

func (a *DeviceActor[T]) poll(ctx actor.Context) {
	a.pollInFlight = true
	policy := a.options.Retry
	runCtx := a.runCtx
	startedAt := time.Now()
	NewBackgroundTaskNoError(ctx, func() *pollResult[T] {
		return &pollResult[T]{result: poller.Poll(runCtx, a.driver.reader, policy), startedAt: startedAt}
	}).WithTimeout(a.pollBudget()).Recover(func(err error) pollResult[T] {
		return pollResult[T]{
			result: poller.Result[Sample[T]]{
				Attempts: policy.Attempts,
				Duration: time.Since(startedAt),
				Err:      fmt.Errorf("%w: %w", domain.ErrDeviceTimeout, err),
			},
			startedAt: startedAt,
		}
	}).PipeTo(ctx.Self())
}

// pollBudget bounds a whole retry sequence.
func (a *DeviceActor[T]) pollBudget() time.Duration {
	p := a.options.Retry
	return time.Duration(max(p.Attempts, 1))*(p.AttemptTimeout+p.Delay) + 1*time.Second
}

func (a *DeviceActor[T]) onPollResult(ctx actor.Context, msg pollResult[T]) {
	a.pollInFlight = false
	now := time.Now()
	res := msg.result
	record := domain.DevicePollRecord{
		DeviceId: a.id,
		Time:     now,
		Success:  res.Ok(),
		Attempts: res.Attempts,
		Duration: res.Duration,
	}

	if res.Ok() {
		seq := a.cache.Store(res.Value.Value, now)
		a.failures = 0
		a.lastError = nil
		record.Steps = res.Value.Steps
		record.Seq = seq
		a.emit(record)
		a.logger.Debug("device@polling poll ok", zap.Uint64("seq", seq), zap.Int("attempts", res.Attempts), zap.Duration("duration", res.Duration))
		if a.notify != nil {
			ctx.Send(a.notify, domain.DataReady{DeviceId: a.id, Seq: seq})
		}
	} else {
		entry := a.cache.MarkFailed(res.Err, now)
		a.failures++
		a.lastError = res.Err
		record.Seq = entry.Seq
		a.emit(record)
		a.logger.Warn("device@polling poll failed, keeping last snapshot", zap.Error(res.Err),
			zap.Int("attempts", res.Attempts), zap.Int("failures", a.failures), zap.Uint64("seq", entry.Seq))

		if errors.Is(res.Err, domain.ErrProtocolMismatch) {
			a.stop(ctx, res.Err)
			return
		}
		if a.options.ReconnectAfterFailures > 0 && a.failures >= a.options.ReconnectAfterFailures {
			a.logger.Warn("device@polling too many failures, reconnecting", zap.Int("failures", a.failures))
			if err := a.driver.close(); err != nil {
				a.logger.Debug("device@polling close error", zap.Error(err))
			}
			a.dropPending(ctx, domain.ErrDeviceUnreachable)
			a.scheduler.RequestOnce(a.options.ReconnectDelay, ctx.Self(), connectTick{})
			a.Become(deviceDisconnectedState[T]{actor: a})
			return
		}
	}

	a.scheduler.RequestOnce(poller.NextDelay(a.options.PollInterval, time.Since(msg.startedAt)), ctx.Self(), pollTick{})
	if a.pending != nil {
		a.startWrite(ctx, *a.pending)
	}
}

// apply handles a configuration from the controller. Dry runs only encode
// and log. A write arriving during a poll replaces any pending one.
func (a *DeviceActor[T]) apply(ctx actor.Context, msg domain.ApplyConfigurationRequest) {
	req := pendingWrite{request: msg, replyTo: ReplyTarget(ctx, msg)}
	if a.driver.encode == nil {
		a.reject(ctx, msg, fmt.Errorf("%w: device does not accept writes", domain.ErrInvalidInput))
		return
	}
	if msg.DryRun {
		a.dryRun(ctx, req)
		return
	}
	if a.pollInFlight || a.InState("writing") {
		if a.pending != nil {
			a.logger.Debug("device@" + a.StateName() + " pending configuration replaced")
		}
		a.pending = &req
		return
	}
	a.startWrite(ctx, req)
}

func (a *DeviceActor[T]) dryRun(ctx actor.Context, req pendingWrite) {
	entry, ok := a.cache.Load()
	if !ok {
		a.reject(ctx, req.request, fmt.Errorf("%w: %w", domain.ErrDeviceUnreachable, errNoSnapshot))
		return
	}
	values := a.driver.encode(req.request.Configuration, entry.Value)
	a.logger.Info("device@"+a.StateName()+" dry run, not writing", zap.Stringer("configuration", req.request.Configuration), zap.Any("write", values))
	if req.replyTo != nil {
		ctx.Send(req.replyTo, domain.ApplyConfigurationResponse{Write: &values})
	}
}

func (a *DeviceActor[T]) startWrite(ctx actor.Context, req pendingWrite) {
	a.pending = nil
	entry, ok := a.cache.Load()
	if !ok {
		a.reject(ctx, req.request, fmt.Errorf("%w: %w", domain.ErrDeviceUnreachable, errNoSnapshot))
		return
	}
	values := a.driver.encode(req.request.Configuration, entry.Value)
	timeout := a.options.Retry.AttemptTimeout
	runCtx := a.runCtx
	replyTo := req.replyTo
	NewBackgroundTaskNoError(ctx, func() *writeResult {
		wctx, cancel := context.WithTimeout(runCtx, timeout)
		defer cancel()
		return &writeResult{write: values, err: a.driver.write(wctx, values), replyTo: replyTo}
	}).WithTimeout(timeout + time.Second).Recover(func(err error) writeResult {
		return writeResult{write: values, err: fmt.Errorf("%w: %w", domain.ErrDeviceTimeout, err), replyTo: replyTo}
	}).PipeTo(ctx.Self())
	a.Become(deviceWritingState[T]{actor: a})
}

func (a *DeviceActor[T]) reject(ctx actor.Context, msg domain.ApplyConfigurationRequest, err error) {
	a.logger.Debug("device@"+a.StateName()+" configuration rejected", zap.Error(err))
	Respond(ctx, msg, domain.ApplyConfigurationResponse{
		ActorResponseMixIn: domain.ResponseFromError(err),
	})
}

func (a *DeviceActor[T]) dropPending(ctx actor.Context, err error) {
	if a.pending == nil {
		return
	}
	if a.pending.replyTo != nil {
		ctx.Send(a.pending.replyTo, domain.ApplyConfigurationResponse{
			ActorResponseMixIn: domain.ResponseFromError(err),
		})
	}
	a.pending = nil
}

func (a *DeviceActor[T]) stop(ctx actor.Context, err error) {
	a.logger.Error("device@"+a.StateName()+" protocol mismatch, device stopped", zap.Error(err))
	a.lastError = err
	if cerr := a.driver.close(); cerr != nil {
		a.logger.Debug("device@stopped close error", zap.Error(cerr))
	}
	a.dropPending(ctx, err)
	a.Become(deviceStoppedState[T]{actor: a})
}

func (a *DeviceActor[T]) shutdown() {
	a.logger.Debug("device@" + a.StateName() + " shutdown")
	if a.cancelRun != nil {
		a.cancelRun()
	}
	_ = a.driver.close()
}

func (a *DeviceActor[T]) health(healthy bool) domain.ActorHealthResponse {
	resp := domain.ActorHealthResponse{
		Id:      a.id,
		Healthy: healthy,
		State:   a.StateName(),
	}
	if a.lastError != nil {
		resp.Detail = a.lastError.Error()
	}
	return resp
}

func (a *DeviceActor[T]) emit(record domain.DevicePollRecord) {
	if a.metrics != nil {
		a.metrics.WriteDevicePoll(record)
	}
}
