// Package poller is the device polling driver shared by every device
// family: a bounded retry around a read capability, per-step latency and
// the self-throttling delay between ticks.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"
)

const (
	DEFAULT_ATTEMPTS        = 3
	DEFAULT_RETRY_DELAY     = 100 * time.Millisecond
	DEFAULT_ATTEMPT_TIMEOUT = 2 * time.Second
)

type Reader[T any] interface {
	Read(ctx context.Context) (T, error)
}

type ReaderFunc[T any] func(ctx context.Context) (T, error)

func (f ReaderFunc[T]) Read(ctx context.Context) (T, error) {
	return f(ctx)
}

type RetryPolicy struct {
	Attempts       int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       DEFAULT_ATTEMPTS,
		Delay:          DEFAULT_RETRY_DELAY,
		AttemptTimeout: DEFAULT_ATTEMPT_TIMEOUT,
	}
}

type Result[T any] struct {
	Value    T
	Attempts int
	Duration time.Duration
	Err      error
}

func (r Result[T]) Ok() bool {
	return r.Err == nil
}

// Poll runs the whole read sequence up to policy.Attempts times with a
// fixed delay between attempts. A protocol mismatch is not retried.
func Poll[T any](ctx context.Context, reader Reader[T], policy RetryPolicy) Result[T] {
	attempts := max(policy.Attempts, 1)
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := readAttempt(ctx, reader, policy.AttemptTimeout)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt, Duration: time.Since(start)}
		}
		lastErr = err
		if errors.Is(err, domain.ErrProtocolMismatch) || attempt == attempts {
			return Result[T]{Attempts: attempt, Duration: time.Since(start),
				Err: fmt.Errorf("read failed after %d attempts: %w", attempt, lastErr)}
		}
		select {
		case <-ctx.Done():
			return Result[T]{Attempts: attempt, Duration: time.Since(start),
				Err: fmt.Errorf("read cancelled after %d attempts: %w", attempt, errors.Join(lastErr, ctx.Err()))}
		case <-time.After(policy.Delay):
		}
	}
	// unreachable
	return Result[T]{Attempts: attempts, Duration: time.Since(start), Err: lastErr}
}

func readAttempt[T any](ctx context.Context, reader Reader[T], timeout time.Duration) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	value, err := reader.Read(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrDeviceTimeout) {
		err = fmt.Errorf("%w: %w", domain.ErrDeviceTimeout, err)
	}
	return value, err
}

// NextDelay is the wait before the next tick, so that ticks start every
// interval unless a tick overruns, in which case the next one starts now.
func NextDelay(interval, elapsed time.Duration) time.Duration {
	return max(interval-elapsed, 0)
}
