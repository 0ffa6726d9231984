package poller

import (
	"context"
	"time"
)

// Latency records how long each named step of a read sequence took.
type Latency struct {
	order []string
	steps map[string]time.Duration
}

func NewLatency() *Latency {
	return &Latency{steps: map[string]time.Duration{}}
}

func (l *Latency) Record(name string, d time.Duration) {
	if _, ok := l.steps[name]; !ok {
		l.order = append(l.order, name)
	}
	l.steps[name] = d
}

func (l *Latency) Steps() map[string]time.Duration {
	out := make(map[string]time.Duration, len(l.steps))
	for k, v := range l.steps {
		out[k] = v
	}
	return out
}

func (l *Latency) Names() []string {
	return append([]string(nil), l.order...)
}

// Step runs fn and records its latency under name, failed or not.
func Step[T any](ctx context.Context, l *Latency, name string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	value, err := fn(ctx)
	if l != nil {
		l.Record(name, time.Since(start))
	}
	return value, err
}
