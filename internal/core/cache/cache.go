// Package cache holds the latest decoded snapshot of each device.
package cache

import (
	"sync/atomic"
	"time"
)

// Entry is immutable once published.
type Entry[T any] struct {
	Value     T
	Seq       uint64
	UpdatedAt time.Time
	// consecutive failed polls since the last success
	Failures  int
	LastError error
	FailedAt  time.Time
}

// Cache publishes entries through an atomic pointer: readers see either
// the previous or the next entry, never a mix. There must be a single
// writer, the device's polling loop.
type Cache[T any] struct {
	id    string
	entry atomic.Pointer[Entry[T]]
}

func New[T any](id string) *Cache[T] {
	return &Cache[T]{id: id}
}

func (c *Cache[T]) Id() string {
	return c.id
}

// Load returns the current entry, or false while no poll has succeeded.
func (c *Cache[T]) Load() (Entry[T], bool) {
	e := c.entry.Load()
	if e == nil {
		return Entry[T]{}, false
	}
	return *e, e.Seq > 0
}

// Store replaces the value and returns its sequence number.
func (c *Cache[T]) Store(value T, at time.Time) uint64 {
	var seq uint64 = 1
	if prev := c.entry.Load(); prev != nil {
		seq = prev.Seq + 1
	}
	c.entry.Store(&Entry[T]{Value: value, Seq: seq, UpdatedAt: at})
	return seq
}

// MarkFailed keeps the last value and records the failure.
func (c *Cache[T]) MarkFailed(err error, at time.Time) Entry[T] {
	next := Entry[T]{}
	if prev := c.entry.Load(); prev != nil {
		next = *prev
	}
	next.Failures++
	next.LastError = err
	next.FailedAt = at
	c.entry.Store(&next)
	return next
}

// Stale reports whether the value is older than maxAge at the given time.
func (e Entry[T]) Stale(at time.Time, maxAge time.Duration) bool {
	return e.Seq == 0 || at.Sub(e.UpdatedAt) > maxAge
}
