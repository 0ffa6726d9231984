package metrics

import (
	"sync"
	"time"

	"github.com/berfenger/exportguard/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
)

// EventStreamSink publishes control records as sensor updates on the actor
// event stream. Records closer than minInterval to the last published one
// are dropped.
type EventStreamSink struct {
	eventStream *eventstream.EventStream
	minInterval time.Duration
	mu          sync.Mutex
	last        time.Time
}

func NewEventStreamSink(eventStream *eventstream.EventStream, minInterval time.Duration) *EventStreamSink {
	return &EventStreamSink{eventStream: eventStream, minInterval: minInterval}
}

func (s *EventStreamSink) WriteControl(record domain.ControlRecord) {
	s.mu.Lock()
	if !s.last.IsZero() && record.Time.Sub(s.last) < s.minInterval {
		s.mu.Unlock()
		return
	}
	s.last = record.Time
	s.mu.Unlock()

	for _, ev := range domain.ControlRecordToUpdateEvents(record) {
		s.eventStream.Publish(ev)
	}
}

func (s *EventStreamSink) WriteLimit(domain.ReconciledLimit) {}

func (s *EventStreamSink) WriteDevicePoll(domain.DevicePollRecord) {}
