package orchestrator

import (
	"sync/atomic"
	"time"
)

// defaultEmitGrace is how long Emit waits for a slow subscriber to drain
// a full buffer before the event is dropped.
const defaultEmitGrace = 100 * time.Millisecond

// EventEmitter fans run events out to a subscriber over a buffered
// channel. Emission never stalls the driver past the grace period; late
// events are dropped and counted instead.
type EventEmitter struct {
	events  chan OrchestrationEvent
	grace   time.Duration
	dropped atomic.Uint64
}

// NewEventEmitter creates an emitter with the given channel buffer.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan OrchestrationEvent, bufferSize),
		grace:  defaultEmitGrace,
	}
}

// Emit delivers one event. A full buffer gets the grace period to drain,
// then the event is dropped.
func (e *EventEmitter) Emit(event OrchestrationEvent) {
	select {
	case e.events <- event:
		return
	default:
	}

	timer := time.NewTimer(e.grace)
	defer timer.Stop()
	select {
	case e.events <- event:
	case <-timer.C:
		count := e.dropped.Add(1)
		if count%10 == 1 {
			debugLog("[events] buffer full, dropped %s (total dropped: %d)", event.Type, count)
		}
	}
}

// DroppedCount returns how many events have been dropped so far.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.dropped.Load()
}

// Events returns the subscriber side of the event stream.
func (e *EventEmitter) Events() <-chan OrchestrationEvent {
	return e.events
}

// Close ends the event stream. Call only after the last Emit.
func (e *EventEmitter) Close() {
	close(e.events)
}
