package events

import (
	"context"

	"agrivoice/internal/domain"
)

// Kind names a UI event type.
type Kind string

const (
	KindRecordingState Kind = "recording_state"
	KindRecordingTick  Kind = "recording_tick"
	KindTimeline       Kind = "timeline"
	KindBusy           Kind = "busy"
	KindError          Kind = "error"
)

// Event is one typed notification for the UI.
type Event struct {
	Kind    Kind
	Payload any
}

// RecordingStatePayload accompanies KindRecordingState.
type RecordingStatePayload struct {
	State  domain.RecordingState       `json:"state"`
	Reason domain.RecordingStateReason `json:"reason"`
}

// RecordingTickPayload accompanies KindRecordingTick.
type RecordingTickPayload struct {
	Seconds   int    `json:"seconds"`
	Formatted string `json:"formatted"`
}

// ErrorPayload accompanies KindError.
type ErrorPayload struct {
	Code   domain.ErrorCode `json:"code"`
	Detail string           `json:"detail"`
}

// Queue carries typed events from the controller to a single dispatch
// loop, so every asynchronous source is applied in arrival order.
type Queue struct {
	ch chan Event
}

// NewQueue creates a Queue with the given buffer size (default 128).
func NewQueue(bufSize int) *Queue {
	if bufSize <= 0 {
		bufSize = 128
	}
	return &Queue{ch: make(chan Event, bufSize)}
}

// Publish enqueues an event. If the queue is saturated the event is
// dropped rather than blocking a capture or submission path.
func (q *Queue) Publish(e Event) {
	select {
	case q.ch <- e:
	default:
	}
}

// Dispatch delivers events to fn one at a time, in publish order.
// Returns when ctx is cancelled.
func (q *Queue) Dispatch(ctx context.Context, fn func(Event)) {
	for {
		select {
		case e := <-q.ch:
			fn(e)
		case <-ctx.Done():
			return
		}
	}
}

// Sink adapts the queue to the controller's event interface.
type Sink struct {
	queue *Queue
}

func NewSink(queue *Queue) *Sink {
	return &Sink{queue: queue}
}

func (s *Sink) RecordingStateChanged(state domain.RecordingState, reason domain.RecordingStateReason) {
	s.queue.Publish(Event{Kind: KindRecordingState, Payload: RecordingStatePayload{State: state, Reason: reason}})
}

func (s *Sink) RecordingTick(seconds int, formatted string) {
	s.queue.Publish(Event{Kind: KindRecordingTick, Payload: RecordingTickPayload{Seconds: seconds, Formatted: formatted}})
}

func (s *Sink) TimelineChanged(messages []domain.Message) {
	s.queue.Publish(Event{Kind: KindTimeline, Payload: messages})
}

func (s *Sink) BusyChanged(busy bool) {
	s.queue.Publish(Event{Kind: KindBusy, Payload: busy})
}

func (s *Sink) SessionError(code domain.ErrorCode, detail string) {
	s.queue.Publish(Event{Kind: KindError, Payload: ErrorPayload{Code: code, Detail: detail}})
}
