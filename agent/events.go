package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the type of agent event.
type EventKind string

const (
	EventTaskStart     EventKind = "task_start"
	EventTaskEnd       EventKind = "task_end"
	EventTextDelta     EventKind = "text_delta"
	EventAssistantTurn EventKind = "assistant_turn"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventWarning       EventKind = "warning"
	EventError         EventKind = "error"
)

// Event is a typed event emitted by the agent for host applications. The
// event stream is a display side channel; nothing in the loop depends on a
// host consuming it.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	TaskID    uuid.UUID      `json:"task_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers events to the host on a buffered channel. When the
// host falls behind, events are dropped rather than blocking the loop.
type EventEmitter struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{ch: make(chan Event, bufferSize)}
}

// Emit sends an event. Emitting on a closed or full emitter is a no-op.
func (e *EventEmitter) Emit(kind EventKind, taskID uuid.UUID, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{Kind: kind, Timestamp: time.Now(), TaskID: taskID, Data: data}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
