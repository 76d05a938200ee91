package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published on the bus.
type EventType string

const (
	EventMessageSent     EventType = "message.sent"
	EventStreamStarted   EventType = "stream.started"
	EventStreamCompleted EventType = "stream.completed"
	EventStreamCancelled EventType = "stream.cancelled"
	EventStreamError     EventType = "stream.error"
	EventFrameMalformed  EventType = "stream.frame.malformed"
	EventCardCreated     EventType = "card.created"
	EventCardCompleted   EventType = "card.completed"
	EventParallelStarted EventType = "parallel.started"
	EventParallelTask    EventType = "parallel.task"
	EventParallelMerged  EventType = "parallel.merged"
	EventWorkflowUpdated EventType = "workflow.updated"
	EventToast           EventType = "toast"
	EventHistoryCleared  EventType = "history.cleared"
	EventSettingsChanged EventType = "settings.changed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for client lifecycle events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// CardEventPayload is the payload for card.created and card.completed.
type CardEventPayload struct {
	CardID string   `json:"card_id"`
	Kind   CardKind `json:"kind"`
	Title  string   `json:"title"`
	Agent  string   `json:"agent,omitempty"`
	// ElapsedMS is set on completion only.
	ElapsedMS int64 `json:"elapsed_ms,omitempty"`
}

// StreamErrorPayload is the payload for EventStreamError events.
type StreamErrorPayload struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// StreamCompletedPayload is the payload for EventStreamCompleted events.
type StreamCompletedPayload struct {
	ElapsedMS int64 `json:"elapsed_ms"`
	Events    int   `json:"events"`
}

// ParallelPayload is the payload for parallel.* events.
type ParallelPayload struct {
	GroupIdx int      `json:"group_idx,omitempty"`
	Agents   []string `json:"agents,omitempty"`
	Agent    string   `json:"agent,omitempty"`
	Status   string   `json:"status,omitempty"`
}

// ToastPayload is the payload for toast events.
type ToastPayload struct {
	Level   ToastLevel `json:"level"`
	Message string     `json:"message"`
}

// MustPayload marshals v for use as an Event payload. Marshal failures yield
// a nil payload; payload types in this package always marshal.
func MustPayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
