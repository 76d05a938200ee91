// Package chat implements the Bubble Tea chat TUI for tracechat.
package chat

import (
	"tracechat/internal/adapter/stream"
	"tracechat/internal/domain"
)

// StreamOpenedMsg reports the outcome of opening the event stream.
// Gen identifies the request generation so stale results can be discarded.
type StreamOpenedMsg struct {
	Stream *stream.Stream
	Err    error
	Gen    uint64
}

// FrameMsg carries one frame read from the open stream.
type FrameMsg struct {
	Frame stream.Frame
	Gen   uint64
}

// StreamClosedMsg signals that the stream's frame channel closed.
type StreamClosedMsg struct {
	Gen uint64
}

// ScheduledMsg fires a delayed function registered with the TickScheduler.
type ScheduledMsg struct {
	ID uint64
}

// ClockTickMsg redraws running timers.
type ClockTickMsg struct{}

// BusEventMsg forwards an event bus event into the update loop.
type BusEventMsg struct {
	Event domain.Event
}

// QuitMsg signals the program to exit.
type QuitMsg struct{}
