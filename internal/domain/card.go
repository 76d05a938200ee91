package domain

import (
	"fmt"
	"time"
)

// CardKind is the semantic category of a card.
type CardKind string

const (
	CardReasoning      CardKind = "reasoning"
	CardToolCall       CardKind = "tool_call"
	CardToolOutput     CardKind = "tool_output"
	CardOutput         CardKind = "output"
	CardExcelTask      CardKind = "excel_task"
	CardToolLog        CardKind = "tool_log"
	CardRunItem        CardKind = "run_item"
	CardUploadProgress CardKind = "upload_progress"
)

// CardState is the lifecycle state of a card.
type CardState string

const (
	CardRunning   CardState = "running"
	CardCompleted CardState = "completed"
)

// ContentType selects how a card's accumulated content is interpreted.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentJSON     ContentType = "json"
	ContentCode     ContentType = "code"
	ContentMarkdown ContentType = "markdown"
)

// ParseContentType maps a producer mode hint to a ContentType. Unknown hints
// are treated as text.
func ParseContentType(s string) ContentType {
	switch ContentType(s) {
	case ContentJSON, ContentCode, ContentMarkdown:
		return ContentType(s)
	}
	return ContentText
}

// BodyFormat is the shape of a rendered card body.
type BodyFormat string

const (
	BodyPlain    BodyFormat = "plain"    // literal preformatted text
	BodyJSON     BodyFormat = "json"     // indented JSON
	BodyCode     BodyFormat = "code"     // source code, optionally with Language
	BodyMarkdown BodyFormat = "markdown" // rendered markup
)

// CardBody is the render-ready form of a card's content.
type CardBody struct {
	Format   BodyFormat
	Text     string
	Language string
}

// Stopwatch is a monotonic count-up timer that stops at most once.
type Stopwatch struct {
	started time.Time
	stopped time.Time
}

// StartStopwatch returns a running stopwatch started at now.
func StartStopwatch(now time.Time) Stopwatch {
	return Stopwatch{started: now}
}

// Stop freezes the stopwatch at now. It reports false, leaving the frozen
// instant untouched, when the stopwatch was already stopped or never started.
func (s *Stopwatch) Stop(now time.Time) bool {
	if s.started.IsZero() || !s.stopped.IsZero() {
		return false
	}
	if now.Before(s.started) {
		now = s.started
	}
	s.stopped = now
	return true
}

// Running reports whether the stopwatch is started and not yet stopped.
func (s Stopwatch) Running() bool {
	return !s.started.IsZero() && s.stopped.IsZero()
}

// StartedAt returns the start instant.
func (s Stopwatch) StartedAt() time.Time { return s.started }

// StoppedAt returns the stop instant, or the zero time while running.
func (s Stopwatch) StoppedAt() time.Time { return s.stopped }

// Elapsed is the running duration at now, or the frozen duration once stopped.
func (s Stopwatch) Elapsed(now time.Time) time.Duration {
	switch {
	case s.started.IsZero():
		return 0
	case !s.stopped.IsZero():
		return s.stopped.Sub(s.started)
	case now.Before(s.started):
		return 0
	}
	return now.Sub(s.started)
}

// Card is one visual execution unit. Cards are owned by exactly one
// container: the main transcript or a single parallel window.
type Card struct {
	ID          string
	Kind        CardKind
	Title       string
	Icon        string
	Style       string
	Agent       string // owning parallel agent, empty for the main stream
	State       CardState
	Expanded    bool
	ContentType ContentType
	Content     string
	Body        CardBody
	Timer       Stopwatch
}

// Running reports whether the card has not completed yet. A nil card is
// never running.
func (c *Card) Running() bool {
	return c != nil && c.State == CardRunning
}

// CreatedAt is the instant the card's timer started.
func (c *Card) CreatedAt() time.Time { return c.Timer.StartedAt() }

// CompletedAt is the instant of completion, or the zero time while running.
func (c *Card) CompletedAt() time.Time { return c.Timer.StoppedAt() }

// Elapsed is the card's displayed elapsed time at now.
func (c *Card) Elapsed(now time.Time) time.Duration { return c.Timer.Elapsed(now) }

// FormatElapsed renders a duration the way card headers and the final answer
// show it: tenths of a second below one minute, minutes and seconds above.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%dm %ds", m, s)
}
