package components

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"tracechat/internal/adapter/tui/theme"
	"tracechat/internal/domain"
)

const maxEventEntries = 500

// EventStreamModel displays a scrollable log of bus events with smart auto-scroll.
type EventStreamModel struct {
	Viewport viewport.Model
	Empty    string // shown before the first event
	events   []domain.Event
	ready    bool
	atBottom bool
	width    int
	height   int
}

// NewEventStream creates an event log viewer.
func NewEventStream() EventStreamModel {
	return EventStreamModel{atBottom: true, Empty: "Waiting for events..."}
}

// SetSize sets the viewport dimensions.
func (m *EventStreamModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if !m.ready {
		m.Viewport = viewport.New(w, h)
		m.Viewport.MouseWheelEnabled = true
		m.Viewport.MouseWheelDelta = 3
		m.ready = true
	} else {
		m.Viewport.Width = w
		m.Viewport.Height = h
	}
	m.refreshContent()
}

// AddEvent appends an event and auto-scrolls if at bottom.
func (m *EventStreamModel) AddEvent(event domain.Event) {
	m.events = append(m.events, event)
	// Ring buffer: drop oldest when exceeding max.
	if len(m.events) > maxEventEntries {
		m.events = m.events[len(m.events)-maxEventEntries:]
	}
	m.refreshContent()
	if m.atBottom && m.ready {
		m.Viewport.GotoBottom()
	}
}

// Update handles viewport scrolling.
func (m EventStreamModel) Update(msg tea.Msg) (EventStreamModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	m.atBottom = m.Viewport.AtBottom()
	return m, cmd
}

// EventCount returns the total number of events.
func (m EventStreamModel) EventCount() int {
	return len(m.events)
}

// View renders the event log.
func (m EventStreamModel) View() string {
	if !m.ready {
		return ""
	}
	return m.Viewport.View()
}

func (m *EventStreamModel) refreshContent() {
	if !m.ready {
		return
	}

	if len(m.events) == 0 {
		m.Viewport.SetContent(theme.TextMuted.Render("  " + m.Empty))
		return
	}

	var sb strings.Builder
	for _, evt := range m.events {
		sb.WriteString(FormatEvent(evt, m.width) + "\n")
	}
	m.Viewport.SetContent(sb.String())
}

// FormatEvent renders one event as a log line: time, type coloured by
// category, then a short payload summary.
func FormatEvent(evt domain.Event, width int) string {
	eventType := string(evt.Type)
	paddedType := fmt.Sprintf("%-22s", eventType)

	var typeStyled string
	switch {
	case evt.Type == domain.EventStreamError || evt.Type == domain.EventFrameMalformed:
		typeStyled = theme.TextError.Render(paddedType)
	case strings.HasPrefix(eventType, "stream."):
		typeStyled = theme.TextInfo.Render(paddedType)
	case strings.HasPrefix(eventType, "card."):
		typeStyled = theme.TextWarning.Render(paddedType)
	case strings.HasPrefix(eventType, "parallel."):
		typeStyled = theme.TextAccent.Render(paddedType)
	case evt.Type == domain.EventToast:
		typeStyled = theme.TextSuccess.Render(paddedType)
	default:
		typeStyled = theme.TextMuted.Render(paddedType)
	}

	line := "  " + theme.Dim.Render(evt.Timestamp.Format("15:04:05")) + "  " + typeStyled
	if summary := summarize(evt.Payload); summary != "" {
		room := width - 36
		if room > 8 {
			line += " " + theme.TextMuted.Render(truncate(summary, room))
		}
	}
	return line
}

// eventSummary picks the payload fields worth a glance in the log.
type eventSummary struct {
	Title     string   `json:"title"`
	Agent     string   `json:"agent"`
	Agents    []string `json:"agents"`
	Status    string   `json:"status"`
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	ElapsedMS int64    `json:"elapsed_ms"`
}

func summarize(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var s eventSummary
	if err := json.Unmarshal(payload, &s); err != nil {
		return ""
	}
	var parts []string
	for _, p := range []string{s.Agent, s.Title, s.Status, s.Error, s.Message} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(s.Agents) > 0 {
		parts = append(parts, strings.Join(s.Agents, ","))
	}
	if s.ElapsedMS > 0 {
		parts = append(parts, domain.FormatElapsed(time.Duration(s.ElapsedMS)*time.Millisecond))
	}
	return strings.Join(parts, " ")
}
