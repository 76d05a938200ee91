// Package parallel tracks the windows of concurrently executing sub-agents
// and the grid/tab view over them.
package parallel

import (
	"tracechat/internal/domain"
)

// WindowStatus is the execution status of one sub-agent window.
type WindowStatus string

const (
	StatusWaiting   WindowStatus = "waiting"
	StatusRunning   WindowStatus = "running"
	StatusCompleted WindowStatus = "completed"
	StatusError     WindowStatus = "error"
)

// Icon is the status glyph shown in the tab strip and window header.
func (s WindowStatus) Icon() string {
	switch s {
	case StatusRunning:
		return "▶"
	case StatusCompleted:
		return "✓"
	case StatusError:
		return "✗"
	default:
		return "⏳"
	}
}

// ViewMode selects how windows are laid out.
type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewTab  ViewMode = "tab"
)

// Layout thresholds.
const (
	narrowColumns   = 2
	wideColumns     = 4
	tabStripMinimum = 3
)

// Window is the container for one sub-agent's cards.
type Window struct {
	Agent  string
	Task   string
	Status WindowStatus
	Error  string
	Cards  []*domain.Card
}

// AddCard appends card in arrival order.
func (w *Window) AddCard(card *domain.Card) { w.Cards = append(w.Cards, card) }

// Owner returns the agent the window belongs to.
func (w *Window) Owner() string { return w.Agent }

// Session is the set of windows for one parallel group. Agent names are
// unique within a session.
type Session struct {
	GroupIdx int
	windows  map[string]*Window
	order    []string
	mode     ViewMode
	focused  string
}

// NewSession creates one waiting window per task. Tasks repeating an agent
// name are ignored after the first.
func NewSession(groupIdx int, tasks []domain.ParallelTask, mode ViewMode) *Session {
	if mode == "" {
		mode = ViewGrid
	}
	s := &Session{
		GroupIdx: groupIdx,
		windows:  make(map[string]*Window, len(tasks)),
		mode:     mode,
	}
	for _, t := range tasks {
		if t.AgentName == "" || s.windows[t.AgentName] != nil {
			continue
		}
		s.windows[t.AgentName] = &Window{Agent: t.AgentName, Task: t.Task, Status: StatusWaiting}
		s.order = append(s.order, t.AgentName)
	}
	if len(s.order) > 0 {
		s.focused = s.order[0]
	}
	return s
}

// HasWindow reports whether the session has a window for agent. A nil
// session has no windows.
func (s *Session) HasWindow(agent string) bool {
	if s == nil || agent == "" {
		return false
	}
	_, ok := s.windows[agent]
	return ok
}

// Window returns agent's window, or nil.
func (s *Session) Window(agent string) *Window {
	if s == nil {
		return nil
	}
	return s.windows[agent]
}

// Windows returns the windows in task order.
func (s *Session) Windows() []*Window {
	if s == nil {
		return nil
	}
	out := make([]*Window, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.windows[name])
	}
	return out
}

// Agents returns the agent names in task order.
func (s *Session) Agents() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Len returns the number of windows.
func (s *Session) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Columns is the grid width: two columns for up to two tasks, four above.
func (s *Session) Columns() int {
	if s.Len() <= narrowColumns {
		return narrowColumns
	}
	return wideColumns
}

// ShowTabs reports whether the tab strip is shown.
func (s *Session) ShowTabs() bool {
	return s.Len() >= tabStripMinimum
}

// SetStatus updates agent's window status. It reports false for unknown
// agents.
func (s *Session) SetStatus(agent string, status WindowStatus, errMsg string) bool {
	w := s.Window(agent)
	if w == nil {
		return false
	}
	w.Status = status
	if status == StatusError {
		w.Error = errMsg
	}
	return true
}

// CompleteAll marks every window that is not completed as completed and
// returns how many changed.
func (s *Session) CompleteAll() int {
	n := 0
	for _, w := range s.Windows() {
		if w.Status != StatusCompleted {
			w.Status = StatusCompleted
			n++
		}
	}
	return n
}

// Cards returns every card across all windows in window order.
func (s *Session) Cards() []*domain.Card {
	var out []*domain.Card
	for _, w := range s.Windows() {
		out = append(out, w.Cards...)
	}
	return out
}

// Mode returns the current view mode.
func (s *Session) Mode() ViewMode {
	if s == nil {
		return ViewGrid
	}
	return s.mode
}

// SetMode switches between grid and tab view.
func (s *Session) SetMode(mode ViewMode) {
	if s == nil || (mode != ViewGrid && mode != ViewTab) {
		return
	}
	s.mode = mode
}

// Focused returns the tab-focused agent.
func (s *Session) Focused() string {
	if s == nil {
		return ""
	}
	return s.focused
}

// Focus moves tab focus to agent. It reports false for unknown agents.
func (s *Session) Focus(agent string) bool {
	if !s.HasWindow(agent) {
		return false
	}
	s.focused = agent
	return true
}

// FocusNext moves tab focus forward, wrapping around.
func (s *Session) FocusNext() { s.shiftFocus(1) }

// FocusPrev moves tab focus backward, wrapping around.
func (s *Session) FocusPrev() { s.shiftFocus(-1) }

func (s *Session) shiftFocus(step int) {
	n := s.Len()
	if n == 0 {
		return
	}
	idx := 0
	for i, name := range s.order {
		if name == s.focused {
			idx = i
			break
		}
	}
	idx = ((idx+step)%n + n) % n
	s.focused = s.order[idx]
}
