package components

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ChatViewModel wraps a viewport with smart auto-scroll behavior.
// Auto-scroll is active when the user is at the bottom.
// If the user scrolls up, auto-scroll pauses.
// It resumes when the user scrolls back to the bottom.
type ChatViewModel struct {
	Viewport viewport.Model
	content  string
	ready    bool
	atBottom bool
}

// NewChatView creates a chat view. The viewport is initialized lazily on the first WindowSizeMsg.
func NewChatView() ChatViewModel {
	return ChatViewModel{atBottom: true}
}

// SetSize sets the viewport dimensions.
func (m *ChatViewModel) SetSize(w, h int) {
	if !m.ready {
		m.Viewport = viewport.New(w, h)
		m.Viewport.MouseWheelEnabled = true
		m.Viewport.MouseWheelDelta = 3
		m.ready = true
		m.Viewport.SetContent(m.content)
	} else {
		m.Viewport.Width = w
		m.Viewport.Height = h
	}
	if m.atBottom {
		m.Viewport.GotoBottom()
	}
}

// Ready reports whether the viewport has been sized.
func (m ChatViewModel) Ready() bool { return m.ready }

// SetContent replaces the drawn transcript and follows the bottom while
// auto-scroll is active.
func (m *ChatViewModel) SetContent(content string) {
	m.content = content
	if !m.ready {
		return
	}
	m.Viewport.SetContent(content)
	if m.atBottom {
		m.Viewport.GotoBottom()
	}
}

// Content returns the last content set.
func (m ChatViewModel) Content() string { return m.content }

// ScrollBy moves the viewport n lines down (negative scrolls up).
func (m *ChatViewModel) ScrollBy(n int) {
	if !m.ready {
		return
	}
	if n > 0 {
		m.Viewport.LineDown(n)
	} else {
		m.Viewport.LineUp(-n)
	}
	m.atBottom = m.Viewport.AtBottom()
}

// ScrollTo puts line at the top of the viewport.
func (m *ChatViewModel) ScrollTo(line int) {
	if !m.ready || line < 0 {
		return
	}
	m.Viewport.SetYOffset(line)
	m.atBottom = m.Viewport.AtBottom()
}

// GotoTop scrolls to the first line and pauses auto-scroll.
func (m *ChatViewModel) GotoTop() {
	if !m.ready {
		return
	}
	m.Viewport.GotoTop()
	m.atBottom = m.Viewport.AtBottom()
}

// GotoBottom scrolls to the last line and resumes auto-scroll.
func (m *ChatViewModel) GotoBottom() {
	m.atBottom = true
	if m.ready {
		m.Viewport.GotoBottom()
	}
}

// Update handles viewport scrolling and tracks auto-scroll state.
func (m ChatViewModel) Update(msg tea.Msg) (ChatViewModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)

	// Track whether user is at the bottom for smart auto-scroll.
	m.atBottom = m.Viewport.AtBottom()

	return m, cmd
}

// View renders the chat viewport.
func (m ChatViewModel) View() string {
	if !m.ready {
		return "  Initializing..."
	}
	return m.Viewport.View()
}
