package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"tracechat/internal/adapter/tui/components"
)

// isSGRMouseSequence detects SGR mouse escape sequences that may leak
// through as key input (e.g. "<65;38;21M"). These are emitted when
// mouse cell motion tracking is enabled and some terminals pass them
// as key events instead of tea.MouseMsg.
func isSGRMouseSequence(s string) bool {
	if len(s) < 5 || s[0] != '<' {
		return false
	}
	last := s[len(s)-1]
	if last != 'M' && last != 'm' {
		return false
	}
	return digitsAndSemicolons(s[1 : len(s)-1])
}

// isMouseEscapeLeak detects mouse escape sequences that leaked through
// as key input instead of tea.MouseMsg. Covers SGR, X11 basic, and
// URXVT formats that appear during rapid trackpad scrolling.
func isMouseEscapeLeak(s string) bool {
	if isSGRMouseSequence(s) {
		return true
	}
	// X11 basic mouse format: [M or [m followed by coordinate bytes.
	if len(s) >= 2 && s[0] == '[' && (s[1] == 'M' || s[1] == 'm') {
		return true
	}
	// URXVT format: [digits;digits;digitsM
	return len(s) >= 5 && s[0] == '[' && s[len(s)-1] == 'M' && digitsAndSemicolons(s[1:len(s)-1])
}

func digitsAndSemicolons(s string) bool {
	for _, r := range s {
		if r != ';' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// handleKey processes keyboard input.
func (m ChatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Filter out mouse escape sequences that leaked through as key events.
	if isMouseEscapeLeak(msg.String()) {
		return m, nil
	}

	// If modal is open, route all keys to it.
	if m.modal.Visible {
		var cmd tea.Cmd
		m.modal, cmd = m.modal.Update(msg)
		return m, cmd
	}

	// If search input is active, route keys to search bar.
	if m.searchBar.Mode == components.SearchInput {
		var cmd tea.Cmd
		m.searchBar, cmd = m.searchBar.Update(msg)
		switch m.searchBar.Mode {
		case components.SearchActive:
			m.searchBar.Search(m.chatView.Content())
			m.chatView.ScrollTo(m.searchBar.Current())
		case components.SearchInactive:
			m.layout()
		}
		return m, cmd
	}

	d := m.deps.Dispatcher
	switch msg.Type {
	case tea.KeyCtrlC:
		if d.Streaming() {
			d.Cancel()
			m.refresh()
			return m, nil
		}
		m.quit()
		return m, tea.Quit

	case tea.KeyCtrlT:
		m.split.Toggle()
		m.layout()
		m.refresh()
		return m, m.startTickingIfNeeded()

	case tea.KeyCtrlN:
		m.deps.Transcript.Parallel().FocusNext()
		m.refresh()
		return m, nil

	case tea.KeyCtrlP:
		m.deps.Transcript.Parallel().FocusPrev()
		m.refresh()
		return m, nil

	case tea.KeyCtrlE:
		m.openCard()
		return m, nil

	case tea.KeyCtrlL:
		return m.handleSlashCommand("/clear", nil)

	case tea.KeyEsc:
		// If search is active, close it.
		if m.searchBar.Mode != components.SearchInactive {
			m.searchBar.Deactivate()
			m.layout()
			return m, nil
		}
		if m.input.Autocomplete.Visible {
			break
		}
		// Enter scroll mode (blur input).
		if !m.vimMode {
			m.vimMode = true
			m.input.SetEnabled(false)
			m.statusBar.Hints = vimHints()
			return m, nil
		}

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd
	}

	// Scroll mode: j/k scroll, Tab selects cards, Enter expands, / searches,
	// i returns to the input.
	if m.vimMode {
		switch msg.String() {
		case "j", "down":
			m.chatView.ScrollBy(3)
		case "k", "up":
			m.chatView.ScrollBy(-3)
		case "g":
			m.chatView.GotoTop()
		case "G":
			m.chatView.GotoBottom()
		case "tab":
			m.selectCard(1)
		case "shift+tab":
			m.selectCard(-1)
		case "enter":
			if m.selected != nil {
				m.deps.Cards.ToggleExpand(m.selected)
				m.refresh()
			}
		case "e":
			m.openCard()
		case "/":
			m.searchBar.Activate()
			m.layout()
		case "n":
			if m.searchBar.Mode == components.SearchActive {
				m.chatView.ScrollTo(m.searchBar.Step(1))
			}
		case "N":
			if m.searchBar.Mode == components.SearchActive {
				m.chatView.ScrollTo(m.searchBar.Step(-1))
			}
		case "i":
			m.exitScrollMode()
		}
		return m, nil
	}

	// Forward to input area.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// startTickingIfNeeded starts the redraw clock when something on screen is
// counting.
func (m *ChatModel) startTickingIfNeeded() tea.Cmd {
	if !m.needsClock() {
		return nil
	}
	return m.startTicking()
}
