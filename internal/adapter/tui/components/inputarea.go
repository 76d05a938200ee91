package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tracechat/internal/adapter/tui/theme"
)

// InputSubmitMsg is sent when the user presses Enter to submit input.
type InputSubmitMsg struct {
	Value string
}

// maxHistory caps the submitted inputs recalled with Up/Down.
const maxHistory = 100

// InputAreaModel is the message composer: a textarea with slash command
// completion, recall of earlier messages and a busy look while a reply
// streams. Submitting while busy is allowed; the chat model decides.
type InputAreaModel struct {
	Textarea     textarea.Model
	Autocomplete AutocompleteModel
	Enabled      bool

	idleHint, busyHint string
	busy               bool

	history []string
	histPos int // len(history) when not browsing
	draft   string
}

// NewInputArea creates an input area. idleHint is shown while empty and
// busyHint replaces it while a reply is streaming.
func NewInputArea(idleHint, busyHint string) InputAreaModel {
	ta := textarea.New()
	ta.Placeholder = idleHint
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = theme.InputPrompt
	ta.FocusedStyle.Placeholder = theme.InputPlaceholder
	ta.Focus()

	return InputAreaModel{
		Textarea: ta,
		Enabled:  true,
		idleHint: idleHint,
		busyHint: busyHint,
	}
}

// SetBusy switches the prompt and placeholder between idle and streaming.
func (m *InputAreaModel) SetBusy(busy bool) {
	if busy == m.busy {
		return
	}
	m.busy = busy
	if busy {
		m.Textarea.Placeholder = m.busyHint
		m.Textarea.FocusedStyle.Prompt = theme.TextMuted
	} else {
		m.Textarea.Placeholder = m.idleHint
		m.Textarea.FocusedStyle.Prompt = theme.InputPrompt
	}
}

// Busy reports whether the input shows the streaming look.
func (m InputAreaModel) Busy() bool { return m.busy }

// History returns the submitted inputs, oldest first.
func (m InputAreaModel) History() []string { return m.history }

func (m *InputAreaModel) remember(value string) {
	if n := len(m.history); n == 0 || m.history[n-1] != value {
		m.history = append(m.history, value)
		if over := len(m.history) - maxHistory; over > 0 {
			m.history = m.history[over:]
		}
	}
	m.histPos = len(m.history)
	m.draft = ""
}

// recall moves step entries through the history. Moving past the newest
// entry restores the unsent draft.
func (m *InputAreaModel) recall(step int) {
	if len(m.history) == 0 {
		return
	}
	if m.histPos == len(m.history) {
		m.draft = m.Textarea.Value()
	}
	pos := m.histPos + step
	if pos < 0 || pos > len(m.history) {
		return
	}
	m.histPos = pos
	if pos == len(m.history) {
		m.Textarea.SetValue(m.draft)
	} else {
		m.Textarea.SetValue(m.history[pos])
	}
	m.Textarea.CursorEnd()
}

// SetWidth updates the textarea width.
func (m *InputAreaModel) SetWidth(w int) {
	m.Textarea.SetWidth(w - 2)
	m.Autocomplete.SetWidth(w)
}

// SetEnabled focuses or blurs the textarea. Scroll mode disables input.
func (m *InputAreaModel) SetEnabled(enabled bool) {
	m.Enabled = enabled
	if enabled {
		m.Textarea.Focus()
	} else {
		m.Textarea.Blur()
	}
}

// Value returns the current input text.
func (m InputAreaModel) Value() string {
	return m.Textarea.Value()
}

// ParseSlashCommand splits a slash command into its lowercased name and
// arguments.
func ParseSlashCommand(input string) (cmd string, args []string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil, false
	}
	parts := strings.Fields(input)
	return strings.ToLower(parts[0]), parts[1:], true
}

// Update handles key events. Enter submits; Alt+Enter inserts a newline.
// While the completion popup is open, Tab and the arrows move through it and
// Enter accepts the highlighted entry.
func (m InputAreaModel) Update(msg tea.Msg) (InputAreaModel, tea.Cmd) {
	if !m.Enabled {
		return m, nil
	}
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		if _, mouse := msg.(tea.MouseMsg); mouse {
			return m, nil
		}
		var cmd tea.Cmd
		m.Textarea, cmd = m.Textarea.Update(msg)
		return m, cmd
	}

	if m.Autocomplete.Visible {
		if handled := m.completionKey(keyMsg); handled {
			return m, nil
		}
	}

	switch keyMsg.Type {
	case tea.KeyUp:
		if m.Textarea.Line() == 0 {
			m.recall(-1)
			return m, nil
		}
	case tea.KeyDown:
		if m.Textarea.Line() == m.Textarea.LineCount()-1 {
			m.recall(1)
			return m, nil
		}
	case tea.KeyEnter:
		if keyMsg.Alt {
			m.Textarea.InsertString("\n")
			return m, nil
		}
		value := strings.TrimSpace(m.Textarea.Value())
		if value == "" {
			return m, nil
		}
		m.Textarea.Reset()
		m.Autocomplete.Hide()
		m.remember(value)
		return m, func() tea.Msg { return InputSubmitMsg{Value: value} }
	}

	var cmd tea.Cmd
	m.Textarea, cmd = m.Textarea.Update(msg)
	if value := m.Textarea.Value(); strings.HasPrefix(value, "/") {
		m.Autocomplete.SetPrefix(value)
	} else {
		m.Autocomplete.Hide()
	}
	return m, cmd
}

func (m *InputAreaModel) completionKey(k tea.KeyMsg) bool {
	switch k.Type {
	case tea.KeyTab, tea.KeyDown:
		m.Autocomplete.SelectNext()
	case tea.KeyShiftTab, tea.KeyUp:
		m.Autocomplete.SelectPrev()
	case tea.KeyEsc:
		m.Autocomplete.Hide()
	case tea.KeyEnter:
		accepted := m.Autocomplete.Accept()
		if def, ok := m.Autocomplete.Lookup(accepted); ok && def.TakesArgs() {
			accepted += " "
		}
		m.Textarea.SetValue(accepted)
		m.Textarea.CursorEnd()
		// Offer the argument choices right away.
		m.Autocomplete.SetPrefix(accepted)
	default:
		return false
	}
	return true
}

// View renders the input area with the completion popup above it.
func (m InputAreaModel) View() string {
	if popup := m.Autocomplete.View(); popup != "" {
		return popup + "\n" + m.Textarea.View()
	}
	return m.Textarea.View()
}
