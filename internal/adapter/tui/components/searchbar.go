package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"tracechat/internal/adapter/tui/theme"
)

// SearchMode tracks the current state of inline search.
type SearchMode int

const (
	SearchInactive SearchMode = iota
	SearchInput               // user is typing the search query
	SearchActive              // navigating between matches
)

// SearchBarModel searches the drawn transcript and steps through the lines
// that match.
type SearchBarModel struct {
	Mode       SearchMode
	Query      string
	Input      textinput.Model
	Matches    []int // line indices containing the match
	CurrentIdx int   // index into Matches
}

// NewSearchBar creates a search bar.
func NewSearchBar() SearchBarModel {
	ti := textinput.New()
	ti.Placeholder = "Search transcript..."
	ti.Prompt = "/ "
	ti.Width = 30
	ti.PromptStyle = theme.TextInfo
	ti.PlaceholderStyle = theme.Dim
	return SearchBarModel{Input: ti}
}

// SetWidth updates the search bar width.
func (m *SearchBarModel) SetWidth(w int) {
	m.Input.Width = max(w-20, 10)
}

// Activate opens the search input.
func (m *SearchBarModel) Activate() {
	m.Mode = SearchInput
	m.Input.SetValue("")
	m.Input.Focus()
	m.Query = ""
	m.Matches = nil
	m.CurrentIdx = 0
}

// Deactivate closes search and clears matches.
func (m *SearchBarModel) Deactivate() {
	m.Mode = SearchInactive
	m.Input.Blur()
	m.Query = ""
	m.Matches = nil
	m.CurrentIdx = 0
}

// Search runs the query against styled content, ignoring escape sequences,
// and stores the indices of matching lines.
func (m *SearchBarModel) Search(content string) {
	m.Matches = nil
	m.CurrentIdx = 0
	if m.Query == "" {
		return
	}
	q := strings.ToLower(m.Query)
	for i, line := range strings.Split(ansi.Strip(content), "\n") {
		if strings.Contains(strings.ToLower(line), q) {
			m.Matches = append(m.Matches, i)
		}
	}
}

// Current returns the line of the selected match, or -1.
func (m SearchBarModel) Current() int {
	if len(m.Matches) == 0 {
		return -1
	}
	return m.Matches[m.CurrentIdx]
}

// Step moves the selection by n matches, wrapping around, and returns the
// selected line or -1.
func (m *SearchBarModel) Step(n int) int {
	if len(m.Matches) == 0 {
		return -1
	}
	m.CurrentIdx = ((m.CurrentIdx+n)%len(m.Matches) + len(m.Matches)) % len(m.Matches)
	return m.Matches[m.CurrentIdx]
}

// Update handles input for the search bar. Enter commits the query.
func (m SearchBarModel) Update(msg tea.Msg) (SearchBarModel, tea.Cmd) {
	if m.Mode == SearchInactive {
		return m, nil
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyEsc:
			m.Deactivate()
			return m, nil
		case tea.KeyEnter:
			if m.Mode == SearchInput {
				m.Query = m.Input.Value()
				m.Mode = SearchActive
				m.Input.Blur()
			}
			return m, nil
		}
	}

	if m.Mode == SearchInput {
		var cmd tea.Cmd
		m.Input, cmd = m.Input.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the search bar.
func (m SearchBarModel) View() string {
	switch m.Mode {
	case SearchInactive:
		return ""
	case SearchInput:
		return "  " + m.Input.View()
	}

	matchInfo := "no matches"
	if len(m.Matches) > 0 {
		matchInfo = fmt.Sprintf("%d/%d", m.CurrentIdx+1, len(m.Matches))
	}
	return fmt.Sprintf("  /%s  %s  %s",
		theme.Bold.Render(m.Query),
		theme.TextMuted.Render("["+matchInfo+"]"),
		theme.Dim.Render("n:next N:prev Esc:close"),
	)
}
