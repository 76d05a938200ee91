package components

import (
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"tracechat/internal/adapter/tui/theme"
)

// CommandDef describes one slash command offered by the popup.
type CommandDef struct {
	Name        string   // e.g. "/kb"
	Args        string   // e.g. "[id]"
	Description string   // e.g. "Select a knowledge base"
	Aliases     []string // alternate names, e.g. "/exit"
	Choices     []string // fixed argument values completed after the name
}

// Usage returns the command with its argument synopsis.
func (c CommandDef) Usage() string {
	if c.Args == "" {
		return c.Name
	}
	return c.Name + " " + c.Args
}

// TakesArgs reports whether the command is followed by an argument.
func (c CommandDef) TakesArgs() bool { return c.Args != "" || len(c.Choices) > 0 }

func (c CommandDef) names() []string { return append([]string{c.Name}, c.Aliases...) }

// suggestion is one popup row: the text Accept inserts plus what is shown.
type suggestion struct {
	value string
	label string
	desc  string
}

// AutocompleteModel completes slash command names and, once a command with
// fixed choices is typed, its argument.
type AutocompleteModel struct {
	Commands []CommandDef
	Selected int
	Visible  bool
	items    []suggestion
	maxShow  int
	width    int
}

// NewAutocomplete creates an autocomplete model with the given commands.
func NewAutocomplete(commands []CommandDef) AutocompleteModel {
	return AutocompleteModel{Commands: commands, maxShow: 7}
}

// Lookup returns the command named name, matching aliases too.
func (m AutocompleteModel) Lookup(name string) (CommandDef, bool) {
	name = strings.ToLower(name)
	for _, c := range m.Commands {
		if slices.Contains(c.names(), name) {
			return c, true
		}
	}
	return CommandDef{}, false
}

// SetWidth updates the popup width.
func (m *AutocompleteModel) SetWidth(w int) { m.width = w }

// SetPrefix recomputes the suggestions for the current input. Name matches
// at the start rank ahead of matches elsewhere in the name. The popup stays
// hidden when the only candidate is exactly what was typed, so Enter submits.
func (m *AutocompleteModel) SetPrefix(input string) {
	m.items = nil
	input = strings.ToLower(strings.TrimLeft(input, " "))
	if name, arg, hasArg := strings.Cut(input, " "); hasArg {
		m.items = m.choices(name, arg)
	} else if input != "" {
		m.items = m.names(input)
	}
	if len(m.items) == 1 && m.items[0].value == input {
		m.items = nil
	}
	m.Visible = len(m.items) > 0
	if m.Selected >= len(m.items) {
		m.Selected = 0
	}
}

func (m AutocompleteModel) names(prefix string) []suggestion {
	var head, tail []suggestion
	for _, c := range m.Commands {
		s := suggestion{value: c.Name, label: c.Usage(), desc: c.Description}
		switch {
		case slices.ContainsFunc(c.names(), func(n string) bool { return strings.HasPrefix(n, prefix) }):
			head = append(head, s)
		case len(prefix) > 1 && strings.Contains(c.Name, prefix[1:]):
			tail = append(tail, s)
		}
	}
	return append(head, tail...)
}

func (m AutocompleteModel) choices(name, arg string) []suggestion {
	def, ok := m.Lookup(name)
	if !ok || strings.Contains(arg, " ") {
		return nil
	}
	var out []suggestion
	for _, choice := range def.Choices {
		if strings.HasPrefix(choice, arg) {
			out = append(out, suggestion{value: def.Name + " " + choice, label: choice, desc: def.Description})
		}
	}
	return out
}

// Hide hides the popup.
func (m *AutocompleteModel) Hide() {
	m.Visible = false
	m.items = nil
	m.Selected = 0
}

// SelectNext moves selection down.
func (m *AutocompleteModel) SelectNext() {
	if len(m.items) == 0 {
		return
	}
	m.Selected = (m.Selected + 1) % len(m.items)
}

// SelectPrev moves selection up.
func (m *AutocompleteModel) SelectPrev() {
	if len(m.items) == 0 {
		return
	}
	m.Selected = (m.Selected - 1 + len(m.items)) % len(m.items)
}

// Accept returns the selected completion and hides the popup.
func (m *AutocompleteModel) Accept() string {
	if len(m.items) == 0 {
		return ""
	}
	value := m.items[m.Selected].value
	m.Hide()
	return value
}

// Height returns how many lines the popup will occupy.
func (m AutocompleteModel) Height() int {
	if !m.Visible {
		return 0
	}
	return min(len(m.items), m.maxShow) + 2 // border
}

// View renders the popup as a bordered list, truncating descriptions to
// the available width.
func (m AutocompleteModel) View() string {
	if !m.Visible || len(m.items) == 0 {
		return ""
	}

	inner := max(m.width-4, 30)
	const labelW = 16

	show := m.items[:min(len(m.items), m.maxShow)]
	lines := make([]string, 0, len(show))
	for i, s := range show {
		marker := "  "
		if i == m.Selected {
			marker = theme.TextInfo.Render(theme.SymbolArrowR + " ")
		}
		label := lipgloss.NewStyle().Width(labelW).Render(s.label)
		desc := ansi.Truncate(s.desc, max(inner-labelW-4, 0), theme.SymbolEllipsis)
		lines = append(lines, marker+label+" "+theme.TextMuted.Render(desc))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorderActive).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}
