package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tracechat/internal/adapter/tui/theme"
	"tracechat/internal/domain"
)

// KeyHint represents a single keybinding hint shown in the status bar.
type KeyHint struct {
	Key  string // e.g. "Enter"
	Desc string // e.g. "Send"
}

// StatusBarModel renders a bottom status bar with keybinding hints on the
// left and stream state, request options and the latest toast on the right.
type StatusBarModel struct {
	Hints     []KeyHint // show 4-5 most important hints
	State     string    // e.g. "⣾ Streaming 3.4s" or "Ready"
	Streaming bool
	Info      []string // request options, e.g. "kb:sales"
	Toast     string
	ToastLvl  domain.ToastLevel
	width     int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	// Left side: keybinding hints.
	var hints []string
	for _, h := range m.Hints {
		key := theme.StatusKey.Render(h.Key)
		hints = append(hints, key+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	var right []string
	if m.Toast != "" {
		right = append(right, toastStyle(m.ToastLvl).Render(m.Toast))
	}
	if len(m.Info) > 0 {
		right = append(right, theme.TextMuted.Render(strings.Join(m.Info, " "+theme.SymbolBullet+" ")))
	}
	if m.State != "" {
		if m.Streaming {
			right = append(right, theme.TextInfo.Render(m.State))
		} else {
			right = append(right, theme.TextMuted.Render(m.State))
		}
	}
	r := strings.Join(right, "  ")

	// Join left and right, padding the gap inside the bar's padding.
	inner := m.width - theme.StatusBar.GetHorizontalPadding()
	gap := inner - lipgloss.Width(left) - lipgloss.Width(r)
	if gap < 1 {
		// Hints go first on narrow terminals.
		left = ""
		gap = max(inner-lipgloss.Width(r), 1)
	}

	bar := left + strings.Repeat(" ", gap) + r
	return theme.StatusBar.Width(m.width).Render(bar)
}

func toastStyle(level domain.ToastLevel) lipgloss.Style {
	switch level {
	case domain.ToastError:
		return theme.TextError
	case domain.ToastWarning:
		return theme.TextWarning
	case domain.ToastSuccess:
		return theme.TextSuccess
	default:
		return theme.TextInfo
	}
}
