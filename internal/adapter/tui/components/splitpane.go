package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tracechat/internal/adapter/tui/theme"
)

// SplitPaneModel lays the transcript out beside the side panel (event log
// and task tree). The side panel hides itself on narrow terminals.
type SplitPaneModel struct {
	Visible bool // whether the side panel is shown
	Ratio   float64
	width   int
	height  int
}

// NewSplitPane creates a split pane. ratio is the fraction of width for the left pane (0.0–1.0).
func NewSplitPane(ratio float64) SplitPaneModel {
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.68
	}
	return SplitPaneModel{Ratio: ratio}
}

// SetSize updates the available dimensions.
func (m *SplitPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// Auto-hide right pane on narrow terminals.
	if w < theme.MinSplitWidth {
		m.Visible = false
	}
}

// Toggle shows/hides the side panel. It reports whether the panel is shown.
func (m *SplitPaneModel) Toggle() bool {
	if m.width < theme.MinSplitWidth {
		return false
	}
	m.Visible = !m.Visible
	return m.Visible
}

// LeftWidth returns the width allocated to the left pane.
func (m SplitPaneModel) LeftWidth() int {
	if !m.Visible {
		return m.width
	}
	return int(float64(m.width-1) * m.Ratio)
}

// RightWidth returns the width allocated to the right pane.
func (m SplitPaneModel) RightWidth() int {
	if !m.Visible {
		return 0
	}
	return m.width - 1 - m.LeftWidth()
}

// Height returns the content height.
func (m SplitPaneModel) Height() int {
	return m.height
}

// Render joins left and right content side-by-side with a divider.
func (m SplitPaneModel) Render(left, right string) string {
	if !m.Visible {
		return left
	}
	divider := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render("│")
	divCol := strings.TrimSuffix(strings.Repeat(divider+"\n", max(m.height, 1)), "\n")

	left = lipgloss.NewStyle().Width(m.LeftWidth()).MaxHeight(m.height).Render(left)
	right = lipgloss.NewStyle().Width(m.RightWidth()).MaxHeight(m.height).Render(right)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, divCol, right)
}
