package components

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"tracechat/internal/adapter/tui/theme"
	"tracechat/internal/domain"
	"tracechat/internal/usecase/parallel"
)

// minWindowWidth is the narrowest a grid column may get before the grid
// drops to fewer columns.
const minWindowWidth = 28

// GridOptions controls how a parallel session is drawn.
type GridOptions struct {
	Width     int
	Now       time.Time
	Localizer domain.Localizer
	Selected  *domain.Card
}

// RenderParallel draws a parallel session. Grid mode lays the windows out in
// s.Columns() columns; tab mode draws only the focused window. The tab strip
// is shown whenever the session has enough windows to need one.
func RenderParallel(s *parallel.Session, opts GridOptions) string {
	if s.Len() == 0 {
		return ""
	}
	var sections []string
	if s.ShowTabs() {
		bar := WindowTabs(s)
		bar.SetWidth(opts.Width)
		sections = append(sections, bar.View())
	}

	if s.Mode() == parallel.ViewTab {
		if w := s.Window(s.Focused()); w != nil {
			sections = append(sections, renderWindow(w, true, opts.Width, opts))
		}
		return strings.Join(sections, "\n")
	}

	cols := s.Columns()
	for cols > 1 && opts.Width/cols < minWindowWidth {
		cols--
	}
	colWidth := opts.Width / cols

	windows := s.Windows()
	var rows []string
	for start := 0; start < len(windows); start += cols {
		end := min(start+cols, len(windows))
		var cells []string
		for _, w := range windows[start:end] {
			focused := s.ShowTabs() && w.Agent == s.Focused()
			cells = append(cells, renderWindow(w, focused, colWidth, opts))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, rows...))
	return strings.Join(sections, "\n")
}

func renderWindow(w *parallel.Window, focused bool, width int, opts GridOptions) string {
	inner := width - 2
	if inner < 10 {
		inner = 10
	}

	header := theme.WindowHeader.Render(truncate(w.Status.Icon()+" "+w.Agent, inner))
	lines := []string{header}
	if w.Task != "" {
		lines = append(lines, theme.TextMuted.Render(truncate(w.Task, inner)))
	}
	lines = append(lines, windowStatus(w, opts.Localizer))

	for _, c := range w.Cards {
		lines = append(lines, RenderCard(c, opts.Now, CardOptions{Width: inner, Selected: c == opts.Selected}))
	}

	style := theme.WindowFrame
	if focused {
		style = theme.WindowFocused
	}
	return style.Width(inner).Render(strings.Join(lines, "\n"))
}

func windowStatus(w *parallel.Window, loc domain.Localizer) string {
	if loc == nil {
		return theme.Dim.Render(string(w.Status))
	}
	switch w.Status {
	case parallel.StatusRunning:
		return theme.TextInfo.Render(loc.T("window.running"))
	case parallel.StatusCompleted:
		return theme.TextSuccess.Render(loc.T("window.completed"))
	case parallel.StatusError:
		return theme.TextError.Render(loc.T("window.error", map[string]any{"error": w.Error}))
	default:
		return theme.Dim.Render(loc.T("window.waiting"))
	}
}
