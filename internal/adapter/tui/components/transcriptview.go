package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"tracechat/internal/adapter/tui/theme"
	"tracechat/internal/adapter/tui/uxerror"
	"tracechat/internal/domain"
	"tracechat/internal/usecase/transcript"
)

// TranscriptView draws the transcript entries as a single string for the
// chat viewport.
type TranscriptView struct {
	// MaxEntries caps the entries drawn; older ones are summarised by a
	// trimmed indicator. 0 draws everything.
	MaxEntries int
	loc        domain.Localizer
	width      int
	hints      map[*transcript.Entry]uxerror.FriendlyError
}

// NewTranscriptView creates a view that localizes labels through loc.
func NewTranscriptView(loc domain.Localizer) TranscriptView {
	return TranscriptView{loc: loc, hints: make(map[*transcript.Entry]uxerror.FriendlyError)}
}

// SetWidth updates the rendering width.
func (v *TranscriptView) SetWidth(w int) { v.width = w }

// Width returns the rendering width.
func (v *TranscriptView) Width() int { return v.width }

// SetHint attaches recovery suggestions to an error entry.
func (v *TranscriptView) SetHint(e *transcript.Entry, fe uxerror.FriendlyError) {
	if e != nil {
		v.hints[e] = fe
	}
}

// ClearHints drops every attached hint.
func (v *TranscriptView) ClearHints() { clear(v.hints) }

// TrimmedIndicator returns a message if older entries are hidden, empty otherwise.
func (v *TranscriptView) TrimmedIndicator(total int) string {
	if v.MaxEntries <= 0 || total <= v.MaxEntries {
		return ""
	}
	return fmt.Sprintf("(%d older entries hidden)", total-v.MaxEntries)
}

// Render draws entries at now. selected is highlighted when it is drawn.
func (v *TranscriptView) Render(entries []*transcript.Entry, now time.Time, selected *domain.Card) string {
	if len(entries) == 0 {
		return theme.TextMuted.Render("  " + v.t("placeholder"))
	}

	width := ContentWidth(v.width)

	var sb strings.Builder
	if indicator := v.TrimmedIndicator(len(entries)); indicator != "" {
		sb.WriteString(theme.TextMuted.Render("  "+indicator) + "\n\n")
		entries = entries[len(entries)-v.MaxEntries:]
	}
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(v.renderEntry(e, width, now, selected))
	}
	return sb.String()
}

func (v *TranscriptView) renderEntry(e *transcript.Entry, width int, now time.Time, selected *domain.Card) string {
	switch e.Kind {
	case transcript.EntryUser:
		label := theme.UserLabel.Render(theme.SymbolUser)
		inlineW := width - lipgloss.Width(label) - 2
		if inlineW < 20 {
			return label + "\n  " + wrapText(e.Text, width-2)
		}
		return label + "  " + wrapText(e.Text, inlineW)

	case transcript.EntryCard:
		return RenderCard(e.Card, now, CardOptions{Width: width, Selected: e.Card == selected})

	case transcript.EntryNotice:
		return theme.SystemLabel.Render(theme.SymbolInfo) + " " + theme.TextMuted.Render(wrapText(e.Text, width-2))

	case transcript.EntryBanner:
		return theme.Banner.Render(e.Text)

	case transcript.EntryParallel:
		return RenderParallel(e.Parallel, GridOptions{Width: width, Now: now, Localizer: v.loc, Selected: selected})

	case transcript.EntryError:
		out := theme.ErrorLabel.Render(theme.SymbolError) + " " + theme.TextError.Render(wrapText(e.Text, width-2))
		if fe, ok := v.hints[e]; ok && len(fe.Hints) > 0 {
			var hints []string
			for _, h := range fe.Hints {
				hints = append(hints, "    "+theme.SymbolBullet+" "+h)
			}
			out += "\n" + theme.TextMuted.Render("  "+fe.Title+"\n"+strings.Join(hints, "\n"))
		}
		return out

	case transcript.EntryFinal:
		body := markdownOrText(e.Rendered, e.Text, width)
		out := theme.BotLabel.Render(theme.SymbolBot) + "\n" + theme.FinalFrame.Render(body)
		if e.HasElapsed {
			out += "\n" + theme.CardTimer.Render(v.t("final.elapsed", map[string]any{"elapsed": domain.FormatElapsed(e.Elapsed)}))
		}
		return out

	case transcript.EntryAnalysis:
		return theme.ToolLabel.Render(v.t("card.analysis")) + "\n" + markdownOrText(e.Rendered, e.Text, width)

	default:
		return theme.TextMuted.Render(e.Text)
	}
}

func (v *TranscriptView) t(key string, params ...map[string]any) string {
	if v.loc == nil {
		return key
	}
	return v.loc.T(key, params...)
}

func markdownOrText(rendered, raw string, width int) string {
	if strings.TrimSpace(rendered) != "" {
		return strings.TrimSpace(rendered)
	}
	return wrapText(raw, width-2)
}

// wrapText wraps text to the given width with a 2-space indent on continuation lines.
// Uses rune-based indexing to safely handle multibyte UTF-8.
func wrapText(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	var lines []string
	for len(runes) > width {
		// Find a good break point (space) within width.
		idx := -1
		for i := width - 1; i > 0; i-- {
			if runes[i] == ' ' {
				idx = i
				break
			}
		}
		if idx <= 0 {
			idx = width
		}
		lines = append(lines, string(runes[:idx]))
		runes = runes[idx:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return strings.Join(lines, "\n  ")
}

// ContentWidth calculates the content width respecting MaxContentWidth.
func ContentWidth(termWidth int) int {
	w := termWidth - 4
	if w > theme.MaxContentWidth {
		w = theme.MaxContentWidth
	}
	if w < 40 {
		w = 40
	}
	return w
}

// Divider renders a horizontal line at the given width.
func Divider(width int) string {
	return lipgloss.NewStyle().
		Foreground(theme.ColorBorder).
		Render(strings.Repeat("─", width))
}
