package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"tracechat/internal/adapter/tui/theme"
	"tracechat/internal/domain"
)

// maxCardLines caps the body lines drawn inline; the card modal shows the rest.
const maxCardLines = 12

// CardOptions controls how a card is drawn.
type CardOptions struct {
	Width    int
	Selected bool
	// Full draws the whole body, ignoring Expanded and maxCardLines.
	Full bool
}

// RenderCard draws card as a bordered box: a header with icon, title and
// timer, followed by the body when the card is expanded.
func RenderCard(card *domain.Card, now time.Time, opts CardOptions) string {
	if card == nil {
		return ""
	}
	width := opts.Width
	if width < 20 {
		width = 20
	}
	inner := width - 4 // border + padding

	header := cardHeader(card, now, inner)
	var body string
	if card.Expanded || opts.Full {
		body = cardBody(card.Body, inner, opts.Full)
	}

	content := header
	if body != "" {
		content += "\n" + body
	}

	style := theme.CardCompleted
	switch {
	case opts.Selected:
		style = theme.CardSelected
	case card.Running():
		style = theme.CardRunning
	}
	return style.Width(width - 2).Render(content)
}

func cardHeader(card *domain.Card, now time.Time, width int) string {
	toggle := theme.SymbolCollapse
	if card.Expanded {
		toggle = theme.SymbolExpand
	}

	status := theme.TextSuccess.Render(theme.SymbolSuccess)
	if card.Running() {
		status = theme.TextInfo.Render(theme.SymbolSpinner)
	}

	icon := card.Icon
	if icon != "" {
		icon += " "
	}
	timer := theme.CardTimer.Render(domain.FormatElapsed(card.Elapsed(now)))

	left := toggle + " " + status + " " + icon
	titleW := width - lipgloss.Width(left) - lipgloss.Width(timer) - 1
	title := truncate(card.Title, titleW)
	line := left + theme.CardTitle.Render(title)

	gap := width - lipgloss.Width(line) - lipgloss.Width(timer)
	if gap < 1 {
		gap = 1
	}
	return line + strings.Repeat(" ", gap) + timer
}

func cardBody(body domain.CardBody, width int, full bool) string {
	text := strings.TrimRight(body.Text, "\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var out string
	switch body.Format {
	case domain.BodyMarkdown:
		out = text
	case domain.BodyCode:
		out = theme.CodeBlock.Render(text)
		if body.Language != "" {
			out = theme.TextMuted.Render(body.Language) + "\n" + out
		}
	default:
		out = wrapLines(text, width)
	}

	if full {
		return out
	}
	lines := strings.Split(out, "\n")
	if len(lines) <= maxCardLines {
		return out
	}
	more := len(lines) - maxCardLines
	return strings.Join(lines[:maxCardLines], "\n") + "\n" +
		theme.Dim.Render(fmt.Sprintf("%s %d more lines (Ctrl+E to open)", theme.SymbolEllipsis, more))
}

// wrapLines wraps each line of preformatted text without adding indentation.
func wrapLines(s string, width int) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.ReplaceAll(wrapText(l, width), "\n  ", "\n")
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to at most width cells, ending in an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + theme.SymbolEllipsis
}
