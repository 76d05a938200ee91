// Package markdown renders card and answer bodies for the terminal.
package markdown

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// DefaultWidth is the wrap width used until SetWidth is called.
const DefaultWidth = 80

// Renderer is a glamour-backed domain.MarkdownRenderer. Render never fails:
// when glamour cannot render the input the escaped source text is returned.
type Renderer struct {
	mu       sync.Mutex
	renderer *glamour.TermRenderer
	style    string
	width    int
	logger   *slog.Logger
}

// New creates a renderer. Style is one of auto, dark, light, notty or
// plain; plain skips glamour entirely and only escapes the text.
func New(style string, width int, logger *slog.Logger) *Renderer {
	if style == "" {
		style = "auto"
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{style: style, width: width, logger: logger}
	r.rebuild()
	return r
}

// SetWidth changes the wrap width and rebuilds the renderer when it differs.
func (r *Renderer) SetWidth(width int) {
	if width <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if width == r.width {
		return
	}
	r.width = width
	r.rebuild()
}

// Width returns the current wrap width.
func (r *Renderer) Width() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width
}

// Render converts markdown to styled terminal text.
func (r *Renderer) Render(md string) (out string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderer == nil {
		return Escape(md)
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("markdown render panicked", "panic", fmt.Sprint(p))
			out = Escape(md)
		}
	}()
	rendered, err := r.renderer.Render(md)
	if err != nil {
		r.logger.Debug("markdown render failed", "error", err)
		return Escape(md)
	}
	return strings.TrimRight(rendered, "\n")
}

// rebuild recreates the glamour renderer. Callers hold mu or own r.
func (r *Renderer) rebuild() {
	if r.style == "plain" {
		r.renderer = nil
		return
	}
	tr, err := glamour.NewTermRenderer(
		styleOption(r.style),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		r.logger.Warn("markdown renderer unavailable, using plain text", "style", r.style, "error", err)
		r.renderer = nil
		return
	}
	r.renderer = tr
}

func styleOption(style string) glamour.TermRendererOption {
	switch style {
	case "dark", "light", "notty":
		return glamour.WithStandardStyle(style)
	default:
		return glamour.WithAutoStyle()
	}
}

// Escape returns s with terminal control sequences neutralised: ESC and
// other C0 controls except newline and tab are dropped, and carriage
// returns are removed.
func Escape(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		case r >= 0x80 && r < 0xa0:
			return -1
		}
		return r
	}, s)
}
