// Package console prints a streaming transcript to a plain terminal for the
// headless ask and replay commands.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"tracechat/internal/adapter/tui/components"
	"tracechat/internal/adapter/tui/theme"
	"tracechat/internal/domain"
	"tracechat/internal/usecase/transcript"
)

// DefaultWidth is used when the terminal size is unknown.
const DefaultWidth = 100

// Printer writes transcript entries as they are appended and cards once
// they complete. Running cards are never printed, so each card appears
// exactly once with its final body and frozen timer.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	loc     domain.Localizer
	clock   domain.Clock
	width   int
	printed map[*domain.Card]bool
}

// New creates a printer writing to w.
func New(w io.Writer, loc domain.Localizer, clock domain.Clock, width int) *Printer {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if width <= 0 {
		width = DefaultWidth
	}
	return &Printer{w: w, loc: loc, clock: clock, width: width, printed: make(map[*domain.Card]bool)}
}

// OnTranscriptEvent implements transcript.Observer.
func (p *Printer) OnTranscriptEvent(ev transcript.Event) {
	appended, ok := ev.(transcript.EntryAppended)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry(appended.Entry)
}

// OnCardChange prints c the first time it is seen completed. It is meant
// for cards.ManagerDeps.OnChange.
func (p *Printer) OnCardChange(c *domain.Card) {
	if c == nil || c.Running() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed[c] {
		return
	}
	p.printed[c] = true

	if c.Agent != "" {
		fmt.Fprintln(p.w, theme.TextAccent.Render("["+c.Agent+"]"))
	}
	fmt.Fprintln(p.w, components.RenderCard(c, p.clock.Now(), components.CardOptions{Width: p.width, Full: true}))
}

func (p *Printer) entry(e *transcript.Entry) {
	switch e.Kind {
	case transcript.EntryUser:
		fmt.Fprintln(p.w, theme.UserLabel.Render(theme.SymbolUser)+" "+e.Text)
	case transcript.EntryNotice:
		fmt.Fprintln(p.w, theme.TextMuted.Render(theme.SymbolInfo+" "+e.Text))
	case transcript.EntryBanner:
		fmt.Fprintln(p.w, theme.Banner.Render(e.Text))
	case transcript.EntryParallel:
		if e.Parallel != nil {
			fmt.Fprintln(p.w, theme.TextMuted.Render(theme.SymbolArrowR+" "+strings.Join(e.Parallel.Agents(), ", ")))
		}
	case transcript.EntryError:
		fmt.Fprintln(p.w, theme.TextError.Render(theme.SymbolError+" "+e.Text))
	case transcript.EntryFinal:
		fmt.Fprintln(p.w, theme.BotLabel.Render(theme.SymbolBot))
		fmt.Fprintln(p.w, strings.TrimRight(textOf(e), "\n"))
		if e.HasElapsed {
			fmt.Fprintln(p.w, theme.TextMuted.Render(p.loc.T("final.elapsed", map[string]any{
				"elapsed": domain.FormatElapsed(e.Elapsed),
			})))
		}
	case transcript.EntryAnalysis:
		fmt.Fprintln(p.w, theme.ToolLabel.Render(p.loc.T("card.analysis")))
		fmt.Fprintln(p.w, strings.TrimRight(textOf(e), "\n"))
	}
	// Card entries are printed by OnCardChange on completion.
}

func textOf(e *transcript.Entry) string {
	if e.Rendered != "" {
		return e.Rendered
	}
	return e.Text
}
