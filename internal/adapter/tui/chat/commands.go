package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"tracechat/internal/adapter/stream"
)

// openStreamCmd opens the event stream in a background goroutine. gen
// identifies the request so a result arriving after a newer request started
// is discarded.
func openStreamCmd(ctx context.Context, opener stream.Opener, req stream.ChatRequest, gen uint64) tea.Cmd {
	return func() tea.Msg {
		s, err := opener.Open(ctx, req)
		return StreamOpenedMsg{Stream: s, Err: err, Gen: gen}
	}
}

// waitFrameCmd blocks until the next frame arrives or the stream closes.
func waitFrameCmd(s *stream.Stream, gen uint64) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-s.Frames()
		if !ok {
			return StreamClosedMsg{Gen: gen}
		}
		return FrameMsg{Frame: f, Gen: gen}
	}
}

// clockTickCmd returns a Cmd that fires a ClockTickMsg after rate.
func clockTickCmd(rate time.Duration) tea.Cmd {
	if rate <= 0 {
		rate = 100 * time.Millisecond
	}
	return tea.Tick(rate, func(_ time.Time) tea.Msg {
		return ClockTickMsg{}
	})
}
