//go:build integration
// +build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"tracechat/internal/adapter/i18n"
	"tracechat/internal/adapter/stream"
	"tracechat/internal/domain"
	"tracechat/internal/infra/config"
	"tracechat/internal/usecase/buffers"
	"tracechat/internal/usecase/cards"
	"tracechat/internal/usecase/dispatch"
	"tracechat/internal/usecase/parallel"
	"tracechat/internal/usecase/transcript"
)

type liveRig struct {
	backend config.BackendConfig
	ctrl    *stream.Controller
	d       *dispatch.Dispatcher
	cards   *cards.Manager
	tr      *transcript.Transcript
	onCard  func(*domain.Card)
}

// newLiveRig wires the real client and engine against the configured backend.
func newLiveRig(t *testing.T, cfg *Config) *liveRig {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend := config.Defaults().Backend
	backend.URL = cfg.BackendURL
	backend.Token = cfg.Token
	backend.KBID = cfg.KBID

	r := &liveRig{backend: backend, tr: transcript.New()}
	sched := stream.NewLoopScheduler()
	r.cards = cards.NewManager(cards.ManagerDeps{
		Logger: logger,
		OnChange: func(c *domain.Card) {
			if r.onCard != nil {
				r.onCard(c)
			}
		},
	})
	r.d = dispatch.New(dispatch.Deps{
		Cards:      r.cards,
		Buffers:    buffers.New(),
		Parallel:   parallel.NewManager(nil, logger),
		Transcript: r.tr,
		Localizer:  i18n.MustNew("en"),
		Scheduler:  sched,
		Logger:     logger,
	})
	r.ctrl = stream.NewController(stream.ControllerDeps{
		Opener:     stream.NewClient(backend, logger),
		Dispatcher: r.d,
		Scheduler:  sched,
		Logger:     logger,
	})
	t.Cleanup(r.ctrl.Close)
	return r
}

func (r *liveRig) ask(ctx context.Context, query string) error {
	return r.ctrl.Run(ctx, stream.NewChatRequest(query, r.backend))
}

func (r *liveRig) finalText() string {
	var out []string
	for _, e := range r.tr.Entries() {
		if e.Kind == transcript.EntryFinal {
			out = append(out, e.Text)
		}
	}
	return strings.Join(out, "\n")
}

func TestE2E_LiveAnswer(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoBackend(t, cfg)

	ctx := NewTestContext(t, cfg.TestTimeout)
	r := newLiveRig(t, cfg)

	if err := r.ask(ctx, cfg.Query); err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if len(r.cards.Open()) != 0 {
		t.Errorf("%d cards still running after the stream ended", len(r.cards.Open()))
	}
	if r.d.Streaming() {
		t.Error("dispatcher still streaming")
	}
	t.Logf("final answer: %s", r.finalText())
}

func TestE2E_CancelMidStream(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoBackend(t, cfg)

	ctx := NewTestContext(t, cfg.TestTimeout)
	r := newLiveRig(t, cfg)
	r.onCard = func(c *domain.Card) {
		if c.Running() {
			r.ctrl.Cancel()
		}
	}

	if err := r.ask(ctx, cfg.Query); err != nil {
		t.Fatalf("cancelled run should not fail: %v", err)
	}

	last := r.d.LastSession()
	if last == nil || !last.Cancelled() {
		t.Skip("backend answered before any card was created")
	}
	if len(r.cards.Open()) != 0 {
		t.Errorf("%d cards still running after cancel", len(r.cards.Open()))
	}
	entries := r.tr.Entries()
	if got := entries[len(entries)-1]; got.Kind != transcript.EntryNotice {
		t.Errorf("expected the cancel notice last, got %s %q", got.Kind, got.Text)
	}
}

func TestE2E_MemoryAcrossTurns(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoBackend(t, cfg)
	if cfg.SkipSlow {
		t.Skip("Skipping slow multi-turn test")
	}

	ctx := NewTestContext(t, 2*cfg.TestTimeout)
	r := newLiveRig(t, cfg)
	r.backend.UseMemory = true

	if err := r.ask(ctx, "My name is Alice. Reply with OK."); err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}
	if last := r.d.LastSession(); last != nil && last.BackendSessionID != "" {
		r.backend.SessionID = last.BackendSessionID
	}

	if err := r.ask(ctx, "What's my name?"); err != nil {
		t.Fatalf("turn 2 failed: %v", err)
	}
	if !strings.Contains(r.finalText(), "Alice") {
		t.Errorf("backend didn't recall the name. Answers: %s", r.finalText())
	}
}
