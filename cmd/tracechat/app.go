package main

import (
	"fmt"
	"log/slog"

	"tracechat/internal/adapter/i18n"
	"tracechat/internal/adapter/markdown"
	"tracechat/internal/adapter/notify"
	"tracechat/internal/adapter/stream"
	"tracechat/internal/adapter/workflow"
	"tracechat/internal/domain"
	"tracechat/internal/infra/config"
	"tracechat/internal/usecase/buffers"
	"tracechat/internal/usecase/cards"
	"tracechat/internal/usecase/dispatch"
	"tracechat/internal/usecase/eventbus"
	"tracechat/internal/usecase/parallel"
	"tracechat/internal/usecase/transcript"
)

// busHistory is how many events the bus keeps for the event log pane.
const busHistory = 200

// core is the rendering engine shared by the chat UI and the headless
// commands. Only the scheduler differs between them.
type core struct {
	bus        *eventbus.Bus
	loc        *i18n.Catalog
	md         *markdown.Renderer
	tree       *workflow.Tree
	cards      *cards.Manager
	parallel   *parallel.Manager
	transcript *transcript.Transcript
	dispatcher *dispatch.Dispatcher
}

type coreOptions struct {
	Scheduler domain.Scheduler
	// OnCard is called after every card mutation.
	OnCard func(*domain.Card)
}

func newCore(cfg *config.Config, log *slog.Logger, opts coreOptions) (*core, error) {
	loc, err := i18n.New(cfg.Render.Locale)
	if err != nil {
		return nil, fmt.Errorf("locale: %w", err)
	}

	bus := eventbus.NewWithHistory(log, busHistory)
	md := markdown.New(cfg.Render.MarkdownStyle, 0, log)
	tree := workflow.New(log)
	clock := domain.SystemClock{}

	cm := cards.NewManager(cards.ManagerDeps{
		Clock:    clock,
		Markdown: md,
		Bus:      bus,
		Logger:   log,
		OnChange: opts.OnCard,
	})
	pm := parallel.NewManager(bus, log)
	pm.SetClock(clock)
	pm.SetViewMode(parallel.ViewMode(cfg.Render.ParallelView))
	tr := transcript.New()

	d := dispatch.New(dispatch.Deps{
		Cards:      cm,
		Buffers:    buffers.New(),
		Parallel:   pm,
		Transcript: tr,
		Markdown:   md,
		Workflow:   tree,
		Localizer:  loc,
		Toaster:    notify.Multi{notify.NewBusToaster(bus, clock), notify.NewLogToaster(log)},
		Scheduler:  opts.Scheduler,
		Clock:      clock,
		Bus:        bus,
		Logger:     log,
		Config: dispatch.Config{
			OneShotFlash: cfg.Render.OneShotFlash,
			OneShotBrief: cfg.Render.OneShotBrief,
		},
	})

	return &core{
		bus:        bus,
		loc:        loc,
		md:         md,
		tree:       tree,
		cards:      cm,
		parallel:   pm,
		transcript: tr,
		dispatcher: d,
	}, nil
}

func (c *core) Close() {
	c.bus.Close()
}

// newOpener returns the backend client, or a capture player when path is set.
func newOpener(cfg *config.Config, path string, flags cliFlags, log *slog.Logger) stream.Opener {
	if path != "" {
		return stream.ReplayOpener{Path: path, Pace: flags.Pace, Logger: log}
	}
	return stream.NewClient(cfg.Backend, log)
}
