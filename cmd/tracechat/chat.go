package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"tracechat/internal/adapter/tui/chat"
	"tracechat/internal/infra/config"
	"tracechat/internal/infra/logger"
	"tracechat/internal/infra/tracer"
)

func runChat(flags cliFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	// The alt screen owns the terminal, so terminal log outputs go to a file.
	log, closeLog, err := logger.NewForTUI(cfg.Logger, filepath.Join(config.DataDir(), "tracechat.log"))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	shutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdown(context.Background())

	sched := chat.NewTickScheduler()
	c, err := newCore(cfg, log, coreOptions{Scheduler: sched})
	if err != nil {
		return err
	}
	defer c.Close()

	log.Info("tracechat starting",
		"mode", "chat",
		"backend", cfg.Backend.URL,
		"locale", c.loc.Locale(),
		"replay", flags.ReplayPath != "",
	)

	program := chat.NewProgram(c.bus, log)
	return program.Run(ctx, chat.ChatModelDeps{
		Opener:     newOpener(cfg, flags.ReplayPath, flags, log),
		Dispatcher: c.dispatcher,
		Scheduler:  sched,
		Cards:      c.cards,
		Transcript: c.transcript,
		Parallel:   c.parallel,
		Workflow:   c.tree,
		Markdown:   c.md,
		Localizer:  c.loc,
		Backend:    cfg.Backend,
		Bus:        c.bus,
		Logger:     log,
		TickRate:   cfg.Render.TickRate,
		MaxEntries: cfg.Render.MaxEntries,
	})
}
