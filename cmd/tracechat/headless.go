package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/x/term"

	"tracechat/internal/adapter/console"
	"tracechat/internal/adapter/stream"
	"tracechat/internal/adapter/tui/uxerror"
	"tracechat/internal/domain"
	"tracechat/internal/infra/config"
	"tracechat/internal/infra/logger"
	"tracechat/internal/infra/tracer"
)

// reportedError is a failure already shown to the user.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func errSilent(err error) bool {
	var re reportedError
	return errors.As(err, &re)
}

func runAsk(flags cliFlags, query string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	openerFor := func(log *slog.Logger) stream.Opener { return newOpener(cfg, flags.ReplayPath, flags, log) }
	return runHeadless(cfg, query, openerFor, os.Stdout, os.Stderr)
}

func runReplay(flags cliFlags, path string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	openerFor := func(log *slog.Logger) stream.Opener { return newOpener(cfg, path, flags, log) }
	return runHeadless(cfg, "", openerFor, os.Stdout, os.Stderr)
}

// runHeadless streams one request through the shared engine and prints it
// to out. An empty query adds no user entry, which suits replays.
func runHeadless(cfg *config.Config, query string, openerFor func(*slog.Logger) stream.Opener, out, errOut io.Writer) error {
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdown(context.Background())

	var printer *console.Printer
	sched := stream.NewLoopScheduler()
	c, err := newCore(cfg, log, coreOptions{
		Scheduler: sched,
		OnCard: func(card *domain.Card) {
			if printer != nil {
				printer.OnCardChange(card)
			}
		},
	})
	if err != nil {
		return err
	}
	defer c.Close()

	printer = console.New(out, c.loc, nil, outputWidth(out))
	c.transcript.AddObserver(printer)
	c.md.SetWidth(outputWidth(out) - 4)

	ctrl := stream.NewController(stream.ControllerDeps{
		Opener:     openerFor(log),
		Dispatcher: c.dispatcher,
		Scheduler:  sched,
		Logger:     log,
	})
	defer ctrl.Close()

	req := stream.NewChatRequest(query, cfg.Backend)
	if err := ctrl.Run(ctx, req); err != nil {
		fmt.Fprintln(errOut, uxerror.Humanize(err).Render())
		return reportedError{err}
	}
	return nil
}

// outputWidth is the terminal width of w, or console.DefaultWidth when w is
// not a terminal.
func outputWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		return console.DefaultWidth
	}
	width, _, err := term.GetSize(f.Fd())
	if err != nil || width <= 0 {
		return console.DefaultWidth
	}
	return width
}
