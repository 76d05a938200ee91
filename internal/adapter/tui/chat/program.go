package chat

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"tracechat/internal/domain"
)

// Program runs the chat model as a full-screen Bubble Tea program.
type Program struct {
	logger  *slog.Logger
	bus     domain.EventBus
	program *tea.Program
}

// NewProgram creates a program. bus, when set, feeds the event log and
// toasts.
func NewProgram(bus domain.EventBus, logger *slog.Logger) *Program {
	if logger == nil {
		logger = slog.Default()
	}
	return &Program{logger: logger, bus: bus}
}

// Run starts the program and blocks until it exits or ctx is cancelled.
func (p *Program) Run(ctx context.Context, deps ChatModelDeps) error {
	deps.Context = ctx
	p.program = tea.NewProgram(
		NewChatModel(deps),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	// Forward bus events into the update loop; handlers run on bus
	// goroutines and Send is safe from any of them.
	if p.bus != nil {
		unsub := p.bus.SubscribeAll(func(_ context.Context, event domain.Event) {
			p.program.Send(BusEventMsg{Event: event})
		})
		defer unsub()
	}

	// Monitor context cancellation to quit the program.
	go func() {
		<-ctx.Done()
		p.program.Send(QuitMsg{})
	}()

	p.logger.Info("chat ui started")
	_, err := p.program.Run()
	if err != nil && ctx.Err() != nil {
		// Quitting through ctx is a normal exit.
		return nil
	}
	return err
}

// Stop signals the program to quit.
func (p *Program) Stop() {
	if p.program != nil {
		p.program.Send(QuitMsg{})
	}
}
