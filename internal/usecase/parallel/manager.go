package parallel

import (
	"context"
	"io"
	"log/slog"

	"tracechat/internal/domain"
)

// Manager owns the single active parallel session.
type Manager struct {
	active *Session
	mode   ViewMode
	bus    domain.EventBus
	clock  domain.Clock
	logger *slog.Logger
}

// NewManager returns a Manager with no active session. bus may be nil.
func NewManager(bus domain.EventBus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{mode: ViewGrid, bus: bus, clock: domain.SystemClock{}, logger: logger}
}

// SetClock replaces the clock used to stamp published events.
func (m *Manager) SetClock(clock domain.Clock) {
	if clock != nil {
		m.clock = clock
	}
}

// Begin replaces any active session with a new one for tasks. Callers
// finalize the previous session's cards first.
func (m *Manager) Begin(groupIdx int, tasks []domain.ParallelTask) *Session {
	if m.active != nil {
		m.logger.Info("parallel session replaced", "group", m.active.GroupIdx, "windows", m.active.Len())
	}
	m.active = NewSession(groupIdx, tasks, m.mode)
	m.logger.Info("parallel session started", "group", groupIdx, "agents", m.active.Agents())
	m.publish(domain.EventParallelStarted, domain.ParallelPayload{GroupIdx: groupIdx, Agents: m.active.Agents()})
	return m.active
}

// Active returns the active session, or nil.
func (m *Manager) Active() *Session { return m.active }

// IsActive reports whether a session is active.
func (m *Manager) IsActive() bool { return m.active != nil }

// HasWindow reports whether the active session has a window for agent.
func (m *Manager) HasWindow(agent string) bool { return m.active.HasWindow(agent) }

// Route returns the window content for agent belongs to, or nil when the
// content belongs to the main stream.
func (m *Manager) Route(agent string) *Window {
	if !m.HasWindow(agent) {
		return nil
	}
	return m.active.Window(agent)
}

// SetStatus updates a window's status in the active session.
func (m *Manager) SetStatus(agent string, status WindowStatus, errMsg string) bool {
	if !m.active.SetStatus(agent, status, errMsg) {
		m.logger.Debug("parallel status for unknown agent", "agent", agent, "status", status)
		return false
	}
	m.logger.Info("parallel task status", "agent", agent, "status", status)
	m.publish(domain.EventParallelTask, domain.ParallelPayload{Agent: agent, Status: string(status)})
	return true
}

// End tears down the active session and returns it.
func (m *Manager) End() *Session {
	s := m.active
	m.active = nil
	if s != nil {
		m.logger.Info("parallel session merged", "group", s.GroupIdx, "windows", s.Len())
		m.publish(domain.EventParallelMerged, domain.ParallelPayload{GroupIdx: s.GroupIdx, Agents: s.Agents()})
	}
	return s
}

// SetViewMode sets the preferred view mode, applied to the active session
// and to sessions started later.
func (m *Manager) SetViewMode(mode ViewMode) {
	if mode != ViewGrid && mode != ViewTab {
		return
	}
	m.mode = mode
	m.active.SetMode(mode)
}

// ViewMode returns the preferred view mode.
func (m *Manager) ViewMode() ViewMode { return m.mode }

func (m *Manager) publish(t domain.EventType, payload domain.ParallelPayload) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(context.Background(), domain.Event{
		Type:      t,
		Timestamp: m.clock.Now(),
		Payload:   domain.MustPayload(payload),
	})
}
