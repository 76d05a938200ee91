package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickScheduler implements domain.Scheduler on top of tea.Tick: delayed
// functions come back as ScheduledMsg and run inside Update, on the same
// goroutine that drives the dispatcher. It is not safe for concurrent use.
type TickScheduler struct {
	next    uint64
	fns     map[uint64]func()
	pending []tickEntry
}

type tickEntry struct {
	id    uint64
	delay time.Duration
}

// NewTickScheduler creates an empty scheduler.
func NewTickScheduler() *TickScheduler {
	return &TickScheduler{fns: make(map[uint64]func())}
}

// After registers fn to run once d has elapsed. The timer starts when the
// model collects it with Cmds.
func (s *TickScheduler) After(d time.Duration, fn func()) {
	s.next++
	s.fns[s.next] = fn
	s.pending = append(s.pending, tickEntry{id: s.next, delay: d})
}

// Cmds turns the functions registered since the last call into tick commands.
func (s *TickScheduler) Cmds() []tea.Cmd {
	if len(s.pending) == 0 {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(s.pending))
	for _, e := range s.pending {
		id := e.id
		cmds = append(cmds, tea.Tick(e.delay, func(time.Time) tea.Msg { return ScheduledMsg{ID: id} }))
	}
	s.pending = nil
	return cmds
}

// Run runs and forgets the function registered under id. Unknown ids are
// ignored.
func (s *TickScheduler) Run(id uint64) bool {
	fn, ok := s.fns[id]
	if !ok {
		return false
	}
	delete(s.fns, id)
	fn()
	return true
}

// Pending returns the number of functions that have not run yet.
func (s *TickScheduler) Pending() int { return len(s.fns) }
