package parallel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tracechat/internal/domain"
)

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, evt domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()               { return func() {} }
func (b *recordingBus) Close()                                                {}

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

func TestManagerRouting(t *testing.T) {
	m := NewManager(nil, nil)
	assert.False(t, m.IsActive())
	assert.Nil(t, m.Route("X"))

	m.Begin(0, tasks("X"))
	assert.NotNil(t, m.Route("X"))
	assert.Nil(t, m.Route("Y"))
	assert.Nil(t, m.Route(""))
}

func TestManagerBeginReplaces(t *testing.T) {
	m := NewManager(nil, nil)
	first := m.Begin(0, tasks("A", "B"))
	second := m.Begin(1, tasks("C"))
	assert.NotSame(t, first, second)
	assert.False(t, m.HasWindow("A"))
	assert.True(t, m.HasWindow("C"))
}

func TestManagerEnd(t *testing.T) {
	bus := &recordingBus{}
	m := NewManager(bus, nil)
	s := m.Begin(0, tasks("A"))
	m.SetStatus("A", StatusRunning, "")
	assert.False(t, m.SetStatus("nobody", StatusRunning, ""))

	assert.Same(t, s, m.End())
	assert.False(t, m.IsActive())
	assert.Nil(t, m.End())
	assert.Equal(t, []domain.EventType{domain.EventParallelStarted, domain.EventParallelTask, domain.EventParallelMerged}, bus.types())
}

func TestManagerViewModePersists(t *testing.T) {
	m := NewManager(nil, nil)
	m.SetViewMode(ViewTab)
	s := m.Begin(0, tasks("A", "B", "C"))
	assert.Equal(t, ViewTab, s.Mode())
	m.SetViewMode(ViewGrid)
	assert.Equal(t, ViewGrid, s.Mode())
	m.SetViewMode("bogus")
	assert.Equal(t, ViewGrid, m.ViewMode())
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestManagerStampsEventsWithClock(t *testing.T) {
	bus := &recordingBus{}
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	m := NewManager(bus, nil)
	m.SetClock(fixedClock{now: at})
	m.SetClock(nil)

	m.Begin(3, tasks("A"))
	m.SetStatus("A", StatusCompleted, "")
	m.End()

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Len(t, bus.events, 3)
	for _, e := range bus.events {
		assert.Equal(t, at, e.Timestamp, string(e.Type))
	}
}
