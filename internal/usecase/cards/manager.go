// Package cards manages the lifecycle of execution cards: creation into a
// container, content re-rendering, timed completion and expansion state.
package cards

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"tracechat/internal/domain"
)

// Container owns cards. The main transcript and each parallel window are
// containers; a card is added to exactly one of them.
type Container interface {
	AddCard(card *domain.Card)
	// Owner names the parallel agent owning the container, or "" for the
	// main stream.
	Owner() string
}

// ManagerDeps holds the collaborators of a Manager. Nil fields get defaults.
type ManagerDeps struct {
	Clock    domain.Clock
	Markdown domain.MarkdownRenderer
	Bus      domain.EventBus
	Logger   *slog.Logger
	// OnChange, when set, is called synchronously after every mutation.
	OnChange func(card *domain.Card)
}

// Manager creates, updates and completes cards. It keeps a registry of the
// cards that are still running so they can be finalized in bulk. Manager is
// not safe for concurrent use; it is driven from the dispatch loop.
type Manager struct {
	clock     domain.Clock
	md        domain.MarkdownRenderer
	bus       domain.EventBus
	logger    *slog.Logger
	entropy   io.Reader
	open       []*domain.Card
	completed  int
	onChange   func(*domain.Card)
	onComplete func(*domain.Card)
}

// NewManager returns a Manager wired to deps.
func NewManager(deps ManagerDeps) *Manager {
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		clock:    deps.Clock,
		md:       deps.Markdown,
		bus:      deps.Bus,
		logger:   deps.Logger,
		onChange: deps.OnChange,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Clock returns the clock used for card timers.
func (m *Manager) Clock() domain.Clock { return m.clock }

// Create inserts a new running, expanded card into container and starts its
// timer. A nil container yields a detached card that is still tracked.
func (m *Manager) Create(container Container, kind domain.CardKind, title, icon, style string) *domain.Card {
	card := &domain.Card{
		ID:          ulid.MustNew(ulid.Now(), m.entropy).String(),
		Kind:        kind,
		Title:       title,
		Icon:        icon,
		Style:       style,
		State:       domain.CardRunning,
		Expanded:    true,
		ContentType: domain.ContentText,
		Timer:       domain.StartStopwatch(m.clock.Now()),
	}
	if container != nil {
		card.Agent = container.Owner()
		container.AddCard(card)
	}
	m.open = append(m.open, card)

	m.logger.Debug("card created", "id", card.ID, "kind", kind, "title", title, "agent", card.Agent)
	m.publish(domain.EventCardCreated, domain.CardEventPayload{
		CardID: card.ID, Kind: kind, Title: title, Agent: card.Agent,
	})
	m.changed(card)
	return card
}

// Update re-renders card from content interpreted as ct.
func (m *Manager) Update(card *domain.Card, content string, ct domain.ContentType) {
	if card == nil {
		return
	}
	card.Content = content
	card.ContentType = ct
	card.Body = RenderBody(content, ct, m.md, m.logger)
	m.changed(card)
}

// SetTitle replaces the card's displayed title.
func (m *Manager) SetTitle(card *domain.Card, title string) {
	if card == nil || title == "" {
		return
	}
	card.Title = title
	m.changed(card)
}

// Complete transitions card to completed, freezing its timer, and collapses
// it when collapse is set. It reports whether the transition happened;
// completing an already completed card changes nothing.
func (m *Manager) Complete(card *domain.Card, collapse bool) bool {
	if card == nil || card.State == domain.CardCompleted {
		return false
	}
	now := m.clock.Now()
	card.Timer.Stop(now)
	card.State = domain.CardCompleted
	if collapse {
		card.Expanded = false
	}
	m.forget(card)
	m.completed++
	if m.onComplete != nil {
		m.onComplete(card)
	}

	elapsed := card.Elapsed(now)
	m.logger.Debug("card completed", "id", card.ID, "kind", card.Kind, "elapsed", elapsed)
	m.publish(domain.EventCardCompleted, domain.CardEventPayload{
		CardID: card.ID, Kind: card.Kind, Title: card.Title, Agent: card.Agent,
		ElapsedMS: elapsed.Milliseconds(),
	})
	m.changed(card)
	return true
}

// Collapse hides the card's body regardless of its state.
func (m *Manager) Collapse(card *domain.Card) {
	if card == nil {
		return
	}
	card.Expanded = false
	m.changed(card)
}

// ToggleExpand flips the card's expanded flag.
func (m *Manager) ToggleExpand(card *domain.Card) {
	if card == nil {
		return
	}
	card.Expanded = !card.Expanded
	m.changed(card)
}

// OnComplete registers fn to run after every completion transition, before
// change listeners are notified. A later call replaces the hook.
func (m *Manager) OnComplete(fn func(card *domain.Card)) { m.onComplete = fn }

// Open returns the running cards in creation order.
func (m *Manager) Open() []*domain.Card {
	out := make([]*domain.Card, len(m.open))
	copy(out, m.open)
	return out
}

// completeWhere completes every running card matching keep and returns how
// many transitioned.
func (m *Manager) completeWhere(keep func(*domain.Card) bool, collapse bool) int {
	n := 0
	for _, card := range m.Open() {
		if keep != nil && !keep(card) {
			continue
		}
		if m.Complete(card, collapse) {
			n++
		}
	}
	return n
}

// CompleteAll completes every running card.
func (m *Manager) CompleteAll(collapse bool) int {
	return m.completeWhere(nil, collapse)
}

// CompleteOwned completes the running cards owned by agent ("" is the main
// stream).
func (m *Manager) CompleteOwned(agent string, collapse bool) int {
	return m.completeWhere(func(c *domain.Card) bool { return c.Agent == agent }, collapse)
}

// Forget drops cards from the running registry without completing them. It
// is used when their container is destroyed.
func (m *Manager) Forget(cards ...*domain.Card) {
	for _, c := range cards {
		m.forget(c)
	}
}

// Completed returns the number of completion transitions performed.
func (m *Manager) Completed() int { return m.completed }

func (m *Manager) forget(card *domain.Card) {
	for i, c := range m.open {
		if c == card {
			m.open = append(m.open[:i], m.open[i+1:]...)
			return
		}
	}
}

func (m *Manager) changed(card *domain.Card) {
	if m.onChange != nil {
		m.onChange(card)
	}
}

func (m *Manager) publish(t domain.EventType, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(context.Background(), domain.Event{
		Type:      t,
		Timestamp: m.clock.Now(),
		Payload:   domain.MustPayload(payload),
	})
}
