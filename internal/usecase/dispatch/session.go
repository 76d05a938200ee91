package dispatch

import (
	"context"

	"tracechat/internal/domain"
)

// mainScope is the scope of the main stream; parallel scopes are agent names.
const mainScope = ""

type slotKey struct {
	scope string
	kind  domain.CardKind
}

type workflowNode struct {
	card *domain.Card
	id   string
}

// Session is the state of one request/response cycle. It is created by
// Dispatcher.Begin and discarded by Dispatcher.Finish.
type Session struct {
	ID               string
	Query            string
	BackendSessionID string
	Total            domain.Stopwatch

	abort     context.CancelFunc
	cancelled bool

	slots      map[slotKey]*domain.Card
	lastActive map[string]*domain.Card
	toolNames  map[string]string
	workflow   map[string][]workflowNode
	cards      []*domain.Card
	events     int
	finalSeen  bool
}

func newSession(id, query string, total domain.Stopwatch) *Session {
	return &Session{
		ID:         id,
		Query:      query,
		Total:      total,
		slots:      make(map[slotKey]*domain.Card),
		lastActive: make(map[string]*domain.Card),
		toolNames:  make(map[string]string),
		workflow:   make(map[string][]workflowNode),
	}
}

// Events returns the number of events dispatched in this session.
func (s *Session) Events() int { return s.events }

// Cancelled reports whether the user cancelled this session.
func (s *Session) Cancelled() bool { return s.cancelled }

// FinalSeen reports whether a final output arrived.
func (s *Session) FinalSeen() bool { return s.finalSeen }

// Cards returns every card created during this session, in creation order.
func (s *Session) Cards() []*domain.Card {
	return append([]*domain.Card(nil), s.cards...)
}

// slot returns the running card in (scope, kind), treating completed cards
// as absent.
func (s *Session) slot(scope string, kind domain.CardKind) *domain.Card {
	c := s.slots[slotKey{scope, kind}]
	if !c.Running() {
		return nil
	}
	return c
}

func (s *Session) setSlot(scope string, kind domain.CardKind, c *domain.Card) {
	if c == nil {
		delete(s.slots, slotKey{scope, kind})
		return
	}
	s.slots[slotKey{scope, kind}] = c
}

// active returns the most recently created card of scope that is still
// running.
func (s *Session) active(scope string) *domain.Card {
	c := s.lastActive[scope]
	if !c.Running() {
		return nil
	}
	return c
}

func (s *Session) setActive(scope string, c *domain.Card) {
	if c == nil {
		delete(s.lastActive, scope)
		return
	}
	s.lastActive[scope] = c
}

// clearActive drops the active pointer of scope when it refers to c.
func (s *Session) clearActive(scope string, c *domain.Card) {
	if s.lastActive[scope] == c {
		delete(s.lastActive, scope)
	}
}

// clearScope forgets every slot and pointer of scope.
func (s *Session) clearScope(scope string) {
	for k := range s.slots {
		if k.scope == scope {
			delete(s.slots, k)
		}
	}
	delete(s.lastActive, scope)
	delete(s.toolNames, scope)
}

func (s *Session) pushNode(scope string, c *domain.Card, id string) {
	s.workflow[scope] = append(s.workflow[scope], workflowNode{card: c, id: id})
}

// popNode removes the node opened for c and returns its id.
func (s *Session) popNode(scope string, c *domain.Card) (string, bool) {
	stack := s.workflow[scope]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].card == c {
			id := stack[i].id
			s.workflow[scope] = append(stack[:i], stack[i+1:]...)
			return id, true
		}
	}
	return "", false
}
