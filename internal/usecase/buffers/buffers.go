// Package buffers accumulates streamed content fragments per logical stream.
package buffers

import (
	"strings"

	"tracechat/internal/domain"
)

// Key identifies one accumulating stream: the owning parallel agent ("" for
// the main stream) and the kind of card being filled.
type Key struct {
	Agent string
	Kind  domain.CardKind
}

// MainKey returns the main-stream key for kind.
func MainKey(kind domain.CardKind) Key { return Key{Kind: kind} }

// AgentKey returns the key for kind inside agent's parallel window.
func AgentKey(agent string, kind domain.CardKind) Key { return Key{Agent: agent, Kind: kind} }

// Set is a collection of content buffers. The zero value is ready to use.
// Set is not safe for concurrent use.
type Set struct {
	bufs map[Key]*strings.Builder
}

// New returns an empty Set.
func New() *Set {
	return &Set{bufs: make(map[Key]*strings.Builder)}
}

// Append adds fragment to the buffer for key and returns the accumulated value.
func (s *Set) Append(key Key, fragment string) string {
	b := s.builder(key)
	b.WriteString(fragment)
	return b.String()
}

// Replace sets the buffer for key to snapshot and returns it.
func (s *Set) Replace(key Key, snapshot string) string {
	b := s.builder(key)
	b.Reset()
	b.WriteString(snapshot)
	return b.String()
}

// Merge applies one tool-call argument frame: a snapshot replaces the buffer,
// otherwise delta is appended. A frame carrying both is a snapshot.
func (s *Set) Merge(key Key, snapshot string, hasSnapshot bool, delta string) string {
	if hasSnapshot {
		return s.Replace(key, snapshot)
	}
	return s.Append(key, delta)
}

// Get returns the accumulated value for key.
func (s *Set) Get(key Key) string {
	if b, ok := s.bufs[key]; ok {
		return b.String()
	}
	return ""
}

// Reset clears the given keys, or every key when none is given.
func (s *Set) Reset(keys ...Key) {
	if len(keys) == 0 {
		s.bufs = make(map[Key]*strings.Builder)
		return
	}
	for _, k := range keys {
		delete(s.bufs, k)
	}
}

// ResetAgent clears every buffer owned by agent.
func (s *Set) ResetAgent(agent string) {
	for k := range s.bufs {
		if k.Agent == agent {
			delete(s.bufs, k)
		}
	}
}

// Len returns the number of non-empty buffers.
func (s *Set) Len() int {
	n := 0
	for _, b := range s.bufs {
		if b.Len() > 0 {
			n++
		}
	}
	return n
}

func (s *Set) builder(key Key) *strings.Builder {
	if s.bufs == nil {
		s.bufs = make(map[Key]*strings.Builder)
	}
	b, ok := s.bufs[key]
	if !ok {
		b = &strings.Builder{}
		s.bufs[key] = b
	}
	return b
}
