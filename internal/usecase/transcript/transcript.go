// Package transcript holds the main message list: user messages, main-stream
// cards, notices, the parallel grid and final answers.
package transcript

import (
	"time"

	"tracechat/internal/domain"
	"tracechat/internal/usecase/parallel"
)

// EntryKind identifies what a transcript entry shows.
type EntryKind string

const (
	EntryUser     EntryKind = "user"
	EntryCard     EntryKind = "card"
	EntryNotice   EntryKind = "notice"
	EntryBanner   EntryKind = "banner"
	EntryParallel EntryKind = "parallel"
	EntryFinal    EntryKind = "final"
	EntryError    EntryKind = "error"
	EntryAnalysis EntryKind = "analysis"
)

// Entry is one element of the main message list.
type Entry struct {
	Kind EntryKind
	// Text is the raw text of user, notice, banner, error, final and
	// analysis entries.
	Text string
	// Rendered holds markdown output for final and analysis entries.
	Rendered string
	Card     *domain.Card
	Parallel *parallel.Session
	// ID keys analysis entries.
	ID         string
	Elapsed    time.Duration
	HasElapsed bool
}

// Observer receives notifications when the transcript mutates.
type Observer interface {
	OnTranscriptEvent(event Event)
}

// Event is a transcript mutation notification.
type Event interface {
	transcriptEvent() // sealed marker
}

// EntryAppended fires when an entry is added.
type EntryAppended struct {
	Entry *Entry
}

func (EntryAppended) transcriptEvent() {}

// EntryRemoved fires when an entry is replaced or cleared.
type EntryRemoved struct {
	Entry *Entry
}

func (EntryRemoved) transcriptEvent() {}

// Cleared fires when the history is cleared.
type Cleared struct{}

func (Cleared) transcriptEvent() {}

// Transcript is the main-stream container. It is not safe for concurrent use.
type Transcript struct {
	entries     []*Entry
	analysis    map[string]*Entry
	placeholder bool
	observers   []Observer
}

// New returns an empty transcript showing the placeholder.
func New() *Transcript {
	return &Transcript{analysis: make(map[string]*Entry), placeholder: true}
}

// AddObserver registers an observer notified synchronously on mutations.
func (t *Transcript) AddObserver(o Observer) {
	t.observers = append(t.observers, o)
}

// ShowsPlaceholder reports whether the empty-state placeholder is visible.
func (t *Transcript) ShowsPlaceholder() bool { return t.placeholder }

// AddCard appends a main-stream card.
func (t *Transcript) AddCard(card *domain.Card) {
	t.append(&Entry{Kind: EntryCard, Card: card})
}

// Owner identifies the main stream.
func (t *Transcript) Owner() string { return "" }

// AddUser appends the user's message.
func (t *Transcript) AddUser(text string) { t.append(&Entry{Kind: EntryUser, Text: text}) }

// AddNotice appends a system notice.
func (t *Transcript) AddNotice(text string) { t.append(&Entry{Kind: EntryNotice, Text: text}) }

// AddBanner appends a group banner.
func (t *Transcript) AddBanner(text string) { t.append(&Entry{Kind: EntryBanner, Text: text}) }

// AddError appends an assistant-role error message.
func (t *Transcript) AddError(text string) { t.append(&Entry{Kind: EntryError, Text: text}) }

// SetParallel shows s as the parallel grid. A grid from an earlier group is
// removed along with its cards, which are returned.
func (t *Transcript) SetParallel(s *parallel.Session) []*domain.Card {
	var dropped []*domain.Card
	kept := t.entries[:0]
	var removed []*Entry
	for _, e := range t.entries {
		if e.Kind == EntryParallel {
			dropped = append(dropped, e.Parallel.Cards()...)
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	for _, e := range removed {
		t.notify(EntryRemoved{Entry: e})
	}
	t.append(&Entry{Kind: EntryParallel, Parallel: s})
	return dropped
}

// AddFinal appends the final answer bubble.
func (t *Transcript) AddFinal(raw, rendered string, elapsed time.Duration, hasElapsed bool) {
	t.append(&Entry{Kind: EntryFinal, Text: raw, Rendered: rendered, Elapsed: elapsed, HasElapsed: hasElapsed})
}

// AddAnalysis appends an analysis block unless one with the same id exists.
// An empty id is never deduplicated. It reports whether an entry was added.
func (t *Transcript) AddAnalysis(id, raw, rendered string) bool {
	if id != "" {
		if _, ok := t.analysis[id]; ok {
			return false
		}
	}
	e := &Entry{Kind: EntryAnalysis, ID: id, Text: raw, Rendered: rendered}
	if id != "" {
		t.analysis[id] = e
	}
	t.append(e)
	return true
}

// HasAnalysis reports whether an analysis entry exists for id.
func (t *Transcript) HasAnalysis(id string) bool {
	_, ok := t.analysis[id]
	return ok
}

// Entries returns the entries in order.
func (t *Transcript) Entries() []*Entry {
	return append([]*Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Transcript) Len() int { return len(t.entries) }

// Cards returns the main-stream cards in order.
func (t *Transcript) Cards() []*domain.Card {
	var out []*domain.Card
	for _, e := range t.entries {
		if e.Kind == EntryCard {
			out = append(out, e.Card)
		}
	}
	return out
}

// Parallel returns the parallel session shown in the transcript, or nil.
func (t *Transcript) Parallel() *parallel.Session {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Kind == EntryParallel {
			return t.entries[i].Parallel
		}
	}
	return nil
}

// Clear destroys every entry and restores the placeholder. The cards that
// were held, including parallel window cards, are returned.
func (t *Transcript) Clear() []*domain.Card {
	var dropped []*domain.Card
	for _, e := range t.entries {
		switch e.Kind {
		case EntryCard:
			dropped = append(dropped, e.Card)
		case EntryParallel:
			dropped = append(dropped, e.Parallel.Cards()...)
		}
	}
	t.entries = nil
	t.analysis = make(map[string]*Entry)
	t.placeholder = true
	t.notify(Cleared{})
	return dropped
}

func (t *Transcript) append(e *Entry) {
	t.placeholder = false
	t.entries = append(t.entries, e)
	t.notify(EntryAppended{Entry: e})
}

func (t *Transcript) notify(ev Event) {
	for _, o := range t.observers {
		o.OnTranscriptEvent(ev)
	}
}
