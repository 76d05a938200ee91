package dispatch

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tracechat/internal/adapter/i18n"
	"tracechat/internal/domain"
	"tracechat/internal/usecase/buffers"
	"tracechat/internal/usecase/cards"
	"tracechat/internal/usecase/parallel"
	"tracechat/internal/usecase/transcript"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type scheduled struct {
	at time.Time
	fn func()
}

// manualScheduler runs scheduled functions only when the test advances time.
type manualScheduler struct {
	clock   *fakeClock
	pending []scheduled
}

func (s *manualScheduler) After(d time.Duration, fn func()) {
	s.pending = append(s.pending, scheduled{at: s.clock.now.Add(d), fn: fn})
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.clock.now = s.clock.now.Add(d)
	sort.SliceStable(s.pending, func(i, j int) bool { return s.pending[i].at.Before(s.pending[j].at) })
	var rest []scheduled
	var due []scheduled
	for _, p := range s.pending {
		if !p.at.After(s.clock.now) {
			due = append(due, p)
		} else {
			rest = append(rest, p)
		}
	}
	s.pending = rest
	for _, p := range due {
		p.fn()
	}
}

type stubMarkdown struct{}

func (stubMarkdown) Render(s string) string { return "<md>" + s + "</md>" }

type workflowCall struct {
	op    string
	id    string
	title string
}

type recordingWorkflow struct {
	next  int
	calls []workflowCall
}

func (w *recordingWorkflow) CreateNode(kind, title, icon string) string {
	w.next++
	id := "node-" + string(rune('0'+w.next))
	w.calls = append(w.calls, workflowCall{op: "create", id: id, title: title})
	return id
}

func (w *recordingWorkflow) CompleteNode(id string) {
	w.calls = append(w.calls, workflowCall{op: "complete", id: id})
}

type recordingToaster struct {
	toasts []string
}

func (r *recordingToaster) Toast(_ domain.ToastLevel, msg string) { r.toasts = append(r.toasts, msg) }

type harness struct {
	d        *Dispatcher
	cards    *cards.Manager
	buffers  *buffers.Set
	parallel *parallel.Manager
	tr       *transcript.Transcript
	clock    *fakeClock
	sched    *manualScheduler
	workflow *recordingWorkflow
	toaster  *recordingToaster
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	h := &harness{
		clock:    clock,
		sched:    &manualScheduler{clock: clock},
		buffers:  buffers.New(),
		parallel: parallel.NewManager(nil, nil),
		tr:       transcript.New(),
		workflow: &recordingWorkflow{},
		toaster:  &recordingToaster{},
	}
	h.parallel.SetClock(clock)
	h.cards = cards.NewManager(cards.ManagerDeps{Clock: clock, Markdown: stubMarkdown{}})
	h.d = New(Deps{
		Cards:      h.cards,
		Buffers:    h.buffers,
		Parallel:   h.parallel,
		Transcript: h.tr,
		Markdown:   stubMarkdown{},
		Workflow:   h.workflow,
		Localizer:  i18n.MustNew("en"),
		Toaster:    h.toaster,
		Scheduler:  h.sched,
		Clock:      clock,
	})
	return h
}

// feed decodes and dispatches frames in order and returns the first error.
func (h *harness) feed(t *testing.T, frames ...string) error {
	t.Helper()
	for _, f := range frames {
		ev, err := domain.DecodeStreamEvent([]byte(f))
		require.NoError(t, err, f)
		if err := h.d.Dispatch(ev); err != nil {
			return err
		}
	}
	return nil
}

func (h *harness) tick(d time.Duration) { h.clock.now = h.clock.now.Add(d) }

// mainCards returns the cards in the main transcript.
func (h *harness) mainCards() []*domain.Card { return h.tr.Cards() }

func (h *harness) entries(kind transcript.EntryKind) []*transcript.Entry {
	var out []*transcript.Entry
	for _, e := range h.tr.Entries() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
