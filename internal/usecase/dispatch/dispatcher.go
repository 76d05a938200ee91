// Package dispatch turns decoded stream events into card, buffer and parallel
// window mutations. A Dispatcher is driven from a single loop: events and
// scheduled completions never run concurrently.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"tracechat/internal/domain"
	"tracechat/internal/usecase/buffers"
	"tracechat/internal/usecase/cards"
	"tracechat/internal/usecase/parallel"
	"tracechat/internal/usecase/transcript"
)

// Minimum visible durations of one-shot cards before they auto-complete.
const (
	DefaultOneShotFlash = 500 * time.Millisecond
	DefaultOneShotBrief = 100 * time.Millisecond
)

// Config tunes dispatcher timing.
type Config struct {
	// OneShotFlash is how long a tool output card stays running.
	OneShotFlash time.Duration
	// OneShotBrief is how long tool log and run item cards stay running.
	OneShotBrief time.Duration
}

// Deps holds the collaborators of a Dispatcher. Cards, Buffers, Parallel
// and Transcript are required; other nil fields get no-op defaults.
type Deps struct {
	Cards      *cards.Manager
	Buffers    *buffers.Set
	Parallel   *parallel.Manager
	Transcript *transcript.Transcript
	Markdown   domain.MarkdownRenderer
	Workflow   domain.WorkflowSink
	Localizer  domain.Localizer
	Toaster    domain.Toaster
	Scheduler  domain.Scheduler
	Clock      domain.Clock
	Bus        domain.EventBus
	Logger     *slog.Logger
	Config     Config
}

// Dispatcher routes stream events to their handlers.
type Dispatcher struct {
	cards      *cards.Manager
	buffers    *buffers.Set
	parallel   *parallel.Manager
	transcript *transcript.Transcript
	md         domain.MarkdownRenderer
	workflow   domain.WorkflowSink
	l10n       domain.Localizer
	toaster    domain.Toaster
	scheduler  domain.Scheduler
	clock      domain.Clock
	bus        domain.EventBus
	logger     *slog.Logger
	cfg        Config
	entropy    *ulid.MonotonicEntropy

	session *Session
	last    *Session
}

// New returns a Dispatcher wired to deps.
func New(deps Deps) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Scheduler == nil {
		deps.Scheduler = immediateScheduler{}
	}
	if deps.Localizer == nil {
		deps.Localizer = keyLocalizer{}
	}
	if deps.Config.OneShotFlash <= 0 {
		deps.Config.OneShotFlash = DefaultOneShotFlash
	}
	if deps.Config.OneShotBrief <= 0 {
		deps.Config.OneShotBrief = DefaultOneShotBrief
	}
	d := &Dispatcher{
		cards:      deps.Cards,
		buffers:    deps.Buffers,
		parallel:   deps.Parallel,
		transcript: deps.Transcript,
		md:         deps.Markdown,
		workflow:   deps.Workflow,
		l10n:       deps.Localizer,
		toaster:    deps.Toaster,
		scheduler:  deps.Scheduler,
		clock:      deps.Clock,
		bus:        deps.Bus,
		logger:     deps.Logger,
		cfg:        deps.Config,
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	deps.Cards.OnComplete(d.closeNode)
	return d
}

// Session returns the active session, or nil between messages.
func (d *Dispatcher) Session() *Session { return d.session }

// LastSession returns the most recently finished session, or nil.
func (d *Dispatcher) LastSession() *Session { return d.last }

// Streaming reports whether a session is active.
func (d *Dispatcher) Streaming() bool { return d.session != nil }

// Elapsed is the total elapsed time of the active or last session.
func (d *Dispatcher) Elapsed() time.Duration {
	now := d.clock.Now()
	switch {
	case d.session != nil:
		return d.session.Total.Elapsed(now)
	case d.last != nil:
		return d.last.Total.Elapsed(now)
	}
	return 0
}

// Begin starts a session for query. Cards still running from an earlier
// session are completed, any parallel session is torn down and every buffer
// is reset.
func (d *Dispatcher) Begin(query string) *Session {
	if d.session != nil {
		d.logger.Warn("session begun while another is active", "session", d.session.ID)
		d.closeSession()
	}
	d.completeAll(false)
	d.endParallel()
	d.buffers.Reset()

	now := d.clock.Now()
	s := newSession(ulid.MustNew(ulid.Timestamp(now), d.entropy).String(), query, domain.StartStopwatch(now))
	d.session = s
	if query != "" {
		d.transcript.AddUser(query)
	}
	d.logger.Info("stream session started", "session", s.ID)
	d.publish(domain.EventMessageSent, nil)
	return s
}

// SetAbort stores the handle that aborts the session's transport read.
func (d *Dispatcher) SetAbort(cancel context.CancelFunc) {
	if d.session != nil {
		d.session.abort = cancel
	}
}

// Opened records that the transport accepted the request.
func (d *Dispatcher) Opened() {
	if d.session == nil {
		return
	}
	d.logger.Debug("stream opened", "session", d.session.ID)
	d.publish(domain.EventStreamStarted, nil)
}

// Cancel aborts the active session's transport. Cleanup happens in Finish
// once the read loop observes the abort.
func (d *Dispatcher) Cancel() bool {
	s := d.session
	if s == nil || s.cancelled {
		return false
	}
	s.cancelled = true
	if s.abort != nil {
		s.abort()
	}
	d.logger.Info("stream cancelled by user", "session", s.ID)
	return true
}

// Dispatch handles one event. It returns a *domain.StreamError for error
// events; every other failure is absorbed and logged. Once the session is
// cancelled every event is dropped.
func (d *Dispatcher) Dispatch(ev domain.StreamEvent) error {
	s := d.session
	if s == nil {
		d.logger.Debug("event outside of a session dropped", "type", ev.Type())
		return nil
	}
	if s.cancelled {
		d.logger.Debug("event after cancel dropped", "session", s.ID, "type", ev.Type())
		return nil
	}
	s.events++

	switch e := ev.(type) {
	case domain.StartEvent:
		s.BackendSessionID = e.SessionID
		d.logger.Debug("backend session", "session", s.ID, "backend_session", e.SessionID)
	case domain.ParallelGroupStartEvent:
		d.onParallelGroupStart(e)
	case domain.ParallelTaskStartEvent:
		d.parallel.SetStatus(e.Agent, parallel.StatusRunning, "")
	case domain.ParallelTaskDoneEvent:
		d.onParallelTaskDone(e)
	case domain.ParallelTaskErrorEvent:
		d.parallel.SetStatus(e.Agent, parallel.StatusError, e.Error)
	case domain.ParallelGroupDoneEvent:
		d.logger.Info("parallel group done", "group", e.GroupIdx)
	case domain.MergeStartEvent:
		n := d.parallel.Active().CompleteAll()
		d.logger.Info("merge started", "forced", n)
	case domain.MergeDoneEvent:
		d.onMergeDone()
	case domain.ReasoningEvent:
		d.onReasoning(e)
	case domain.DeltaEvent:
		d.onDelta(e)
	case domain.ToolCallEvent:
		d.onToolCall(e)
	case domain.ToolOutputEvent:
		d.onToolOutput(e)
	case domain.ToolLogEvent:
		d.onToolLog(e)
	case domain.RunItemEvent:
		d.onRunItem(e)
	case domain.ExcelAgentEvent:
		d.onExcelAgent(e)
	case domain.DoneEvent:
		d.onDone(e)
	case domain.ErrorEvent:
		s.Total.Stop(d.clock.Now())
		return &domain.StreamError{Message: e.Message}
	case domain.AnalysisEvent:
		d.onAnalysis(e)
	case domain.WorkflowUpdateEvent:
		d.logger.Debug("workflow update", "bytes", len(e.Steps))
		d.publish(domain.EventWorkflowUpdated, nil)
	case domain.UnknownEvent:
		d.logger.Debug("unknown event type ignored", "type", e.Kind)
	default:
		d.logger.Debug("unhandled event", "type", ev.Type())
	}
	return nil
}

// Reject records a frame that could not be decoded. The stream continues.
func (d *Dispatcher) Reject(raw []byte, err error) {
	const maxLogged = 256
	text := string(raw)
	if len(text) > maxLogged {
		text = text[:maxLogged] + "..."
	}
	d.logger.Warn("malformed frame skipped", "frame", text, "error", err)
	d.publish(domain.EventFrameMalformed, nil)
}

// Finish ends the active session. It is the single cleanup path for every
// exit: success, user cancellation and failure. Running cards are completed
// without collapsing and the total timer is stopped. A cancelled session
// gets a system notice; a transport or stream error gets one error entry and
// one toast and is returned. Finish on an ended session is a no-op.
func (d *Dispatcher) Finish(err error) error {
	s := d.session
	if s == nil {
		return nil
	}
	cancelled := s.cancelled || errors.Is(err, domain.ErrUserCancelled) || errors.Is(err, context.Canceled)
	n := d.completeAll(false)
	s.Total.Stop(d.clock.Now())
	d.closeSession()

	elapsed := s.Total.Elapsed(d.clock.Now())
	switch {
	case cancelled:
		d.transcript.AddNotice(d.l10n.T("notice.cancelled"))
		d.logger.Info("stream session cancelled", "session", s.ID, "completed_cards", n, "elapsed", elapsed)
		d.publish(domain.EventStreamCancelled, nil)
		return nil
	case domain.IsSurfaced(err):
		msg := d.l10n.T("error.message", map[string]any{"message": err.Error()})
		d.transcript.AddError(msg)
		if d.toaster != nil {
			d.toaster.Toast(domain.ToastError, msg)
		}
		d.logger.Error("stream session failed", "session", s.ID, "error", err, "code", domain.ErrorCodeOf(err))
		d.publish(domain.EventStreamError, domain.StreamErrorPayload{Error: err.Error(), Code: domain.ErrorCodeOf(err)})
		return err
	case err != nil:
		d.logger.Warn("stream session ended with absorbed error", "session", s.ID, "error", err)
	}
	d.logger.Info("stream session completed", "session", s.ID, "events", s.events, "elapsed", elapsed)
	d.publish(domain.EventStreamCompleted, domain.StreamCompletedPayload{ElapsedMS: elapsed.Milliseconds(), Events: s.events})
	return nil
}

// Clear destroys the transcript and every card in it. Clearing is refused
// while a session is streaming.
func (d *Dispatcher) Clear() error {
	if d.session != nil {
		return domain.ErrBusy
	}
	d.endParallel()
	d.cards.Forget(d.transcript.Clear()...)
	d.buffers.Reset()
	d.last = nil
	d.publish(domain.EventHistoryCleared, nil)
	return nil
}

func (d *Dispatcher) closeSession() {
	for scope := range d.session.workflow {
		d.closeWorkflow(scope)
	}
	d.last = d.session
	d.session = nil
}

// route applies the routing predicate: content for an agent with a window
// in the active parallel session goes to that window, everything else to
// the main stream.
func (d *Dispatcher) route(agent string) (string, cards.Container) {
	if w := d.parallel.Route(agent); w != nil {
		return agent, w
	}
	return mainScope, d.transcript
}

func (d *Dispatcher) create(box cards.Container, kind domain.CardKind, title, icon string) *domain.Card {
	c := d.cards.Create(box, kind, title, icon, string(kind))
	d.session.cards = append(d.session.cards, c)
	return c
}

// closeNode closes the workflow node of a completed excel task card. It runs
// as the card manager's completion hook.
func (d *Dispatcher) closeNode(c *domain.Card) {
	if d.session == nil || c.Kind != domain.CardExcelTask {
		return
	}
	if id, ok := d.session.popNode(c.Agent, c); ok && d.workflow != nil {
		d.workflow.CompleteNode(id)
	}
}

// finalizeActive completes the active card of scope.
func (d *Dispatcher) finalizeActive(scope string) {
	if c := d.session.active(scope); c != nil {
		d.cards.Complete(c, false)
	}
	d.session.setActive(scope, nil)
}

// completeScope completes every running card owned by scope and forgets the
// scope's slots.
func (d *Dispatcher) completeScope(scope string, collapse bool) int {
	n := d.cards.CompleteOwned(scope, collapse)
	if d.session != nil {
		d.session.clearScope(scope)
	}
	return n
}

func (d *Dispatcher) completeAll(collapse bool) int {
	return d.cards.CompleteAll(collapse)
}

func (d *Dispatcher) closeWorkflow(scope string) {
	for _, node := range d.session.workflow[scope] {
		if d.workflow != nil {
			d.workflow.CompleteNode(node.id)
		}
	}
	delete(d.session.workflow, scope)
}

// after schedules fn on the loop. fn runs even after the session ended, so
// it must tolerate its card having been completed already.
func (d *Dispatcher) after(delay time.Duration, fn func()) {
	d.scheduler.After(delay, fn)
}

func (d *Dispatcher) renderMarkdown(s string) string {
	return cards.RenderBody(s, domain.ContentMarkdown, d.md, d.logger).Text
}

func (d *Dispatcher) publish(t domain.EventType, payload any) {
	if d.bus == nil {
		return
	}
	ev := domain.Event{Type: t, Timestamp: d.clock.Now()}
	if d.session != nil {
		ev.SessionID = d.session.ID
	} else if d.last != nil {
		ev.SessionID = d.last.ID
	}
	if payload != nil {
		ev.Payload = domain.MustPayload(payload)
	}
	d.bus.Publish(context.Background(), ev)
}

type immediateScheduler struct{}

func (immediateScheduler) After(_ time.Duration, fn func()) { fn() }

type keyLocalizer struct{}

func (keyLocalizer) T(key string, params ...map[string]any) string {
	if len(params) == 0 || len(params[0]) == 0 {
		return key
	}
	return fmt.Sprintf("%s %v", key, params[0])
}
