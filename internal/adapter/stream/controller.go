package stream

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"tracechat/internal/domain"
	"tracechat/internal/infra/tracer"
	"tracechat/internal/usecase/dispatch"
)

// ControllerDeps holds the collaborators of a Controller.
type ControllerDeps struct {
	Opener     Opener
	Dispatcher *dispatch.Dispatcher
	// Scheduler must be the scheduler the dispatcher was built with.
	Scheduler *LoopScheduler
	Logger    *slog.Logger
	// OnIdle runs exactly once when a Run returns, whatever the outcome.
	OnIdle func()
	// OnTick, when set, is called every TickRate while streaming.
	OnTick   func(elapsed time.Duration)
	TickRate time.Duration
}

// Controller drives one streaming request at a time from a single loop:
// frames, scheduled completions and cancellation are handled in turn, so
// dispatcher state is never touched concurrently.
type Controller struct {
	deps   ControllerDeps
	cancel chan struct{}
}

// NewController creates a controller.
func NewController(deps ControllerDeps) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Controller{deps: deps, cancel: make(chan struct{}, 1)}
}

// Cancel asks the running stream to stop. It is safe to call from any
// goroutine and is a no-op when nothing is streaming.
func (c *Controller) Cancel() {
	select {
	case c.cancel <- struct{}{}:
	default:
	}
}

// Run streams req to completion. It returns nil on success and on user
// cancellation, and the surfaced *domain.TransportError or
// *domain.StreamError otherwise. Run must not be called concurrently.
func (c *Controller) Run(ctx context.Context, req ChatRequest) error {
	if c.deps.OnIdle != nil {
		defer c.deps.OnIdle()
	}
	d := c.deps.Dispatcher

	// A cancel requested before this run belongs to no one.
	select {
	case <-c.cancel:
	default:
	}

	sess := StartSession(ctx, d, req.Query)
	stream, err := c.deps.Opener.Open(sess.Context(), req)
	if err != nil {
		return sess.End(err)
	}
	sess.Opened()

	var tick <-chan time.Time
	if c.deps.OnTick != nil && c.deps.TickRate > 0 {
		t := time.NewTicker(c.deps.TickRate)
		defer t.Stop()
		tick = t.C
	}

	frames := stream.Frames()
	for {
		select {
		case f, ok := <-frames:
			// Frames already queued when the user cancelled are never shown.
			if c.cancelRequested() {
				return c.abort(sess)
			}
			if !ok {
				return sess.End(stream.Err())
			}
			if err := Deliver(d, f); err != nil {
				return sess.End(err)
			}
		case fn := <-c.deps.Scheduler.C():
			fn()
		case <-c.cancel:
			return c.abort(sess)
		case <-ctx.Done():
			return c.abort(sess)
		case <-tick:
			c.deps.OnTick(d.Elapsed())
		}
	}
}

func (c *Controller) cancelRequested() bool {
	select {
	case <-c.cancel:
		return true
	default:
		return false
	}
}

// abort stops the read and finishes the session as cancelled without
// draining the frames still buffered.
func (c *Controller) abort(sess *Session) error {
	c.deps.Dispatcher.Cancel()
	return sess.End(domain.ErrUserCancelled)
}

// Session ties one dispatcher session to its abort handle and trace span.
// Loops that own the dispatcher start one per request and end it once.
type Session struct {
	ctx   context.Context
	abort context.CancelFunc
	span  trace.Span
	d     *dispatch.Dispatcher
	ended bool
}

// StartSession begins a dispatcher session for query. The returned
// session's context is cancelled when the user cancels or the session ends.
func StartSession(ctx context.Context, d *dispatch.Dispatcher, query string) *Session {
	ctx, span := tracer.StartSpan(ctx, "stream.session")
	ctx, abort := context.WithCancel(ctx)

	s := d.Begin(query)
	d.SetAbort(abort)
	span.SetAttributes(tracer.StringAttr("session.id", s.ID))
	return &Session{ctx: ctx, abort: abort, span: span, d: d}
}

// Context is the context the transport must read under.
func (s *Session) Context() context.Context { return s.ctx }

// Opened records that the transport accepted the request.
func (s *Session) Opened() { s.d.Opened() }

// End finishes the dispatcher session with the transport outcome err and
// returns the surfaced error, if any. Later calls return nil.
func (s *Session) End(err error) error {
	if s.ended {
		return nil
	}
	s.ended = true
	defer s.span.End()
	defer s.abort()

	d := s.d
	cur := d.Session()
	cancelled := cur != nil && cur.Cancelled()
	events := 0
	if cur != nil {
		events = cur.Events()
	}

	surfaced := d.Finish(err)

	s.span.SetAttributes(
		tracer.IntAttr("stream.events", events),
		tracer.BoolAttr("stream.cancelled", cancelled),
		tracer.DurationAttr("stream.elapsed_ms", d.Elapsed()),
	)
	if surfaced != nil {
		tracer.RecordError(s.span, surfaced)
	} else {
		tracer.SetOK(s.span)
	}
	return surfaced
}

// Close stops pending scheduled work.
func (c *Controller) Close() {
	c.deps.Scheduler.Stop()
}
