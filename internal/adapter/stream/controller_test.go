package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracechat/internal/adapter/i18n"
	"tracechat/internal/domain"
	"tracechat/internal/usecase/buffers"
	"tracechat/internal/usecase/cards"
	"tracechat/internal/usecase/dispatch"
	"tracechat/internal/usecase/parallel"
	"tracechat/internal/usecase/transcript"
)

type plainMarkdown struct{}

func (plainMarkdown) Render(s string) string { return "<md>" + s + "</md>" }

type rig struct {
	ctrl  *Controller
	d     *dispatch.Dispatcher
	tr    *transcript.Transcript
	idle  int
	hook  func(*domain.Card)
	sched *LoopScheduler
}

func newRig(t *testing.T, opener Opener) *rig {
	t.Helper()
	r := &rig{tr: transcript.New(), sched: NewLoopScheduler()}
	cm := cards.NewManager(cards.ManagerDeps{
		Markdown: plainMarkdown{},
		OnChange: func(c *domain.Card) {
			if r.hook != nil {
				r.hook(c)
			}
		},
	})
	r.d = dispatch.New(dispatch.Deps{
		Cards:      cm,
		Buffers:    buffers.New(),
		Parallel:   parallel.NewManager(nil, nil),
		Transcript: r.tr,
		Markdown:   plainMarkdown{},
		Localizer:  i18n.MustNew("en"),
		Scheduler:  r.sched,
		Logger:     newTestLogger(),
		Config:     dispatch.Config{OneShotFlash: 20 * time.Millisecond, OneShotBrief: 10 * time.Millisecond},
	})
	r.ctrl = NewController(ControllerDeps{
		Opener:     opener,
		Dispatcher: r.d,
		Scheduler:  r.sched,
		Logger:     newTestLogger(),
		OnIdle:     func() { r.idle++ },
	})
	t.Cleanup(r.ctrl.Close)
	return r
}

func (r *rig) entries(kind transcript.EntryKind) []*transcript.Entry {
	var out []*transcript.Entry
	for _, e := range r.tr.Entries() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func clientFor(srv *httptest.Server) *Client {
	return NewClient(backendConfig(srv.URL), newTestLogger())
}

func TestControllerRunsToCompletion(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		`{"type":"start","session_id":"b-1"}`,
		`{"type":"reasoning","content":"think"}`,
		`{"type":"tool_output","output":"rows: 3"}`,
		`{"type":"done","final_output":"**Answer**"}`,
		"[DONE]",
	))
	defer srv.Close()
	r := newRig(t, clientFor(srv))

	err := r.ctrl.Run(context.Background(), ChatRequest{Query: "how many?"})
	require.NoError(t, err)

	assert.Equal(t, 1, r.idle)
	assert.False(t, r.d.Streaming())
	require.NotNil(t, r.d.LastSession())
	assert.Equal(t, "b-1", r.d.LastSession().BackendSessionID)

	require.Len(t, r.entries(transcript.EntryUser), 1)
	finals := r.entries(transcript.EntryFinal)
	require.Len(t, finals, 1)
	assert.Equal(t, "<md>**Answer**</md>", finals[0].Rendered)
	for _, c := range r.tr.Cards() {
		assert.False(t, c.Running(), "card %s left running", c.Title)
	}
}

func TestControllerSkipsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		`{"type":"reasoning","content":"a"}`,
		`{broken`,
		`{"type":"reasoning","content":"b"}`,
		"[DONE]",
	))
	defer srv.Close()
	r := newRig(t, clientFor(srv))

	require.NoError(t, r.ctrl.Run(context.Background(), ChatRequest{Query: "q"}))
	require.Len(t, r.tr.Cards(), 1)
	assert.Equal(t, "ab", r.tr.Cards()[0].Content)
}

func TestControllerErrorEventIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		`{"type":"reasoning","content":"a"}`,
		`{"type":"error","error":"quota exceeded"}`,
		`{"type":"reasoning","content":"never"}`,
	))
	defer srv.Close()
	r := newRig(t, clientFor(srv))

	err := r.ctrl.Run(context.Background(), ChatRequest{Query: "q"})
	var se *domain.StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "quota exceeded", se.Message)

	errs := r.entries(transcript.EntryError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Error: quota exceeded", errs[0].Text)
	assert.Equal(t, "a", r.tr.Cards()[0].Content)
	assert.Equal(t, 1, r.idle)
}

func TestControllerTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()
	r := newRig(t, clientFor(srv))

	err := r.ctrl.Run(context.Background(), ChatRequest{Query: "q"})
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)

	errs := r.entries(transcript.EntryError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Text, "upstream down")
	assert.Equal(t, 1, r.idle)
	assert.False(t, r.d.Streaming())
}

// holdingHandler writes frames and then keeps the response open until the
// client goes away.
func holdingHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}
}

func TestControllerCancel(t *testing.T) {
	srv := httptest.NewServer(holdingHandler(
		`{"type":"reasoning","content":"a"}`,
		`{"type":"tool_call","tool_name":"search","arguments":"{}"}`,
	))
	defer srv.Close()
	r := newRig(t, clientFor(srv))

	seen := 0
	r.hook = func(c *domain.Card) {
		if c.Running() {
			seen++
		}
		if seen == 2 {
			r.ctrl.Cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- r.ctrl.Run(context.Background(), ChatRequest{Query: "q"}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	notices := r.entries(transcript.EntryNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, "Generation stopped by user.", notices[0].Text)
	assert.Empty(t, r.entries(transcript.EntryError))
	for _, c := range r.tr.Cards() {
		assert.False(t, c.Running())
	}
	require.NotNil(t, r.d.LastSession())
	assert.True(t, r.d.LastSession().Cancelled())
	assert.Equal(t, 1, r.idle)
}

type openerFunc func(ctx context.Context, req ChatRequest) (*Stream, error)

func (f openerFunc) Open(ctx context.Context, req ChatRequest) (*Stream, error) { return f(ctx, req) }

func TestControllerDropsFramesQueuedBeforeCancel(t *testing.T) {
	var r *rig
	r = newRig(t, openerFunc(func(ctx context.Context, _ ChatRequest) (*Stream, error) {
		r.ctrl.Cancel()
		body := "data: {\"type\":\"reasoning\",\"content\":\"late\"}\n\n" +
			"data: {\"type\":\"done\",\"final_output\":\"late answer\"}\n\n"
		return NewStream(ctx, io.NopCloser(strings.NewReader(body)), newTestLogger()), nil
	}))

	require.NoError(t, r.ctrl.Run(context.Background(), ChatRequest{Query: "q"}))
	assert.Empty(t, r.tr.Cards())
	assert.Empty(t, r.entries(transcript.EntryFinal))
	require.Len(t, r.entries(transcript.EntryNotice), 1)
	require.NotNil(t, r.d.LastSession())
	assert.True(t, r.d.LastSession().Cancelled())
	assert.Equal(t, 0, r.d.LastSession().Events())
	assert.Equal(t, 1, r.idle)
}

func TestControllerParentContextCancel(t *testing.T) {
	srv := httptest.NewServer(holdingHandler(`{"type":"reasoning","content":"a"}`))
	defer srv.Close()
	r := newRig(t, clientFor(srv))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.hook = func(*domain.Card) { cancel() }

	done := make(chan error, 1)
	go func() { done <- r.ctrl.Run(ctx, ChatRequest{Query: "q"}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after context cancel")
	}
	require.Len(t, r.entries(transcript.EntryNotice), 1)
}

func TestControllerStaleCancelIgnored(t *testing.T) {
	srv := httptest.NewServer(sseHandler(`{"type":"done","final_output":"ok"}`, "[DONE]"))
	defer srv.Close()
	r := newRig(t, clientFor(srv))

	r.ctrl.Cancel()
	require.NoError(t, r.ctrl.Run(context.Background(), ChatRequest{Query: "q"}))
	assert.Empty(t, r.entries(transcript.EntryNotice))
	assert.Len(t, r.entries(transcript.EntryFinal), 1)
}

func TestControllerRunsScheduledCompletions(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"tool_output\",\"output\":\"x\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()
	r := newRig(t, clientFor(srv))

	completed := make(chan struct{})
	var once bool
	r.hook = func(c *domain.Card) {
		if !c.Running() && !once {
			once = true
			close(completed)
			close(release)
		}
	}

	done := make(chan error, 1)
	go func() { done <- r.ctrl.Run(context.Background(), ChatRequest{Query: "q"}) }()

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("one-shot card was never completed by the loop")
	}
	require.NoError(t, <-done)
}

func TestSessionEndsOnce(t *testing.T) {
	r := newRig(t, nil)
	sess := StartSession(context.Background(), r.d, "q")
	require.True(t, r.d.Streaming())

	err := sess.End(&domain.StreamError{Message: "bad"})
	require.Error(t, err)
	assert.Error(t, sess.Context().Err(), "ending aborts the transport context")
	assert.NoError(t, sess.End(&domain.StreamError{Message: "again"}))
	assert.Len(t, r.entries(transcript.EntryError), 1)
}
