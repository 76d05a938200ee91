package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracechat/internal/adapter/i18n"
	"tracechat/internal/adapter/notify"
	"tracechat/internal/adapter/stream"
	"tracechat/internal/adapter/tui/components"
	"tracechat/internal/domain"
	"tracechat/internal/infra/config"
	"tracechat/internal/usecase/buffers"
	"tracechat/internal/usecase/cards"
	"tracechat/internal/usecase/dispatch"
	"tracechat/internal/usecase/parallel"
	"tracechat/internal/usecase/transcript"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

// scriptOpener serves the same scripted frames for every request.
type scriptOpener struct {
	frames []string
	err    error
	reqs   []stream.ChatRequest
}

func (o *scriptOpener) Open(ctx context.Context, req stream.ChatRequest) (*stream.Stream, error) {
	o.reqs = append(o.reqs, req)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUserCancelled, ctx.Err())
	}
	if o.err != nil {
		return nil, o.err
	}
	var sb strings.Builder
	for _, f := range o.frames {
		fmt.Fprintf(&sb, "data: %s\n\n", f)
	}
	return stream.NewStream(ctx, io.NopCloser(strings.NewReader(sb.String())), nil), nil
}

type harness struct {
	m      ChatModel
	opener *scriptOpener
	tr     *transcript.Transcript
	d      *dispatch.Dispatcher
	sched  *TickScheduler
	clock  *stepClock
}

func newHarness(t *testing.T, frames ...string) *harness {
	t.Helper()
	h := &harness{
		opener: &scriptOpener{frames: frames},
		tr:     transcript.New(),
		sched:  NewTickScheduler(),
		clock:  &stepClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
	}
	loc := i18n.MustNew("en")
	cm := cards.NewManager(cards.ManagerDeps{Clock: h.clock})
	pm := parallel.NewManager(nil, nil)
	h.d = dispatch.New(dispatch.Deps{
		Cards:      cm,
		Buffers:    buffers.New(),
		Parallel:   pm,
		Transcript: h.tr,
		Localizer:  loc,
		Scheduler:  h.sched,
		Clock:      h.clock,
	})
	h.m = NewChatModel(ChatModelDeps{
		Opener:     h.opener,
		Dispatcher: h.d,
		Scheduler:  h.sched,
		Cards:      cm,
		Transcript: h.tr,
		Parallel:   pm,
		Localizer:  loc,
		Backend:    config.Defaults().Backend,
		Clock:      h.clock,
	})
	h.update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return h
}

func (h *harness) update(msg tea.Msg) tea.Cmd {
	model, cmd := h.m.Update(msg)
	h.m = model.(ChatModel)
	return cmd
}

func (h *harness) key(k tea.KeyType) tea.Cmd { return h.update(tea.KeyMsg{Type: k}) }

func (h *harness) runes(s string) tea.Cmd {
	return h.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) submit(text string) { h.update(components.InputSubmitMsg{Value: text}) }

// ask submits query and drives its stream to the end the way the program
// loop would, then fires every scheduled completion.
func (h *harness) ask(t *testing.T, query string) {
	t.Helper()
	h.submit(query)
	require.NotNil(t, h.m.session, "request not started")
	h.update(openStreamCmd(h.m.session.Context(), h.opener, stream.NewChatRequest(query, h.m.backend), h.m.gen)())
	for h.m.stream != nil {
		h.update(waitFrameCmd(h.m.stream, h.m.gen)())
	}
	h.flush()
}

func (h *harness) flush() {
	h.sched.Cmds()
	for id := uint64(1); id <= h.sched.next; id++ {
		h.update(ScheduledMsg{ID: id})
	}
}

func (h *harness) notices() []string {
	var out []string
	for _, e := range h.tr.Entries() {
		if e.Kind == transcript.EntryNotice {
			out = append(out, e.Text)
		}
	}
	return out
}

func (h *harness) lastNotice() string {
	n := h.notices()
	if len(n) == 0 {
		return ""
	}
	return n[len(n)-1]
}

func TestAskStreamsToCompletion(t *testing.T) {
	h := newHarness(t,
		`{"type":"start","session_id":"b-1"}`,
		`{"type":"reasoning","content":"think"}`,
		`{"type":"tool_output","output":"rows: 3"}`,
		`{"type":"done","final_output":"Answer"}`,
		`[DONE]`,
	)

	h.ask(t, "how many rows?")

	assert.False(t, h.d.Streaming())
	assert.Nil(t, h.m.session)
	assert.Equal(t, "Ready", h.m.statusBar.State)
	assert.Equal(t, 0, h.sched.Pending())
	assert.Empty(t, h.m.deps.Cards.Open())

	var finals int
	for _, e := range h.tr.Entries() {
		if e.Kind == transcript.EntryFinal {
			finals++
		}
	}
	assert.Equal(t, 1, finals)
	assert.Contains(t, h.m.chatView.Content(), "Answer")
	assert.Contains(t, h.m.chatView.Content(), "how many rows?")
	require.Len(t, h.opener.reqs, 1)
	assert.Equal(t, "how many rows?", h.opener.reqs[0].Query)
}

func TestAskErrorGetsRecoveryHint(t *testing.T) {
	h := newHarness(t)
	h.opener.err = &domain.TransportError{StatusCode: 503, Err: fmt.Errorf("service unavailable")}

	h.ask(t, "hello")

	assert.False(t, h.d.Streaming())
	content := h.m.chatView.Content()
	assert.Contains(t, content, "Backend Error")
	assert.Contains(t, content, "Check the backend logs")
	assert.Equal(t, "Ready", h.m.statusBar.State)
}

func TestStreamErrorFrameSurfaces(t *testing.T) {
	h := newHarness(t,
		`{"type":"reasoning","content":"think"}`,
		`{"type":"error","error":"quota exceeded"}`,
	)

	h.ask(t, "hello")

	content := h.m.chatView.Content()
	assert.Contains(t, content, "quota exceeded")
	assert.Contains(t, content, "Agent Error")
	assert.Empty(t, h.m.deps.Cards.Open())
}

func TestSubmitWhileStreamingIsRefused(t *testing.T) {
	h := newHarness(t, `{"type":"done","final_output":"ok"}`)

	h.submit("first")
	require.True(t, h.d.Streaming())
	gen := h.m.gen

	h.submit("second")
	assert.Equal(t, gen, h.m.gen)
	assert.Equal(t, "A reply is still streaming. Press Ctrl+C to stop it first.", h.lastNotice())
}

func TestCtrlCCancelsThenQuits(t *testing.T) {
	h := newHarness(t, `{"type":"reasoning","content":"think"}`)

	h.submit("first")
	require.True(t, h.d.Streaming())
	ctx := h.m.session.Context()

	cmd := h.key(tea.KeyCtrlC)
	assert.Nil(t, cmd)
	assert.False(t, h.m.quitting)
	assert.Error(t, ctx.Err())

	// The pending open observes the cancelled context and ends the session.
	h.update(openStreamCmd(ctx, h.opener, stream.ChatRequest{}, h.m.gen)())
	assert.False(t, h.d.Streaming())
	assert.Equal(t, "Generation stopped by user.", h.lastNotice())
	assert.NotContains(t, h.m.chatView.Content(), "Stopped")

	cmd = h.key(tea.KeyCtrlC)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.True(t, h.m.quitting)
}

func TestFramesQueuedBeforeCtrlCAreNotShown(t *testing.T) {
	h := newHarness(t,
		`{"type":"reasoning","content":"think"}`,
		`{"type":"tool_call","tool_name":"search","arguments":"{}"}`,
		`{"type":"done","final_output":"late answer"}`,
	)

	h.submit("first")
	// The body was already buffered when the user pressed Ctrl+C.
	h.update(openStreamCmd(context.Background(), h.opener, stream.ChatRequest{}, h.m.gen)())
	require.NotNil(t, h.m.stream)
	h.update(waitFrameCmd(h.m.stream, h.m.gen)())
	require.Len(t, h.tr.Cards(), 1)

	h.key(tea.KeyCtrlC)
	for h.m.stream != nil {
		h.update(waitFrameCmd(h.m.stream, h.m.gen)())
	}

	assert.False(t, h.d.Streaming())
	assert.Len(t, h.tr.Cards(), 1)
	assert.Empty(t, h.m.deps.Cards.Open())
	for _, e := range h.tr.Entries() {
		assert.NotEqual(t, transcript.EntryFinal, e.Kind)
	}
	assert.Equal(t, []string{"Generation stopped by user."}, h.notices())
}

func TestStaleStreamMessagesAreIgnored(t *testing.T) {
	h := newHarness(t)

	h.submit("first")
	stale := h.m.gen - 1
	h.update(StreamOpenedMsg{Err: &domain.TransportError{StatusCode: 500}, Gen: stale})
	h.update(StreamClosedMsg{Gen: stale})

	assert.True(t, h.d.Streaming())
	for _, e := range h.tr.Entries() {
		assert.NotEqual(t, transcript.EntryError, e.Kind)
	}
}

func TestSlashCommandsShapeTheNextRequest(t *testing.T) {
	h := newHarness(t, `{"type":"done","final_output":"ok"}`, `[DONE]`)

	h.submit("/kb sales")
	assert.Equal(t, "Knowledge base: sales", h.lastNotice())
	h.submit("/files a,b c")
	assert.Equal(t, "Files: a, b, c", h.lastNotice())
	h.submit("/memory maybe")
	assert.Equal(t, "Usage: /memory on|off", h.lastNotice())
	h.submit("/memory on")
	assert.Equal(t, "Memory: on", h.lastNotice())
	assert.Contains(t, h.m.statusBar.Info, "kb:sales")

	h.ask(t, "q")

	require.Len(t, h.opener.reqs, 1)
	req := h.opener.reqs[0]
	assert.Equal(t, "sales", req.KBID)
	assert.Equal(t, []string{"a", "b", "c"}, req.FileIDs)
	assert.True(t, req.UseMemory)

	h.submit("/kb")
	assert.Equal(t, "Knowledge base cleared.", h.lastNotice())
	assert.Empty(t, h.m.backend.KBID)
}

func TestSlashCommandsIdle(t *testing.T) {
	h := newHarness(t)

	h.submit("/cancel")
	assert.Equal(t, "No active request to cancel.", h.lastNotice())

	h.submit("/bogus")
	assert.Equal(t, "Unknown command: /bogus. Type /help for available commands.", h.lastNotice())

	h.submit("/clear")
	require.Len(t, h.tr.Entries(), 1)
	assert.Equal(t, "History cleared.", h.lastNotice())

	cmd := h.update(components.InputSubmitMsg{Value: "/quit"})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestClearIsRefusedWhileStreaming(t *testing.T) {
	h := newHarness(t)

	h.submit("first")
	h.submit("/clear")

	assert.Equal(t, "A reply is still streaming. Press Ctrl+C to stop it first.", h.lastNotice())
	assert.Equal(t, transcript.EntryUser, h.tr.Entries()[0].Kind)
}

func TestParallelFocusAndViewMode(t *testing.T) {
	h := newHarness(t,
		`{"type":"parallel_group.start","group_idx":0,"tasks":[{"agent_name":"A","task":"one"},{"agent_name":"B","task":"two"},{"agent_name":"C","task":"three"}]}`,
		`{"type":"reasoning","agent_name":"B","content":"b thinks"}`,
	)

	h.ask(t, "fan out")

	p := h.tr.Parallel()
	require.NotNil(t, p)
	assert.Equal(t, "A", p.Focused())
	assert.Contains(t, h.m.statusBar.Info, "3 agents · grid view")

	h.key(tea.KeyCtrlN)
	assert.Equal(t, "B", p.Focused())

	h.submit("/tab")
	assert.Equal(t, parallel.ViewTab, p.Mode())
	assert.Equal(t, "Parallel view: tab", h.lastNotice())
	assert.Contains(t, h.m.chatView.Content(), "b thinks")

	h.key(tea.KeyCtrlP)
	assert.Equal(t, "A", p.Focused())
	assert.NotContains(t, h.m.chatView.Content(), "b thinks")
}

func TestScrollModeSelectsAndExpandsCards(t *testing.T) {
	h := newHarness(t, `{"type":"reasoning","content":"step one"}`)
	h.ask(t, "think")

	all := h.tr.Cards()
	require.Len(t, all, 1)
	card := all[0]
	require.True(t, card.Expanded)

	h.key(tea.KeyEsc)
	require.True(t, h.m.vimMode)

	h.key(tea.KeyTab)
	assert.Same(t, card, h.m.selected)

	h.key(tea.KeyEnter)
	assert.False(t, card.Expanded)
	assert.NotContains(t, h.m.chatView.Content(), "step one")

	h.runes("e")
	require.True(t, h.m.modal.Visible)
	assert.Same(t, card, h.m.modal.Card())
	h.key(tea.KeyEsc)
	assert.False(t, h.m.modal.Visible)

	h.runes("i")
	assert.False(t, h.m.vimMode)
}

func TestBusToastShowsAndExpires(t *testing.T) {
	h := newHarness(t)

	ev := domain.Event{
		Type:      domain.EventToast,
		Timestamp: h.clock.t,
		Payload:   domain.MustPayload(map[string]string{"level": "error", "message": "Error: boom"}),
	}
	toast, ok := notify.Decode(ev)
	require.True(t, ok)

	cmd := h.update(BusEventMsg{Event: ev})
	assert.NotNil(t, cmd)
	assert.Equal(t, toast.Message, h.m.statusBar.Toast)
	assert.True(t, h.m.ticking)

	h.clock.t = h.clock.t.Add(toastTTL + time.Second)
	cmd = h.update(ClockTickMsg{})
	assert.Nil(t, cmd)
	assert.Empty(t, h.m.statusBar.Toast)
	assert.False(t, h.m.ticking)
}

func TestMouseLeakFilter(t *testing.T) {
	assert.True(t, isMouseEscapeLeak("<65;38;21M"))
	assert.True(t, isMouseEscapeLeak("[M"))
	assert.True(t, isMouseEscapeLeak("[12;4;9M"))
	assert.False(t, isMouseEscapeLeak("hello"))
	assert.False(t, isMouseEscapeLeak("<a;b;cM"))
}
