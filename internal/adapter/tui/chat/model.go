package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tracechat/internal/adapter/markdown"
	"tracechat/internal/adapter/notify"
	"tracechat/internal/adapter/stream"
	"tracechat/internal/adapter/tui/components"
	"tracechat/internal/adapter/tui/theme"
	"tracechat/internal/adapter/tui/uxerror"
	"tracechat/internal/adapter/workflow"
	"tracechat/internal/domain"
	"tracechat/internal/infra/config"
	"tracechat/internal/usecase/cards"
	"tracechat/internal/usecase/dispatch"
	"tracechat/internal/usecase/eventbus"
	"tracechat/internal/usecase/parallel"
	"tracechat/internal/usecase/transcript"
)

const (
	// toastTTL is how long a toast stays in the status bar.
	toastTTL = 4 * time.Second
	// eventSeed is how many past bus events seed the event log.
	eventSeed = 100
)

// ChatModelDeps are dependencies injected into the chat model. The
// dispatcher must have been built with Scheduler, Cards, Transcript and
// Parallel; the model drives all of them from Update.
type ChatModelDeps struct {
	Opener     stream.Opener
	Dispatcher *dispatch.Dispatcher
	Scheduler  *TickScheduler
	Cards      *cards.Manager
	Transcript *transcript.Transcript
	Parallel   *parallel.Manager
	Workflow   *workflow.Tree     // optional
	Markdown   *markdown.Renderer // optional; resized with the viewport
	Localizer  domain.Localizer
	Backend    config.BackendConfig
	Bus        *eventbus.Bus // optional; seeds the event log
	Clock      domain.Clock
	Logger     *slog.Logger
	// Context is the parent of every request context.
	Context    context.Context
	TickRate   time.Duration
	MaxEntries int
	AgentName  string
}

// ChatModel is the root Bubble Tea model for the chat TUI.
type ChatModel struct {
	deps ChatModelDeps

	// Sub-models
	chatView  components.ChatViewModel
	view      components.TranscriptView
	input     components.InputAreaModel
	statusBar components.StatusBarModel
	tabBar    components.TabBarModel
	events    components.EventStreamModel
	split     components.SplitPaneModel
	spinner   spinner.Model
	searchBar components.SearchBarModel
	modal     components.ModalModel

	// Request lifecycle: gen is incremented on every new request.
	// Stale stream messages with an older gen are discarded.
	gen     uint64
	session *stream.Session
	stream  *stream.Stream

	backend  config.BackendConfig
	selected *domain.Card
	toast    notify.Toast
	ticking  bool
	width    int
	height   int
	quitting bool
	vimMode  bool // true when input is blurred and vim keys are active
}

// NewChatModel creates the root chat model.
func NewChatModel(deps ChatModelDeps) ChatModel {
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	if deps.TickRate <= 0 {
		deps.TickRate = 100 * time.Millisecond
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	agentName := deps.AgentName
	if agentName == "" {
		agentName = theme.SymbolBot
	}

	sb := components.NewStatusBar()
	sb.Hints = defaultHints()

	view := components.NewTranscriptView(deps.Localizer)
	view.MaxEntries = deps.MaxEntries

	// Set up input area with autocomplete for slash commands.
	inputArea := components.NewInputArea(deps.Localizer.T("placeholder"), deps.Localizer.T("placeholder.busy"))
	inputArea.Autocomplete = components.NewAutocomplete(commandDefs())

	events := components.NewEventStream()
	events.Empty = deps.Localizer.T("eventlog.empty")
	if deps.Bus != nil {
		for _, ev := range deps.Bus.Recent(eventSeed) {
			events.AddEvent(ev)
		}
	}

	m := ChatModel{
		deps:      deps,
		chatView:  components.NewChatView(),
		view:      view,
		input:     inputArea,
		statusBar: sb,
		tabBar:    components.NewTabBar([]components.Tab{{ID: "main", Label: agentName}}),
		events:    events,
		split:     components.NewSplitPane(0.68),
		spinner:   s,
		searchBar: components.NewSearchBar(),
		modal:     components.NewModal(),
		backend:   deps.Backend,
	}
	m.refresh()
	return m
}

// Init initializes sub-models.
func (m ChatModel) Init() tea.Cmd {
	return nil
}

// Update handles all incoming messages.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		if m.modal.Visible {
			m.modal.SetSize(m.width, m.height)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case components.InputSubmitMsg:
		return m.handleSubmit(msg.Value)

	case StreamOpenedMsg:
		return m.handleOpened(msg)

	case FrameMsg:
		return m.handleFrame(msg)

	case StreamClosedMsg:
		if msg.Gen != m.gen || m.stream == nil {
			return m, nil
		}
		return m.endSession(m.stream.Err())

	case ScheduledMsg:
		if m.deps.Scheduler.Run(msg.ID) {
			m.refresh()
		}
		return m, tea.Batch(m.deps.Scheduler.Cmds()...)

	case ClockTickMsg:
		return m.handleClockTick()

	case BusEventMsg:
		m.events.AddEvent(msg.Event)
		if toast, ok := notify.Decode(msg.Event); ok {
			m.toast = toast
			m.refreshStatus()
			return m, m.startTicking()
		}
		return m, nil

	case QuitMsg:
		m.quit()
		return m, tea.Quit

	case spinner.TickMsg:
		if !m.deps.Dispatcher.Streaming() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshStatus()
		cmds = append(cmds, cmd)
	}

	// Update sub-models (filter mouse events from reaching the input).
	if !m.vimMode {
		if _, isMouse := msg.(tea.MouseMsg); !isMouse {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.chatView, cmd = m.chatView.Update(msg)
	cmds = append(cmds, cmd)

	if m.split.Visible {
		m.events, cmd = m.events.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the entire chat UI.
func (m ChatModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 {
		return "  Initializing..."
	}

	// If modal is open, render it as a full overlay.
	if m.modal.Visible {
		return m.modal.View()
	}

	mainContent := m.split.Render(m.chatView.View(), m.sidePanel())

	parts := []string{m.tabBar.View(), mainContent}
	if searchView := m.searchBar.View(); searchView != "" {
		parts = append(parts, searchView)
	}
	parts = append(parts, components.Divider(m.width), m.input.View(), m.statusBar.View())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m ChatModel) sidePanel() string {
	if !m.split.Visible {
		return ""
	}
	loc := m.deps.Localizer
	panel := theme.Bold.Render(" "+loc.T("eventlog.title")) + "\n" + m.events.View()
	if m.deps.Workflow != nil {
		if nodes := m.deps.Workflow.Flatten(); len(nodes) > 0 {
			panel += "\n" + theme.Bold.Render(" "+loc.T("workflow.title")) + "\n" +
				components.RenderWorkflow(nodes, m.deps.Clock.Now(), m.split.RightWidth())
		}
	}
	return panel
}

// layout recalculates sizes for all sub-models.
func (m *ChatModel) layout() {
	tabBarH := 1
	inputH := 3
	statusH := 1
	dividerH := 1
	searchBarH := 0
	if m.searchBar.Mode != components.SearchInactive {
		searchBarH = 1
	}
	contentH := m.height - tabBarH - inputH - statusH - dividerH - searchBarH
	if contentH < 5 {
		contentH = 5
	}

	m.tabBar.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)
	m.searchBar.SetWidth(m.width)
	m.split.SetSize(m.width, contentH)

	leftW := m.split.LeftWidth()
	m.chatView.SetSize(leftW, contentH)
	m.view.SetWidth(leftW)
	m.input.SetWidth(m.width)
	if m.deps.Markdown != nil {
		m.deps.Markdown.SetWidth(components.ContentWidth(leftW) - 2)
	}

	if m.split.Visible {
		// Title line plus room for the task tree below the log.
		m.events.SetSize(m.split.RightWidth(), contentH*2/3-1)
	}
}

// refresh redraws the transcript and status bar from the current state.
func (m *ChatModel) refresh() {
	now := m.deps.Clock.Now()
	if m.selected != nil && !m.selectable(m.selected) {
		m.selected = nil
	}
	m.chatView.SetContent(m.view.Render(m.deps.Transcript.Entries(), now, m.selected))
	m.modal.Refresh(now)
	m.tabBar.Tabs[0].Badge = len(m.deps.Cards.Open())
	m.refreshStatus()
}

func (m *ChatModel) refreshStatus() {
	loc := m.deps.Localizer
	d := m.deps.Dispatcher

	m.statusBar.Streaming = d.Streaming()
	m.input.SetBusy(d.Streaming())
	if d.Streaming() {
		m.statusBar.State = m.spinner.View() + " " + loc.T("status.streaming", map[string]any{
			"elapsed": domain.FormatElapsed(d.Elapsed()),
		})
	} else {
		m.statusBar.State = loc.T("status.idle")
	}

	var info []string
	if p := m.deps.Transcript.Parallel(); p != nil {
		info = append(info, loc.T("status.parallel", map[string]any{"count": p.Len(), "mode": string(p.Mode())}))
	}
	if m.backend.KBID != "" {
		info = append(info, "kb:"+m.backend.KBID)
	}
	if n := len(m.backend.FileIDs); n > 0 {
		info = append(info, "files:"+strings.Join(m.backend.FileIDs, ","))
	}
	if m.backend.UseMemory {
		info = append(info, "memory")
	}
	m.statusBar.Info = info

	m.statusBar.Toast, m.statusBar.ToastLvl = "", ""
	if m.toast.Message != "" {
		m.statusBar.Toast = m.toast.Message
		m.statusBar.ToastLvl = m.toast.Level
	}
}

// handleSubmit processes user input submission.
func (m ChatModel) handleSubmit(value string) (tea.Model, tea.Cmd) {
	// Check for slash commands.
	if cmd, args, ok := components.ParseSlashCommand(value); ok {
		return m.handleSlashCommand(cmd, args)
	}

	d := m.deps.Dispatcher
	if d.Streaming() {
		m.notice(m.deps.Localizer.T("notice.busy"))
		return m, nil
	}

	req := stream.NewChatRequest(value, m.backend)

	// Bump generation so stale stream messages are discarded.
	m.gen++
	m.selected = nil
	m.view.ClearHints()
	m.session = stream.StartSession(m.deps.Context, d, value)
	m.chatView.GotoBottom()
	m.deps.Logger.Debug("request submitted", "gen", m.gen, "kb_id", req.KBID, "files", len(req.FileIDs))
	m.refresh()

	return m, tea.Batch(
		openStreamCmd(m.session.Context(), m.deps.Opener, req, m.gen),
		m.spinner.Tick,
		m.startTicking(),
	)
}

func (m ChatModel) handleOpened(msg StreamOpenedMsg) (tea.Model, tea.Cmd) {
	// Discard results from a stale request.
	if msg.Gen != m.gen || m.session == nil {
		return m, nil
	}
	if msg.Err != nil {
		return m.endSession(msg.Err)
	}
	m.session.Opened()
	m.stream = msg.Stream
	m.refresh()
	return m, waitFrameCmd(m.stream, m.gen)
}

func (m ChatModel) handleFrame(msg FrameMsg) (tea.Model, tea.Cmd) {
	if msg.Gen != m.gen || m.stream == nil {
		return m, nil
	}
	if s := m.deps.Dispatcher.Session(); s != nil && s.Cancelled() {
		return m.endSession(domain.ErrUserCancelled)
	}
	if err := stream.Deliver(m.deps.Dispatcher, msg.Frame); err != nil {
		return m.endSession(err)
	}
	m.refresh()
	cmds := append(m.deps.Scheduler.Cmds(), waitFrameCmd(m.stream, m.gen))
	return m, tea.Batch(cmds...)
}

// endSession finishes the active request with the transport outcome err.
func (m ChatModel) endSession(err error) (tea.Model, tea.Cmd) {
	if m.session == nil {
		return m, nil
	}
	surfaced := m.session.End(err)
	m.session, m.stream = nil, nil
	if surfaced != nil {
		m.attachHint(surfaced)
	}
	m.refresh()
	return m, tea.Batch(m.deps.Scheduler.Cmds()...)
}

// attachHint adds recovery suggestions to the newest error entry.
func (m *ChatModel) attachHint(err error) {
	entries := m.deps.Transcript.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == transcript.EntryError {
			m.view.SetHint(entries[i], uxerror.Humanize(err))
			return
		}
	}
}

func (m ChatModel) handleClockTick() (tea.Model, tea.Cmd) {
	now := m.deps.Clock.Now()
	if m.toast.Message != "" && m.toast.Expired(now, toastTTL) {
		m.toast = notify.Toast{}
	}
	m.refresh()
	if !m.needsClock() {
		m.ticking = false
		return m, nil
	}
	return m, clockTickCmd(m.deps.TickRate)
}

func (m ChatModel) needsClock() bool {
	if m.deps.Dispatcher.Streaming() || m.toast.Message != "" {
		return true
	}
	return m.split.Visible && m.deps.Workflow != nil && m.deps.Workflow.Running() > 0
}

// startTicking starts the redraw clock unless it is already running.
func (m *ChatModel) startTicking() tea.Cmd {
	if m.ticking {
		return nil
	}
	m.ticking = true
	return clockTickCmd(m.deps.TickRate)
}

func (m *ChatModel) notice(text string) {
	m.deps.Transcript.AddNotice(text)
	m.refresh()
}

// quit aborts the active request before the program exits.
func (m *ChatModel) quit() {
	m.quitting = true
	if m.session != nil {
		m.deps.Dispatcher.Cancel()
		m.session.End(nil)
		m.session, m.stream = nil, nil
	}
}

// selectableCards lists the cards Tab cycles through: main-stream cards,
// then the cards of the parallel windows.
func (m ChatModel) selectableCards() []*domain.Card {
	out := m.deps.Transcript.Cards()
	return append(out, m.deps.Transcript.Parallel().Cards()...)
}

func (m ChatModel) selectable(card *domain.Card) bool {
	for _, c := range m.selectableCards() {
		if c == card {
			return true
		}
	}
	return false
}

// selectCard moves the selection step cards along, starting from the newest
// card when nothing is selected.
func (m *ChatModel) selectCard(step int) {
	all := m.selectableCards()
	if len(all) == 0 {
		m.selected = nil
		return
	}
	idx := -1
	for i, c := range all {
		if c == m.selected {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.selected = all[len(all)-1]
	} else {
		m.selected = all[((idx+step)%len(all)+len(all))%len(all)]
	}
	m.refresh()
}

// focusedCard is the card Ctrl+E opens: the selection, else the newest card.
func (m ChatModel) focusedCard() *domain.Card {
	if m.selected != nil {
		return m.selected
	}
	all := m.selectableCards()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (m *ChatModel) openCard() {
	card := m.focusedCard()
	if card == nil {
		return
	}
	m.modal.SetSize(m.width, m.height)
	m.modal.OpenCard(card, m.deps.Clock.Now())
}

func (m *ChatModel) exitScrollMode() {
	m.vimMode = false
	m.input.SetEnabled(true)
	m.statusBar.Hints = defaultHints()
}

func defaultHints() []components.KeyHint {
	return []components.KeyHint{
		{Key: "Enter", Desc: "Send"},
		{Key: "Esc", Desc: "Scroll"},
		{Key: "Ctrl+E", Desc: "Open card"},
		{Key: "Ctrl+T", Desc: "Events"},
		{Key: "Ctrl+C", Desc: "Stop/Quit"},
	}
}

func vimHints() []components.KeyHint {
	return []components.KeyHint{
		{Key: "j/k", Desc: "Scroll"},
		{Key: "Tab", Desc: "Select card"},
		{Key: "Enter", Desc: "Expand"},
		{Key: "/", Desc: "Search"},
		{Key: "i", Desc: "Input"},
	}
}
