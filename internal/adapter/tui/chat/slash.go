package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"tracechat/internal/adapter/tui/components"
	"tracechat/internal/domain"
	"tracechat/internal/usecase/parallel"
)

func commandDefs() []components.CommandDef {
	return []components.CommandDef{
		{Name: "/help", Description: "Show available commands"},
		{Name: "/clear", Description: "Clear conversation"},
		{Name: "/cancel", Description: "Stop the streaming reply"},
		{Name: "/grid", Description: "Show parallel agents as a grid"},
		{Name: "/tab", Description: "Show one parallel agent at a time"},
		{Name: "/kb", Args: "[id]", Description: "Select or clear the knowledge base"},
		{Name: "/files", Args: "[ids]", Description: "Select or clear attached files"},
		{Name: "/memory", Args: "on|off", Description: "Toggle conversation memory", Choices: []string{"on", "off"}},
		{Name: "/quit", Description: "Exit tracechat", Aliases: []string{"/exit"}},
	}
}

// handleSlashCommand processes a slash command.
func (m ChatModel) handleSlashCommand(cmd string, args []string) (tea.Model, tea.Cmd) {
	loc := m.deps.Localizer
	switch cmd {
	case "/help":
		m.notice(loc.T("help.body"))
		return m, nil

	case "/quit", "/exit":
		m.quit()
		return m, tea.Quit

	case "/clear":
		if err := m.deps.Dispatcher.Clear(); errors.Is(err, domain.ErrBusy) {
			m.notice(loc.T("notice.busy"))
			return m, nil
		}
		if m.deps.Workflow != nil {
			m.deps.Workflow.Reset()
		}
		m.view.ClearHints()
		m.selected = nil
		m.chatView.GotoBottom()
		m.notice(loc.T("notice.cleared"))
		return m, nil

	case "/cancel":
		if !m.deps.Dispatcher.Cancel() {
			m.notice(loc.T("notice.no_active"))
			return m, nil
		}
		m.refresh()
		return m, nil

	case "/grid", "/tab":
		mode := parallel.ViewGrid
		if cmd == "/tab" {
			mode = parallel.ViewTab
		}
		m.deps.Parallel.SetViewMode(mode)
		m.deps.Transcript.Parallel().SetMode(mode)
		m.notice(loc.T("notice.view_mode", map[string]any{"mode": string(mode)}))
		return m, nil

	case "/kb":
		if len(args) == 0 {
			m.backend.KBID = ""
			m.settingsChanged("kb_id", "")
			m.notice(loc.T("notice.kb_cleared"))
			return m, nil
		}
		m.backend.KBID = args[0]
		m.settingsChanged("kb_id", args[0])
		m.notice(loc.T("notice.kb", map[string]any{"id": args[0]}))
		return m, nil

	case "/files":
		ids := splitIDs(args)
		m.backend.FileIDs = ids
		m.settingsChanged("file_ids", strings.Join(ids, ","))
		if len(ids) == 0 {
			m.notice(loc.T("notice.files_cleared"))
			return m, nil
		}
		m.notice(loc.T("notice.files", map[string]any{"ids": strings.Join(ids, ", ")}))
		return m, nil

	case "/memory":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			def, _ := m.input.Autocomplete.Lookup("/memory")
			m.notice(loc.T("notice.usage", map[string]any{"usage": def.Usage()}))
			return m, nil
		}
		m.backend.UseMemory = args[0] == "on"
		m.settingsChanged("use_memory", args[0])
		m.notice(loc.T("notice.memory", map[string]any{"state": args[0]}))
		return m, nil

	default:
		m.notice(loc.T("notice.unknown_command", map[string]any{"command": cmd}))
		return m, nil
	}
}

// splitIDs accepts ids separated by spaces and/or commas.
func splitIDs(args []string) []string {
	var ids []string
	for _, a := range args {
		for _, id := range strings.Split(a, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (m *ChatModel) settingsChanged(key, value string) {
	m.deps.Logger.Info("request setting changed", "key", key, "value", value)
	if m.deps.Bus == nil {
		return
	}
	m.deps.Bus.Publish(context.Background(), domain.Event{
		Type:      domain.EventSettingsChanged,
		Timestamp: time.Now(),
		Payload:   domain.MustPayload(map[string]string{"status": key + "=" + value}),
	})
}
