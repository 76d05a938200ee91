package components

import (
	"strings"
	"time"

	"tracechat/internal/adapter/tui/theme"
	"tracechat/internal/adapter/workflow"
	"tracechat/internal/domain"
)

// RenderWorkflow draws the task tree with one line per node, indented by
// depth.
func RenderWorkflow(nodes []workflow.Node, now time.Time, width int) string {
	var sb strings.Builder
	for i, n := range nodes {
		if i > 0 {
			sb.WriteString("\n")
		}
		status := theme.TextSuccess.Render(theme.SymbolSuccess)
		if n.Status == workflow.StatusRunning {
			status = theme.TextInfo.Render(theme.SymbolSpinner)
		}
		timer := theme.CardTimer.Render(domain.FormatElapsed(n.Elapsed(now)))
		prefix := strings.Repeat("  ", n.Depth+1)
		title := n.Title
		if n.Icon != "" {
			title = n.Icon + " " + title
		}
		room := width - len(prefix) - 12
		sb.WriteString(prefix + status + " " + truncate(title, room) + " " + timer)
	}
	return sb.String()
}
