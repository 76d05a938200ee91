package dispatch

import (
	"tracechat/internal/domain"
)

// Run item types produced by the agent runtime.
const (
	itemReasoning     = "reasoning_item"
	itemToolCall      = "tool_call_item"
	itemToolOutput    = "tool_call_output_item"
	itemHandoffCall   = "handoff_call_item"
	itemHandoffOutput = "handoff_output_item"
)

// runItemView is the icon, title and body selected for a run item.
type runItemView struct {
	icon    string
	title   string
	content string
	ct      domain.ContentType
}

// runItemRenderers is the fixed lookup table from item type to view.
var runItemRenderers = map[string]func(d *Dispatcher, e domain.RunItemEvent) runItemView{
	itemReasoning: func(d *Dispatcher, e domain.RunItemEvent) runItemView {
		return runItemView{"💭", d.l10n.T("run_item.reasoning"), e.ReasoningSummary, domain.ContentText}
	},
	itemToolCall: func(d *Dispatcher, e domain.RunItemEvent) runItemView {
		return runItemView{"🔧", d.l10n.T("run_item.tool_call", map[string]any{"name": e.ToolName}), e.ToolArguments, domain.ContentJSON}
	},
	itemToolOutput: func(d *Dispatcher, e domain.RunItemEvent) runItemView {
		return runItemView{"📤", d.l10n.T("run_item.tool_output"), e.ToolOutput, domain.ContentText}
	},
	itemHandoffCall: func(d *Dispatcher, e domain.RunItemEvent) runItemView {
		return runItemView{"🤝", d.l10n.T("run_item.handoff_call", map[string]any{"name": e.HandoffName}), e.HandoffArguments, domain.ContentJSON}
	},
	itemHandoffOutput: func(d *Dispatcher, e domain.RunItemEvent) runItemView {
		return runItemView{"🔀", d.l10n.T("run_item.handoff_output"), e.SourceAgent + " → " + e.TargetAgent, domain.ContentText}
	},
}

func genericRunItem(d *Dispatcher, e domain.RunItemEvent) runItemView {
	return runItemView{"📌", d.l10n.T("run_item.generic", map[string]any{"type": e.ItemType}), e.RawInfo, domain.ContentText}
}

// onRunItem renders one short-lived card per run item. In the main stream it
// first finalizes every open main-stream card.
func (d *Dispatcher) onRunItem(e domain.RunItemEvent) {
	scope, box := d.route(e.Agent)
	if scope == mainScope {
		d.completeScope(mainScope, false)
	}

	render, ok := runItemRenderers[e.ItemType]
	if !ok {
		render = genericRunItem
	}
	view := render(d, e)

	card := d.create(box, domain.CardRunItem, view.title, view.icon)
	d.cards.Update(card, view.content, view.ct)
	d.after(d.cfg.OneShotBrief, func() { d.cards.Complete(card, false) })
}
