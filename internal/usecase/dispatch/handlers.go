package dispatch

import (
	"tracechat/internal/domain"
	"tracechat/internal/usecase/buffers"
)

// Card icons.
const (
	iconReasoning  = "💭"
	iconAnalysis   = "📝"
	iconToolUse    = "🔧"
	iconToolOutput = "📤"
	iconToolLog    = "📋"
	iconExcelTask  = "📊"
)

// streamCard is the shared create/append/complete shape of reasoning and
// delta events: the first fragment of a scope opens a card and finalizes the
// previously active one, every fragment re-renders the accumulated content
// and done completes the card without collapsing it.
func (d *Dispatcher) streamCard(agent string, kind domain.CardKind, title, icon string, ct domain.ContentType, content string, done bool) {
	s := d.session
	scope, box := d.route(agent)
	key := bufferKey(scope, kind)

	card := s.slot(scope, kind)
	if content != "" {
		if card == nil {
			d.finalizeActive(scope)
			d.buffers.Reset(key)
			card = d.create(box, kind, title, icon)
			s.setSlot(scope, kind, card)
			s.setActive(scope, card)
		}
		d.cards.Update(card, d.buffers.Append(key, content), ct)
	}
	if done && card != nil {
		d.cards.Complete(card, false)
		s.setSlot(scope, kind, nil)
		s.clearActive(scope, card)
		d.buffers.Reset(key)
	}
}

func (d *Dispatcher) onReasoning(e domain.ReasoningEvent) {
	d.streamCard(e.Agent, domain.CardReasoning, d.l10n.T("card.reasoning"), iconReasoning, domain.ContentText, e.Content, e.Done)
}

func (d *Dispatcher) onDelta(e domain.DeltaEvent) {
	d.streamCard(e.Agent, domain.CardOutput, d.l10n.T("card.analysis"), iconAnalysis, domain.ContentMarkdown, e.Content, e.Done)
}

// onToolCall keeps one card per tool invocation. A different tool name
// completes the open card before a new one starts; argument frames follow
// the snapshot-replaces, delta-appends rule.
func (d *Dispatcher) onToolCall(e domain.ToolCallEvent) {
	s := d.session
	scope, box := d.route(e.Agent)
	key := bufferKey(scope, domain.CardToolCall)
	hasArgs := e.HasArguments || e.ArgumentsDelta != ""

	card := s.slot(scope, domain.CardToolCall)
	if card != nil && e.ToolName != "" && s.toolNames[scope] == "" {
		s.toolNames[scope] = e.ToolName
		d.cards.SetTitle(card, d.l10n.T("card.tool_use", map[string]any{"name": e.ToolName}))
	}
	if card != nil && e.ToolName != "" && e.ToolName != s.toolNames[scope] {
		d.cards.Complete(card, false)
		s.clearActive(scope, card)
		s.setSlot(scope, domain.CardToolCall, nil)
		card = nil
	}

	if card == nil && (hasArgs || (e.ToolName != "" && !e.Done)) {
		d.finalizeActive(scope)
		d.buffers.Reset(key)
		card = d.create(box, domain.CardToolCall, d.l10n.T("card.tool_use", map[string]any{"name": e.ToolName}), iconToolUse)
		card.ContentType = e.Mode
		if card.ContentType == "" {
			card.ContentType = domain.ContentJSON
		}
		s.setSlot(scope, domain.CardToolCall, card)
		s.setActive(scope, card)
		s.toolNames[scope] = e.ToolName
	}

	if card != nil && hasArgs {
		mode := e.Mode
		if mode == "" {
			mode = card.ContentType
		}
		content := d.buffers.Merge(key, e.Arguments, e.HasArguments, e.ArgumentsDelta)
		d.cards.Update(card, content, mode)
	}

	if e.Done && card != nil {
		d.cards.Complete(card, false)
		s.setSlot(scope, domain.CardToolCall, nil)
		s.clearActive(scope, card)
		delete(s.toolNames, scope)
		d.buffers.Reset(key)
	}
}

// onToolOutput shows a one-shot output card that completes itself after the
// flash delay.
func (d *Dispatcher) onToolOutput(e domain.ToolOutputEvent) {
	s := d.session
	scope, box := d.route(e.Agent)

	if prev := s.slot(scope, domain.CardToolOutput); prev != nil {
		d.cards.Complete(prev, false)
		s.clearActive(scope, prev)
	}
	card := d.create(box, domain.CardToolOutput, d.l10n.T("card.tool_output"), iconToolOutput)
	d.cards.Update(card, e.Output, domain.ContentText)
	s.setSlot(scope, domain.CardToolOutput, card)
	s.setActive(scope, card)

	d.after(d.cfg.OneShotFlash, func() {
		d.cards.Complete(card, false)
		s.clearActive(scope, card)
	})
}

// onToolLog shows an informational card that never becomes the active card.
func (d *Dispatcher) onToolLog(e domain.ToolLogEvent) {
	scope, box := d.route(e.Agent)
	if scope == mainScope {
		d.finalizeActive(scope)
	}
	title := d.l10n.T("card.tool_log_untitled")
	if e.ToolName != "" {
		title = d.l10n.T("card.tool_log", map[string]any{"name": e.ToolName})
	}
	card := d.create(box, domain.CardToolLog, title, iconToolLog)
	d.cards.Update(card, e.Message, domain.ContentText)
	d.after(d.cfg.OneShotBrief, func() { d.cards.Complete(card, false) })
}

// onExcelAgent streams a long-running task card that is mirrored as a node
// in the workflow tree.
func (d *Dispatcher) onExcelAgent(e domain.ExcelAgentEvent) {
	s := d.session
	scope, box := d.route(e.Agent)
	key := bufferKey(scope, domain.CardExcelTask)

	card := s.slot(scope, domain.CardExcelTask)
	if card == nil && e.Content != "" {
		d.finalizeActive(scope)
		d.buffers.Reset(key)
		title := e.Title
		if title == "" {
			title = d.l10n.T("card.excel_task")
		}
		card = d.create(box, domain.CardExcelTask, title, iconExcelTask)
		s.setSlot(scope, domain.CardExcelTask, card)
		s.setActive(scope, card)
		if d.workflow != nil {
			s.pushNode(scope, card, d.workflow.CreateNode(string(domain.CardExcelTask), title, iconExcelTask))
		}
	}
	if card == nil {
		return
	}

	if e.Clean {
		d.buffers.Reset(key)
	}
	if e.Content != "" || e.Clean {
		d.cards.Update(card, d.buffers.Append(key, e.Content), e.Mode)
	}
	if e.Done {
		d.cards.SetTitle(card, e.Title)
		d.cards.Complete(card, false)
		s.setSlot(scope, domain.CardExcelTask, nil)
		s.clearActive(scope, card)
		d.buffers.Reset(key)
	}
}

// onDone handles the three done forms in priority order: terminate_card,
// final_output, then a bare segment boundary.
func (d *Dispatcher) onDone(e domain.DoneEvent) {
	s := d.session
	scope, _ := d.route(e.Agent)

	switch {
	case e.TerminateCard:
		n := d.completeScope(scope, false)
		d.logger.Debug("cards terminated", "scope", scope, "count", n)
	case e.HasFinalOutput:
		d.finalizeActive(mainScope)
		now := d.clock.Now()
		s.Total.Stop(now)
		for _, c := range s.cards {
			d.cards.Complete(c, true)
			d.cards.Collapse(c)
		}
		for scope := range s.workflow {
			d.closeWorkflow(scope)
		}
		elapsed := s.Total.Elapsed(now)
		d.transcript.AddFinal(e.FinalOutput, d.renderMarkdown(e.FinalOutput), elapsed, !s.Total.StartedAt().IsZero())
		s.finalSeen = true
	default:
		if c := s.active(scope); c != nil {
			d.cards.Complete(c, false)
			for k, slotted := range s.slots {
				if slotted == c {
					delete(s.slots, k)
				}
			}
		}
		s.setActive(scope, nil)
	}
}

func (d *Dispatcher) onAnalysis(e domain.AnalysisEvent) {
	if e.ID != "" && d.transcript.HasAnalysis(e.ID) {
		return
	}
	d.transcript.AddAnalysis(e.ID, e.Content, d.renderMarkdown(e.Content))
}

func bufferKey(scope string, kind domain.CardKind) buffers.Key {
	if scope == mainScope {
		return buffers.MainKey(kind)
	}
	return buffers.AgentKey(scope, kind)
}
