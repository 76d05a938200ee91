package dispatch

import (
	"tracechat/internal/domain"
	"tracechat/internal/usecase/parallel"
)

// onParallelGroupStart finalizes the main stream's open card, shows the
// group banner and, for a non-empty task list, replaces any active parallel
// session with a fresh one.
func (d *Dispatcher) onParallelGroupStart(e domain.ParallelGroupStartEvent) {
	d.finalizeActive(mainScope)

	if len(e.Tasks) == 0 {
		d.transcript.AddBanner(d.l10n.T("banner.parallel_empty"))
		return
	}
	d.transcript.AddBanner(d.l10n.T("banner.parallel", map[string]any{"count": len(e.Tasks)}))

	d.endParallel()
	s := d.parallel.Begin(e.GroupIdx, e.Tasks)
	d.cards.Forget(d.transcript.SetParallel(s)...)
}

func (d *Dispatcher) onParallelTaskDone(e domain.ParallelTaskDoneEvent) {
	if !d.parallel.SetStatus(e.Agent, parallel.StatusCompleted, "") {
		return
	}
	n := d.completeScope(e.Agent, false)
	d.logger.Debug("parallel task cards completed", "agent", e.Agent, "count", n)
}

// onMergeDone completes residual window cards and returns control to the
// main stream. The grid stays in the transcript.
func (d *Dispatcher) onMergeDone() {
	d.endParallel()
}

// endParallel completes every open card of the active parallel session and
// tears the session down.
func (d *Dispatcher) endParallel() {
	if !d.parallel.IsActive() {
		return
	}
	active := d.parallel.Active()
	for _, agent := range active.Agents() {
		d.completeScope(agent, false)
		if d.session != nil {
			d.closeWorkflow(agent)
		}
		d.buffers.ResetAgent(agent)
	}
	d.parallel.End()
}
