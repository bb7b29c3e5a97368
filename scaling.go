package budgetpool

import (
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
)

// scaleAction is what one control tick decided to do with the buffer
// allocation.
type scaleAction int8

const (
	scaleHold scaleAction = iota
	scaleUp
	scaleDown
)

// scalingDecision is derived from one sample of queue depth and the
// current buffer target. It is recomputed every tick and never
// persisted.
type scalingDecision struct {
	action       scaleAction
	depth        int64
	activeBuffer int
}

// evaluateScaling applies the watermark policy: depth above the high
// watermark grows the active buffer set, depth below the low watermark
// shrinks it, always within the budget's [MinBuffer, MaxBuffer] range.
// The band between the watermarks holds the current allocation, which
// is the hysteresis that keeps load hovering near one threshold from
// thrashing workers on and off.
func evaluateScaling(depth int64, activeBuffer int, b WorkerBudget, high, low int) scalingDecision {
	d := scalingDecision{action: scaleHold, depth: depth, activeBuffer: activeBuffer}
	switch {
	case depth > int64(high) && activeBuffer < b.MaxBuffer:
		d.action = scaleUp
	case depth < int64(low) && activeBuffer > b.MinBuffer:
		d.action = scaleDown
	}
	return d
}

// applyScaling moves the buffer target one step in the decided
// direction and wakes workers so promoted ones start pulling and
// demoted ones park after their current task.
func (p *Pool[T]) applyScaling(d scalingDecision) {
	switch d.action {
	case scaleUp:
		target := p.bufferTarget.Add(1)
		p.metrics.IncBufferActivated()
		lg.FromContext(p.ctx).Info("buffer worker activated",
			lg.Int("active_buffer", int(target)),
			lg.Any("queue_depth", d.depth),
		)
	case scaleDown:
		target := p.bufferTarget.Add(-1)
		p.metrics.IncBufferParked()
		lg.FromContext(p.ctx).Info("buffer worker parked",
			lg.Int("active_buffer", int(target)),
			lg.Any("queue_depth", d.depth),
		)
	default:
		return
	}

	p.parkMu.Lock()
	p.parkCond.Broadcast()
	p.parkMu.Unlock()
	p.queue.wake()
}

// controlLoop is the scaling controller goroutine. It samples queue
// depth every ControlInterval and also immediately when a submission
// pushes depth past the high watermark (the kick channel), so burst
// reaction does not wait out a full tick.
func (p *Pool[T]) controlLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.ControlInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCtrl:
			return
		case <-ticker.C:
		case <-p.kick:
		}
		d := evaluateScaling(
			p.queue.Depth(),
			int(p.bufferTarget.Load()),
			p.budget,
			p.opts.HighWatermark,
			p.opts.LowWatermark,
		)
		p.applyScaling(d)
	}
}
