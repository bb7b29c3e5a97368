package budgetpool

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// AdmitMode selects the admission policy for a batch call site.
// Frame-critical producers (event dispatch) prefer AdmitReject: under
// extreme load a dropped handler is better than a stalled frame.
// Producers that can afford to wait (asset loading) use AdmitBlock.
type AdmitMode uint8

const (
	// AdmitBlock applies backpressure: admission waits for queue
	// space.
	AdmitBlock AdmitMode = iota

	// AdmitReject resolves tasks that do not fit as rejected instead
	// of blocking the submitter.
	AdmitReject
)

// Batch is the handle collection for one submitted batch. Every task
// in the batch has exactly one handle, in submission order, including
// tasks that were rejected at admission (their handles are already
// resolved).
type Batch struct {
	handles []*Handle
}

// Handles exposes the per-task handles in submission order.
func (b *Batch) Handles() []*Handle { return b.handles }

// Len is the number of tasks in the batch.
func (b *Batch) Len() int { return len(b.handles) }

// Wait blocks until every task in the batch resolves, or ctx expires.
// Outcomes are returned in submission order; completion order between
// tasks of one batch is unspecified.
func (b *Batch) Wait(ctx context.Context) ([]Outcome, error) {
	return AwaitAll(ctx, b.handles)
}

// SubmitBatch admits a frame's worth of independent tasks in one call.
// Every task is admitted (or definitively rejected) before SubmitBatch
// returns, so a caller blocking on the returned batch can never
// deadlock on a partially admitted frame.
//
// The returned error aggregates per-task admission failures; the batch
// is still usable, rejected tasks simply carry an already-resolved
// rejected outcome. After shutdown begins every task is rejected with
// ErrPoolClosed.
func (p *Pool[T]) SubmitBatch(tasks []Task[T], mode AdmitMode) (*Batch, error) {
	b := &Batch{handles: make([]*Handle, len(tasks))}
	var errs []error

	rejectAll := p.closing.Load()
	for i, task := range tasks {
		h := newHandle()
		b.handles[i] = h

		admitErr := func() error {
			if rejectAll {
				return ErrPoolClosed
			}
			if task.Fn == nil {
				return ErrNilFunc
			}
			return p.queue.push(queued[T]{task: task, handle: h}, mode == AdmitBlock)
		}()

		if admitErr != nil {
			h.resolve(Outcome{State: StateRejected, Err: admitErr})
			p.metrics.IncRejected()
			if task.CleanupFunc != nil {
				task.CleanupFunc()
			}
			errs = append(errs, fmt.Errorf("task %d: %w", i, admitErr))
			continue
		}
		p.afterAdmit()
	}

	if combined := multierr.Combine(errs...); combined != nil {
		return b, multierr.Append(ErrBatchRejected, combined)
	}
	return b, nil
}

// AwaitAll blocks until every handle resolves, or ctx expires.
// Each outcome matches the handle at the same index and every handle
// is satisfied exactly once no matter how often it is awaited.
func AwaitAll(ctx context.Context, handles []*Handle) ([]Outcome, error) {
	out := make([]Outcome, len(handles))
	for i, h := range handles {
		o, err := h.Wait(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = o
	}
	return out, nil
}
