package budgetpool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	lg "github.com/Andrej220/go-utils/zlog"
)

// DrainMode is the shutdown policy for queued-but-unstarted tasks.
type DrainMode uint8

const (
	// DrainGraceful lets all queued and in-flight tasks complete
	// before any worker stops.
	DrainGraceful DrainMode = iota

	// DrainImmediate stops admission, discards unstarted queued tasks
	// (their handles resolve as dropped) and waits only for in-flight
	// tasks. No task is ever interrupted mid-execution.
	DrainImmediate
)

func (m DrainMode) String() string {
	if m == DrainImmediate {
		return "immediate"
	}
	return "graceful"
}

// Pool owns a budget's worth of long-lived workers pulling from one
// shared bounded queue. Base workers are always dispatchable; buffer
// workers are promoted and parked by the scaling controller within
// the budget's buffer range.
type Pool[T any] struct {
	opts   Options
	budget WorkerBudget
	queue  *taskQueue[T]

	workers []*workerState
	wg      sync.WaitGroup

	// bufferTarget is the controller-owned count of active buffer
	// workers; buffer worker i is eligible while i < target.
	bufferTarget atomic.Int32
	parkMu       sync.Mutex
	parkCond     *sync.Cond

	closing  atomic.Bool
	stopOnce sync.Once
	stopCtrl chan struct{}
	kick     chan struct{}

	metrics MetricsPolicy
	ctx     context.Context
}

// NewPool builds a pool from an explicitly computed budget. The budget
// is validated against the WorkerBudget invariants; options are
// defaulted and validated. Construction errors are fatal and the pool
// is not created.
func NewPool[T any](budget WorkerBudget, opts Options) (*Pool[T], error) {
	if err := validateBudget(budget); err != nil {
		return nil, err
	}
	opts.FillDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	p := &Pool[T]{
		opts:     opts,
		budget:   budget,
		queue:    newTaskQueue[T](opts.QueueCapacity),
		stopCtrl: make(chan struct{}),
		kick:     make(chan struct{}, 1),
		metrics:  opts.Metrics,
		ctx:      context.Background(),
	}
	p.parkCond = sync.NewCond(&p.parkMu)
	p.bufferTarget.Store(int32(budget.MinBuffer))

	p.workers = make([]*workerState, 0, budget.Total)
	for i := 0; i < budget.Total; i++ {
		w := &workerState{id: i, role: RoleBase, bufferIdx: -1}
		if i >= budget.Base {
			w.role = RoleBuffer
			w.bufferIdx = i - budget.Base
			w.setStatus(StatusParked)
		}
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go p.runWorker(w)
	}

	p.wg.Add(1)
	go p.controlLoop()

	lg.FromContext(p.ctx).Info("pool started",
		lg.Int("total_workers", budget.Total),
		lg.Int("base_workers", budget.Base),
		lg.Int("max_buffer", budget.MaxBuffer),
	)
	return p, nil
}

// New is the auto-detect convenience constructor: it classifies the
// machine, sizes the request from the logical core count (leaving one
// core for the submitting thread) and computes a default budget. The
// clamp applied by the budget policy, if any, is reported here rather
// than silently absorbed.
func New[T any](requestedTotal int, opts Options) (*Pool[T], error) {
	if requestedTotal <= 0 {
		requestedTotal = runtime.NumCPU() - 1
		if requestedTotal < 1 {
			requestedTotal = 1
		}
	}
	tier := DetectTier()
	budget, err := ComputeBudget(tier, requestedTotal)
	if err != nil {
		return nil, err
	}
	if budget.Total != requestedTotal {
		lg.FromContext(context.Background()).Warn("requested worker count clamped",
			lg.Int("requested", requestedTotal),
			lg.Int("granted", budget.Total),
			lg.String("tier", tier.String()),
		)
	}
	return NewPool[T](budget, opts)
}

// Submit admits one fire-and-forget task, blocking while the queue is
// full. Returns ErrPoolClosed once shutdown has begun and ErrNilFunc
// for tasks without a function.
func (p *Pool[T]) Submit(task Task[T]) error {
	if task.Fn == nil {
		return ErrNilFunc
	}
	if p.closing.Load() {
		return ErrPoolClosed
	}
	if err := p.queue.push(queued[T]{task: task}, true); err != nil {
		return err
	}
	p.afterAdmit()
	return nil
}

// TrySubmit is the non-blocking variant: a full queue reports false
// instead of applying backpressure.
func (p *Pool[T]) TrySubmit(task Task[T]) bool {
	if task.Fn == nil || p.closing.Load() {
		p.metrics.IncRejected()
		return false
	}
	if err := p.queue.push(queued[T]{task: task}, false); err != nil {
		p.metrics.IncRejected()
		return false
	}
	p.afterAdmit()
	return true
}

// afterAdmit updates admission metrics and nudges the controller when
// depth has already crossed the high watermark, so a burst is answered
// before the next control tick.
func (p *Pool[T]) afterAdmit() {
	p.metrics.IncQueued()
	if p.queue.Depth() > int64(p.opts.HighWatermark) {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
}

// Shutdown stops the pool under the given drain mode and waits for
// workers to exit, bounded by ctx. Safe to call more than once; the
// first call picks the mode, later calls just wait.
//
// In-flight tasks always run to completion regardless of mode.
func (p *Pool[T]) Shutdown(ctx context.Context, mode DrainMode) error {
	p.stopOnce.Do(func() {
		p.closing.Store(true)
		close(p.stopCtrl)

		dropped := p.queue.close(mode == DrainImmediate)
		for _, it := range dropped {
			if it.handle != nil && !it.handle.resolve(Outcome{State: StateDropped, Err: ErrPoolClosed}) {
				// Cancel resolved it first; report the cancellation, not a drop.
				p.metrics.IncOutcome(StateCancelled)
			} else {
				p.metrics.IncOutcome(StateDropped)
			}
			if it.task.CleanupFunc != nil {
				it.task.CleanupFunc()
			}
		}

		// Release parked buffer workers so they observe the close and
		// either help drain or exit.
		p.parkMu.Lock()
		p.parkCond.Broadcast()
		p.parkMu.Unlock()

		lg.FromContext(p.ctx).Info("pool shutting down",
			lg.String("mode", mode.String()),
			lg.Int("dropped", len(dropped)),
		)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop is a blocking graceful shutdown.
func (p *Pool[T]) Stop() { _ = p.Shutdown(context.Background(), DrainGraceful) }

// drainDone reports that shutdown has begun and the queue is empty, so
// an idle worker may exit.
func (p *Pool[T]) drainDone() bool {
	return p.closing.Load() && p.queue.Depth() == 0
}

// reportTaskError reports an error returned by a task or produced by
// panic recovery. Task errors do not stop pool execution.
func (p *Pool[T]) reportTaskError(err error) {
	if p.opts.OnTaskError != nil {
		p.opts.OnTaskError(err)
	}
}

// reportInternalError reports a non-task failure such as a worker
// setup issue. If no handler is registered, the error is logged.
func (p *Pool[T]) reportInternalError(err error) {
	if p.opts.OnInternalError != nil {
		p.opts.OnInternalError(err)
		return
	}
	lg.FromContext(p.ctx).Error("internal pool error", lg.Any("error", err))
}

// Budget returns the immutable budget the pool was built from.
func (p *Pool[T]) Budget() WorkerBudget { return p.budget }

// QueueDepth reports the current number of queued tasks.
func (p *Pool[T]) QueueDepth() int64 { return p.queue.Depth() }

// ActiveBufferWorkers reports the controller's current buffer target.
// Always within [MinBuffer, MaxBuffer].
func (p *Pool[T]) ActiveBufferWorkers() int { return int(p.bufferTarget.Load()) }

// WorkerStates snapshots every worker's role and status.
func (p *Pool[T]) WorkerStates() []WorkerState {
	out := make([]WorkerState, len(p.workers))
	for i, w := range p.workers {
		out[i] = WorkerState{ID: w.id, Role: w.role, Status: w.getStatus()}
	}
	return out
}

// Stats returns the metrics snapshot when the pool runs on the default
// AtomicMetrics; custom MetricsPolicy implementations report through
// their own channels and get a zero snapshot here.
func (p *Pool[T]) Stats() Stats {
	if m, ok := p.metrics.(*AtomicMetrics); ok {
		return m.Snapshot()
	}
	return Stats{}
}
