package budgetpool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
	lg "github.com/Andrej220/go-utils/zlog"
)

// WorkerRole tells whether a worker is part of the always-on base
// allocation or the dynamically scaled buffer capacity. Roles are
// fixed at construction; only the controller decides which buffer
// workers are active.
type WorkerRole uint8

const (
	RoleBase WorkerRole = iota
	RoleBuffer
)

func (r WorkerRole) String() string {
	if r == RoleBase {
		return "base"
	}
	return "buffer"
}

// WorkerStatus is the observable state of one worker.
type WorkerStatus uint8

const (
	StatusIdle WorkerStatus = iota
	StatusExecuting
	StatusParked
)

func (s WorkerStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusExecuting:
		return "executing"
	case StatusParked:
		return "parked"
	default:
		return "unknown"
	}
}

// WorkerState is a point-in-time snapshot of one worker, exposed by
// Pool.WorkerStates for monitoring and tests.
type WorkerState struct {
	ID     int
	Role   WorkerRole
	Status WorkerStatus
}

// workerState is the per-thread record. Status transitions are owned
// by the worker goroutine itself; activation of buffer workers is
// owned by the controller via the pool's buffer target.
type workerState struct {
	id        int
	role      WorkerRole
	bufferIdx int // position in the buffer activation order; -1 for base
	status    atomic.Uint32
}

func (w *workerState) setStatus(s WorkerStatus) { w.status.Store(uint32(s)) }
func (w *workerState) getStatus() WorkerStatus  { return WorkerStatus(w.status.Load()) }

// runWorker is the main loop of one worker goroutine. Base workers
// alternate between idle waiting and execution; buffer workers
// additionally park whenever the controller's target excludes them.
// Parking never interrupts a task: the check runs only between tasks.
func (p *Pool[T]) runWorker(w *workerState) {
	defer p.wg.Done()

	if p.opts.PinWorkers {
		if err := pinToCPU(w.id); err != nil {
			p.reportInternalError(fmt.Errorf("pin worker %d: %w", w.id, err))
		}
	}

	for {
		if !p.workerEligible(w) {
			w.setStatus(StatusParked)
			p.awaitPromotion(w)
			continue
		}

		it, ok := p.queue.tryPop()
		if !ok {
			if p.drainDone() {
				w.setStatus(StatusParked)
				return
			}
			w.setStatus(StatusIdle)
			p.queue.waitForWork()
			continue
		}

		w.setStatus(StatusExecuting)
		p.execute(w, it)
		w.setStatus(StatusIdle)
	}
}

// workerEligible reports whether the worker may pull tasks. Base
// workers always may. Buffer workers may while their activation slot
// is below the controller's target; during shutdown every worker is
// eligible so the queue drains as fast as possible.
func (p *Pool[T]) workerEligible(w *workerState) bool {
	if w.role == RoleBase {
		return true
	}
	if p.closing.Load() {
		return true
	}
	return w.bufferIdx < int(p.bufferTarget.Load())
}

// awaitPromotion parks a buffer worker until the controller raises the
// target past its slot or shutdown begins.
func (p *Pool[T]) awaitPromotion(w *workerState) {
	p.parkMu.Lock()
	for !p.workerEligible(w) {
		p.parkCond.Wait()
	}
	p.parkMu.Unlock()
}

// execute runs one dequeued task to resolution: cancellation check,
// retry loop with backoff, panic recovery, outcome reporting and
// cleanup. Failures never propagate past this boundary.
func (p *Pool[T]) execute(w *workerState, it queued[T]) {
	task := it.task
	if task.Ctx == nil {
		task.Ctx = context.Background()
	}
	logger := lg.FromContext(task.Ctx).With(
		lg.Int("worker", w.id),
		lg.String("priority", task.Priority.String()),
	)

	resolve := func(o Outcome) {
		if it.handle != nil {
			it.handle.resolve(o)
		}
		p.metrics.IncOutcome(o.State)
		if o.State == StateFailed {
			p.reportTaskError(o.Err)
		}
		if task.CleanupFunc != nil {
			task.CleanupFunc()
		}
	}

	// Cancelled before dequeue: the body never runs.
	if it.handle != nil && !it.handle.claim() {
		p.metrics.IncOutcome(StateCancelled)
		if task.CleanupFunc != nil {
			task.CleanupFunc()
		}
		return
	}
	if err := task.Ctx.Err(); err != nil {
		logger.Info("task cancelled before start", lg.Any("reason", err))
		resolve(Outcome{State: StateCancelled, Err: err})
		return
	}
	if task.Fn == nil {
		resolve(Outcome{State: StateFailed, Err: ErrNilFunc})
		return
	}

	pol := p.opts.DefaultRetry.merged(task.Retry)
	bo := boff.New(pol.Initial, pol.Max, time.Now().UnixNano())

	var err error
	for attempt := 1; attempt <= pol.Attempts; attempt++ {
		start := time.Now()
		err = runGuarded(task.Fn, task.Payload)
		if d := time.Since(start); d > p.opts.SlowTaskWarning {
			logger.Warn("slow task", lg.String("duration", d.String()))
		}
		if err == nil {
			resolve(Outcome{State: StateSucceeded})
			return
		}
		if attempt == pol.Attempts {
			break
		}

		delay := bo.Next()
		logger.Warn("task attempt failed; backing off",
			lg.Int("attempt", attempt),
			lg.String("sleep", delay.String()),
			lg.Any("error", err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-task.Ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			logger.Info("task cancelled during backoff", lg.Any("reason", task.Ctx.Err()))
			resolve(Outcome{State: StateCancelled, Err: task.Ctx.Err()})
			return
		}
	}

	logger.Error("task failed", lg.Int("attempts", pol.Attempts), lg.Any("error", err))
	resolve(Outcome{State: StateFailed, Err: err})
}

// runGuarded executes one attempt, converting panics into errors so a
// misbehaving task cannot take its worker down.
func runGuarded[T any](fn TaskFunc[T], payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(payload)
}
