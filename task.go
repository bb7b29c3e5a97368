package budgetpool

import (
	"context"
	"sync"
)

// TaskFunc is the function executed by a worker for a given task
// payload.
type TaskFunc[T any] func(T) error

// Priority is the task's scheduling class. Tasks of equal priority are
// delivered FIFO; a higher class is preferred over a lower one when
// both have tasks waiting. There is no preemption and no strict
// starvation guarantee beyond eventual dequeue.
//
// The zero value is PriorityNormal.
type Priority uint8

const (
	// PriorityNormal is the default class for most tasks.
	PriorityNormal Priority = iota

	// PriorityCritical tasks run as soon as a worker is idle
	// (input handling, frame-critical sync points).
	PriorityCritical

	// PriorityHigh tasks are important per-frame work (physics,
	// animation).
	PriorityHigh

	// PriorityLow tasks are background work (asset loading).
	PriorityLow

	// PriorityIdle tasks run only when nothing else is pending.
	PriorityIdle
)

// numClasses is the number of dispatch classes; one FIFO ring each.
const numClasses = 5

// classIndex maps a Priority to its dispatch order, highest first.
func (p Priority) classIndex() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Task represents a single unit of work submitted to the pool.
//
// Payload is passed to Fn when executed. Ctx controls cancellation
// before execution and between retry attempts; it does not preempt a
// running Fn. CleanupFunc, if set, runs after the task resolves,
// whether it succeeded, failed or was skipped.
//
// A Task is immutable once enqueued; ownership passes to the queue at
// submission and to the executing worker at dequeue. Payloads must be
// self-contained or reference externally synchronized data.
type Task[T any] struct {
	Payload     T
	Fn          TaskFunc[T]
	Priority    Priority
	Ctx         context.Context
	CleanupFunc func()

	// Retry overrides the pool's default retry policy for this task.
	// Zero fields fall back to pool defaults.
	Retry *RetryPolicy
}

// OutcomeState is the terminal state of a task.
type OutcomeState uint8

const (
	// StateSucceeded: Fn returned nil.
	StateSucceeded OutcomeState = iota

	// StateFailed: Fn returned an error (after exhausting retries) or
	// panicked.
	StateFailed

	// StateCancelled: the task was cancelled before execution, or its
	// context expired before or between attempts. The body did not
	// complete.
	StateCancelled

	// StateDropped: the task was discarded unstarted by an immediate
	// shutdown.
	StateDropped

	// StateRejected: the task was never admitted to the queue.
	StateRejected
)

func (s OutcomeState) String() string {
	switch s {
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	case StateDropped:
		return "dropped"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the final report for a tracked task. Err is nil only for
// StateSucceeded.
type Outcome struct {
	State OutcomeState
	Err   error
}

// Handle tracks one submitted task. It is resolved exactly once with a
// final Outcome; Wait, Poll and Done observe the resolution in any
// order.
type Handle struct {
	done chan struct{}
	once sync.Once

	// guarded by the resolve once: written before done closes,
	// read only after it is closed.
	outcome Outcome

	mu        sync.Mutex
	cancelled bool
	claimed   bool
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Cancel marks the task cancelled. If the task has not yet been
// claimed by a worker, the body will never execute, the handle
// resolves with StateCancelled and Cancel returns true. Once a worker
// has claimed the task, Cancel is a no-op and returns false: in-flight
// work always runs to completion.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	if h.claimed || h.cancelled {
		h.mu.Unlock()
		return false
	}
	h.cancelled = true
	h.mu.Unlock()
	h.resolve(Outcome{State: StateCancelled, Err: context.Canceled})
	return true
}

// claim is called by the dequeuing worker. It returns false when the
// task was cancelled first, in which case the worker skips execution.
func (h *Handle) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return false
	}
	h.claimed = true
	return true
}

// resolve records the outcome. It reports whether this call won the
// resolution; a handle already resolved (by Cancel) keeps its outcome.
func (h *Handle) resolve(o Outcome) bool {
	won := false
	h.once.Do(func() {
		h.outcome = o
		close(h.done)
		won = true
	})
	return won
}

// Done returns a channel closed when the task resolves.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Poll reports the outcome without blocking. The boolean is false
// while the task is still pending or executing.
func (h *Handle) Poll() (Outcome, bool) {
	select {
	case <-h.done:
		return h.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the task resolves or ctx expires.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
