package budgetpool

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when pool construction receives an
	// unusable configuration (worker count below one, inverted
	// watermarks, zero queue capacity). It is fatal: the pool is not
	// created.
	ErrInvalidConfig = errors.New("budgetpool: invalid configuration")

	// ErrQueueFull is returned when the queue cannot accept more tasks
	// under the rejecting admission mode.
	ErrQueueFull = errors.New("budgetpool: queue is full")

	// ErrPoolClosed is returned by any submission made after shutdown
	// has begun.
	ErrPoolClosed = errors.New("budgetpool: pool closed")

	// ErrNilFunc is returned when a submitted Task has a nil Fn.
	ErrNilFunc = errors.New("budgetpool: task func is nil")

	// ErrBatchRejected wraps per-task admission failures reported by
	// SubmitBatch.
	ErrBatchRejected = errors.New("budgetpool: batch partially rejected")
)

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
