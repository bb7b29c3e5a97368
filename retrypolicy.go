package budgetpool

import (
	"time"
)

const (
	defaultAttempts     = 1
	defaultInitialRetry = 200 * time.Millisecond
	defaultMaxRetry     = 5 * time.Second
)

// RetryPolicy describes how many times and how often a task should be
// tried. Zero values are treated as "use pool defaults". The pool
// default is a single attempt, so plain tasks report failure to their
// handle immediately.
type RetryPolicy struct {
	// Attempts is the maximum number of tries for a task.
	Attempts int

	// Initial is the first backoff duration.
	Initial time.Duration

	// Max is the cap for backoff duration.
	Max time.Duration
}

// DefaultRetryPolicy returns the policy applied to tasks that carry no
// policy of their own when the pool options leave DefaultRetry unset.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: defaultAttempts,
		Initial:  defaultInitialRetry,
		Max:      defaultMaxRetry,
	}
}

// merged resolves the effective policy for one task: non-zero per-task
// values override the pool default.
func (p RetryPolicy) merged(override *RetryPolicy) RetryPolicy {
	out := p
	if override == nil {
		return out
	}
	if override.Attempts > 0 {
		out.Attempts = override.Attempts
	}
	if override.Initial > 0 {
		out.Initial = override.Initial
	}
	if override.Max > 0 {
		out.Max = override.Max
	}
	return out
}
