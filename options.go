package budgetpool

import (
	"time"
)

const (
	// DefaultQueueCapacity bounds the queue before backpressure.
	DefaultQueueCapacity = 1024

	defaultControlInterval = 5 * time.Millisecond
	defaultSlowTaskWarning = 100 * time.Millisecond
)

// Options configure a Pool.
//
// All zero values are replaced with sensible defaults in FillDefaults;
// Validate rejects combinations that cannot work (inverted watermarks,
// non-positive capacity) rather than repairing them silently.
type Options struct {
	// QueueCapacity bounds queued tasks before admission policy kicks
	// in (block or reject).
	QueueCapacity int

	// HighWatermark is the queue depth above which the controller
	// activates buffer workers. Must be below QueueCapacity; depth can
	// never exceed capacity.
	HighWatermark int

	// LowWatermark is the queue depth below which the controller
	// parks buffer workers. Must stay below HighWatermark; the band
	// between them is the hysteresis zone.
	LowWatermark int

	// ControlInterval is the scaling controller's tick period.
	ControlInterval time.Duration

	// SlowTaskWarning is the execution duration above which a task
	// gets a warning log. Zero keeps the default.
	SlowTaskWarning time.Duration

	// DefaultRetry applies to tasks that carry no RetryPolicy of
	// their own. The zero value means a single attempt.
	DefaultRetry RetryPolicy

	// PinWorkers pins each worker to a CPU on platforms that support
	// it. Best effort; failures are reported via OnInternalError.
	PinWorkers bool

	// Metrics receives queueing, execution and scaling counters.
	// Defaults to a pool-owned AtomicMetrics readable via Pool.Stats.
	Metrics MetricsPolicy

	// OnTaskError observes errors returned by task functions or
	// produced by panic recovery. Task errors never stop the pool.
	OnTaskError func(error)

	// OnInternalError observes non-task failures such as worker
	// setup issues.
	OnInternalError func(error)
}

// FillDefaults replaces zero values with defaults. Watermarks default
// relative to the (possibly defaulted) queue capacity: high at half,
// low at an eighth.
func (o *Options) FillDefaults() {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.HighWatermark <= 0 {
		o.HighWatermark = o.QueueCapacity / 2
	}
	if o.LowWatermark <= 0 {
		o.LowWatermark = o.QueueCapacity / 8
	}
	if o.ControlInterval <= 0 {
		o.ControlInterval = defaultControlInterval
	}
	if o.SlowTaskWarning <= 0 {
		o.SlowTaskWarning = defaultSlowTaskWarning
	}
	if o.DefaultRetry.Attempts <= 0 {
		o.DefaultRetry.Attempts = defaultAttempts
	}
	if o.DefaultRetry.Initial <= 0 {
		o.DefaultRetry.Initial = defaultInitialRetry
	}
	if o.DefaultRetry.Max <= 0 {
		o.DefaultRetry.Max = defaultMaxRetry
	}
	if o.Metrics == nil {
		o.Metrics = &AtomicMetrics{}
	}
}

// Validate checks the filled options. Must be called after
// FillDefaults.
func (o *Options) Validate() error {
	if o.QueueCapacity < 1 {
		return configErr("queue capacity must be >= 1, got %d", o.QueueCapacity)
	}
	if o.LowWatermark >= o.HighWatermark {
		return configErr("low watermark %d must be below high watermark %d",
			o.LowWatermark, o.HighWatermark)
	}
	// Depth never exceeds capacity, so an equal watermark could never
	// trigger scale-up.
	if o.HighWatermark >= o.QueueCapacity {
		return configErr("high watermark %d must be below queue capacity %d",
			o.HighWatermark, o.QueueCapacity)
	}
	return nil
}

// validateBudget guards pool construction against hand-built budgets
// that break the WorkerBudget invariants.
func validateBudget(b WorkerBudget) error {
	if b.Total < 1 {
		return configErr("budget total must be >= 1, got %d", b.Total)
	}
	if b.Base < 1 || b.Base > b.Total {
		return configErr("budget base %d out of range [1, %d]", b.Base, b.Total)
	}
	if b.MinBuffer < 0 || b.MinBuffer > b.MaxBuffer {
		return configErr("budget buffer range [%d, %d] is inverted", b.MinBuffer, b.MaxBuffer)
	}
	if b.Base+b.MaxBuffer != b.Total {
		return configErr("budget base %d + max buffer %d must equal total %d",
			b.Base, b.MaxBuffer, b.Total)
	}
	return nil
}
