package budgetpool

import (
	"sync/atomic"
)

// MetricsPolicy defines hooks used by the pool to report queueing,
// execution and scaling activity.
//
// Implementations must be safe for concurrent use. All methods are
// expected to be lightweight and non-blocking.
type MetricsPolicy interface {
	// IncQueued increments the admitted tasks counter.
	IncQueued()

	// IncRejected increments the rejected submissions counter.
	IncRejected()

	// IncOutcome records one resolved task by terminal state.
	IncOutcome(state OutcomeState)

	// IncBufferActivated records one buffer-worker promotion.
	IncBufferActivated()

	// IncBufferParked records one buffer-worker park.
	IncBufferParked()
}

// AtomicMetrics is a lock-free metrics implementation backed by
// atomics.
//
// Writes are optimized for hot paths. Reads are intended for cold-path
// observation.
type AtomicMetrics struct {
	queued atomic.Uint64

	_ [56]byte // padding to avoid false sharing

	executed atomic.Uint64

	rejected  atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	dropped   atomic.Uint64

	bufferActivated atomic.Uint64
	bufferParked    atomic.Uint64
}

// Stats is a cold-path snapshot of AtomicMetrics.
type Stats struct {
	Queued    uint64
	Executed  uint64
	Rejected  uint64
	Succeeded uint64
	Failed    uint64
	Cancelled uint64
	Dropped   uint64

	BufferActivated uint64
	BufferParked    uint64
}

// Snapshot returns the current counter values.
func (m *AtomicMetrics) Snapshot() Stats {
	return Stats{
		Queued:          m.queued.Load(),
		Executed:        m.executed.Load(),
		Rejected:        m.rejected.Load(),
		Succeeded:       m.succeeded.Load(),
		Failed:          m.failed.Load(),
		Cancelled:       m.cancelled.Load(),
		Dropped:         m.dropped.Load(),
		BufferActivated: m.bufferActivated.Load(),
		BufferParked:    m.bufferParked.Load(),
	}
}

func (m *AtomicMetrics) IncQueued()   { m.queued.Add(1) }
func (m *AtomicMetrics) IncRejected() { m.rejected.Add(1) }

func (m *AtomicMetrics) IncOutcome(state OutcomeState) {
	switch state {
	case StateSucceeded:
		m.executed.Add(1)
		m.succeeded.Add(1)
	case StateFailed:
		m.executed.Add(1)
		m.failed.Add(1)
	case StateCancelled:
		m.cancelled.Add(1)
	case StateDropped:
		m.dropped.Add(1)
	case StateRejected:
		m.rejected.Add(1)
	}
}

func (m *AtomicMetrics) IncBufferActivated() { m.bufferActivated.Add(1) }
func (m *AtomicMetrics) IncBufferParked()    { m.bufferParked.Add(1) }

//------------- NoopMetrics ----------------------------------

// NoopMetrics is a MetricsPolicy implementation that discards all
// metric updates.
//
// It can be used when metrics collection is disabled and zero overhead
// is desired.
type NoopMetrics struct{}

func (NoopMetrics) IncQueued()              {}
func (NoopMetrics) IncRejected()            {}
func (NoopMetrics) IncOutcome(OutcomeState) {}
func (NoopMetrics) IncBufferActivated()     {}
func (NoopMetrics) IncBufferParked()        {}
