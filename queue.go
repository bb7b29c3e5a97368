package budgetpool

import (
	"sync"
	"sync/atomic"
)

// queued is one queue slot: the task plus its optional completion
// handle. Fire-and-forget submissions carry a nil handle.
type queued[T any] struct {
	task   Task[T]
	handle *Handle
}

// ring is a growable circular buffer holding one priority class.
// It grows on demand but the queue bounds total occupancy across all
// classes, so a ring never exceeds the configured capacity.
type ring[T any] struct {
	buf  []queued[T]
	head int
	size int
}

const ringMinCap = 64

func (r *ring[T]) push(it queued[T]) {
	if r.size == len(r.buf) {
		newCap := len(r.buf) * 2
		if newCap < ringMinCap {
			newCap = ringMinCap
		}
		next := make([]queued[T], newCap)
		for i := 0; i < r.size; i++ {
			next[i] = r.buf[(r.head+i)%len(r.buf)]
		}
		r.buf = next
		r.head = 0
	}
	r.buf[(r.head+r.size)%len(r.buf)] = it
	r.size++
}

func (r *ring[T]) pop() (queued[T], bool) {
	if r.size == 0 {
		return queued[T]{}, false
	}
	it := r.buf[r.head]
	r.buf[r.head] = queued[T]{} // release references
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return it, true
}

// taskQueue is the bounded multi-producer multi-consumer queue shared
// by all workers. One FIFO ring per priority class; dequeue scans the
// classes highest-first, so equal-priority tasks keep submission order
// and a higher class wins when both have tasks waiting.
//
// All mutation happens under one mutex; the depth counter is atomic so
// the scaling controller can sample it without taking the lock.
type taskQueue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	rings    [numClasses]ring[T]
	total    int
	capacity int
	closed   bool

	// gen is bumped by wake and close so idle workers re-examine
	// their eligibility even when no task arrived.
	gen uint64

	depth atomic.Int64
}

func newTaskQueue[T any](capacity int) *taskQueue[T] {
	q := &taskQueue[T]{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// push admits one item. With block set, a full queue suspends the
// producer until space frees up (bounded backpressure); otherwise the
// item is rejected with ErrQueueFull. Submissions after close fail
// with ErrPoolClosed, including producers already blocked on space.
func (q *taskQueue[T]) push(it queued[T], block bool) error {
	q.mu.Lock()
	for !q.closed && q.total >= q.capacity {
		if !block {
			q.mu.Unlock()
			return ErrQueueFull
		}
		q.notFull.Wait()
	}
	if q.closed {
		q.mu.Unlock()
		return ErrPoolClosed
	}

	q.rings[it.task.Priority.classIndex()].push(it)
	q.total++
	q.depth.Store(int64(q.total))

	// Critical and high classes wake everyone for immediate pickup;
	// the rest wake a single worker to limit thundering herd.
	if it.task.Priority.classIndex() <= PriorityHigh.classIndex() {
		q.notEmpty.Broadcast()
	} else {
		q.notEmpty.Signal()
	}
	q.mu.Unlock()
	return nil
}

// tryPop removes the next task, highest class first. The depth counter
// moves atomically with the removal, under the queue lock.
func (q *taskQueue[T]) tryPop() (queued[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.total == 0 {
		return queued[T]{}, false
	}
	for c := 0; c < numClasses; c++ {
		if it, ok := q.rings[c].pop(); ok {
			q.total--
			q.depth.Store(int64(q.total))
			q.notFull.Signal()
			return it, true
		}
	}
	return queued[T]{}, false
}

// waitForWork parks the calling worker until a task may be available,
// the queue closes, or wake is called. No busy spinning: idle workers
// sit in the condition variable.
func (q *taskQueue[T]) waitForWork() {
	q.mu.Lock()
	gen := q.gen
	for q.gen == gen && q.total == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	q.mu.Unlock()
}

// wake forces every idle worker to re-run its dispatch loop. The
// controller uses it after a scaling change so demoted workers park
// and promoted ones start pulling.
func (q *taskQueue[T]) wake() {
	q.mu.Lock()
	q.gen++
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}

// close stops admission. With discard set, queued-but-unstarted items
// are removed and returned so the pool can resolve their handles;
// otherwise they stay for workers to drain. Blocked producers and idle
// workers are released either way.
func (q *taskQueue[T]) close(discard bool) []queued[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.gen++

	var dropped []queued[T]
	if discard && q.total > 0 {
		dropped = make([]queued[T], 0, q.total)
		for c := 0; c < numClasses; c++ {
			for {
				it, ok := q.rings[c].pop()
				if !ok {
					break
				}
				dropped = append(dropped, it)
			}
		}
		q.total = 0
		q.depth.Store(0)
	}

	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return dropped
}

// Depth reports the current queue depth. Safe for lock-free sampling
// by the scaling controller.
func (q *taskQueue[T]) Depth() int64 { return q.depth.Load() }
