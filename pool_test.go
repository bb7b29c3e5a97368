package budgetpool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bp "github.com/Andrej220/go-utils/budgetpool"
)

// fastOpts keeps the controller responsive enough for test timeouts.
func fastOpts() bp.Options {
	return bp.Options{
		QueueCapacity:   64,
		HighWatermark:   4,
		LowWatermark:    1,
		ControlInterval: time.Millisecond,
	}
}

func newTestPool(t *testing.T, budget bp.WorkerBudget, opts bp.Options) *bp.Pool[int] {
	t.Helper()
	p, err := bp.NewPool[int](budget, opts)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func TestNewPoolInvalidConfig(t *testing.T) {
	budget := bp.WorkerBudget{Total: 2, Base: 2}

	_, err := bp.NewPool[int](budget, bp.Options{HighWatermark: 10, LowWatermark: 20, QueueCapacity: 64})
	assert.ErrorIs(t, err, bp.ErrInvalidConfig)

	// Depth tops out at capacity, so this watermark could never fire.
	_, err = bp.NewPool[int](budget, bp.Options{HighWatermark: 64, LowWatermark: 1, QueueCapacity: 64})
	assert.ErrorIs(t, err, bp.ErrInvalidConfig)

	_, err = bp.NewPool[int](bp.WorkerBudget{Total: 4, Base: 2, MaxBuffer: 1}, bp.Options{})
	assert.ErrorIs(t, err, bp.ErrInvalidConfig)

	_, err = bp.NewPool[int](bp.WorkerBudget{Total: 0}, bp.Options{})
	assert.ErrorIs(t, err, bp.ErrInvalidConfig)
}

func TestSubmitRunsTask(t *testing.T) {
	p := newTestPool(t, bp.WorkerBudget{Total: 2, Base: 2}, fastOpts())

	done := make(chan int, 1)
	err := p.Submit(bp.Task[int]{
		Payload: 41,
		Fn: func(n int) error {
			done <- n + 1
			return nil
		},
	})
	require.NoError(t, err)

	select {
	case got := <-done:
		assert.Equal(t, 42, got)
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestTaskFailureDoesNotStopPool(t *testing.T) {
	var hookErr atomic.Value
	opts := fastOpts()
	opts.OnTaskError = func(err error) { hookErr.Store(err) }
	p := newTestPool(t, bp.WorkerBudget{Total: 1, Base: 1}, opts)

	boom := errors.New("boom")
	batch, err := p.SubmitBatch([]bp.Task[int]{
		{Fn: func(int) error { return boom }},
		{Fn: func(int) error { return nil }},
	}, bp.AdmitBlock)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcomes, err := batch.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, bp.StateFailed, outcomes[0].State)
	assert.ErrorIs(t, outcomes[0].Err, boom)
	assert.Equal(t, bp.StateSucceeded, outcomes[1].State)
	assert.Equal(t, boom, hookErr.Load())
}

func TestPanicRecoveredAtWorkerBoundary(t *testing.T) {
	p := newTestPool(t, bp.WorkerBudget{Total: 1, Base: 1}, fastOpts())

	batch, err := p.SubmitBatch([]bp.Task[int]{
		{Fn: func(int) error { panic("kaboom") }},
		{Fn: func(int) error { return nil }},
	}, bp.AdmitBlock)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcomes, err := batch.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, bp.StateFailed, outcomes[0].State)
	assert.Contains(t, outcomes[0].Err.Error(), "panicked")
	// The worker survived the panic and served the next task.
	assert.Equal(t, bp.StateSucceeded, outcomes[1].State)
}

func TestRetryThenSuccess(t *testing.T) {
	p := newTestPool(t, bp.WorkerBudget{Total: 1, Base: 1}, fastOpts())

	var attempts int32
	batch, err := p.SubmitBatch([]bp.Task[int]{{
		Retry: &bp.RetryPolicy{Attempts: 3, Initial: 2 * time.Millisecond, Max: 5 * time.Millisecond},
		Fn: func(int) error {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
	}}, bp.AdmitBlock)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcomes, err := batch.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, bp.StateSucceeded, outcomes[0].State)
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	p := newTestPool(t, bp.WorkerBudget{Total: 1, Base: 1}, fastOpts())

	taskCtx, cancelTask := context.WithCancel(context.Background())
	defer cancelTask()

	var attempts int32
	firstFail := make(chan struct{})
	batch, err := p.SubmitBatch([]bp.Task[int]{{
		Ctx:   taskCtx,
		Retry: &bp.RetryPolicy{Attempts: 3, Initial: time.Second, Max: time.Second},
		Fn: func(int) error {
			if atomic.AddInt32(&attempts, 1) == 1 {
				close(firstFail)
			}
			return errors.New("transient")
		},
	}}, bp.AdmitBlock)
	require.NoError(t, err)

	<-firstFail
	cancelTask() // the worker is sleeping off the first failure

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := batch.Handles()[0].Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, bp.StateCancelled, outcome.State)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts),
		"cancellation during backoff must stop further attempts")
}

func TestCancelBeforeDequeue(t *testing.T) {
	p := newTestPool(t, bp.WorkerBudget{Total: 1, Base: 1}, fastOpts())

	gate := make(chan struct{})
	running := make(chan struct{})
	require.NoError(t, p.Submit(bp.Task[int]{Fn: func(int) error {
		close(running)
		<-gate
		return nil
	}}))
	<-running // the only worker is now occupied

	var ran atomic.Bool
	batch, err := p.SubmitBatch([]bp.Task[int]{{Fn: func(int) error {
		ran.Store(true)
		return nil
	}}}, bp.AdmitBlock)
	require.NoError(t, err)

	h := batch.Handles()[0]
	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel(), "second cancel is a no-op")

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := h.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, bp.StateCancelled, outcome.State)
	assert.False(t, ran.Load(), "cancelled task body must never execute")
}

func TestCancelAfterDequeueHasNoEffect(t *testing.T) {
	p := newTestPool(t, bp.WorkerBudget{Total: 1, Base: 1}, fastOpts())

	gate := make(chan struct{})
	running := make(chan struct{})
	batch, err := p.SubmitBatch([]bp.Task[int]{{Fn: func(int) error {
		close(running)
		<-gate
		return nil
	}}}, bp.AdmitBlock)
	require.NoError(t, err)

	<-running // execution started
	h := batch.Handles()[0]
	assert.False(t, h.Cancel(), "in-flight task cannot be cancelled")

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, bp.StateSucceeded, outcome.State)
}

func TestGracefulShutdownDrainsQueue(t *testing.T) {
	p, err := bp.NewPool[int](bp.WorkerBudget{Total: 2, Base: 2}, fastOpts())
	require.NoError(t, err)

	var executed int32
	tasks := make([]bp.Task[int], 50)
	for i := range tasks {
		tasks[i] = bp.Task[int]{Fn: func(int) error {
			atomic.AddInt32(&executed, 1)
			return nil
		}}
	}
	batch, err := p.SubmitBatch(tasks, bp.AdmitBlock)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx, bp.DrainGraceful))

	assert.EqualValues(t, 50, atomic.LoadInt32(&executed))
	outcomes, err := batch.Wait(ctx)
	require.NoError(t, err)
	for i, o := range outcomes {
		assert.Equalf(t, bp.StateSucceeded, o.State, "task %d", i)
	}
}

func TestImmediateShutdownDropsUnstarted(t *testing.T) {
	p, err := bp.NewPool[int](bp.WorkerBudget{Total: 2, Base: 2}, fastOpts())
	require.NoError(t, err)

	gate := make(chan struct{})
	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		require.NoError(t, p.Submit(bp.Task[int]{Fn: func(int) error {
			started <- struct{}{}
			<-gate
			return nil
		}}))
	}
	<-started
	<-started // both workers are mid-task

	var executed int32
	tasks := make([]bp.Task[int], 10)
	for i := range tasks {
		tasks[i] = bp.Task[int]{Fn: func(int) error {
			atomic.AddInt32(&executed, 1)
			return nil
		}}
	}
	batch, err := p.SubmitBatch(tasks, bp.AdmitBlock)
	require.NoError(t, err)

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownDone <- p.Shutdown(ctx, bp.DrainImmediate)
	}()

	// Queued tasks resolve as dropped without waiting for the gate.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcomes, err := batch.Wait(ctx)
	require.NoError(t, err)
	for i, o := range outcomes {
		assert.Equalf(t, bp.StateDropped, o.State, "task %d", i)
	}
	assert.Zero(t, atomic.LoadInt32(&executed))

	close(gate) // let in-flight tasks finish
	require.NoError(t, <-shutdownDone)
	assert.EqualValues(t, 10, p.Stats().Dropped)
}

func TestImmediateShutdownKeepsCancelledOutcome(t *testing.T) {
	p, err := bp.NewPool[int](bp.WorkerBudget{Total: 1, Base: 1}, fastOpts())
	require.NoError(t, err)

	gate := make(chan struct{})
	running := make(chan struct{})
	require.NoError(t, p.Submit(bp.Task[int]{Fn: func(int) error {
		close(running)
		<-gate
		return nil
	}}))
	<-running // the only worker is now occupied

	batch, err := p.SubmitBatch([]bp.Task[int]{
		{Fn: func(int) error { return nil }},
		{Fn: func(int) error { return nil }},
	}, bp.AdmitBlock)
	require.NoError(t, err)

	require.True(t, batch.Handles()[0].Cancel())

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownDone <- p.Shutdown(ctx, bp.DrainImmediate)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcomes, err := batch.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, bp.StateCancelled, outcomes[0].State)
	assert.Equal(t, bp.StateDropped, outcomes[1].State)

	close(gate)
	require.NoError(t, <-shutdownDone)

	// The cancelled task is reported once, as cancelled, not as dropped.
	stats := p.Stats()
	assert.EqualValues(t, 1, stats.Cancelled)
	assert.EqualValues(t, 1, stats.Dropped)
}

func TestSubmitAfterShutdown(t *testing.T) {
	p, err := bp.NewPool[int](bp.WorkerBudget{Total: 1, Base: 1}, fastOpts())
	require.NoError(t, err)
	p.Stop()

	err = p.Submit(bp.Task[int]{Fn: func(int) error { return nil }})
	assert.ErrorIs(t, err, bp.ErrPoolClosed)
	assert.False(t, p.TrySubmit(bp.Task[int]{Fn: func(int) error { return nil }}))
	assert.EqualValues(t, 1, p.Stats().Rejected, "every false TrySubmit is counted")
	assert.False(t, p.TrySubmit(bp.Task[int]{}))
	assert.EqualValues(t, 2, p.Stats().Rejected, "nil-func TrySubmit is counted")

	batch, err := p.SubmitBatch([]bp.Task[int]{{Fn: func(int) error { return nil }}}, bp.AdmitReject)
	assert.Error(t, err)
	outcome, ok := batch.Handles()[0].Poll()
	require.True(t, ok, "rejected handle must resolve immediately")
	assert.Equal(t, bp.StateRejected, outcome.State)
	assert.ErrorIs(t, outcome.Err, bp.ErrPoolClosed)
}

func TestBufferWorkersScaleWithLoad(t *testing.T) {
	budget := bp.WorkerBudget{Total: 4, Base: 1, MinBuffer: 0, MaxBuffer: 3}
	p := newTestPool(t, budget, fastOpts())

	assert.Equal(t, 0, p.ActiveBufferWorkers())

	gate := make(chan struct{})
	for i := 0; i < 30; i++ {
		require.NoError(t, p.Submit(bp.Task[int]{Fn: func(int) error {
			<-gate
			return nil
		}}))
	}

	// Sustained depth above the high watermark converges the active
	// buffer count to MaxBuffer, never past it.
	var maxSeen int64
	assert.Eventually(t, func() bool {
		n := p.ActiveBufferWorkers()
		if int64(n) > atomic.LoadInt64(&maxSeen) {
			atomic.StoreInt64(&maxSeen, int64(n))
		}
		return n == budget.MaxBuffer
	}, 2*time.Second, 5*time.Millisecond)

	close(gate)

	// A drained queue parks buffer workers back down to MinBuffer.
	var minSeen int64 = int64(budget.MaxBuffer)
	assert.Eventually(t, func() bool {
		n := p.ActiveBufferWorkers()
		if int64(n) < atomic.LoadInt64(&minSeen) {
			atomic.StoreInt64(&minSeen, int64(n))
		}
		return n == budget.MinBuffer && p.QueueDepth() == 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(budget.MaxBuffer))
	assert.GreaterOrEqual(t, atomic.LoadInt64(&minSeen), int64(budget.MinBuffer))

	stats := p.Stats()
	assert.GreaterOrEqual(t, stats.BufferActivated, uint64(3))
	assert.GreaterOrEqual(t, stats.BufferParked, uint64(3))
}

func TestWorkerStatesSnapshot(t *testing.T) {
	budget := bp.WorkerBudget{Total: 4, Base: 2, MinBuffer: 0, MaxBuffer: 2}
	p := newTestPool(t, budget, fastOpts())

	states := p.WorkerStates()
	require.Len(t, states, 4)

	var base, buffer int
	for _, s := range states {
		switch s.Role {
		case bp.RoleBase:
			base++
		case bp.RoleBuffer:
			buffer++
		}
	}
	assert.Equal(t, 2, base)
	assert.Equal(t, 2, buffer)

	// With no load, buffer workers sit parked.
	assert.Eventually(t, func() bool {
		parked := 0
		for _, s := range p.WorkerStates() {
			if s.Role == bp.RoleBuffer && s.Status == bp.StatusParked {
				parked++
			}
		}
		return parked == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAutoDetectConstructor(t *testing.T) {
	p, err := bp.New[int](0, bp.Options{})
	require.NoError(t, err)
	defer p.Stop()

	b := p.Budget()
	assert.GreaterOrEqual(t, b.Base, 1)
	assert.Equal(t, b.Total, b.Base+b.MaxBuffer)
}
