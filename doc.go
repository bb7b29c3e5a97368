// Package budgetpool provides a worker-budget thread pool for real-time
// simulation pipelines.
//
// # Design goals
//
// The package is designed around the following principles:
//
//   - Keep per-frame latency bounded under bursty load
//   - Never oversubscribe constrained hardware
//   - Make scaling decisions explicit and observable
//   - Recover from task failures without losing workers
//
// Rather than optimizing the latency of a single task, budgetpool
// optimizes for predictable frame times when event, AI and collision
// pipelines each dump a batch of independent work items every tick.
//
// # Architecture overview
//
// The pool is composed of four loosely coupled layers:
//
//  1. Budget (HardwareTier / WorkerBudget)
//     A pure computation splitting a requested worker count into
//     always-on base workers and a bounded buffer-worker range,
//     sized per detected hardware tier.
//
//  2. Queueing (taskQueue)
//     A bounded multi-priority FIFO queue. Producers either block on
//     backpressure or get an immediate rejection, per call site.
//     An atomic depth counter feeds the scaling controller.
//
//  3. Execution (Pool / workers)
//     Base workers are always eligible for dispatch. Buffer workers
//     are promoted and parked by a watermark controller with
//     hysteresis, never interrupting in-flight work.
//
//  4. Completion (Handle / Batch)
//     Submitters receive handles resolved exactly once with a final
//     outcome (succeeded, failed, cancelled, dropped, rejected) and
//     can block or poll on whole batches.
//
// # Budget model
//
// A WorkerBudget is computed once at construction from a hardware tier
// and a requested total. Every configured worker is either base or
// buffer capacity:
//
//	Base + MaxBuffer == Total
//
// Low-tier machines reserve all capacity as base workers so burst
// scaling never oversubscribes a 2-core host. Mid and high tiers keep
// roughly 30% of the total as burst-capable buffer capacity.
//
// # Scaling model
//
// The controller samples queue depth every control tick. Depth above
// the high watermark activates one buffer worker per tick, up to
// MaxBuffer. Depth below the low watermark parks the most recently
// activated buffer worker once it finishes its current task, down to
// MinBuffer. The gap between the two watermarks provides hysteresis so
// load hovering near one threshold does not thrash.
//
// # Error handling
//
// The pool distinguishes three classes of failure:
//
//   - Construction errors: invalid configuration is fatal and returned
//     from NewPool, never silently repaired.
//   - Admission errors: a full queue or a closed pool is reported to
//     the submitting caller, which decides whether to retry or drop.
//   - Task errors: errors and panics inside task functions are caught
//     at the worker boundary and reported through the task's handle;
//     the worker returns to the queue.
//
// # Intended use cases
//
// budgetpool is well suited for frame-oriented batch workloads:
// dispatching N event handlers, updating M AI agents, checking
// pairwise collision candidates. It is not a general-purpose OS
// scheduler, not a distributed task queue, and does not persist task
// state across restarts.
package budgetpool
