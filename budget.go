package budgetpool

import (
	"math"
)

// WorkerBudget is the split of a worker count into always-on base
// workers and a bounded buffer-worker range. It is a value computed
// once at pool construction (or on tier change) and never mutated
// mid-run.
//
// Invariants, enforced by BudgetPolicy.Compute:
//
//	1 <= Base <= Total
//	0 <= MinBuffer <= MaxBuffer
//	Base + MaxBuffer == Total
type WorkerBudget struct {
	// Total is the number of workers the pool will own.
	Total int

	// Base workers are always eligible for dispatch and never parked.
	Base int

	// MinBuffer is the floor for active buffer workers; the scaling
	// controller never parks below it.
	MinBuffer int

	// MaxBuffer is the ceiling for active buffer workers.
	MaxBuffer int

	// BurstPercent is the fraction of Total available as buffer
	// capacity. Informational; derived from the split.
	BurstPercent float64
}

// HasBufferCapacity reports whether the budget allows any burst
// scaling at all.
func (b WorkerBudget) HasBufferCapacity() bool {
	return b.MaxBuffer > 0
}

// BudgetPolicy holds the tunable constants of budget computation.
// The defaults reserve roughly 70% of capacity as base workers and 30%
// as burst-capable buffer on mid and high tiers; the low tier reserves
// everything as base to avoid oversubscribing constrained hardware.
// None of the percentages are load-bearing: correctness follows from
// the WorkerBudget invariants, not the split itself.
type BudgetPolicy struct {
	// BaseFraction maps each tier to the share of the total kept as
	// always-on base workers.
	BaseFraction map[HardwareTier]float64

	// MinBufferFraction is the share of MaxBuffer kept active even
	// when the queue is quiet.
	MinBufferFraction float64

	// MaxTotal caps the requested worker count per tier. Requests
	// above the cap are clamped; the pool reports the clamp when it
	// happens.
	MaxTotal map[HardwareTier]int
}

// DefaultBudgetPolicy returns the policy used by ComputeBudget.
func DefaultBudgetPolicy() BudgetPolicy {
	return BudgetPolicy{
		BaseFraction: map[HardwareTier]float64{
			TierLow:  1.0,
			TierMid:  0.7,
			TierHigh: 0.7,
		},
		MinBufferFraction: 0.25,
		MaxTotal: map[HardwareTier]int{
			TierLow:  4,
			TierMid:  16,
			TierHigh: 64,
		},
	}
}

// ComputeBudget computes a budget using the default policy.
func ComputeBudget(tier HardwareTier, requestedTotal int) (WorkerBudget, error) {
	return DefaultBudgetPolicy().Compute(tier, requestedTotal)
}

// Compute splits requestedTotal into base and buffer capacity for the
// given tier. It is pure: same inputs, same budget.
//
// requestedTotal below one is ErrInvalidConfig. Totals above the tier
// ceiling clamp to it; callers observe the clamp by comparing
// WorkerBudget.Total with what they asked for.
func (p BudgetPolicy) Compute(tier HardwareTier, requestedTotal int) (WorkerBudget, error) {
	if requestedTotal < 1 {
		return WorkerBudget{}, configErr("requestedTotal must be >= 1, got %d", requestedTotal)
	}
	if !tier.Valid() {
		return WorkerBudget{}, configErr("unknown hardware tier %d", tier)
	}

	total := requestedTotal
	if ceil, ok := p.MaxTotal[tier]; ok && ceil > 0 && total > ceil {
		total = ceil
	}

	frac, ok := p.BaseFraction[tier]
	if !ok {
		frac = 1.0
	}
	base := int(math.Ceil(float64(total) * frac))
	if base < 1 {
		base = 1
	}
	if base > total {
		base = total
	}

	maxBuffer := total - base
	minBuffer := int(math.Floor(float64(maxBuffer) * p.MinBufferFraction))

	return WorkerBudget{
		Total:        total,
		Base:         base,
		MinBuffer:    minBuffer,
		MaxBuffer:    maxBuffer,
		BurstPercent: float64(maxBuffer) / float64(total),
	}, nil
}
