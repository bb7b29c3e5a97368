package budgetpool

import (
	"runtime"
)

// HardwareTier is a coarse classification of machine capability used to
// size the pool. It is computed once at startup and passed explicitly
// into budget computation; nothing in this package caches it globally.
type HardwareTier uint8

const (
	// TierLow covers constrained hardware (two logical cores or
	// fewer). Budgets for this tier reserve no buffer capacity.
	TierLow HardwareTier = iota

	// TierMid covers typical hardware (three to seven logical cores).
	TierMid

	// TierHigh covers eight or more logical cores.
	TierHigh
)

// Tier thresholds are tunable policy, not correctness constraints.
const (
	lowTierMaxCores = 2
	midTierMaxCores = 7
)

func (t HardwareTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMid:
		return "mid"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Valid reports whether the tier is a known value.
func (t HardwareTier) Valid() bool {
	return t <= TierHigh
}

// TierForCores classifies a logical core count into a tier.
// Non-positive counts classify as TierLow, the most conservative
// allocation.
func TierForCores(cores int) HardwareTier {
	switch {
	case cores <= lowTierMaxCores:
		return TierLow
	case cores <= midTierMaxCores:
		return TierMid
	default:
		return TierHigh
	}
}

// DetectTier queries the runtime for the logical core count and
// classifies it. It has no failure mode: a degenerate count falls back
// to TierLow.
func DetectTier() HardwareTier {
	return TierForCores(runtime.NumCPU())
}
