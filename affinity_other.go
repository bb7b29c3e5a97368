//go:build !linux

package budgetpool

// CPU pinning is Linux-only; elsewhere PinWorkers is a no-op.
func pinToCPU(int) error { return nil }
