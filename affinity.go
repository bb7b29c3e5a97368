//go:build linux

package budgetpool

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCPU locks the calling goroutine to an OS thread and restricts
// that thread to one CPU. Used at worker startup when
// Options.PinWorkers is set; cache locality for tight per-frame loops,
// at the cost of scheduler freedom.
func pinToCPU(cpu int) error {
	runtime.LockOSThread()
	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpu % runtime.NumCPU())
	return unix.SchedSetaffinity(0, &mask)
}
