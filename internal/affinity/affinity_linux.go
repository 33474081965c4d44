// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build linux

// Package affinity pins the calling goroutine's OS thread to a specific
// logical core, for benchmark workers that want to exercise
// LocalWriteEM's "stable core id" contract for real rather than just
// assuming the scheduler won't move them.
//
// The reclaimer core never calls this package itself: AnnounceEnter takes
// whatever core id the caller hands it and trusts the caller to keep it
// stable for the duration of the operation. Pinning is how a caller makes
// that true.
package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its current OS thread and restricts
// that thread to run only on coreID. The lock is never undone by this
// package; callers that need to release the pin should call
// runtime.UnlockOSThread themselves once they are done announcing from
// coreID.
func Pin(coreID int) error {
	if coreID < 0 {
		return fmt.Errorf("affinity: negative core id %d", coreID)
	}
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("affinity: SchedSetaffinity(core=%d): %w", coreID, err)
	}
	return nil
}

// CoreCount reports the number of logical cores usable by this process.
func CoreCount() int { return runtime.NumCPU() }
