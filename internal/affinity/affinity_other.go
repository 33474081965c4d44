// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build !linux

package affinity

import (
	"fmt"
	"runtime"
)

// Pin is a portable no-op outside Linux: unix.SchedSetaffinity has no
// equivalent in this package's other supported targets. Callers still get
// runtime.LockOSThread, so a benchmark built on a non-Linux platform at
// least keeps one goroutine per OS thread, even without true core pinning.
func Pin(coreID int) error {
	if coreID < 0 {
		return fmt.Errorf("affinity: negative core id %d", coreID)
	}
	runtime.LockOSThread()
	return nil
}

// CoreCount reports the number of logical cores usable by this process.
func CoreCount() int { return runtime.NumCPU() }
