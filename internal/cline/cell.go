// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cline provides cache-line-isolated atomic cells.
//
// A Cell wraps a single atomic uint64 and pads it so that two Cells never
// share a cache line, regardless of how they are
// packed into a slice or struct. This matters for the per-core announcement
// slots used by the local-write epoch manager: if two cores' slots shared a
// cache line, every store by one core would invalidate the other core's
// cached copy, turning an otherwise write-local fast path into a source of
// cross-core coherence traffic.
//
// Unlike a hand-rolled "allocate one extra cache line, then align the
// pointer" factory, Cell relies on Go struct layout and padding: declaring
// the 8-byte payload and a byte pad filling the rest of the line inside one
// struct makes the struct's size exactly CacheLineSize, so a []Cell lays
// them out one per cache line with no manual pointer arithmetic.
package cline

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is the assumed cache line size in bytes on the target
// architectures this package is built for (x86-64 and arm64 both use 64).
const CacheLineSize = 64

// Cell is a cache-line-padded atomic uint64 counter.
//
// Cell's zero value holds 0 and is ready to use.
type Cell struct {
	v   atomic.Uint64
	_   [CacheLineSize - 8]byte
}

// Load returns the current value with acquire ordering.
func (c *Cell) Load() uint64 { return c.v.Load() }

// Store sets the value with release ordering.
func (c *Cell) Store(val uint64) { c.v.Store(val) }

// Add atomically adds delta and returns the new value. Ordering is relaxed
// with respect to any particular reader; callers that need a happens-before
// relationship must establish it themselves (the collector's epoch advance
// only needs monotonicity, not ordering against any single announcement).
func (c *Cell) Add(delta uint64) uint64 { return c.v.Add(delta) }

// CompareAndSwap atomically swaps old for new and reports whether it
// succeeded.
func (c *Cell) CompareAndSwap(old, new uint64) bool {
	return c.v.CompareAndSwap(old, new)
}

func init() {
	if sz := unsafe.Sizeof(Cell{}); sz != CacheLineSize {
		panic(fmt.Sprintf("cline: Cell size is %d bytes, want %d", sz, CacheLineSize))
	}
}
