// Licensed under the MIT License. See LICENSE file in the project root for details.

package reclaim

import (
	"sync"
	"sync/atomic"
)

// garbageNode is a LocalWriteEM garbage-list element. The head of the
// garbage list is never touched by the collector (see Collect), so a node,
// once linked, is immutable except for next, which a worker sets before the
// CAS that publishes it and which afterwards only the collector rewrites,
// when it unlinks that node's successor.
type garbageNode[T any] struct {
	payload     *T
	retireEpoch uint64
	next        atomic.Pointer[garbageNode[T]]
}

// garbageNodePool provides allocation-free reuse of garbageNode values,
// mirroring the object-pooling the teacher's MVCC layer uses for its
// Version nodes: Get returns a zeroed node, Put clears every field
// (including the payload pointer, so a pooled node never keeps a freed
// payload artificially reachable) before returning it to the pool.
type garbageNodePool[T any] struct {
	pool sync.Pool
}

func newGarbageNodePool[T any]() *garbageNodePool[T] {
	return &garbageNodePool[T]{
		pool: sync.Pool{
			New: func() any { return &garbageNode[T]{} },
		},
	}
}

func (p *garbageNodePool[T]) get() *garbageNode[T] {
	return p.pool.Get().(*garbageNode[T])
}

func (p *garbageNodePool[T]) put(n *garbageNode[T]) {
	n.payload = nil
	n.retireEpoch = 0
	n.next.Store(nil)
	p.pool.Put(n)
}

// epochNode is a GlobalWriteEM epoch-list element.
type epochNode[T any] struct {
	activeThreads atomic.Int64
	garbageHead   atomic.Pointer[epochGarbageNode[T]]
	next          *epochNode[T]
}

// epochGarbageNode is a GlobalWriteEM garbage-list element, scoped to the
// epoch it was retired into.
type epochGarbageNode[T any] struct {
	payload *T
	next    *epochGarbageNode[T]
}

// epochNodePool reuses epochNode values the same way garbageNodePool reuses
// garbageNode values: put drops the node's garbage chain immediately,
// rather than leaving it for get to clear, so retired payloads don't stay
// reachable through a pooled-but-not-yet-reused node.
type epochNodePool[T any] struct {
	pool sync.Pool
}

func newEpochNodePool[T any]() *epochNodePool[T] {
	return &epochNodePool[T]{
		pool: sync.Pool{
			New: func() any { return &epochNode[T]{} },
		},
	}
}

func (p *epochNodePool[T]) get() *epochNode[T] {
	n := p.pool.Get().(*epochNode[T])
	n.activeThreads.Store(0)
	n.garbageHead.Store(nil)
	n.next = nil
	return n
}

func (p *epochNodePool[T]) put(n *epochNode[T]) {
	n.next = nil
	n.garbageHead.Store(nil)
	p.pool.Put(n)
}
