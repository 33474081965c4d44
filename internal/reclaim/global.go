// Licensed under the MIT License. See LICENSE file in the project root for details.

package reclaim

import (
	"sync/atomic"
	"time"
)

// latched is the sentinel active-thread count Collect installs on an
// epoch node once it has observed zero live threads. Any Enter racing the
// latch observes a negative count and retries against the (possibly newer)
// current epoch, rather than joining an epoch about to be freed.
const latched = int64(-1 << 32)

// GlobalWriteEM is a reference-counted epoch-list manager: every critical
// section performs an atomic increment/decrement on the current epoch's
// counter. Simpler than LocalWriteEM, but every Enter/Leave pair serializes
// on that counter.
type GlobalWriteEM[T any] struct {
	headEpoch    atomic.Pointer[epochNode[T]]
	currentEpoch atomic.Pointer[epochNode[T]]

	pool *epochNodePool[T]

	metrics   GlobalMetrics
	collector *collector
}

// NewGlobalWriteEM constructs a manager with a single initial epoch: zero
// active threads, an empty garbage list, no successor.
func NewGlobalWriteEM[T any](opts ...func(*Option)) *GlobalWriteEM[T] {
	o := resolveOptions(opts)

	em := &GlobalWriteEM[T]{
		pool:    newEpochNodePool[T](),
		metrics: newGlobalMetrics(o.constLabels),
	}
	em.metrics.register(o.registerer)

	initial := em.pool.get()
	em.headEpoch.Store(initial)
	em.currentEpoch.Store(initial)
	em.metrics.EpochCreated.Inc()

	em.collector = newCollector(em.PerformGCCycle)
	em.collector.setInterval(o.interval)
	return em
}

// Enter joins the current epoch and returns a handle Leave must be called
// with exactly once. The retry loop is bounded in practice by the number
// of concurrent GC cycles; it is not wait-free, trading wait-freedom for
// simplicity, as the scheme is specified to do.
func (em *GlobalWriteEM[T]) Enter() *epochNode[T] {
	for {
		e := em.currentEpoch.Load()
		prev := e.activeThreads.Add(1) - 1
		if prev >= 0 {
			em.metrics.EpochJoin.Inc()
			return e
		}
		// e was latched for reclamation between our load and our Add;
		// undo it and retry against whatever is current now.
		e.activeThreads.Add(-1)
	}
}

// Leave releases a handle obtained from Enter. The counter may go
// negative transiently if a collector cycle is concurrently latching this
// epoch; that is permitted and harmless, since the latch only fires once
// the count is observed to be exactly zero.
func (em *GlobalWriteEM[T]) Leave(handle *epochNode[T]) {
	handle.activeThreads.Add(-1)
	em.metrics.EpochLeave.Inc()
}

// Retire surrenders ptr into the current epoch's garbage list. The caller
// must sample/publish the detachment that made ptr unreachable before
// calling Retire, so that every thread able to still observe ptr has
// necessarily announced at an epoch no later than the one captured here.
func (em *GlobalWriteEM[T]) Retire(ptr *T) {
	e := em.currentEpoch.Load()
	g := &epochGarbageNode[T]{payload: ptr}

	for {
		head := e.garbageHead.Load()
		g.next = head
		if e.garbageHead.CompareAndSwap(head, g) {
			return
		}
	}
}

// Advance publishes a new epoch node as the successor of the current one
// and then makes it current.
func (em *GlobalWriteEM[T]) Advance() {
	next := em.pool.get()
	cur := em.currentEpoch.Load()
	cur.next = next
	em.currentEpoch.Store(next)
	em.metrics.EpochCreated.Inc()
}

// Collect walks the epoch chain from the head, latching and reclaiming
// every quiesced epoch up to (but never including) the current one.
//
// An epoch whose active-thread count CAS(0, latched) fails still has live
// threads; Collect stops there rather than skipping ahead, since epochs
// must be reclaimed in creation order (a later epoch's garbage may refer to
// objects a thread that joined an earlier, still-live epoch can still
// reach).
func (em *GlobalWriteEM[T]) Collect() {
	for {
		head := em.headEpoch.Load()
		cur := em.currentEpoch.Load()
		if head == cur {
			return
		}
		if !head.activeThreads.CompareAndSwap(0, latched) {
			return
		}

		// Dropping every reference to the garbage nodes here is this
		// reclaimer's equivalent of the original's explicit free: once
		// unreachable, the runtime GC reclaims the payload on its own
		// schedule.
		var freed uint64
		for g := head.garbageHead.Load(); g != nil; g = g.next {
			freed++
		}
		em.metrics.NodesFreed.Add(float64(freed))

		next := head.next
		em.headEpoch.Store(next)
		em.pool.put(head)
		em.metrics.EpochFreed.Inc()
	}
}

// PerformGCCycle runs one full GC cycle: Collect, then Advance, in that
// order. Reversing the order would widen the window in which a worker
// could observe the just-advanced current epoch and then try to Enter a
// predecessor that Collect is about to latch.
func (em *GlobalWriteEM[T]) PerformGCCycle() {
	em.Collect()
	em.Advance()
}

// StartCollector spawns the background goroutine driving PerformGCCycle on
// an interval. Calling StartCollector twice is a programmer error.
func (em *GlobalWriteEM[T]) StartCollector() { em.collector.start() }

// SignalExit requests that a running collector stop after its current
// cycle. Idempotent.
func (em *GlobalWriteEM[T]) SignalExit() { em.collector.signalExit() }

// SetInterval overrides the collector's sleep interval.
func (em *GlobalWriteEM[T]) SetInterval(d time.Duration) { em.collector.setInterval(d) }

// Interval returns the collector's current sleep interval.
func (em *GlobalWriteEM[T]) Interval() time.Duration { return em.collector.getInterval() }

// Metrics returns the Prometheus instruments backing this manager's debug
// counters.
func (em *GlobalWriteEM[T]) Metrics() GlobalMetrics { return em.metrics }

// Close stops the collector (if one was started), then sets currentEpoch to
// nil and calls Collect repeatedly until headEpoch is nil too — permitted
// once currentEpoch is nil, since Collect's loop condition head == current
// can then only become true at the very end.
//
// A manager that never started its collector closes cleanly with no prior
// SignalExit call — this is the common construct/retire/destroy path with
// no background goroutine ever involved. Close panics if the collector was
// started but never signalled to exit, since joining it here would
// otherwise race its still-running goroutine against the final sweep.
func (em *GlobalWriteEM[T]) Close() {
	if em.collector.started() {
		if !em.collector.hasExited() {
			panic("reclaim: Close called on a running collector without SignalExit")
		}
		em.collector.join()
	}

	em.currentEpoch.Store(nil)

	// Every live epoch must quiesce (activeThreads reach 0) before Close is
	// called; under that contract this loop runs at most len(epoch chain)
	// times. A caller that violates the contract leaves a non-zero count
	// forever, so this is bounded rather than an unconditional spin — past
	// the bound, that's a programmer error worth a diagnosable panic
	// instead of a hung process.
	const maxSweepAttempts = 1 << 20
	for attempts := 0; em.headEpoch.Load() != nil; attempts++ {
		if attempts >= maxSweepAttempts {
			panic("reclaim: Close could not quiesce all epochs; a worker is still active past destruction")
		}
		em.Collect()
	}
}
