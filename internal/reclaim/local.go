// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package reclaim implements epoch-based safe memory reclamation for
// lock-free data structures, in two flavors:
//
//   - LocalWriteEM: each worker announces liveness with a single
//     cache-line-isolated store; the collector derives the safe-to-reclaim
//     epoch from the minimum of all announcement slots. No shared atomic
//     is touched on the worker's fast path.
//   - GlobalWriteEM: each critical section performs an atomic
//     increment/decrement against the current epoch's reference count.
//     Simpler, but every Enter/Leave contends on that one counter.
//
// Both schemes retire garbage onto a singly linked list and reclaim it from
// a single background collector goroutine; worker goroutines never free
// memory themselves. See the package-level invariants in each type's doc
// comment for the exact safety contract.
package reclaim

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kianostad/smrkit/internal/cline"
)

// LocalWriteEM is a per-core announcement epoch manager.
//
// Contract: a worker must call AnnounceEnter(coreID) before any access to
// shared state this manager arbitrates, at least once per logical
// operation, using a coreID that is stable for the duration of that
// operation (the caller is responsible for pinning, or otherwise ensuring
// coreID doesn't change mid-operation).
type LocalWriteEM[T any] struct {
	coreCount int
	perCore   []cline.Cell
	epoch     cline.Cell

	head atomic.Pointer[garbageNode[T]]
	pool *garbageNodePool[T]

	metrics   LocalMetrics
	collector *collector

	nodesLeft uint64 // set once, by the final sweep in Close
}

// Option configures a LocalWriteEM or GlobalWriteEM at construction time.
type Option struct {
	interval    time.Duration
	registerer  prometheus.Registerer
	constLabels prometheus.Labels
}

// WithInterval overrides the collector's sleep interval; values are
// clamped to [MinInterval, MaxInterval].
func WithInterval(d time.Duration) func(*Option) {
	return func(o *Option) { o.interval = d }
}

// WithRegisterer registers the manager's metrics with reg. If unset, the
// manager's metrics are created but never registered anywhere.
func WithRegisterer(reg prometheus.Registerer) func(*Option) {
	return func(o *Option) { o.registerer = reg }
}

// WithConstLabels attaches constant labels (e.g. an instance name) to every
// metric the manager exposes.
func WithConstLabels(labels prometheus.Labels) func(*Option) {
	return func(o *Option) { o.constLabels = labels }
}

func resolveOptions(opts []func(*Option)) Option {
	var o Option
	o.interval = DefaultInterval
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// NewLocalWriteEM constructs a manager for coreCount logical cores, with
// every announcement slot and the epoch counter initialized to 0.
func NewLocalWriteEM[T any](coreCount int, opts ...func(*Option)) (*LocalWriteEM[T], error) {
	if coreCount <= 0 {
		return nil, fmt.Errorf("reclaim: coreCount must be positive, got %d", coreCount)
	}
	o := resolveOptions(opts)

	em := &LocalWriteEM[T]{
		coreCount: coreCount,
		perCore:   make([]cline.Cell, coreCount),
		pool:      newGarbageNodePool[T](),
		metrics:   newLocalMetrics(o.constLabels),
	}
	em.metrics.register(o.registerer)
	em.collector = newCollector(em.gcCycle)
	em.collector.setInterval(o.interval)
	return em, nil
}

// AnnounceEnter records that the calling worker, running on coreID, has
// observed the current epoch. This is a single release-store to the
// worker's own cache line; it never blocks and never contends with any
// other worker.
func (em *LocalWriteEM[T]) AnnounceEnter(coreID int) {
	if coreID < 0 || coreID >= em.coreCount {
		panic(fmt.Sprintf("reclaim: AnnounceEnter(%d) out of range [0,%d)", coreID, em.coreCount))
	}
	em.perCore[coreID].Store(em.epoch.Load())
}

// Retire surrenders ptr to the manager for deferred freeing. The caller
// must guarantee ptr is no longer reachable from shared state through any
// path observable to a thread that has announced at or after the epoch
// sampled here.
func (em *LocalWriteEM[T]) Retire(ptr *T) {
	n := em.pool.get()
	n.payload = ptr
	n.retireEpoch = em.epoch.Load()

	for {
		head := em.head.Load()
		n.next.Store(head)
		if em.head.CompareAndSwap(head, n) {
			return
		}
	}
}

// AdvanceEpoch increments the global epoch counter. Only the collector
// calls this; worker goroutines never do.
func (em *LocalWriteEM[T]) AdvanceEpoch() {
	em.epoch.Add(1)
}

// CurrentEpoch returns the current value of the epoch counter, for
// debugging and tests.
func (em *LocalWriteEM[T]) CurrentEpoch() uint64 { return em.epoch.Load() }

// Collect computes the minimum announced epoch across all cores and frees
// every garbage record strictly after the head of the garbage list whose
// retire epoch is below that minimum.
//
// The head of the list is never modified here, by design: workers CAS new
// garbage onto whatever head.Load() returns, so freeing the node currently
// at the head (and letting the allocator hand its memory back out to a
// concurrent Retire) would open an ABA window in which a worker's CAS
// succeeds against a head address that has since been repurposed. Only the
// final sweep in Close, which runs after every worker has stopped, frees
// the head node.
func (em *LocalWriteEM[T]) Collect() {
	if em.coreCount == 0 {
		return
	}
	min := em.perCore[0].Load()
	for i := 1; i < em.coreCount; i++ {
		if v := em.perCore[i].Load(); v < min {
			min = v
		}
	}

	cur := em.head.Load()
	if cur == nil {
		return
	}

	next := cur.next.Load()
	for next != nil {
		if next.retireEpoch < min {
			freed := next
			next = freed.next.Load()
			cur.next.Store(next)
			em.pool.put(freed)
			em.metrics.NodesFreed.Inc()
		} else {
			cur = next
			next = next.next.Load()
		}
	}
}

func (em *LocalWriteEM[T]) gcCycle() {
	em.AdvanceEpoch()
	em.metrics.CurrentEpoch.Set(float64(em.epoch.Load()))
	em.Collect()
	em.metrics.CollectCycles.Inc()
}

// StartCollector spawns the background goroutine that repeatedly advances
// the epoch, collects, and sleeps for Interval. Calling StartCollector
// twice is a programmer error.
func (em *LocalWriteEM[T]) StartCollector() { em.collector.start() }

// SignalExit requests that a running collector stop after its current
// cycle. Idempotent.
func (em *LocalWriteEM[T]) SignalExit() { em.collector.signalExit() }

// SetInterval overrides the collector's sleep interval.
func (em *LocalWriteEM[T]) SetInterval(d time.Duration) { em.collector.setInterval(d) }

// Interval returns the collector's current sleep interval.
func (em *LocalWriteEM[T]) Interval() time.Duration { return em.collector.getInterval() }

// Metrics returns the Prometheus instruments backing this manager's debug
// counters.
func (em *LocalWriteEM[T]) Metrics() LocalMetrics { return em.metrics }

// NodesLeft reports how many garbage records the final sweep in Close had
// to free unconditionally. Valid only after Close has returned.
func (em *LocalWriteEM[T]) NodesLeft() uint64 { return em.nodesLeft }

// Close stops the collector (if one was started) and then unconditionally
// frees every remaining garbage record, including the head, regardless of
// retire epoch.
//
// A manager that never started its collector closes cleanly with no prior
// SignalExit call — this is the common construct/retire/destroy path with
// no background goroutine ever involved. Close panics if the collector was
// started but never signalled to exit, since joining it here would
// otherwise race its still-running goroutine against the final sweep.
func (em *LocalWriteEM[T]) Close() {
	if em.collector.started() {
		if !em.collector.hasExited() {
			panic("reclaim: Close called on a running collector without SignalExit")
		}
		em.collector.join()
	}

	var freed uint64
	n := em.head.Load()
	em.head.Store(nil)
	for n != nil {
		next := n.next.Load()
		em.pool.put(n)
		freed++
		n = next
	}
	em.nodesLeft = freed
	em.metrics.NodesLeft.Set(float64(freed))
}
