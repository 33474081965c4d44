// Licensed under the MIT License. See LICENSE file in the project root for details.

package reclaim

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the collector's sleep between GC cycles when no other
// interval has been configured. 50ms balances reclamation latency against
// the cache traffic re-reading a worker's announcement slot generates.
const DefaultInterval = 50 * time.Millisecond

// MinInterval and MaxInterval bound the interval accepted by SetInterval;
// both managers clamp to this range rather than reject the call, since a
// bad interval is a tuning mistake, not a correctness problem.
const (
	MinInterval = 10 * time.Millisecond
	MaxInterval = time.Second
)

// collector owns the background-goroutine lifecycle shared by LocalWriteEM
// and GlobalWriteEM: start once, run cycle() on an interval until signalled
// to exit, then let Close join it. Grounded on the teacher's
// internal/storage/mvcc.GC (sync.WaitGroup + atomic.Bool + time.Ticker).
type collector struct {
	cycle    func()
	interval atomic.Int64 // time.Duration, nanoseconds

	running atomic.Bool
	exited  atomic.Bool
	wg      sync.WaitGroup
}

func newCollector(cycle func()) *collector {
	c := &collector{cycle: cycle}
	c.interval.Store(int64(DefaultInterval))
	return c
}

// hasExited reports whether SignalExit has been called.
func (c *collector) hasExited() bool { return c.exited.Load() }

// signalExit requests that the running collector goroutine stop after its
// current cycle. Idempotent: repeated calls have no effect beyond the
// first.
func (c *collector) signalExit() { c.exited.Store(true) }

// setInterval clamps and stores a new sleep interval; it takes effect on the
// collector's next sleep.
func (c *collector) setInterval(d time.Duration) {
	if d < MinInterval {
		d = MinInterval
	} else if d > MaxInterval {
		d = MaxInterval
	}
	c.interval.Store(int64(d))
}

func (c *collector) getInterval() time.Duration {
	return time.Duration(c.interval.Load())
}

// start spawns the background goroutine. Calling start twice is a
// programmer error: the single-collector invariant requires at most one GC
// cycle in flight at a time.
func (c *collector) start() {
	if !c.running.CompareAndSwap(false, true) {
		panic("reclaim: collector already started")
	}
	c.wg.Add(1)
	go c.run()
}

// started reports whether start has ever been called on this collector.
func (c *collector) started() bool { return c.running.Load() }

func (c *collector) run() {
	defer c.wg.Done()
	for !c.hasExited() {
		c.cycle()
		time.Sleep(c.getInterval())
	}
}

// join waits for the background goroutine to return. It is a no-op if
// start was never called.
func (c *collector) join() {
	if c.started() {
		c.wg.Wait()
	}
}
