// Licensed under the MIT License. See LICENSE file in the project root for details.

package reclaim

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
)

func TestLocalWriteEMConstructRejectsNonPositiveCores(t *testing.T) {
	if _, err := NewLocalWriteEM[int](0); err == nil {
		t.Fatal("expected error for coreCount=0")
	}
	if _, err := NewLocalWriteEM[int](-1); err == nil {
		t.Fatal("expected error for coreCount=-1")
	}
}

func TestLocalWriteEMAnnounceEnterOutOfRangePanics(t *testing.T) {
	em, err := NewLocalWriteEM[int](4)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range core id")
		}
	}()
	em.AnnounceEnter(4)
}

func TestLocalWriteEMAnnounceIsNonDecreasing(t *testing.T) {
	em, err := NewLocalWriteEM[int](1)
	if err != nil {
		t.Fatal(err)
	}
	em.AnnounceEnter(0)
	first := em.CurrentEpoch()
	em.AdvanceEpoch()
	em.AnnounceEnter(0)
	second := em.CurrentEpoch()
	if second < first {
		t.Fatalf("epoch went backwards: %d -> %d", first, second)
	}
	em.SignalExit()
	em.Close()
}

// TestLocalWriteEMSingleCore is the N=1 boundary case: the collector
// reduces to reading the one announcement slot.
func TestLocalWriteEMSingleCore(t *testing.T) {
	defer goleak.VerifyNone(t)

	em, err := NewLocalWriteEM[int](1)
	if err != nil {
		t.Fatal(err)
	}
	em.SetInterval(5 * time.Millisecond)
	em.StartCollector()

	em.AnnounceEnter(0)
	v := 42
	em.Retire(&v)

	em.SignalExit()
	em.Close()

	if em.NodesLeft() != 1 {
		t.Fatalf("NodesLeft() = %d, want 1", em.NodesLeft())
	}
}

// TestLocalWriteEMCollectOnEmptyGarbageList is a boundary behavior: Collect
// on an empty list returns without traversing anything.
func TestLocalWriteEMCollectOnEmptyGarbageList(t *testing.T) {
	em, err := NewLocalWriteEM[int](2)
	if err != nil {
		t.Fatal(err)
	}
	em.Collect() // must not panic or block
	em.SignalExit()
	em.Close()
}

// TestLocalWriteEMRetireBeforeAnnounce covers the boundary behavior: a
// record retired before any AnnounceEnter has retire_epoch 0 and becomes
// reclaimable as soon as any announce advances past it.
func TestLocalWriteEMRetireBeforeAnnounce(t *testing.T) {
	em, err := NewLocalWriteEM[int](1)
	if err != nil {
		t.Fatal(err)
	}

	v1, v2 := 1, 2
	em.Retire(&v1) // retire_epoch == 0, no announce has happened yet

	em.AdvanceEpoch() // epoch -> 1
	em.AnnounceEnter(0)
	em.Retire(&v2) // becomes the new head, with v1 after it; its own retire_epoch == 1

	em.Collect() // min announced == 1; v1 sits after the head with retire_epoch(0) < 1, so it is freed

	em.SignalExit()
	em.Close()
	if em.NodesLeft() > 2 {
		t.Fatalf("NodesLeft() = %d, want <= 2", em.NodesLeft())
	}
}

// TestLocalWriteEMShutdownSafety is end-to-end scenario 6: retire 1000
// records without ever announcing, then destroy. All 1000 must be freed
// exactly once by the final sweep.
func TestLocalWriteEMShutdownSafety(t *testing.T) {
	em, err := NewLocalWriteEM[int](4)
	if err != nil {
		t.Fatal(err)
	}

	const n = 1000
	values := make([]int, n)
	for i := range values {
		values[i] = i
		em.Retire(&values[i])
	}

	em.Close() // no collector ever started, no SignalExit needed

	if em.NodesLeft() != n {
		t.Fatalf("NodesLeft() = %d, want %d", em.NodesLeft(), n)
	}
}

// TestLocalWriteEMCloseWithoutSignalExitPanics covers the programmer-error
// path: destroying a manager whose collector is running must panic rather
// than silently racing that still-live goroutine.
func TestLocalWriteEMCloseWithoutSignalExitPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	em, err := NewLocalWriteEM[int](1)
	if err != nil {
		t.Fatal(err)
	}
	em.StartCollector()
	defer func() {
		// Clean up the still-running collector the panic below left
		// behind, so it doesn't leak into later tests.
		em.SignalExit()
		em.Close()
	}()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic closing a running collector without SignalExit")
			}
		}()
		em.Close()
	}()
}

func TestLocalWriteEMStartCollectorTwicePanics(t *testing.T) {
	em, err := NewLocalWriteEM[int](1)
	if err != nil {
		t.Fatal(err)
	}
	em.StartCollector()
	defer func() {
		em.SignalExit()
		em.Close()
	}()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic starting collector twice")
		}
	}()
	em.StartCollector()
}

// TestLocalWriteEMMixedWithGC is a scaled-down version of end-to-end
// scenario 3: many goroutines push/pop against a shared counter-style
// workload while the collector runs concurrently, retiring garbage as they
// go; nothing freed by Collect may ever be freed twice, and every retire
// must eventually be accounted for by NodesFreed + NodesLeft.
func TestLocalWriteEMMixedWithGC(t *testing.T) {
	defer goleak.VerifyNone(t)

	const cores = 8
	em, err := NewLocalWriteEM[int](cores)
	if err != nil {
		t.Fatal(err)
	}
	em.SetInterval(2 * time.Millisecond)
	em.StartCollector()

	const perCore = 2000
	var wg sync.WaitGroup
	for c := 0; c < cores; c++ {
		wg.Add(1)
		go func(core int) {
			defer wg.Done()
			for i := 0; i < perCore; i++ {
				em.AnnounceEnter(core)
				v := core*perCore + i
				em.Retire(&v)
			}
		}(c)
	}
	wg.Wait()

	em.SignalExit()
	em.Close()

	totalRetired := uint64(cores * perCore)
	freed := uint64(testutil.ToFloat64(em.Metrics().NodesFreed))
	if freed+em.NodesLeft() != totalRetired {
		t.Fatalf("freed(%d) + left(%d) != retired(%d)", freed, em.NodesLeft(), totalRetired)
	}
}
