// Licensed under the MIT License. See LICENSE file in the project root for details.

package stack

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestStackEmptyPop(t *testing.T) {
	var s Stack[int]
	if !s.Empty() {
		t.Fatal("new stack should be empty")
	}
	if _, ok := s.Pop(); ok {
		t.Fatal("Pop on empty stack returned ok=true")
	}
}

// TestStackSingleThreadedRoundTrip is end-to-end scenario 1 of the spec:
// push 0..100, pop 100 times, expect 99,98,...,0.
func TestStackSingleThreadedRoundTrip(t *testing.T) {
	var s Stack[int]
	for i := 0; i < 100; i++ {
		s.Push(i)
	}

	for want := 99; want >= 0; want-- {
		got, ok := s.Pop()
		if !ok {
			t.Fatalf("Pop returned ok=false, want value %d", want)
		}
		if got != want {
			t.Fatalf("Pop = %d, want %d", got, want)
		}
	}

	if _, ok := s.Pop(); ok {
		t.Fatal("stack should be empty after 100 pops")
	}
}

func TestStackPopNodeTransfersOwnership(t *testing.T) {
	var s Stack[string]
	s.Push("only")

	n, ok := s.PopNode()
	if !ok {
		t.Fatal("PopNode returned ok=false")
	}
	if n.Data() != "only" {
		t.Fatalf("Data() = %q, want %q", n.Data(), "only")
	}
	if !s.Empty() {
		t.Fatal("stack should be empty after PopNode")
	}
}

// TestStackProducerConsumer is end-to-end scenario 2 of the spec: 4 producers
// push 0..2_000_000 partitioned by thread id mod 4, 4 consumers pop 500_000
// each. The sum of popped values must equal 2_000_000*1_999_999/2.
func TestStackProducerConsumer(t *testing.T) {
	defer goleak.VerifyNone(t)

	Convey("Given a shared AtomicStack", t, func() {
		var s Stack[int]
		const total = 2_000_000
		const producers = 4
		const consumers = 4
		const perConsumer = total / consumers

		Convey("When 4 producers push and 4 consumers pop concurrently", func() {
			var wg sync.WaitGroup
			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for v := id; v < total; v += producers {
						s.Push(v)
					}
				}(p)
			}
			wg.Wait()

			var sum int64
			var sumMu sync.Mutex
			var cwg sync.WaitGroup
			for c := 0; c < consumers; c++ {
				cwg.Add(1)
				go func() {
					defer cwg.Done()
					local := int64(0)
					for i := 0; i < perConsumer; i++ {
						v, ok := s.Pop()
						if !ok {
							t.Error("unexpected empty stack mid-drain")
							return
						}
						local += int64(v)
					}
					sumMu.Lock()
					sum += local
					sumMu.Unlock()
				}()
			}
			cwg.Wait()

			Convey("Then the popped sum matches the pushed sum and the stack is empty", func() {
				So(sum, ShouldEqual, int64(total)*int64(total-1)/2)
				So(s.Empty(), ShouldBeTrue)
			})
		})
	})
}
