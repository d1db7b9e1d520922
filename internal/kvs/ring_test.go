package kvs

import (
	"sync"
	"testing"
	"time"
)

func TestRingBasics(t *testing.T) {
	ring := new(Ring[int64, int64])

	if !ring.Empty() {
		t.Fatal("new ring should be empty")
	}
	if ring.Full() {
		t.Fatal("new ring should not be full")
	}
	if ring.Size() != 0 {
		t.Fatalf("new ring size = %d, want 0", ring.Size())
	}

	req := Request[int64, int64]{Cmd: CmdSet, Key: 7, Value: 700, HasValue: true, Ticket: 1}
	if !ring.TryEnqueue(&req, MaxRetries) {
		t.Fatal("TryEnqueue failed on empty ring")
	}
	if ring.Empty() {
		t.Fatal("ring should not be empty after enqueue")
	}
	if ring.Size() != 1 {
		t.Fatalf("size = %d, want 1", ring.Size())
	}

	var out Request[int64, int64]
	if !ring.TryDequeue(&out, MaxRetries) {
		t.Fatal("TryDequeue failed on non-empty ring")
	}
	if out != req {
		t.Fatalf("dequeued %+v, want %+v", out, req)
	}
	if !ring.Empty() {
		t.Fatal("ring should be empty after dequeue")
	}
}

func TestRingDequeueEmpty(t *testing.T) {
	ring := new(Ring[int64, int64])

	var out Request[int64, int64]
	if ring.TryDequeue(&out, MaxRetries) {
		t.Fatal("TryDequeue should fail on empty ring")
	}
}

// Capacity is C-1: one slot is the sentinel distinguishing full from empty.
func TestRingCapacityAndBackpressure(t *testing.T) {
	ring := new(Ring[int64, int64])

	var req Request[int64, int64]
	pushed := 0
	for {
		req.Key = int64(pushed)
		if !ring.TryEnqueue(&req, MaxRetries) {
			break
		}
		pushed++
		if pushed > RingCapacity {
			t.Fatal("ring accepted more than its capacity")
		}
	}

	if pushed != RingCapacity-1 {
		t.Fatalf("ring accepted %d requests, want %d", pushed, RingCapacity-1)
	}
	if !ring.Full() {
		t.Fatal("ring should report full")
	}
	if ring.Size() > RingCapacity-1 {
		t.Fatalf("size = %d, exceeds %d", ring.Size(), RingCapacity-1)
	}

	// Backpressure: with no consumers every further attempt fails.
	for i := 0; i < 10; i++ {
		if ring.TryEnqueue(&req, MaxRetries) {
			t.Fatal("TryEnqueue succeeded on a full ring")
		}
	}

	// Draining one slot makes room for exactly one more.
	var out Request[int64, int64]
	if !ring.TryDequeue(&out, MaxRetries) {
		t.Fatal("TryDequeue failed on full ring")
	}
	if out.Key != 0 {
		t.Fatalf("dequeued key %d, want 0 (FIFO)", out.Key)
	}
	if !ring.TryEnqueue(&req, MaxRetries) {
		t.Fatal("TryEnqueue failed after a dequeue made room")
	}
}

func TestRingFIFOSingleThreaded(t *testing.T) {
	ring := new(Ring[int64, int64])

	const n = RingCapacity / 2
	for i := 0; i < n; i++ {
		req := Request[int64, int64]{Key: int64(i), Ticket: uint64(i + 1)}
		if !ring.TryEnqueue(&req, MaxRetries) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	for i := 0; i < n; i++ {
		var out Request[int64, int64]
		if !ring.TryDequeue(&out, MaxRetries) {
			t.Fatalf("dequeue %d failed", i)
		}
		if out.Key != int64(i) {
			t.Fatalf("dequeue %d returned key %d", i, out.Key)
		}
	}
}

func TestRingVersionCounts(t *testing.T) {
	ring := new(Ring[int64, int64])

	var req, out Request[int64, int64]
	for i := 0; i < 5; i++ {
		ring.TryEnqueue(&req, MaxRetries)
	}
	for i := 0; i < 5; i++ {
		ring.TryDequeue(&out, MaxRetries)
	}
	if got := ring.Version(); got != 10 {
		t.Fatalf("version = %d, want 10", got)
	}
}

// TestRingNoLossNoDuplication pushes a unique ticket per request through
// M producers and N consumers and checks the multisets match once drained.
func TestRingNoLossNoDuplication(t *testing.T) {
	const (
		producers   = 4
		consumers   = 4
		perProducer = 5000
		total       = producers * perProducer
	)

	ring := new(Ring[int64, int64])
	results := make(chan uint64, total)

	var prodWG, consWG sync.WaitGroup

	prodWG.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer prodWG.Done()
			for i := 0; i < perProducer; i++ {
				req := Request[int64, int64]{
					Cmd:    CmdSet,
					Key:    int64(p),
					Ticket: uint64(p*perProducer + i + 1),
				}
				ring.Enqueue(&req)
			}
		}(p)
	}

	consWG.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer consWG.Done()
			var out Request[int64, int64]
			for {
				if ring.TryDequeue(&out, MaxRetries) {
					if out.Ticket == 0 {
						return // poison
					}
					results <- out.Ticket
					continue
				}
				time.Sleep(10 * time.Microsecond)
			}
		}()
	}

	got := make(map[uint64]int, total)
	deadline := time.After(30 * time.Second)
	for i := 0; i < total; i++ {
		select {
		case ticket := <-results:
			got[ticket]++
		case <-deadline:
			t.Fatalf("timed out: collected %d of %d", i, total)
		}
	}

	prodWG.Wait()
	for c := 0; c < consumers; c++ {
		poison := Request[int64, int64]{Ticket: 0}
		ring.Enqueue(&poison)
	}
	consWG.Wait()

	if len(got) != total {
		t.Fatalf("got %d distinct tickets, want %d", len(got), total)
	}
	for ticket, n := range got {
		if n != 1 {
			t.Fatalf("ticket %d dequeued %d times", ticket, n)
		}
	}
}

// TestRingSizeNeverExceedsCapacity samples Size during a producer/consumer
// storm and checks the C-1 bound is never exceeded.
func TestRingSizeNeverExceedsCapacity(t *testing.T) {
	ring := new(Ring[int64, int64])

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var req Request[int64, int64]
			for {
				select {
				case <-stop:
					return
				default:
					ring.TryEnqueue(&req, 50)
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		var out Request[int64, int64]
		for {
			select {
			case <-stop:
				return
			default:
				ring.TryDequeue(&out, 50)
			}
		}
	}()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if size := ring.Size(); size > RingCapacity-1 {
			close(stop)
			wg.Wait()
			t.Fatalf("observed size %d > %d", size, RingCapacity-1)
		}
	}
	close(stop)
	wg.Wait()
}
