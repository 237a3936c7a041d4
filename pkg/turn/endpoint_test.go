package turn

import (
	"sync"
	"testing"
	"time"
)

func TestEndpointerFiresOnceAfterWindow(t *testing.T) {
	var mu sync.Mutex
	var fired []uint64
	ep := NewEndpointer(20*time.Millisecond, func(epoch uint64, at time.Time) {
		mu.Lock()
		fired = append(fired, epoch)
		mu.Unlock()
	})

	ep.Restart()
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 {
		t.Fatalf("expected exactly one fire, got %d", len(fired))
	}
	if fired[0] != ep.Epoch() {
		t.Fatalf("fired epoch %d does not match current %d", fired[0], ep.Epoch())
	}
}

func TestEndpointerRestartNeverFiresStale(t *testing.T) {
	var mu sync.Mutex
	count := 0
	ep := NewEndpointer(30*time.Millisecond, func(epoch uint64, at time.Time) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	// Restarts spaced inside the window: no expiry may occur mid-sequence.
	for i := 0; i < 5; i++ {
		ep.Restart()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		if count != 0 {
			mu.Unlock()
			t.Fatalf("endpointer fired mid-sequence after restart %d", i)
		}
		mu.Unlock()
	}

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected one fire after the gap, got %d", count)
	}
}

func TestEndpointerCancelSuppressesFire(t *testing.T) {
	var mu sync.Mutex
	count := 0
	ep := NewEndpointer(15*time.Millisecond, func(epoch uint64, at time.Time) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	ep.Restart()
	before := ep.Epoch()
	ep.Cancel()
	if ep.Epoch() == before {
		t.Fatalf("cancel must advance the epoch")
	}
	time.Sleep(40 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("cancelled endpointer fired %d times", count)
	}
}

func TestEndpointerCancelThenRestartStillWorks(t *testing.T) {
	ch := make(chan uint64, 4)
	ep := NewEndpointer(15*time.Millisecond, func(epoch uint64, at time.Time) {
		ch <- epoch
	})

	ep.Restart()
	ep.Cancel()
	ep.Restart()

	select {
	case epoch := <-ch:
		if epoch != ep.Epoch() {
			t.Fatalf("fired epoch %d, want %d", epoch, ep.Epoch())
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected fire after re-arming")
	}
}
