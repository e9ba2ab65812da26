package queue

import (
	"sync"
	"testing"
)

func TestEnqueueDequeueFIFOOrder(t *testing.T) {
	q := New[int](10)
	for i := 0; i < 5; i++ {
		if ok, _ := q.Enqueue(i); !ok {
			t.Fatalf("enqueue %d failed unexpectedly", i)
		}
	}

	for i := 0; i < 5; i++ {
		got, ok, _ := q.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d: expected ok", i)
		}
		if got != i {
			t.Fatalf("dequeue order broken: want %d, got %d", i, got)
		}
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	q := New[int](3)
	for i := 0; i < 3; i++ {
		if ok, _ := q.Enqueue(i); !ok {
			t.Fatalf("enqueue %d should have succeeded", i)
		}
	}

	ok, _ := q.Enqueue(99)
	if ok {
		t.Fatalf("expected enqueue to a full queue to be dropped")
	}

	stats := q.Stats()
	if stats.TotalDropped != 1 {
		t.Fatalf("want 1 dropped item, got %d", stats.TotalDropped)
	}
	if stats.Depth != 3 {
		t.Fatalf("want depth 3, got %d", stats.Depth)
	}
}

func TestLenNeverExceedsCapacity(t *testing.T) {
	q := New[int](4)
	for i := 0; i < 10; i++ {
		q.Enqueue(i)
		if q.Len() > q.Capacity() {
			t.Fatalf("queue length %d exceeded capacity %d", q.Len(), q.Capacity())
		}
	}
}

func TestThresholdCrossingIsMonotonicAndHysteresisGated(t *testing.T) {
	q := New[int](100)

	var risingEvents []ThresholdEvent
	for i := 0; i < 100; i++ {
		_, ev := q.Enqueue(i)
		if ev != nil {
			risingEvents = append(risingEvents, *ev)
		}
	}

	for i, ev := range risingEvents {
		if !ev.Rising {
			t.Fatalf("event %d during fill should be rising", i)
		}
		if i > 0 && ev.Threshold <= risingEvents[i-1].Threshold {
			t.Fatalf("thresholds should increase monotonically while filling, got %v then %v", risingEvents[i-1].Threshold, ev.Threshold)
		}
	}

	var fallingEvents []ThresholdEvent
	for i := 0; i < 100; i++ {
		_, _, ev := q.Dequeue()
		if ev != nil {
			fallingEvents = append(fallingEvents, *ev)
		}
	}

	for _, ev := range fallingEvents {
		if ev.Rising {
			t.Fatalf("event during drain should be falling")
		}
	}
}

func TestDequeueBlocksUntilItemAvailable(t *testing.T) {
	q := New[int](5)

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		_, ok, _ := q.Dequeue()
		if !ok {
			t.Error("expected dequeue to succeed once item arrives")
		}
		close(done)
	}()

	q.Enqueue(42)
	wg.Wait()
	<-done
}

func TestCloseWakesBlockedConsumersWithNoItem(t *testing.T) {
	q := New[int](5)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ok, _ := q.Dequeue()
		if ok {
			t.Error("expected dequeue on a closed, empty queue to report !ok")
		}
	}()

	q.Close()
	wg.Wait()

	if ok, _ := q.Enqueue(1); ok {
		t.Fatalf("enqueue on a closed queue should fail")
	}
}

func TestTryDequeueDoesNotBlockOnEmptyQueue(t *testing.T) {
	q := New[int](5)
	_, ok, _ := q.TryDequeue()
	if ok {
		t.Fatalf("expected TryDequeue on empty queue to report !ok")
	}
}
