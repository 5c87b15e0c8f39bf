package queue

import (
	"sync"
	"testing"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	s1 := &domain.Sample{Topic: "ego.motion"}
	s2 := &domain.Sample{Topic: "ego.flags"}

	if !q.Enqueue(1, s1) || !q.Enqueue(2, s2) {
		t.Fatalf("expected successful enqueue")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].ID != 1 || batch[0].Sample.Topic != "ego.motion" {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].ID != 2 {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
	if q.DequeueBatch(5) != nil {
		t.Fatalf("empty queue must return nil")
	}
}

func TestMemQueueCapacity(t *testing.T) {
	q := NewMemQueue(2)
	sample := &domain.Sample{Topic: "cap"}

	if !q.Enqueue(1, sample) || !q.Enqueue(2, sample) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(3, sample) {
		t.Fatalf("enqueue should fail when capacity exceeded")
	}

	q.DequeueBatch(1)
	if !q.Enqueue(4, sample) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}
}

func TestMemQueueWrapsAround(t *testing.T) {
	q := NewMemQueue(3)
	var want []ports.WALEntryID
	next := ports.WALEntryID(1)

	for round := 0; round < 5; round++ {
		for q.Enqueue(next, nil) {
			want = append(want, next)
			next++
		}
		for _, item := range q.DequeueBatch(2) {
			if item.ID != want[0] {
				t.Fatalf("round %d: expected id %d, got %d", round, want[0], item.ID)
			}
			want = want[1:]
		}
	}
	if q.Len() != len(want) || q.Cap() != 3 {
		t.Fatalf("len=%d want=%d cap=%d", q.Len(), len(want), q.Cap())
	}
}

func TestMemQueueConcurrentProducers(t *testing.T) {
	q := NewMemQueue(1000)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Enqueue(ports.WALEntryID(base+i), nil)
			}
		}(p * 1000)
	}
	wg.Wait()
	if got := len(q.DequeueBatch(0)); got != 1000 {
		t.Fatalf("expected 1000 items, got %d", got)
	}
}
