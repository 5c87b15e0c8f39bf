package queue

import (
	"sync"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

// MemQueue is a bounded FIFO ring between the decoder and the sink pipeline. Samples
// stay owned by the WAL entry they were appended as.
type MemQueue struct {
	mu   sync.Mutex
	ring []ports.QueuedSample
	head int
	n    int
}

var _ ports.SampleQueue = (*MemQueue)(nil)

// NewMemQueue panics on a non-positive capacity; config validation rejects it first.
func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	return &MemQueue{ring: make([]ports.QueuedSample, capacity)}
}

func (q *MemQueue) Enqueue(id ports.WALEntryID, s *domain.Sample) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == len(q.ring) {
		return false
	}
	q.ring[(q.head+q.n)%len(q.ring)] = ports.QueuedSample{ID: id, Sample: s}
	q.n++
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.QueuedSample {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return nil
	}
	if max <= 0 || max > q.n {
		max = q.n
	}
	out := make([]ports.QueuedSample, max)
	for i := range out {
		slot := (q.head + i) % len(q.ring)
		out[i] = q.ring[slot]
		q.ring[slot] = ports.QueuedSample{}
	}
	q.head = (q.head + max) % len(q.ring)
	q.n -= max
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

func (q *MemQueue) Cap() int { return len(q.ring) }
