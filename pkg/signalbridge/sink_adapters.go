package signalbridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/SignalBridge/internal/adapters/sink"
	"github.com/ghalamif/SignalBridge/internal/domain"
)

var ErrChannelSinkClosed = errors.New("signalbridge: channel sink closed")

// funcSink hands every non-empty batch, converted to public samples, to fn.
type funcSink struct {
	name string
	fn   SampleBatchSink
}

func (s *funcSink) WriteBatch(samples []*domain.Sample) error {
	if s.fn == nil {
		return fmt.Errorf("sink %q: nil handler", s.name)
	}
	if len(samples) == 0 {
		return nil
	}
	batch := make([]Sample, len(samples))
	for i, smp := range samples {
		batch[i] = sampleFromDomain(smp)
	}
	return s.fn(batch)
}

func (s *funcSink) Name() string { return s.name }

// NewCallbackSink turns fn into a Sink.
func NewCallbackSink(name string, fn SampleBatchSink) Sink {
	if name == "" {
		name = "callback"
	}
	return &funcSink{name: name, fn: fn}
}

// NewChannelSink delivers batches on the returned channel. Writes block while the
// channel is full. The stop function closes the channel; it unblocks pending writes,
// which then fail with ErrChannelSinkClosed, as does every later write.
func NewChannelSink(name string, buffer int) (Sink, <-chan []Sample, func()) {
	if name == "" {
		name = "channel"
	}
	var (
		ch   = make(chan []Sample, max(buffer, 0))
		done = make(chan struct{})
		once sync.Once
		// held for reading by senders so ch is never closed under them
		mu sync.RWMutex
	)
	send := func(batch []Sample) error {
		mu.RLock()
		defer mu.RUnlock()
		select {
		case <-done:
			return ErrChannelSinkClosed
		default:
		}
		select {
		case ch <- batch:
			return nil
		case <-done:
			return ErrChannelSinkClosed
		}
	}
	stop := func() {
		once.Do(func() {
			close(done)
			mu.Lock()
			close(ch)
			mu.Unlock()
		})
	}
	return &funcSink{name: name, fn: send}, ch, stop
}

// NewTopicFilterSink forwards only the samples of the listed topics to next. Batches
// that end up empty are not forwarded.
func NewTopicFilterSink(next Sink, topics ...string) Sink {
	keep := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		keep[t] = struct{}{}
	}
	return &topicFilterSink{next: next, keep: keep}
}

// NewFanOutSink writes every batch to all sinks. A retried batch only goes to the
// sinks that failed it.
func NewFanOutSink(sinks ...Sink) Sink {
	return sink.NewMultiSink(sinks...)
}

type topicFilterSink struct {
	next Sink
	keep map[string]struct{}
}

func (s *topicFilterSink) WriteBatch(samples []*domain.Sample) error {
	var out []*domain.Sample
	for _, smp := range samples {
		if _, ok := s.keep[smp.Topic]; ok {
			out = append(out, smp)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return s.next.WriteBatch(out)
}

func (s *topicFilterSink) Name() string { return s.next.Name() + "[filtered]" }
