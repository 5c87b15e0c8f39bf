package sink

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

// MultiSink fans a batch out to several sinks. Every sink sees the batch even when an
// earlier one fails; the joined error makes the pipeline keep the WAL entries. When
// the pipeline retries that batch, only the sinks that failed it are called again.
type MultiSink struct {
	sinks []ports.Sink

	mu       sync.Mutex
	pending  batchKey
	accepted []bool
}

type sampleKey struct {
	topic string
	seq   uint64
	ts    int64
}

// batchKey identifies a batch across retries. The transformer may hand out new
// sample pointers on every attempt, so it is built from sample content.
type batchKey struct {
	n           int
	first, last sampleKey
}

func keyOf(samples []*domain.Sample) batchKey {
	k := batchKey{n: len(samples)}
	if len(samples) == 0 {
		return k
	}
	f, l := samples[0], samples[len(samples)-1]
	k.first = sampleKey{f.Topic, f.Seq, f.Timestamp.UnixNano()}
	k.last = sampleKey{l.Topic, l.Seq, l.Timestamp.UnixNano()}
	return k
}

var _ ports.Sink = (*MultiSink)(nil)

func NewMultiSink(sinks ...ports.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m *MultiSink) WriteBatch(samples []*domain.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if k := keyOf(samples); m.accepted == nil || k != m.pending {
		m.pending = k
		m.accepted = make([]bool, len(m.sinks))
	}
	var err error
	for i, s := range m.sinks {
		if m.accepted[i] {
			continue
		}
		if e := s.WriteBatch(samples); e != nil {
			err = errors.Join(err, fmt.Errorf("%s: %w", s.Name(), e))
			continue
		}
		m.accepted[i] = true
	}
	if err == nil {
		m.accepted = nil
	}
	return err
}
