package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/SignalBridge/internal/adapters/queue"
	"github.com/ghalamif/SignalBridge/internal/adapters/wal"
	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/errs"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

// lenDecoder turns a blob into a sample holding its length.
type lenDecoder struct{}

func (lenDecoder) Decode(msg *domain.RawMessage) (*domain.Sample, error) {
	if len(msg.Data) == 0 {
		return nil, errs.WrapInvalid(errors.New("empty"), "lenDecoder", "Decode", "read")
	}
	return &domain.Sample{
		Topic:     msg.Topic,
		Timestamp: msg.Time(),
		Values:    map[string]float64{msg.Topic + ".len": float64(len(msg.Data))},
	}, nil
}

type recordingSink struct {
	mu    sync.Mutex
	fail  int
	calls int
	got   []*domain.Sample
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) WriteBatch(samples []*domain.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail > 0 {
		s.fail--
		return errors.New("sink down")
	}
	s.got = append(s.got, samples...)
	return nil
}

func (s *recordingSink) samples() []*domain.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Sample(nil), s.got...)
}

type rejectOdd struct{}

func (rejectOdd) Transform(s *domain.Sample) (*domain.Sample, error) {
	if int(s.Values[s.Topic+".len"])%2 == 1 {
		return nil, errors.New("odd")
	}
	return s, nil
}
func (rejectOdd) Version() uint16 { return 3 }

type chanCollector struct {
	out     chan<- *domain.RawMessage
	started chan struct{}
	stopped bool
}

func (c *chanCollector) Start(out chan<- *domain.RawMessage) error {
	c.out = out
	close(c.started)
	return nil
}

func (c *chanCollector) Stop() error {
	c.stopped = true
	return nil
}

func newWAL(t *testing.T) *wal.FileWAL {
	t.Helper()
	w, err := wal.NewFileWAL(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestAdmitPersistsAndQueues(t *testing.T) {
	w := newWAL(t)
	q := queue.NewMemQueue(4)
	obs := &mockObs{}
	pol := ports.Policy{OnQueueFull: "drop", OnWALFull: "drop", MaxWALSizeBytes: 1 << 20}

	require.NoError(t, Admit(&domain.RawMessage{Topic: "ego", Data: []byte{1, 2, 3}}, lenDecoder{}, w, q, pol, obs))

	batch := q.DequeueBatch(10)
	require.Len(t, batch, 1)
	assert.Equal(t, ports.WALEntryID(1), batch[0].ID)
	assert.Equal(t, 3.0, batch[0].Sample.Values["ego.len"])
	assert.Equal(t, ports.WALEntryID(1), w.Stats().LatestAppended)
}

func TestAdmitDecodeFailureSkipsWAL(t *testing.T) {
	w := newWAL(t)
	q := queue.NewMemQueue(4)
	err := Admit(&domain.RawMessage{Topic: "ego"}, lenDecoder{}, w, q, ports.Policy{}, &mockObs{})
	require.Error(t, err)
	assert.True(t, errs.IsInvalid(err))
	assert.Zero(t, w.Stats().LatestAppended)
	assert.Zero(t, q.Len())
}

func TestAdmitQueueFull(t *testing.T) {
	w := newWAL(t)
	q := queue.NewMemQueue(1)
	pol := ports.Policy{OnQueueFull: "reject"}
	msg := &domain.RawMessage{Topic: "ego", Data: []byte{1}}

	require.NoError(t, Admit(msg, lenDecoder{}, w, q, pol, &mockObs{}))
	require.ErrorIs(t, Admit(msg, lenDecoder{}, w, q, pol, &mockObs{}), ErrQueueFull)
	// the rejected sample stays in the WAL for replay
	assert.Equal(t, ports.WALEntryID(2), w.Stats().LatestAppended)
}

func TestIngestBatchCommitsAndRoutesDLQ(t *testing.T) {
	w := newWAL(t)
	sink := &recordingSink{}
	obs := &mockObs{}
	for i := 0; i < 3; i++ {
		_, err := w.Append(&domain.Sample{Topic: "ego"})
		require.NoError(t, err)
	}
	batch := []ports.QueuedSample{
		{ID: 1, Sample: &domain.Sample{Topic: "ego", Values: map[string]float64{"ego.len": 2}}},
		{ID: 2, Sample: &domain.Sample{Topic: "ego", Values: map[string]float64{"ego.len": 3}}},
		{ID: 3, Sample: &domain.Sample{Topic: "ego", Values: map[string]float64{"ego.len": 4}}},
	}

	require.True(t, IngestBatch(batch, w, rejectOdd{}, sink, obs))
	got := sink.samples()
	require.Len(t, got, 2)
	assert.Equal(t, uint16(3), got[0].TransformVer)
	assert.Equal(t, 1, obs.dlq)
	assert.Equal(t, ports.WALEntryID(4), w.Stats().OldestUncommitted)
}

func TestIngestBatchSinkFailureKeepsWAL(t *testing.T) {
	w := newWAL(t)
	_, err := w.Append(&domain.Sample{Topic: "ego"})
	require.NoError(t, err)
	sink := &recordingSink{fail: 1}

	batch := []ports.QueuedSample{{ID: 1, Sample: &domain.Sample{Topic: "ego"}}}
	assert.False(t, IngestBatch(batch, w, Passthrough{}, sink, &mockObs{}))
	assert.Equal(t, ports.WALEntryID(1), w.Stats().OldestUncommitted)
}

func TestReplayWALRequeuesUncommitted(t *testing.T) {
	w := newWAL(t)
	for i := 0; i < 3; i++ {
		_, err := w.Append(&domain.Sample{Topic: "ego", Seq: uint64(i + 1)})
		require.NoError(t, err)
	}
	require.NoError(t, w.Commit(1))

	q := queue.NewMemQueue(8)
	require.NoError(t, ReplayWAL(w, q, ports.Policy{}, &mockObs{}))
	batch := q.DequeueBatch(8)
	require.Len(t, batch, 2)
	assert.Equal(t, uint64(2), batch[0].Sample.Seq)
	assert.Equal(t, uint64(3), batch[1].Sample.Seq)
}

func TestEdgeAndIngestPipelinesEndToEnd(t *testing.T) {
	w := newWAL(t)
	q := queue.NewMemQueue(16)
	sink := &recordingSink{fail: 1}
	pol := ports.Policy{MaxQueueLen: 16, MaxBatchSize: 4, IdleSleep: time.Millisecond, OnQueueFull: "block", OnWALFull: "block"}
	col := &chanCollector{started: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	edgeDone := make(chan error, 1)
	go func() { edgeDone <- RunEdgePipeline(ctx, col, lenDecoder{}, w, q, pol, &mockObs{}) }()
	ingestDone := make(chan error, 1)
	go func() { ingestDone <- RunIngestPipeline(ctx, w, q, Passthrough{}, sink, pol, &mockObs{}) }()

	<-col.started
	for i := 1; i <= 5; i++ {
		col.out <- &domain.RawMessage{Topic: "ego", Data: make([]byte, i)}
	}

	require.Eventually(t, func() bool { return len(sink.samples()) == 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-edgeDone)
	require.NoError(t, <-ingestDone)
	assert.True(t, col.stopped)

	var lens []float64
	for _, s := range sink.samples() {
		lens = append(lens, s.Values["ego.len"])
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, lens)
	assert.Equal(t, ports.WALEntryID(6), w.Stats().OldestUncommitted)
}
