package signalbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/SignalBridge/internal/adapters/observability"
	"github.com/ghalamif/SignalBridge/internal/adapters/queue"
	"github.com/ghalamif/SignalBridge/internal/adapters/wal"
	"github.com/ghalamif/SignalBridge/internal/app/decoder"
	"github.com/ghalamif/SignalBridge/internal/app/pipeline"
	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
	"github.com/ghalamif/SignalBridge/internal/schema"
)

var (
	// ErrQueueFull indicates the in-memory queue rejected the sample according to policy.
	ErrQueueFull = pipeline.ErrQueueFull
	// ErrWALFull indicates the WAL is at capacity and OnWALFull != "block".
	ErrWALFull = pipeline.ErrWALFull
	// ErrNoSchema is returned by PublishRaw when the publisher has no schema to decode with.
	ErrNoSchema = errors.New("signalbridge: publisher has no schema")
	// ErrPublisherClosed is returned after Close.
	ErrPublisherClosed = errors.New("signalbridge: publisher closed")
)

// Sample mirrors the internal domain.Sample but is safe for external callers.
type Sample struct {
	Topic        string
	Timestamp    time.Time
	Seq          uint64
	Values       map[string]float64
	Source       string
	TransformVer uint16
}

// SampleBatchSink is invoked with ordered batches dequeued from the pipeline.
type SampleBatchSink func([]Sample) error

// ExternalPublisherConfig configures the WAL-backed publisher used by callers.
type ExternalPublisherConfig struct {
	Policy Policy
	WAL    WALConfig
	// Schema enables PublishRaw. Topics are bound up front; others on first use.
	Schema SchemaConfig
	Topics []TopicConfig
}

// applyDefaults fills in sane thresholds so callers only override what they need.
func (c *ExternalPublisherConfig) applyDefaults() {
	if c.Policy.MaxWALSizeBytes == 0 {
		c.Policy.MaxWALSizeBytes = 10 << 30
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 100_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 5_000
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Policy.OnWALFull == "" {
		c.Policy.OnWALFull = "block"
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "./data/signalbridge-wal"
	}
}

func (c *ExternalPublisherConfig) validate() error {
	if c.WAL.Dir == "" {
		return fmt.Errorf("wal.dir is required")
	}
	if c.Policy.MaxQueueLen <= 0 {
		return fmt.Errorf("policy.max_queue_len must be > 0")
	}
	if c.Policy.MaxBatchSize <= 0 {
		return fmt.Errorf("policy.max_batch_size must be > 0")
	}
	return nil
}

// ExternalPublisher exposes the decoder→WAL→queue→sink pipeline to in-process
// producers, for instance a recording replayer that already holds the raw blobs.
type ExternalPublisher struct {
	policy   Policy
	wal      *wal.FileWAL
	queue    ports.SampleQueue
	obs      ports.Observability
	registry *prometheus.Registry
	decoder  *decoder.Decoder

	closed   chan struct{}
	cancel   context.CancelFunc
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewExternalPublisher wires a WAL + bounded queue + sink callback so callers can
// push raw blobs or decoded samples while reusing the durability/backpressure policies.
func NewExternalPublisher(cfg *ExternalPublisherConfig, sink SampleBatchSink) (*ExternalPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink callback is required")
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	obs := observability.NewPromObs(observability.WithRegisterer(reg))

	var dec *decoder.Decoder
	if cfg.Schema.File != "" {
		provider, err := schema.Load(cfg.Schema.File)
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		var opts []decoder.Option
		if cfg.Schema.StrictTopics {
			opts = append(opts, decoder.WithStrictTopics())
		}
		dec = decoder.New(provider, obs, cfg.Topics, opts...)
	}

	walAdapter, err := wal.NewFileWAL(cfg.WAL.Dir)
	if err != nil {
		return nil, err
	}
	q := queue.NewMemQueue(cfg.Policy.MaxQueueLen)

	if err := pipeline.ReplayWAL(walAdapter, q, cfg.Policy, obs); err != nil {
		walAdapter.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	pub := &ExternalPublisher{
		policy:   cfg.Policy,
		wal:      walAdapter,
		queue:    q,
		obs:      obs,
		registry: reg,
		decoder:  dec,
		closed:   make(chan struct{}),
		cancel:   cancel,
		doneCh:   make(chan struct{}),
	}

	go func() {
		defer close(pub.doneCh)
		_ = pipeline.RunIngestPipeline(ctx, walAdapter, q, pipeline.Passthrough{}, NewCallbackSink("external", sink), cfg.Policy, obs)
	}()
	return pub, nil
}

// Publish appends an already decoded sample to the WAL and enqueues it according to policy.
func (p *ExternalPublisher) Publish(sample Sample) error {
	if p.isClosed() {
		return ErrPublisherClosed
	}
	return pipeline.Persist(sample.toDomain(), p.wal, p.queue, p.policy, p.obs)
}

// PublishRaw decodes data as a blob of topic and publishes the resulting sample. A zero
// ts stamps the sample with the current time.
func (p *ExternalPublisher) PublishRaw(topic string, data []byte, ts time.Time) error {
	if p.isClosed() {
		return ErrPublisherClosed
	}
	if p.decoder == nil {
		return ErrNoSchema
	}
	msg := &domain.RawMessage{Topic: topic, Data: data, Source: "external"}
	if !ts.IsZero() {
		msg.Timestamp = uint64(ts.UnixMicro())
	}
	return pipeline.Admit(msg, p.decoder, p.wal, p.queue, p.policy, p.obs)
}

// Signals lists the bound signals of topic; it needs a schema.
func (p *ExternalPublisher) Signals(topic string) ([]Signal, error) {
	if p.decoder == nil {
		return nil, ErrNoSchema
	}
	return p.decoder.Signals(topic)
}

// Registry exposes the publisher metrics so callers can serve them.
func (p *ExternalPublisher) Registry() *prometheus.Registry { return p.registry }

func (p *ExternalPublisher) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// Close waits for the ingest loop to exit, respecting the provided context, and then
// closes the WAL. Uncommitted samples are replayed by the next publisher on the same dir.
func (p *ExternalPublisher) Close(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.closed)
		p.cancel()
	})

	select {
	case <-p.doneCh:
		return p.wal.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Sample) toDomain() *domain.Sample {
	return &domain.Sample{
		Topic:        s.Topic,
		Timestamp:    s.Timestamp,
		Seq:          s.Seq,
		Values:       copyValues(s.Values),
		Source:       s.Source,
		TransformVer: s.TransformVer,
	}
}

func sampleFromDomain(s *domain.Sample) Sample {
	return Sample{
		Topic:        s.Topic,
		Timestamp:    s.Timestamp,
		Seq:          s.Seq,
		Values:       copyValues(s.Values),
		Source:       s.Source,
		TransformVer: s.TransformVer,
	}
}

func copyValues(src map[string]float64) map[string]float64 {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
