// Package decoder turns raw topic blobs into samples. Every topic gets its own
// PackageTreeExtractor, built once from the schema provider and guarded by a
// per-topic mutex so delivery goroutines of different topics never contend.
package decoder

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/errs"
	"github.com/ghalamif/SignalBridge/internal/ports"
	"github.com/ghalamif/SignalBridge/internal/signal"
	"github.com/ghalamif/SignalBridge/internal/structtree"
)

var ErrUnknownTopic = errors.New("decoder: topic not configured")

// Topic binds a topic URL to the signals the sinks need. An empty Required list keeps
// every signal of the topic.
type Topic struct {
	URL      string   `yaml:"url"`
	Required []string `yaml:"required"`
}

// TopicStatus is a snapshot of one topic binding.
type TopicStatus struct {
	URL      string
	Ready    bool
	Signals  int
	Decoded  uint64
	Err      error
	Required []string
}

type binding struct {
	mu        sync.Mutex
	topic     Topic
	extractor *structtree.PackageTreeExtractor
	seq       uint64
}

type Decoder struct {
	provider ports.SchemaProvider
	obs      ports.Observability
	strict   bool

	mu     sync.RWMutex
	topics map[string]*binding
}

var _ ports.Decoder = (*Decoder)(nil)

type Option func(*Decoder)

// WithStrictTopics rejects messages of topics that were not configured up front
// instead of binding them on first sight.
func WithStrictTopics() Option {
	return func(d *Decoder) { d.strict = true }
}

// New binds every configured topic right away. Topics whose schema cannot be resolved
// stay registered but disabled until Reload succeeds.
func New(provider ports.SchemaProvider, obs ports.Observability, topics []Topic, opts ...Option) *Decoder {
	d := &Decoder{
		provider: provider,
		obs:      obs,
		topics:   make(map[string]*binding, len(topics)),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, t := range topics {
		d.topics[t.URL] = d.bind(t)
	}
	return d
}

func (d *Decoder) bind(t Topic) *binding {
	ex := structtree.NewPackageTreeExtractor(d.provider, t.URL)
	if !ex.IsSetupSuccessful() {
		d.obs.LogError("topic_setup_failed", ex.Err(), ports.Field{Key: "topic", Value: t.URL})
		d.obs.IncCounter("bridge_topic_setup_failures_total", 1)
		return &binding{topic: t, extractor: ex}
	}
	total := len(ex.Signals())
	if len(t.Required) > 0 {
		ex.PurgeUnusedLeaves(t.Required)
	}
	d.obs.LogInfo("topic_bound",
		ports.Field{Key: "topic", Value: t.URL},
		ports.Field{Key: "signals", Value: len(ex.Signals())},
		ports.Field{Key: "purged", Value: total - len(ex.Signals())},
	)
	return &binding{topic: t, extractor: ex}
}

func (d *Decoder) lookup(topic string) (*binding, error) {
	d.mu.RLock()
	b, ok := d.topics[topic]
	d.mu.RUnlock()
	if ok {
		return b, nil
	}
	if d.strict {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.topics[topic]; ok {
		return b, nil
	}
	b = d.bind(Topic{URL: topic})
	d.topics[topic] = b
	return b, nil
}

// Decode extracts every bound signal of msg. Signals that fail to read are counted and
// left out of the sample; the message only fails when nothing could be read.
func (d *Decoder) Decode(msg *domain.RawMessage) (*domain.Sample, error) {
	if msg == nil || len(msg.Data) == 0 {
		return nil, errs.WrapInvalid(signal.ErrNullBuffer, "Decoder", "Decode", "bind memory")
	}
	b, err := d.lookup(msg.Topic)
	if err != nil {
		return nil, errs.WrapInvalid(err, "Decoder", "Decode", "topic lookup")
	}
	start := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.extractor.IsSetupSuccessful() {
		return nil, errs.WrapFatal(b.extractor.Err(), "Decoder", "Decode", "schema lookup")
	}

	b.extractor.SetMemory(msg.Data)
	defer b.extractor.SetMemory(nil)

	sigs := b.extractor.Signals()
	values := make(map[string]float64, len(sigs))
	var firstErr error
	failed := 0
	for _, s := range sigs {
		n := s.Len()
		for i := 0; i < n; i++ {
			v, err := s.Read(i)
			if err != nil {
				failed++
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", s.Name, err)
				}
				continue
			}
			values[key(s.Name, i, n)] = v.Float64()
		}
	}
	if failed > 0 {
		d.obs.IncCounter("bridge_signal_errors_total", float64(failed))
	}
	if len(values) == 0 && firstErr != nil {
		return nil, errs.WrapInvalid(firstErr, "Decoder", "Decode", "extract")
	}

	b.seq++
	d.obs.ObserveLatency("bridge_decode_latency_seconds", time.Since(start).Seconds())
	d.obs.IncCounter("bridge_signals_extracted_total", float64(len(values)))

	return &domain.Sample{
		Topic:     msg.Topic,
		Timestamp: msg.Time(),
		Seq:       b.seq,
		Values:    values,
		Source:    msg.Source,
	}, nil
}

func key(url string, i, n int) string {
	if n == 1 {
		return url
	}
	return url + "[" + strconv.Itoa(i) + "]"
}

// Reload rebuilds the tree of topic from the provider, for instance after the
// recording or the schema file changed. The per-topic sequence restarts.
func (d *Decoder) Reload(topic string) error {
	d.mu.RLock()
	old, ok := d.topics[topic]
	d.mu.RUnlock()
	t := Topic{URL: topic}
	if ok {
		t = old.topic
	} else if d.strict {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	nb := d.bind(t)
	d.mu.Lock()
	d.topics[topic] = nb
	d.mu.Unlock()
	if !nb.extractor.IsSetupSuccessful() {
		return errs.WrapFatal(nb.extractor.Err(), "Decoder", "Reload", "schema lookup")
	}
	return nil
}

// Status reports every bound topic sorted by URL.
func (d *Decoder) Status() []TopicStatus {
	d.mu.RLock()
	bs := make([]*binding, 0, len(d.topics))
	for _, b := range d.topics {
		bs = append(bs, b)
	}
	d.mu.RUnlock()

	out := make([]TopicStatus, 0, len(bs))
	for _, b := range bs {
		b.mu.Lock()
		out = append(out, TopicStatus{
			URL:      b.topic.URL,
			Ready:    b.extractor.IsSetupSuccessful(),
			Signals:  len(b.extractor.Signals()),
			Decoded:  b.seq,
			Err:      b.extractor.Err(),
			Required: b.topic.Required,
		})
		b.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Signals returns the bound leaves of topic in tree order.
func (d *Decoder) Signals(topic string) ([]structtree.Signal, error) {
	b, err := d.lookup(topic)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.extractor.IsSetupSuccessful() {
		return nil, b.extractor.Err()
	}
	return append([]structtree.Signal(nil), b.extractor.Signals()...), nil
}
