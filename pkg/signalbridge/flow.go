package signalbridge

import (
	"context"
	"fmt"
)

// Flow builds an EdgeRuntime in two stages. StreamIN decides where topic blobs come
// from and which of their signals get decoded, StreamOUT where the samples go:
//
//	flow, _ := signalbridge.Conf("config.yaml")
//	rt, err := flow.
//		StreamIN(signalbridge.StreamInTopics(signalbridge.TopicConfig{URL: "vehicle.ego.motion"})).
//		StreamOUT(signalbridge.StreamOutCallback("stdout", print))
//
// The loaded Config is never modified; topic overrides are applied to a copy when the
// runtime is built.
type Flow struct {
	cfg *Config
	raw []EdgeRuntimeOption
	in  inPlan
	out outPlan
}

type inPlan struct {
	collector Collector
	queue     SampleQueue
	wal       WAL
	schema    SchemaProvider
	obs       Observability
	topics    []TopicConfig
	strict    bool
}

type outPlan struct {
	sinks       []Sink
	only        []string
	transformer Transformer
	obs         Observability
}

type FlowOption func(*Flow)

// StreamInOption configures the collector, decoding and durability side.
type StreamInOption func(*inPlan)

// StreamOutOption configures the sink side.
type StreamOutOption func(*outPlan)

// Conf loads the YAML config at path.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options adds raw runtime options. Stream options given for the same concern win.
func (f *Flow) Options(opts ...EdgeRuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.addRaw(opts...)
	return f
}

func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&f.in)
		}
	}
	return f
}

// StreamOUT applies opts and builds the runtime.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*EdgeRuntime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&f.out)
		}
	}
	cfg, rtOpts := f.resolve()
	return NewEdgeRuntime(cfg, rtOpts...)
}

// Run builds the runtime with StreamOUT and runs it until ctx is done.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func (f *Flow) resolve() (*Config, []EdgeRuntimeOption) {
	cfg := f.cfg
	if len(f.in.topics) > 0 || f.in.strict {
		c := *f.cfg
		c.Topics = mergeTopics(f.cfg.Topics, f.in.topics)
		c.Schema.StrictTopics = c.Schema.StrictTopics || f.in.strict
		cfg = &c
	}

	opts := append([]EdgeRuntimeOption(nil), f.raw...)
	if f.in.collector != nil {
		opts = append(opts, WithCollector(f.in.collector))
	}
	if f.in.queue != nil {
		opts = append(opts, WithSampleQueue(f.in.queue))
	}
	if f.in.wal != nil {
		opts = append(opts, WithWAL(f.in.wal))
	}
	if f.in.schema != nil {
		opts = append(opts, WithSchemaProvider(f.in.schema))
	}
	if obs := f.out.obs; obs != nil {
		opts = append(opts, WithObservability(obs))
	} else if f.in.obs != nil {
		opts = append(opts, WithObservability(f.in.obs))
	}
	if f.out.transformer != nil {
		opts = append(opts, WithTransformer(f.out.transformer))
	}
	if s := f.out.sink(); s != nil {
		opts = append(opts, WithSink(s))
	}
	return cfg, opts
}

// sink fans out to every custom sink and applies the topic filter. It is nil when no
// custom sink was given, so the configured sinks stay in charge.
func (p *outPlan) sink() Sink {
	var s Sink
	switch len(p.sinks) {
	case 0:
		return nil
	case 1:
		s = p.sinks[0]
	default:
		s = NewFanOutSink(p.sinks...)
	}
	if len(p.only) > 0 {
		s = NewTopicFilterSink(s, p.only...)
	}
	return s
}

// mergeTopics replaces configured topics by URL and appends the rest in order.
func mergeTopics(configured, extra []TopicConfig) []TopicConfig {
	out := append([]TopicConfig(nil), configured...)
	at := make(map[string]int, len(out))
	for i, t := range out {
		at[t.URL] = i
	}
	for _, t := range extra {
		if i, ok := at[t.URL]; ok {
			out[i] = t
			continue
		}
		at[t.URL] = len(out)
		out = append(out, t)
	}
	return out
}

// WithFlowOptions adds raw runtime options while the flow is created.
func WithFlowOptions(opts ...EdgeRuntimeOption) FlowOption {
	return func(f *Flow) { f.addRaw(opts...) }
}

func StreamInCollector(col Collector) StreamInOption {
	return func(p *inPlan) {
		if col != nil {
			p.collector = col
		}
	}
}

func StreamInQueue(q SampleQueue) StreamInOption {
	return func(p *inPlan) {
		if q != nil {
			p.queue = q
		}
	}
}

func StreamInWAL(w WAL) StreamInOption {
	return func(p *inPlan) {
		if w != nil {
			p.wal = w
		}
	}
}

// StreamInSchema decodes topics with sp instead of the schema file named in the config.
func StreamInSchema(sp SchemaProvider) StreamInOption {
	return func(p *inPlan) {
		if sp != nil {
			p.schema = sp
		}
	}
}

// StreamInTopics binds topics up front. A topic with Required signals is purged to
// them; a topic already in the config is replaced. Entries without URL are ignored.
func StreamInTopics(topics ...TopicConfig) StreamInOption {
	return func(p *inPlan) {
		for _, t := range topics {
			if t.URL != "" {
				p.topics = append(p.topics, t)
			}
		}
	}
}

// StreamInStrictTopics drops messages of topics that are neither configured nor
// given to StreamInTopics.
func StreamInStrictTopics() StreamInOption {
	return func(p *inPlan) { p.strict = true }
}

// StreamInObservability is overridden by StreamOutObservability.
func StreamInObservability(obs Observability) StreamInOption {
	return func(p *inPlan) {
		if obs != nil {
			p.obs = obs
		}
	}
}

// StreamOutSink adds a custom sink. Several custom sinks receive every batch; any of
// them replaces the sinks built from the config.
func StreamOutSink(s Sink) StreamOutOption {
	return func(p *outPlan) {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
}

// StreamOutCallback adds a sink built from fn.
func StreamOutCallback(name string, fn SampleBatchSink) StreamOutOption {
	return func(p *outPlan) { p.sinks = append(p.sinks, NewCallbackSink(name, fn)) }
}

// StreamOutTopics restricts the custom sinks to topics. It has no effect on the sinks
// built from the config.
func StreamOutTopics(topics ...string) StreamOutOption {
	return func(p *outPlan) { p.only = append(p.only, topics...) }
}

func StreamOutTransformer(tr Transformer) StreamOutOption {
	return func(p *outPlan) {
		if tr != nil {
			p.transformer = tr
		}
	}
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return func(p *outPlan) {
		if obs != nil {
			p.obs = obs
		}
	}
}

func (f *Flow) addRaw(opts ...EdgeRuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.raw = append(f.raw, opt)
		}
	}
}
