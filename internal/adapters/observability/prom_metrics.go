package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

const (
	MetricSamplesIngested   = "bridge_samples_ingested_total"
	MetricDLQ               = "bridge_dlq_total"
	MetricQueueDropped      = "bridge_queue_dropped_total"
	MetricMessagesReceived  = "bridge_messages_received_total"
	MetricDecodeFailures    = "bridge_decode_failures_total"
	MetricSignalsExtracted  = "bridge_signals_extracted_total"
	MetricSignalErrors      = "bridge_signal_errors_total"
	MetricTopicSetupFailure = "bridge_topic_setup_failures_total"
	MetricFramesDropped     = "bridge_ws_frames_dropped_total"

	MetricWALSize   = "bridge_wal_size_bytes"
	MetricQueueLen  = "bridge_queue_length"
	MetricWSClients = "bridge_ws_clients"

	MetricSinkLatency   = "bridge_sink_latency_seconds"
	MetricDecodeLatency = "bridge_decode_latency_seconds"
)

type PromObs struct {
	log      *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

var _ ports.Observability = (*PromObs)(nil)

type Option func(*promOptions)

type promOptions struct {
	reg prometheus.Registerer
	log *slog.Logger
}

// WithRegisterer registers the bridge metrics on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *promOptions) { o.reg = reg }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *promOptions) { o.log = l }
}

func NewPromObs(opts ...Option) *PromObs {
	o := promOptions{reg: prometheus.DefaultRegisterer, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	p := &PromObs{
		log: o.log,
		counters: map[string]prometheus.Counter{
			MetricSamplesIngested:   counter(MetricSamplesIngested, "Total samples successfully written to sinks."),
			MetricDLQ:               counter(MetricDLQ, "Samples sent to DLQ due to transform failures."),
			MetricQueueDropped:      counter(MetricQueueDropped, "Samples lost due to queue backpressure policies."),
			MetricMessagesReceived:  counter(MetricMessagesReceived, "Raw topic messages delivered by collectors."),
			MetricDecodeFailures:    counter(MetricDecodeFailures, "Raw messages that produced no sample."),
			MetricSignalsExtracted:  counter(MetricSignalsExtracted, "Signal values extracted from raw messages."),
			MetricSignalErrors:      counter(MetricSignalErrors, "Signal reads skipped because extraction failed."),
			MetricTopicSetupFailure: counter(MetricTopicSetupFailure, "Topics whose struct tree could not be built."),
			MetricFramesDropped:     counter(MetricFramesDropped, "GUI frames dropped by the rate limiter or slow clients."),
		},
		gauges: map[string]prometheus.Gauge{
			MetricWALSize:   gauge(MetricWALSize, "Size of WAL on disk."),
			MetricQueueLen:  gauge(MetricQueueLen, "Current number of samples buffered in the in-memory queue."),
			MetricWSClients: gauge(MetricWSClients, "Connected GUI WebSocket clients."),
		},
		histos: map[string]prometheus.Observer{},
	}

	sinkLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricSinkLatency,
		Help:    "Latency from dequeued batch to sink commit.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	decodeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricDecodeLatency,
		Help:    "Time spent extracting the signals of one raw message.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
	})
	p.histos[MetricSinkLatency] = sinkLatency
	p.histos[MetricDecodeLatency] = decodeLatency

	collectors := []prometheus.Collector{sinkLatency, decodeLatency}
	for _, c := range p.counters {
		collectors = append(collectors, c)
	}
	for _, g := range p.gauges {
		collectors = append(collectors, g)
	}
	o.reg.MustRegister(collectors...)
	return p
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err == nil {
		return
	}
	p.log.Error(msg, append(attrs(fields), slog.Any("error", err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err == nil {
		return
	}
	p.log.Error(msg, append(attrs(fields), slog.Any("error", err), slog.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.WALEntryID, s *domain.Sample, err error) {
	p.IncCounter(MetricDLQ, 1)
	if err != nil && s != nil {
		p.log.Warn("dlq", slog.Uint64("wal_id", uint64(id)), slog.String("topic", s.Topic), slog.Any("error", err))
	}
}
