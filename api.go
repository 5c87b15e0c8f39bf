package signalbridge

import (
	base "github.com/ghalamif/SignalBridge/pkg/signalbridge"
)

// Re-exported errors for convenience.
var (
	ErrQueueFull           = base.ErrQueueFull
	ErrWALFull             = base.ErrWALFull
	ErrNoSchema            = base.ErrNoSchema
	ErrPublisherClosed     = base.ErrPublisherClosed
	ErrChannelSinkClosed   = base.ErrChannelSinkClosed
	ErrSchemaUnavailable   = base.ErrSchemaUnavailable
	ErrOutOfBounds         = base.ErrOutOfBounds
	ErrDestinationTooSmall = base.ErrDestinationTooSmall
)

// Type aliases so consumers can import github.com/ghalamif/SignalBridge directly.
type (
	Config                  = base.Config
	Policy                  = base.Policy
	SchemaConfig            = base.SchemaConfig
	TopicConfig             = base.TopicConfig
	CollectorConfig         = base.CollectorConfig
	NATSConfig              = base.NATSConfig
	NATSSubjectConfig       = base.NATSSubjectConfig
	OPCUAConfig             = base.OPCUAConfig
	OPCUANodeConfig         = base.OPCUANodeConfig
	AMQPConfig              = base.AMQPConfig
	AMQPBindingConfig       = base.AMQPBindingConfig
	SinksConfig             = base.SinksConfig
	TimescaleConfig         = base.TimescaleConfig
	WebSocketConfig         = base.WebSocketConfig
	CSVConfig               = base.CSVConfig
	MetricsConfig           = base.MetricsConfig
	WALConfig               = base.WALConfig
	LogConfig               = base.LogConfig
	Flow                    = base.Flow
	FlowOption              = base.FlowOption
	StreamInOption          = base.StreamInOption
	StreamOutOption         = base.StreamOutOption
	EdgeRuntime             = base.EdgeRuntime
	EdgeRuntimeOption       = base.EdgeRuntimeOption
	TopicStatus             = base.TopicStatus
	Sample                  = base.Sample
	SampleBatchSink         = base.SampleBatchSink
	RawMessage              = base.RawMessage
	Collector               = base.Collector
	Sink                    = base.Sink
	Transformer             = base.Transformer
	SampleQueue             = base.SampleQueue
	WAL                     = base.WAL
	Observability           = base.Observability
	QueuedSample            = base.QueuedSample
	WALEntryID              = base.WALEntryID
	WALStats                = base.WALStats
	ExternalPublisher       = base.ExternalPublisher
	ExternalPublisherConfig = base.ExternalPublisherConfig
	SchemaProvider          = base.SchemaProvider
	Schema                  = base.Schema
	PackageTreeExtractor    = base.PackageTreeExtractor
	Signal                  = base.Signal
	Descriptor              = base.Descriptor
	ScalarType              = base.ScalarType
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...EdgeRuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInCollector(col Collector) StreamInOption {
	return base.StreamInCollector(col)
}

func StreamInSchema(p SchemaProvider) StreamInOption {
	return base.StreamInSchema(p)
}

func StreamInTopics(topics ...TopicConfig) StreamInOption {
	return base.StreamInTopics(topics...)
}

func StreamInStrictTopics() StreamInOption {
	return base.StreamInStrictTopics()
}

func StreamInQueue(q SampleQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInWAL(w WAL) StreamInOption {
	return base.StreamInWAL(w)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutTopics(topics ...string) StreamOutOption {
	return base.StreamOutTopics(topics...)
}

func StreamOutTransformer(tr Transformer) StreamOutOption {
	return base.StreamOutTransformer(tr)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn SampleBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Edge runtime and options.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (*EdgeRuntime, error) {
	return base.NewEdgeRuntime(cfg, opts...)
}

func WithCollector(col Collector) EdgeRuntimeOption {
	return base.WithCollector(col)
}

func WithSink(s Sink) EdgeRuntimeOption {
	return base.WithSink(s)
}

func WithSchemaProvider(p SchemaProvider) EdgeRuntimeOption {
	return base.WithSchemaProvider(p)
}

func WithTransformer(tr Transformer) EdgeRuntimeOption {
	return base.WithTransformer(tr)
}

func WithWAL(w WAL) EdgeRuntimeOption {
	return base.WithWAL(w)
}

func WithSampleQueue(q SampleQueue) EdgeRuntimeOption {
	return base.WithSampleQueue(q)
}

func WithObservability(obs Observability) EdgeRuntimeOption {
	return base.WithObservability(obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn SampleBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Sample, func()) {
	return base.NewChannelSink(name, buffer)
}

func NewTopicFilterSink(next Sink, topics ...string) Sink {
	return base.NewTopicFilterSink(next, topics...)
}

// External publisher.
func NewExternalPublisher(cfg *ExternalPublisherConfig, sink SampleBatchSink) (*ExternalPublisher, error) {
	return base.NewExternalPublisher(cfg, sink)
}

// Extraction.
func LoadSchema(path string) (*Schema, error) {
	return base.LoadSchema(path)
}

func NewPackageTreeExtractor(provider SchemaProvider, topicURL string) *PackageTreeExtractor {
	return base.NewPackageTreeExtractor(provider, topicURL)
}
