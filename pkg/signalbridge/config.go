package signalbridge

import (
	"github.com/ghalamif/SignalBridge/internal/adapters/amqpbus"
	"github.com/ghalamif/SignalBridge/internal/adapters/natsbus"
	"github.com/ghalamif/SignalBridge/internal/adapters/opcua"
	"github.com/ghalamif/SignalBridge/internal/adapters/sink"
	"github.com/ghalamif/SignalBridge/internal/app/config"
	"github.com/ghalamif/SignalBridge/internal/app/decoder"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls WAL/queue thresholds.
	Policy = ports.Policy
	// SchemaConfig points at the YAML topic layout file.
	SchemaConfig = config.SchemaConfig
	// TopicConfig binds a topic and the signals the sinks need from it.
	TopicConfig = decoder.Topic
	// CollectorConfig selects and configures the transport.
	CollectorConfig = config.CollectorConfig
	// NATSConfig holds connection + subject details.
	NATSConfig = natsbus.Config
	// NATSSubjectConfig maps a subject to a topic.
	NATSSubjectConfig = natsbus.SubjectConfig
	// OPCUAConfig holds connection + node details.
	OPCUAConfig = opcua.Config
	// OPCUANodeConfig maps a ByteString node to a topic.
	OPCUANodeConfig = opcua.NodeConfig
	// AMQPConfig holds broker, exchange and binding details.
	AMQPConfig = amqpbus.Config
	// AMQPBindingConfig maps a routing key to a topic.
	AMQPBindingConfig = amqpbus.BindingConfig
	// SinksConfig enables the built-in sinks.
	SinksConfig = config.SinksConfig
	// TimescaleConfig configures the SQL sink.
	TimescaleConfig = config.TimescaleConfig
	// WebSocketConfig configures the GUI broadcast sink.
	WebSocketConfig = sink.WebSocketConfig
	// CSVConfig configures the CSV export sink.
	CSVConfig = sink.CSVConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// WALConfig configures on-disk durability.
	WALConfig = config.WALConfig
	// LogConfig configures the slog handler.
	LogConfig = config.LogConfig
)

const (
	CollectorNATS  = config.CollectorNATS
	CollectorOPCUA = config.CollectorOPCUA
	CollectorAMQP  = config.CollectorAMQP
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig validates YAML held in memory.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
