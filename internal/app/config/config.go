package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/SignalBridge/internal/adapters/amqpbus"
	"github.com/ghalamif/SignalBridge/internal/adapters/natsbus"
	"github.com/ghalamif/SignalBridge/internal/adapters/opcua"
	"github.com/ghalamif/SignalBridge/internal/adapters/sink"
	"github.com/ghalamif/SignalBridge/internal/app/decoder"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

const (
	CollectorNATS  = "nats"
	CollectorOPCUA = "opcua"
	CollectorAMQP  = "amqp"
)

type Config struct {
	Policy    ports.Policy    `yaml:"policy"`
	Schema    SchemaConfig    `yaml:"schema"`
	Topics    []decoder.Topic `yaml:"topics"`
	Collector CollectorConfig `yaml:"collector"`
	Sinks     SinksConfig     `yaml:"sinks"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	WAL       WALConfig       `yaml:"wal"`
	Log       LogConfig       `yaml:"log"`
}

type SchemaConfig struct {
	File string `yaml:"file"`
	// StrictTopics drops messages of topics missing from Topics.
	StrictTopics bool `yaml:"strict_topics"`
}

type CollectorConfig struct {
	Type  string         `yaml:"type"`
	NATS  natsbus.Config `yaml:"nats"`
	OPCUA opcua.Config   `yaml:"opcua"`
	AMQP  amqpbus.Config `yaml:"amqp"`
}

type SinksConfig struct {
	Timescale *TimescaleConfig      `yaml:"timescale"`
	WebSocket *sink.WebSocketConfig `yaml:"websocket"`
	CSV       *sink.CSVConfig       `yaml:"csv"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
	// CreateTable runs CREATE TABLE IF NOT EXISTS on startup.
	CreateTable bool `yaml:"create_table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type WALConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes raw YAML, rejecting unknown keys, then applies defaults and validates.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
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
	if c.Collector.Type == "" {
		c.Collector.Type = CollectorNATS
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "./data/wal"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Sinks.Timescale != nil && c.Sinks.Timescale.Table == "" {
		c.Sinks.Timescale.Table = "signals"
	}
	if c.Sinks.WebSocket != nil {
		c.Sinks.WebSocket.ApplyDefaults()
	}

	switch c.Collector.Type {
	case CollectorNATS:
		c.Collector.NATS.ApplyDefaults()
	case CollectorOPCUA:
		c.Collector.OPCUA.ApplyDefaults()
	case CollectorAMQP:
		c.Collector.AMQP.ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if c.Schema.File == "" {
		return errors.New("schema.file is required")
	}
	seen := make(map[string]bool, len(c.Topics))
	for _, t := range c.Topics {
		if t.URL == "" {
			return errors.New("topics: url is required")
		}
		if seen[t.URL] {
			return fmt.Errorf("topics: %q configured twice", t.URL)
		}
		seen[t.URL] = true
	}

	switch c.Collector.Type {
	case CollectorNATS:
		if err := c.Collector.NATS.Validate(); err != nil {
			return fmt.Errorf("nats config: %w", err)
		}
	case CollectorOPCUA:
		if err := c.Collector.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	case CollectorAMQP:
		if err := c.Collector.AMQP.Validate(); err != nil {
			return fmt.Errorf("amqp config: %w", err)
		}
	default:
		return fmt.Errorf("collector.type %q is not supported", c.Collector.Type)
	}

	if c.Sinks.Timescale == nil && c.Sinks.WebSocket == nil && c.Sinks.CSV == nil {
		return errors.New("at least one sink must be configured")
	}
	if c.Sinks.Timescale != nil && c.Sinks.Timescale.ConnString == "" {
		return errors.New("sinks.timescale.conn_string is required")
	}
	if c.Sinks.CSV != nil && c.Sinks.CSV.Dir == "" {
		return errors.New("sinks.csv.dir is required")
	}
	if c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required")
	}
	if c.WAL.Dir == "" {
		return errors.New("wal.dir is required")
	}
	return validatePolicy(c.Policy)
}

func validatePolicy(p ports.Policy) error {
	switch p.OnWALFull {
	case "block", "drop":
	default:
		return fmt.Errorf("policy.on_wal_full %q is not supported", p.OnWALFull)
	}
	switch p.OnQueueFull {
	case "block", "drop", "reject":
	default:
		return fmt.Errorf("policy.on_queue_full %q is not supported", p.OnQueueFull)
	}
	return nil
}
