// Package natsbus receives serialized topic blobs over NATS. A subject carries the
// raw blob as payload; the recording timestamp travels in a header.
package natsbus

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

const (
	HeaderTimestamp = "Bridge-Timestamp-Us"
	HeaderSource    = "Bridge-Source"
)

type Config struct {
	URL           string          `yaml:"url"`
	Name          string          `yaml:"name"`
	Username      string          `yaml:"username"`
	Password      string          `yaml:"password"`
	Token         string          `yaml:"token"`
	MaxReconnects int             `yaml:"max_reconnects"`
	ReconnectWait time.Duration   `yaml:"reconnect_wait"`
	Subjects      []SubjectConfig `yaml:"subjects"`
}

// SubjectConfig subscribes to Subject. Messages are routed to Topic, or to their own
// subject when Topic is empty, which lets wildcard subscriptions fan out per topic.
type SubjectConfig struct {
	Subject string `yaml:"subject"`
	Topic   string `yaml:"topic"`
	Queue   string `yaml:"queue"`
}

func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "signal-bridge"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
}

func (c *Config) Validate() error {
	if len(c.Subjects) == 0 {
		return errors.New("at least one subject must be configured")
	}
	for _, s := range c.Subjects {
		if s.Subject == "" {
			return errors.New("subject must not be empty")
		}
	}
	return nil
}

type Collector struct {
	cfg  Config
	log  *slog.Logger
	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

var _ ports.Collector = (*Collector)(nil)

type Option func(*Collector)

func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.log = l }
}

func NewCollector(cfg Config, opts ...Option) (*Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Collector{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Collector) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.log.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	if c.cfg.Username != "" && c.cfg.Password != "" {
		opts = append(opts, nats.UserInfo(c.cfg.Username, c.cfg.Password))
	}
	if c.cfg.Token != "" {
		opts = append(opts, nats.Token(c.cfg.Token))
	}
	return opts
}

func (c *Collector) Start(out chan<- *domain.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return fmt.Errorf("nats collector already started")
	}

	nc, err := nats.Connect(c.cfg.URL, c.connectionOptions()...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	if err := c.subscribeLocked(nc, out); err != nil {
		nc.Close()
		return err
	}
	c.conn = nc
	return nil
}

// StartWithConn subscribes on an existing connection the caller keeps owning.
func (c *Collector) StartWithConn(nc *nats.Conn, out chan<- *domain.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(nc, out)
}

func (c *Collector) subscribeLocked(nc *nats.Conn, out chan<- *domain.RawMessage) error {
	for _, sc := range c.cfg.Subjects {
		handler := func(m *nats.Msg) {
			msg, err := ToRawMessage(m, sc.Topic)
			if err != nil {
				c.log.Warn("nats: dropping message", slog.String("subject", m.Subject), slog.Any("error", err))
				return
			}
			out <- msg
		}
		var (
			sub *nats.Subscription
			err error
		)
		if sc.Queue != "" {
			sub, err = nc.QueueSubscribe(sc.Subject, sc.Queue, handler)
		} else {
			sub, err = nc.Subscribe(sc.Subject, handler)
		}
		if err != nil {
			c.unsubscribeLocked()
			return fmt.Errorf("nats subscribe %q: %w", sc.Subject, err)
		}
		c.subs = append(c.subs, sub)
	}
	return nil
}

func (c *Collector) unsubscribeLocked() error {
	var err error
	for _, s := range c.subs {
		if e := s.Unsubscribe(); e != nil && !errors.Is(e, nats.ErrConnectionClosed) {
			err = errors.Join(err, e)
		}
	}
	c.subs = nil
	return err
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.unsubscribeLocked()
	if c.conn != nil {
		if e := c.conn.Drain(); e != nil && !errors.Is(e, nats.ErrConnectionClosed) {
			err = errors.Join(err, e)
		}
		c.conn = nil
	}
	return err
}

// ToRawMessage converts a NATS message. topic overrides the subject as topic URL.
func ToRawMessage(m *nats.Msg, topic string) (*domain.RawMessage, error) {
	if len(m.Data) == 0 {
		return nil, errors.New("empty payload")
	}
	if topic == "" {
		topic = m.Subject
	}
	msg := &domain.RawMessage{Topic: topic, Data: m.Data, Source: m.Subject}
	if m.Header == nil {
		return msg, nil
	}
	if ts := m.Header.Get(HeaderTimestamp); ts != "" {
		us, err := strconv.ParseUint(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s header %q: %w", HeaderTimestamp, ts, err)
		}
		msg.Timestamp = us
	}
	if src := m.Header.Get(HeaderSource); src != "" {
		msg.Source = src
	}
	return msg, nil
}

// NewMsg builds the NATS message a recorder publishes for one topic blob.
func NewMsg(subject string, data []byte, timestampUs uint64, source string) *nats.Msg {
	m := nats.NewMsg(subject)
	m.Data = data
	if timestampUs != 0 {
		m.Header.Set(HeaderTimestamp, strconv.FormatUint(timestampUs, 10))
	}
	if source != "" {
		m.Header.Set(HeaderSource, source)
	}
	return m
}
