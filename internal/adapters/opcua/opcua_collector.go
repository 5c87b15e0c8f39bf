package opcua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Nodes            []NodeConfig  `yaml:"nodes"`
}

// NodeConfig maps a ByteString node carrying a serialized topic blob to its topic URL.
type NodeConfig struct {
	NodeID string `yaml:"node_id"`
	Topic  string `yaml:"topic"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "SignalBridge"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.NodeID == "" || n.Topic == "" {
			return fmt.Errorf("node %q: node_id and topic are required", n.NodeID)
		}
		if seen[n.NodeID] {
			return fmt.Errorf("node %q configured twice", n.NodeID)
		}
		seen[n.NodeID] = true
	}
	return nil
}

type Collector struct {
	cfg       Config
	log       *slog.Logger
	client    *opcua.Client
	sub       *opcua.Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	handleMap map[uint32]NodeConfig
	mu        sync.Mutex
	started   bool
}

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

func (c *Collector) Start(out chan<- *domain.RawMessage) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("opcua collector already started")
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	client, err := opcua.NewClient(c.cfg.Endpoint, c.buildClientOptions()...)
	if err != nil {
		cancel()
		return fmt.Errorf("opcua new client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("opcua connect: %w", err)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(c.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: c.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua subscribe: %w", err)
	}

	handleMap := make(map[uint32]NodeConfig, len(c.cfg.Nodes))
	for i, node := range c.cfg.Nodes {
		nodeID, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			c.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("parse node id %q: %w", node.NodeID, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		if c.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(c.cfg.SamplingInterval / time.Millisecond)
		}
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			c.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q: %w", node.NodeID, err)
		}
		if len(res.Results) == 0 {
			c.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q failed: empty result", node.NodeID)
		}
		if res.Results[0].StatusCode != ua.StatusOK {
			c.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q failed: %s", node.NodeID, res.Results[0].StatusCode)
		}
		handleMap[handle] = node
	}

	c.mu.Lock()
	c.client = client
	c.sub = sub
	c.cancel = cancel
	c.handleMap = handleMap
	c.started = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.consume(ctx, notifyCh, out)
	return nil
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	sub := c.sub
	client := c.client
	c.started = false
	c.cancel = nil
	c.sub = nil
	c.client = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if sub != nil {
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if client != nil {
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}

	c.wg.Wait()
	return err
}

func (c *Collector) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData, out chan<- *domain.RawMessage) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				c.log.Error("opcua notification error", slog.Any("error", notif.Error))
				continue
			}
			data, ok := notif.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			for _, msg := range c.toRawMessages(data) {
				select {
				case <-ctx.Done():
					return
				case out <- msg:
				}
			}
		}
	}
}

func (c *Collector) toRawMessages(data *ua.DataChangeNotification) []*domain.RawMessage {
	out := make([]*domain.RawMessage, 0, len(data.MonitoredItems))
	for _, item := range data.MonitoredItems {
		nodeCfg, ok := c.handleMap[item.ClientHandle]
		if !ok || item.Value == nil {
			continue
		}
		blob, ok := variantToBytes(item.Value.Value)
		if !ok {
			c.log.Warn("opcua: skipping node with non-blob value",
				slog.String("node", nodeCfg.NodeID), slog.String("type", fmt.Sprintf("%T", item.Value.Value)))
			continue
		}
		out = append(out, &domain.RawMessage{
			Topic:     nodeCfg.Topic,
			Data:      blob,
			Timestamp: timestampMicros(item.Value),
			Source:    nodeCfg.NodeID,
		})
	}
	return out
}

func (c *Collector) buildClientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(c.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(c.cfg.SecurityPolicy)),
		opcua.ApplicationName(c.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}

	if c.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(c.cfg.Username, c.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (c *Collector) cleanupOnError(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	cancel()
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
}

// variantToBytes accepts ByteString values and byte arrays. The returned slice is a
// copy owned by the message.
func variantToBytes(v *ua.Variant) ([]byte, bool) {
	if v == nil {
		return nil, false
	}
	switch val := v.Value().(type) {
	case []byte:
		if len(val) == 0 {
			return nil, false
		}
		return append([]byte(nil), val...), true
	default:
		return nil, false
	}
}

// timestampMicros prefers the source timestamp, the time the blob was recorded.
func timestampMicros(dv *ua.DataValue) uint64 {
	ts := dv.SourceTimestamp
	if ts.IsZero() {
		ts = dv.ServerTimestamp
	}
	if ts.IsZero() {
		return 0
	}
	return uint64(ts.UnixMicro())
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Collector = (*Collector)(nil)
