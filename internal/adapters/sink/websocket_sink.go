package sink

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

type WebSocketConfig struct {
	Addr         string        `yaml:"addr"`
	Path         string        `yaml:"path"`
	MaxFrameRate float64       `yaml:"max_frame_rate"` // frames per second, 0 = unlimited
	Burst        int           `yaml:"burst"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

func (c *WebSocketConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
}

// Frame is the JSON text frame pushed to GUI clients.
type Frame struct {
	Type     string    `json:"type"`
	ClientID string    `json:"client_id,omitempty"`
	Topic    string    `json:"topic,omitempty"`
	TS       time.Time `json:"ts,omitempty"`
	Seq      uint64    `json:"seq,omitempty"`
	Values   Values    `json:"values,omitempty"`
}

// Values encodes NaN and ±Inf readings as null; JSON has no number for them.
type Values map[string]float64

func (v Values) MarshalJSON() ([]byte, error) {
	out := make(map[string]*float64, len(v))
	for k, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			out[k] = nil
			continue
		}
		out[k] = &x
	}
	return json.Marshal(out)
}

type wsClient struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(kind int, data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(kind, data)
}

// WebSocketSink broadcasts samples to connected GUI clients. Delivery is best effort:
// frames over the rate limit are dropped and failing clients are disconnected, so a
// slow GUI never holds back the durable sinks.
type WebSocketSink struct {
	cfg      WebSocketConfig
	obs      ports.Observability
	upgrader websocket.Upgrader
	limiter  *rate.Limiter

	mu      sync.RWMutex
	clients map[string]*wsClient
}

var _ ports.Sink = (*WebSocketSink)(nil)

func NewWebSocketSink(cfg WebSocketConfig, obs ports.Observability) *WebSocketSink {
	cfg.ApplyDefaults()
	limit := rate.Inf
	if cfg.MaxFrameRate > 0 {
		limit = rate.Limit(cfg.MaxFrameRate)
	}
	return &WebSocketSink{
		cfg: cfg,
		obs: obs,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1 << 14,
		},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		clients: make(map[string]*wsClient),
	}
}

func (w *WebSocketSink) Name() string { return "websocket" }

func (w *WebSocketSink) Path() string { return w.cfg.Path }

func (w *WebSocketSink) Clients() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.clients)
}

func (w *WebSocketSink) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.obs.LogError("ws_upgrade_failed", err)
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn}

	w.mu.Lock()
	w.clients[c.id] = c
	n := len(w.clients)
	w.mu.Unlock()
	w.obs.SetGauge("bridge_ws_clients", float64(n))

	hello, _ := json.Marshal(Frame{Type: "hello", ClientID: c.id})
	if err := c.write(websocket.TextMessage, hello, w.cfg.WriteTimeout); err != nil {
		w.remove(c)
		return
	}
	go w.readLoop(c)
}

// readLoop drains client frames so control messages (pong, close) are processed.
func (w *WebSocketSink) readLoop(c *wsClient) {
	defer w.remove(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * w.cfg.PingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * w.cfg.PingInterval))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (w *WebSocketSink) remove(c *wsClient) {
	w.mu.Lock()
	_, ok := w.clients[c.id]
	delete(w.clients, c.id)
	n := len(w.clients)
	w.mu.Unlock()
	if ok {
		_ = c.conn.Close()
		w.obs.SetGauge("bridge_ws_clients", float64(n))
	}
}

func (w *WebSocketSink) snapshot() []*wsClient {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*wsClient, 0, len(w.clients))
	for _, c := range w.clients {
		out = append(out, c)
	}
	return out
}

func (w *WebSocketSink) WriteBatch(samples []*domain.Sample) error {
	clients := w.snapshot()
	if len(clients) == 0 {
		return nil
	}
	for _, s := range samples {
		if !w.limiter.Allow() {
			w.obs.IncCounter("bridge_ws_frames_dropped_total", 1)
			continue
		}
		data, err := json.Marshal(Frame{Type: "sample", Topic: s.Topic, TS: s.Timestamp, Seq: s.Seq, Values: s.Values})
		if err != nil {
			w.obs.IncCounter("bridge_ws_frames_dropped_total", 1)
			w.obs.LogError("ws_encode_failed", err, ports.Field{Key: "topic", Value: s.Topic})
			continue
		}
		for _, c := range clients {
			if err := c.write(websocket.TextMessage, data, w.cfg.WriteTimeout); err != nil {
				w.obs.IncCounter("bridge_ws_frames_dropped_total", 1)
				w.remove(c)
			}
		}
	}
	return nil
}

// Run pings clients until ctx is done, then disconnects all of them.
func (w *WebSocketSink) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, c := range w.snapshot() {
				_ = c.write(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Second)
				w.remove(c)
			}
			return nil
		case <-ticker.C:
			for _, c := range w.snapshot() {
				if err := c.write(websocket.PingMessage, nil, w.cfg.WriteTimeout); err != nil {
					w.remove(c)
				}
			}
		}
	}
}
