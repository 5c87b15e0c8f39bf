package signalbridge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/SignalBridge/internal/adapters/amqpbus"
	"github.com/ghalamif/SignalBridge/internal/adapters/natsbus"
	"github.com/ghalamif/SignalBridge/internal/adapters/observability"
	"github.com/ghalamif/SignalBridge/internal/adapters/opcua"
	"github.com/ghalamif/SignalBridge/internal/adapters/queue"
	"github.com/ghalamif/SignalBridge/internal/adapters/sink"
	"github.com/ghalamif/SignalBridge/internal/adapters/wal"
	"github.com/ghalamif/SignalBridge/internal/app/config"
	"github.com/ghalamif/SignalBridge/internal/app/decoder"
	"github.com/ghalamif/SignalBridge/internal/app/pipeline"
	"github.com/ghalamif/SignalBridge/internal/ports"
	"github.com/ghalamif/SignalBridge/internal/schema"
)

// EdgeRuntimeOption customizes the dependencies used by EdgeRuntime.
type EdgeRuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	collector     Collector
	sink          Sink
	transformer   Transformer
	wal           WAL
	queue         SampleQueue
	observability Observability
	schema        SchemaProvider
	logger        *slog.Logger
}

// WithCollector injects a custom collector implementation (files, simulators, other brokers).
func WithCollector(col Collector) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.collector = col
	}
}

// WithSink injects a custom sink that replaces every sink enabled in the config.
func WithSink(s Sink) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithTransformer overrides the default passthrough transformer.
func WithTransformer(t Transformer) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.transformer = t
	}
}

// WithWAL lets callers bring their own WAL implementation or reuse an existing instance.
func WithWAL(w WAL) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.wal = w
	}
}

// WithSampleQueue injects a custom queue implementation.
func WithSampleQueue(q SampleQueue) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithSchemaProvider replaces the YAML schema file, for instance with a provider
// backed by a recording's own type information.
func WithSchemaProvider(p SchemaProvider) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.schema = p
	}
}

// WithLogger replaces the logger built from the log section of the config.
func WithLogger(l *slog.Logger) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// EdgeRuntime wires up the collector → decoder → WAL → queue → sink pipeline and
// exposes simple lifecycle hooks for embedding SignalBridge inside any Go service.
type EdgeRuntime struct {
	id          string
	cfg         *Config
	policy      ports.Policy
	log         *slog.Logger
	obs         ports.Observability
	registry    *prometheus.Registry
	wal         ports.WAL
	queue       ports.SampleQueue
	collector   ports.Collector
	decoder     *decoder.Decoder
	transformer ports.Transformer
	sink        ports.Sink
	ws          *sink.WebSocketSink
	db          *sql.DB
	ensureTable *sink.TimescaleSink
	closers     []io.Closer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	started bool
}

// NewEdgeRuntime bootstraps the default adapters (schema registry, NATS or OPC UA
// collector, file WAL, in-memory queue, configured sinks, Prometheus observability).
// Callers can use EdgeRuntimeOption values to override any dependency.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (*EdgeRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &EdgeRuntime{id: uuid.NewString(), cfg: cfg, policy: cfg.Policy}

	rt.log = overrides.logger
	if rt.log == nil {
		l, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		if err != nil {
			return nil, err
		}
		rt.log = l
	}
	rt.log = rt.log.With("instance", rt.id)

	rt.obs = overrides.observability
	if rt.obs == nil {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.obs = observability.NewPromObs(
			observability.WithRegisterer(rt.registry),
			observability.WithLogger(rt.log),
		)
	}

	provider := overrides.schema
	if provider == nil {
		reg, err := schema.Load(cfg.Schema.File)
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		provider = reg
	}
	var decOpts []decoder.Option
	if cfg.Schema.StrictTopics {
		decOpts = append(decOpts, decoder.WithStrictTopics())
	}
	rt.decoder = decoder.New(provider, rt.obs, cfg.Topics, decOpts...)

	if err := rt.buildStorage(cfg, overrides); err != nil {
		return nil, err
	}

	rt.collector = overrides.collector
	if rt.collector == nil {
		col, err := newCollector(cfg.Collector, rt.log)
		if err != nil {
			rt.closeAll()
			return nil, err
		}
		rt.collector = col
	}

	rt.sink = overrides.sink
	if rt.sink == nil {
		if err := rt.buildSinks(cfg.Sinks); err != nil {
			rt.closeAll()
			return nil, err
		}
	}

	rt.transformer = overrides.transformer
	if rt.transformer == nil {
		rt.transformer = pipeline.Passthrough{}
	}

	return rt, nil
}

func (e *EdgeRuntime) buildStorage(cfg *Config, overrides runtimeOverrides) error {
	e.wal = overrides.wal
	if e.wal == nil {
		w, err := wal.NewFileWAL(cfg.WAL.Dir)
		if err != nil {
			return err
		}
		e.wal = w
		e.closers = append(e.closers, w)
	}

	e.queue = overrides.queue
	if e.queue == nil {
		e.queue = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}

	if err := pipeline.ReplayWAL(e.wal, e.queue, cfg.Policy, e.obs); err != nil {
		e.closeAll()
		return err
	}
	return nil
}

func newCollector(cfg config.CollectorConfig, log *slog.Logger) (ports.Collector, error) {
	switch cfg.Type {
	case config.CollectorOPCUA:
		return opcua.NewCollector(cfg.OPCUA, opcua.WithLogger(log))
	case config.CollectorAMQP:
		return amqpbus.NewCollector(cfg.AMQP, amqpbus.WithLogger(log))
	case config.CollectorNATS, "":
		return natsbus.NewCollector(cfg.NATS, natsbus.WithLogger(log))
	default:
		return nil, fmt.Errorf("collector type %q is not supported", cfg.Type)
	}
}

func (e *EdgeRuntime) buildSinks(cfg config.SinksConfig) error {
	var sinks []ports.Sink

	if ts := cfg.Timescale; ts != nil {
		db, err := sql.Open("postgres", ts.ConnString)
		if err != nil {
			return err
		}
		e.db = db
		e.closers = append(e.closers, db)
		s := sink.NewTimescaleSink(db, ts.Table)
		if ts.CreateTable {
			e.ensureTable = s
		}
		sinks = append(sinks, s)
	}
	if cfg.WebSocket != nil {
		e.ws = sink.NewWebSocketSink(*cfg.WebSocket, e.obs)
		sinks = append(sinks, e.ws)
	}
	if cfg.CSV != nil {
		s, err := sink.NewCSVSink(*cfg.CSV)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, s)
		sinks = append(sinks, s)
	}

	switch len(sinks) {
	case 0:
		return errors.New("no sink configured")
	case 1:
		e.sink = sinks[0]
	default:
		e.sink = sink.NewMultiSink(sinks...)
	}
	return nil
}

// ID returns the instance id attached to every log line of this runtime.
func (e *EdgeRuntime) ID() string {
	return e.id
}

// Start begins the edge + ingest pipelines and launches the HTTP surface.
// It returns immediately; call Run to block on a context instead.
func (e *EdgeRuntime) Start() error {
	if e == nil {
		return fmt.Errorf("edge runtime is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("edge runtime already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if e.ensureTable != nil {
		tctx, tcancel := context.WithTimeout(ctx, 10*time.Second)
		err := e.ensureTable.EnsureTable(tctx)
		tcancel()
		if err != nil {
			cancel()
			return fmt.Errorf("ensure table: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pipeline.RunEdgePipeline(gctx, e.collector, e.decoder, e.wal, e.queue, e.policy, e.obs)
	})
	g.Go(func() error {
		return pipeline.RunIngestPipeline(gctx, e.wal, e.queue, e.transformer, e.sink, e.policy, e.obs)
	})
	g.Go(func() error {
		pipeline.RecordGauges(gctx, e.wal, e.queue, e.obs, time.Second)
		return nil
	})
	if e.ws != nil {
		g.Go(func() error { return e.ws.Run(gctx) })
	}
	e.serve(gctx, g)

	e.cancel = cancel
	e.done = make(chan struct{})
	e.started = true
	go func() {
		err := g.Wait()
		e.mu.Lock()
		e.runErr = err
		e.mu.Unlock()
		close(e.done)
	}()

	e.log.Info("edge_runtime_started",
		"collector", e.cfg.Collector.Type,
		"sink", e.sink.Name(),
		"topics", len(e.cfg.Topics))
	return nil
}

func (e *EdgeRuntime) serve(ctx context.Context, g *errgroup.Group) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/topics", e.handleTopics)

	servers := []*http.Server{{Addr: e.cfg.Metrics.Addr, Handler: mux}}
	if e.ws != nil {
		wsCfg := e.cfg.Sinks.WebSocket
		if wsCfg.Addr == "" || wsCfg.Addr == e.cfg.Metrics.Addr {
			mux.Handle(e.ws.Path(), e.ws)
		} else {
			wsMux := http.NewServeMux()
			wsMux.Handle(e.ws.Path(), e.ws)
			servers = append(servers, &http.Server{Addr: wsCfg.Addr, Handler: wsMux})
		}
	}

	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
}

func (e *EdgeRuntime) metricsHandler() http.Handler {
	if e.registry != nil {
		return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
	}
	return promhttp.Handler()
}

type topicView struct {
	URL      string   `json:"url"`
	Ready    bool     `json:"ready"`
	Signals  int      `json:"signals"`
	Decoded  uint64   `json:"decoded"`
	Required []string `json:"required,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (e *EdgeRuntime) handleTopics(w http.ResponseWriter, _ *http.Request) {
	st := e.decoder.Status()
	out := make([]topicView, len(st))
	for i, s := range st {
		out[i] = topicView{URL: s.URL, Ready: s.Ready, Signals: s.Signals, Decoded: s.Decoded, Required: s.Required}
		if s.Err != nil {
			out[i].Error = s.Err.Error()
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// Run starts the runtime and blocks until the provided context is cancelled or a
// component fails. Either way it attempts a graceful shutdown.
func (e *EdgeRuntime) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-e.done:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// Shutdown stops the pipelines, the HTTP servers and releases the WAL, DB and export
// files. It returns the first component error, if any.
func (e *EdgeRuntime) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
		select {
		case <-done:
			e.mu.Lock()
			if e.runErr != nil {
				errs = append(errs, e.runErr)
			}
			e.mu.Unlock()
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	} else if e.collector != nil {
		if err := e.collector.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, e.closeAll())
	return errors.Join(errs...)
}

func (e *EdgeRuntime) closeAll() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Status reports the bound topics sorted by URL.
func (e *EdgeRuntime) Status() []decoder.TopicStatus {
	return e.decoder.Status()
}

// Reload rebuilds the struct tree of topic from the schema provider.
func (e *EdgeRuntime) Reload(topic string) error {
	return e.decoder.Reload(topic)
}
