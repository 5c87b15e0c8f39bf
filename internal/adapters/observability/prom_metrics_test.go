package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(WithRegisterer(reg), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))

	obs.IncCounter(MetricSamplesIngested, 5)
	if got := testutil.ToFloat64(obs.counters[MetricSamplesIngested]); got != 5 {
		t.Fatalf("expected ingested counter 5, got %f", got)
	}

	obs.IncCounter(MetricSignalErrors, 2)
	if got := testutil.ToFloat64(obs.counters[MetricSignalErrors]); got != 2 {
		t.Fatalf("expected signal error counter 2, got %f", got)
	}

	obs.SetGauge(MetricWALSize, 42)
	if got := testutil.ToFloat64(obs.gauges[MetricWALSize]); got != 42 {
		t.Fatalf("expected wal gauge 42, got %f", got)
	}

	obs.ObserveLatency(MetricDecodeLatency, 0.0005)
	hCollector := obs.histos[MetricDecodeLatency].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.RecordDLQ(1, nil, nil)
	if got := testutil.ToFloat64(obs.counters[MetricDLQ]); got != 1 {
		t.Fatalf("expected dlq counter 1, got %f", got)
	}

	obs.IncCounter("unknown_metric", 1)
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 14 {
		t.Fatalf("expected 14 registered metrics, got %d (%v)", n, err)
	}
}

func TestPromObsLogsThroughSlog(t *testing.T) {
	var buf bytes.Buffer
	obs := NewPromObs(WithRegisterer(prometheus.NewRegistry()), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	obs.LogError("sink_write_failed", errors.New("boom"), ports.Field{Key: "sink", Value: "timescale"})
	obs.LogError("ignored", nil)
	obs.RecordDLQ(7, &domain.Sample{Topic: "a.b.c"}, errors.New("bad"))

	out := buf.String()
	for _, want := range []string{"sink_write_failed", "sink=timescale", "error=boom", "wal_id=7", "topic=a.b.c"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q misses %q", out, want)
		}
	}
	if strings.Contains(out, "ignored") {
		t.Fatalf("nil errors must not be logged: %q", out)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger("warn", "json", &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown", "k", 1)
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("unexpected output %q", buf.String())
	}

	if _, err := NewLogger("loud", "text", &buf); err == nil {
		t.Fatalf("expected unknown level error")
	}
	if _, err := NewLogger("info", "xml", &buf); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
