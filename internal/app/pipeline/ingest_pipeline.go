package pipeline

import (
	"context"
	"time"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

// RunIngestPipeline drains the queue into sink until ctx is done. Entries are only
// committed once the sink accepted them; a failed batch is retried before anything
// newer is dequeued, so a commit never covers undelivered entries. Committed WAL
// records are compacted whenever the queue runs dry.
func RunIngestPipeline(ctx context.Context, wal ports.WAL, q ports.SampleQueue, tr ports.Transformer, sink ports.Sink, pol ports.Policy, obs ports.Observability) error {
	sleep := idleSleep(pol)
	dirty := false
	var pending []ports.QueuedSample

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		batch := pending
		if batch == nil {
			batch = q.DequeueBatch(pol.MaxBatchSize)
		}
		if len(batch) == 0 {
			if dirty {
				if err := wal.TruncateCommitted(); err != nil {
					obs.LogError("wal_truncate_failed", err)
				}
				dirty = false
			}
			time.Sleep(sleep)
			continue
		}

		if IngestBatch(batch, wal, tr, sink, obs) {
			dirty = true
			pending = nil
		} else {
			pending = batch
			time.Sleep(sleep)
		}
	}
}

// IngestBatch transforms batch, writes it to sink and commits it. It reports whether
// the WAL was committed.
func IngestBatch(batch []ports.QueuedSample, wal ports.WAL, tr ports.Transformer, sink ports.Sink, obs ports.Observability) bool {
	var (
		out   = make([]*domain.Sample, 0, len(batch))
		maxID ports.WALEntryID
	)

	for _, item := range batch {
		if item.ID > maxID {
			maxID = item.ID
		}
		s, err := tr.Transform(item.Sample)
		if err != nil {
			obs.RecordDLQ(item.ID, item.Sample, err)
			continue
		}
		s.TransformVer = tr.Version()
		out = append(out, s)
	}

	if len(out) > 0 {
		start := time.Now()
		if err := sink.WriteBatch(out); err != nil {
			obs.LogError("sink_write_failed", err, ports.Field{Key: "sink", Value: sink.Name()})
			// keep WAL; replays later
			return false
		}
		obs.ObserveLatency("bridge_sink_latency_seconds", time.Since(start).Seconds())
		obs.IncCounter("bridge_samples_ingested_total", float64(len(out)))
	}

	if err := wal.Commit(maxID); err != nil {
		obs.LogError("wal_commit_failed", err)
		return false
	}
	return true
}

// Passthrough is the default transformer; it leaves samples untouched.
type Passthrough struct{}

func (Passthrough) Transform(s *domain.Sample) (*domain.Sample, error) { return s, nil }
func (Passthrough) Version() uint16                                    { return 1 }
