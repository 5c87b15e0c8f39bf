package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/errs"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

var (
	// ErrWALFull indicates the WAL is at capacity and OnWALFull is not "block".
	ErrWALFull = errors.New("pipeline: wal full")
	// ErrQueueFull indicates the queue rejected the sample according to policy.
	ErrQueueFull = errors.New("pipeline: queue full")
)

// RunEdgePipeline starts col and decodes every raw message it delivers into the WAL
// and the queue until ctx is done. The collector is stopped on return.
func RunEdgePipeline(ctx context.Context, col ports.Collector, dec ports.Decoder, wal ports.WAL, q ports.SampleQueue, pol ports.Policy, obs ports.Observability) error {
	ch := make(chan *domain.RawMessage, pol.MaxQueueLen)

	if err := col.Start(ch); err != nil {
		return err
	}
	defer func() {
		if err := col.Stop(); err != nil {
			obs.LogError("collector_stop_failed", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			if err := Admit(msg, dec, wal, q, pol, obs); err != nil {
				logAdmitError(msg, err, obs)
			}
		}
	}
}

// Admit decodes one raw message and makes the resulting sample durable before it is
// queued for the sinks.
func Admit(msg *domain.RawMessage, dec ports.Decoder, wal ports.WAL, q ports.SampleQueue, pol ports.Policy, obs ports.Observability) error {
	obs.IncCounter("bridge_messages_received_total", 1)

	s, err := dec.Decode(msg)
	if err != nil {
		obs.IncCounter("bridge_decode_failures_total", 1)
		return err
	}
	return Persist(s, wal, q, pol, obs)
}

// Persist appends an already decoded sample to the WAL and queues it under the
// backpressure policy.
func Persist(s *domain.Sample, wal ports.WAL, q ports.SampleQueue, pol ports.Policy, obs ports.Observability) error {
	if !waitForWALCapacity(wal, pol, obs) {
		return ErrWALFull
	}

	id, err := wal.Append(s)
	if err != nil {
		return errs.WrapFatal(err, "EdgePipeline", "Persist", "wal append")
	}

	if !enqueueWithPolicy(q, id, s, pol, obs) {
		obs.IncCounter("bridge_queue_dropped_total", 1)
		return ErrQueueFull
	}
	return nil
}

func logAdmitError(msg *domain.RawMessage, err error, obs ports.Observability) {
	topic := ports.Field{Key: "topic", Value: msg.Topic}
	switch {
	case errors.Is(err, ErrWALFull), errors.Is(err, ErrQueueFull):
		// already logged by the policy helpers
	case errs.IsFatal(err):
		obs.LogCritical("admit_failed", err, topic)
	default:
		obs.LogError("decode_failed", err, topic, ports.Field{Key: "class", Value: errs.ClassOf(err).String()})
	}
}

// ReplayWAL re-enqueues every uncommitted WAL entry, typically after a restart.
func ReplayWAL(wal ports.WAL, q ports.SampleQueue, pol ports.Policy, obs ports.Observability) error {
	stats := wal.Stats()
	if stats.LatestAppended == 0 {
		return nil
	}
	start := stats.OldestUncommitted
	if start == 0 || start > stats.LatestAppended {
		return nil
	}

	sleep := idleSleep(pol)
	var replayed int
	err := wal.Iterate(start, func(id ports.WALEntryID, sample *domain.Sample) error {
		for {
			if q.Enqueue(id, sample) {
				replayed++
				return nil
			}
			switch pol.OnQueueFull {
			case "drop", "reject":
				return fmt.Errorf("queue full during WAL replay at id %d", id)
			default:
				time.Sleep(sleep)
			}
		}
	})
	if err != nil {
		return err
	}
	if replayed > 0 {
		obs.LogInfo("wal_replay_complete",
			ports.Field{Key: "samples", Value: replayed},
			ports.Field{Key: "from_id", Value: start})
	}
	return nil
}

// RecordGauges publishes WAL size and queue length every interval until ctx is done.
func RecordGauges(ctx context.Context, wal ports.WAL, q ports.SampleQueue, obs ports.Observability, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			obs.SetGauge("bridge_wal_size_bytes", float64(wal.Stats().SizeBytes))
			obs.SetGauge("bridge_queue_length", float64(q.Len()))
		}
	}
}

func idleSleep(pol ports.Policy) time.Duration {
	if pol.IdleSleep <= 0 {
		return 5 * time.Millisecond
	}
	return pol.IdleSleep
}

func waitForWALCapacity(wal ports.WAL, pol ports.Policy, obs ports.Observability) bool {
	if pol.MaxWALSizeBytes <= 0 {
		return true
	}
	sleep := idleSleep(pol)

	for {
		stats := wal.Stats()
		if stats.SizeBytes < pol.MaxWALSizeBytes {
			return true
		}

		switch pol.OnWALFull {
		case "block":
			time.Sleep(sleep)
		case "drop":
			obs.LogError("wal_full_drop", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, pol.MaxWALSizeBytes))
			return false
		default:
			obs.LogError("wal_policy_invalid", fmt.Errorf("policy=%s", pol.OnWALFull))
			return false
		}
	}
}

func enqueueWithPolicy(q ports.SampleQueue, id ports.WALEntryID, s *domain.Sample, pol ports.Policy, obs ports.Observability) bool {
	sleep := idleSleep(pol)

	for {
		if ok := q.Enqueue(id, s); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			time.Sleep(sleep)
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}
