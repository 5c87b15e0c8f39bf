package signalbridge

import (
	"errors"
	"testing"
	"time"
)

func TestNewCallbackSink(t *testing.T) {
	var received []Sample
	sink := NewCallbackSink("cb", func(batch []Sample) error {
		received = append(received, batch...)
		return nil
	})

	input := Sample{
		Topic:     "vehicle.ego.motion",
		Timestamp: time.Unix(1, 0),
		Seq:       42,
		Values:    map[string]float64{"vehicle.ego.motion.speed": 3.14},
	}

	if err := sink.WriteBatch([]*PipelineSample{input.toDomain()}); err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 batch entry, got %d", len(received))
	}
	got := received[0]
	if got.Topic != input.Topic || got.Seq != input.Seq {
		t.Fatalf("mismatched sample payload: %+v vs %+v", got, input)
	}
	if got.Values["vehicle.ego.motion.speed"] != 3.14 {
		t.Fatalf("expected value to be copied, got %v", got.Values)
	}
}

func TestNewCallbackSinkNilHandler(t *testing.T) {
	sink := NewCallbackSink("", nil)
	s := Sample{Topic: "t"}
	if err := sink.WriteBatch([]*PipelineSample{s.toDomain()}); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
}

func TestNewChannelSink(t *testing.T) {
	sink, ch, closeFn := NewChannelSink("chan", 1)
	defer closeFn()

	input := Sample{Topic: "vehicle.ego.flag", Seq: 7}
	errCh := make(chan error, 1)

	go func() {
		errCh <- sink.WriteBatch([]*PipelineSample{input.toDomain()})
	}()

	var batch []Sample
	select {
	case batch = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel batch")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(batch) != 1 || batch[0].Topic != input.Topic {
		t.Fatalf("unexpected batch data: %+v", batch)
	}

	closeFn()
	if err := sink.WriteBatch([]*PipelineSample{input.toDomain()}); !errors.Is(err, ErrChannelSinkClosed) {
		t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
	}
}

func TestChannelSinkCloseUnblocksWriter(t *testing.T) {
	sink, _, closeFn := NewChannelSink("chan", 0)
	errCh := make(chan error, 1)
	go func() {
		errCh <- sink.WriteBatch([]*PipelineSample{{Topic: "t"}})
	}()
	time.Sleep(10 * time.Millisecond)
	closeFn()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrChannelSinkClosed) {
			t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("writer stayed blocked after close")
	}
}

func TestTopicFilterSink(t *testing.T) {
	var got []Sample
	calls := 0
	next := NewCallbackSink("cb", func(batch []Sample) error {
		calls++
		got = append(got, batch...)
		return nil
	})
	sink := NewTopicFilterSink(next, "a")

	if err := sink.WriteBatch([]*PipelineSample{{Topic: "a", Seq: 1}, {Topic: "b", Seq: 2}, {Topic: "a", Seq: 3}}); err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if err := sink.WriteBatch([]*PipelineSample{{Topic: "b"}}); err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if calls != 1 || len(got) != 2 || got[1].Seq != 3 {
		t.Fatalf("unexpected forwarding calls=%d got=%+v", calls, got)
	}
	if sink.Name() != "cb[filtered]" {
		t.Fatalf("unexpected name %q", sink.Name())
	}
}

func TestFanOutSink(t *testing.T) {
	var a, b int
	sink := NewFanOutSink(
		NewCallbackSink("a", func(batch []Sample) error { a += len(batch); return nil }),
		NewCallbackSink("b", func(batch []Sample) error { b += len(batch); return errors.New("down") }),
	)
	err := sink.WriteBatch([]*PipelineSample{{Topic: "x"}})
	if err == nil || a != 1 || b != 1 {
		t.Fatalf("expected both sinks to run and b to fail, a=%d b=%d err=%v", a, b, err)
	}
}
