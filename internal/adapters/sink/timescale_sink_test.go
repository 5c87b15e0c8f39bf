package sink

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ghalamif/SignalBridge/internal/domain"
)

func TestTimescaleSinkWriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "signals")
	ts := time.Now()

	samples := []*domain.Sample{
		{
			Topic:        "ego.motion",
			Timestamp:    ts,
			Seq:          1,
			Values:       map[string]float64{"ego.motion.yaw": 0.5, "ego.motion.speed": 42},
			TransformVer: 2,
		},
	}

	expectedQuery := regexp.QuoteMeta(`INSERT INTO "signals" (topic, signal_url, ts, seq, value, transform_ver) VALUES ($1,$2,$3,$4,$5,$6),($7,$8,$9,$10,$11,$12) ON CONFLICT (topic, signal_url, ts, seq) DO NOTHING`)
	mock.ExpectExec(expectedQuery).
		WithArgs(
			"ego.motion", "ego.motion.speed", ts, uint64(1), float64(42), uint16(2),
			"ego.motion", "ego.motion.yaw", ts, uint64(1), 0.5, uint16(2),
		).
		WillReturnResult(sqlmock.NewResult(2, 2))

	if err := sink.WriteBatch(samples); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkWriteBatchNoSamples(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "signals")
	if err := sink.WriteBatch(nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := sink.WriteBatch([]*domain.Sample{{Topic: "empty"}}); err != nil {
		t.Fatalf("expected nil error for sample without values, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkSplitsLargeBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	values := make(map[string]float64, maxRowsPerStatement+1)
	for i := 0; i <= maxRowsPerStatement; i++ {
		values[fmt.Sprintf("ego.grid.cell%05d", i)] = float64(i)
	}
	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(0, int64(maxRowsPerStatement)))
	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(0, 1))

	sink := NewTimescaleSink(db, "signals")
	if err := sink.WriteBatch([]*domain.Sample{{Topic: "ego.grid", Values: values}}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkPropagatesErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO").WillReturnError(boom)

	sink := NewTimescaleSink(db, "signals")
	err = sink.WriteBatch([]*domain.Sample{{Topic: "a", Values: map[string]float64{"a.b": 1}}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestTimescaleSinkEnsureTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "signals"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := NewTimescaleSink(db, "signals").EnsureTable(context.Background()); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	sink := NewTimescaleSink(db, "signals")
	if sink.Name() != "timescaledb" {
		t.Fatalf("expected sink name timescaledb, got %s", sink.Name())
	}
}
