package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

const (
	timescaleCols = 6
	// Postgres caps bind parameters at 65535 per statement.
	maxRowsPerStatement = 65535 / timescaleCols
)

// TimescaleSink stores one row per extracted signal value.
type TimescaleSink struct {
	db        *sql.DB
	tableName string
	quoted    string
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table, quoted: pq.QuoteIdentifier(table)}
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// EnsureTable creates the signal table if it is missing. Turning it into a
// hypertable is left to the operator.
func (t *TimescaleSink) EnsureTable(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+t.quoted+
		" (topic TEXT NOT NULL, signal_url TEXT NOT NULL, ts TIMESTAMPTZ NOT NULL, seq BIGINT NOT NULL,"+
		" value DOUBLE PRECISION NOT NULL, transform_ver SMALLINT NOT NULL,"+
		" PRIMARY KEY (topic, signal_url, ts, seq))")
	return err
}

type row struct {
	s   *domain.Sample
	url string
}

func (t *TimescaleSink) WriteBatch(samples []*domain.Sample) error {
	rows := make([]row, 0, len(samples))
	for _, s := range samples {
		urls := make([]string, 0, len(s.Values))
		for u := range s.Values {
			urls = append(urls, u)
		}
		sort.Strings(urls)
		for _, u := range urls {
			rows = append(rows, row{s: s, url: u})
		}
	}

	for len(rows) > 0 {
		n := min(len(rows), maxRowsPerStatement)
		if err := t.insert(rows[:n]); err != nil {
			return err
		}
		rows = rows[n:]
	}
	return nil
}

func (t *TimescaleSink) insert(rows []row) error {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.quoted)
	b.WriteString(" (topic, signal_url, ts, seq, value, transform_ver) VALUES ")

	args := make([]any, 0, len(rows)*timescaleCols)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6)
		args = append(args,
			r.s.Topic,
			r.url,
			r.s.Timestamp,
			r.s.Seq,
			r.s.Values[r.url],
			r.s.TransformVer,
		)
	}

	// idempotent on WAL replay
	b.WriteString(" ON CONFLICT (topic, signal_url, ts, seq) DO NOTHING")

	_, err := t.db.Exec(b.String(), args...)
	return err
}

var _ ports.Sink = (*TimescaleSink)(nil)
