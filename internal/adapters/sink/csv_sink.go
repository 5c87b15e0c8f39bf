package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

type CSVConfig struct {
	Dir string `yaml:"dir"`
}

type csvTopic struct {
	file    *os.File
	w       *csv.Writer
	columns []string
}

// CSVSink exports one CSV file per topic. The first sample of a topic fixes its
// columns; later samples leave absent signals empty and drop unknown ones.
type CSVSink struct {
	dir    string
	mu     sync.Mutex
	topics map[string]*csvTopic
}

var _ ports.Sink = (*CSVSink)(nil)

func NewCSVSink(cfg CSVConfig) (*CSVSink, error) {
	if cfg.Dir == "" {
		return nil, errors.New("csv dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &CSVSink{dir: cfg.Dir, topics: make(map[string]*csvTopic)}, nil
}

func (c *CSVSink) Name() string { return "csv" }

// Path is the file a topic is exported to. Characters outside [A-Za-z0-9._-] become
// '_', so a topic never names a file outside the export dir.
func (c *CSVSink) Path(topic string) string {
	return filepath.Join(c.dir, fileName(topic)+".csv")
}

func fileName(topic string) string {
	if topic == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, topic)
}

func (c *CSVSink) open(s *domain.Sample) (*csvTopic, error) {
	if t, ok := c.topics[s.Topic]; ok {
		return t, nil
	}
	f, err := os.OpenFile(c.Path(s.Topic), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(s.Values))
	for u := range s.Values {
		cols = append(cols, u)
	}
	sort.Strings(cols)

	t := &csvTopic{file: f, w: csv.NewWriter(f), columns: cols}
	if err := t.w.Write(append([]string{"ts", "seq"}, cols...)); err != nil {
		f.Close()
		return nil, err
	}
	c.topics[s.Topic] = t
	return t, nil
}

func (c *CSVSink) WriteBatch(samples []*domain.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	touched := make(map[*csvTopic]struct{})
	for _, s := range samples {
		t, err := c.open(s)
		if err != nil {
			return fmt.Errorf("csv open %s: %w", s.Topic, err)
		}
		rec := make([]string, 0, len(t.columns)+2)
		rec = append(rec, s.Timestamp.UTC().Format(time.RFC3339Nano), strconv.FormatUint(s.Seq, 10))
		for _, col := range t.columns {
			v, ok := s.Values[col]
			if !ok {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := t.w.Write(rec); err != nil {
			return err
		}
		touched[t] = struct{}{}
	}

	var err error
	for t := range touched {
		t.w.Flush()
		err = errors.Join(err, t.w.Error())
	}
	return err
}

func (c *CSVSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	for name, t := range c.topics {
		t.w.Flush()
		err = errors.Join(err, t.w.Error(), t.file.Close())
		delete(c.topics, name)
	}
	return err
}
