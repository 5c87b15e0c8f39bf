// Command replay pushes raw topic blobs from a directory through an ExternalPublisher.
// Each file is named <topic>.<n>.bin and holds one serialized message.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ghalamif/SignalBridge"
)

func main() {
	dir := flag.String("dir", "./recording", "Directory with <topic>.<n>.bin blobs")
	schema := flag.String("schema", "../../data/schema.yaml", "Topic layout file")
	flag.Parse()

	pub, err := signalbridge.NewExternalPublisher(&signalbridge.ExternalPublisherConfig{
		WAL:    signalbridge.WALConfig{Dir: "./data/replay-wal"},
		Schema: signalbridge.SchemaConfig{File: *schema},
	}, func(batch []signalbridge.Sample) error {
		for _, s := range batch {
			fmt.Printf("%s #%d %v\n", s.Topic, s.Seq, s.Values)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("publisher: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.bin"))
	if err != nil {
		log.Fatalf("glob: %v", err)
	}
	sort.Strings(files)

	for _, f := range files {
		base := strings.TrimSuffix(filepath.Base(f), ".bin")
		topic := base
		if i := strings.LastIndexByte(base, '.'); i > 0 {
			topic = base[:i]
		}
		blob, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		if err := pub.PublishRaw(topic, blob, time.Time{}); err != nil {
			log.Printf("skip %s: %v", f, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// give the ingest loop a moment to drain before closing
	time.Sleep(100 * time.Millisecond)
	if err := pub.Close(ctx); err != nil {
		log.Fatalf("close: %v", err)
	}
}
