package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	_ "github.com/lib/pq"

	"github.com/ghalamif/SignalBridge"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "inspect":
		err = inspectCommand(os.Args[2:])
	case "extract":
		err = extractCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("signal-bridge %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to bridge configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := signalbridge.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := signalbridge.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	schema, err := signalbridge.LoadSchema(cfg.Schema.File)
	if err != nil {
		return fmt.Errorf("schema %s: %w", cfg.Schema.File, err)
	}
	for _, t := range cfg.Topics {
		ex := signalbridge.NewPackageTreeExtractor(schema, t.URL)
		if !ex.IsSetupSuccessful() {
			return fmt.Errorf("topic %s: %w", t.URL, ex.Err())
		}
	}
	fmt.Printf("config %s looks good (%d topics bound)\n", *cfgPath, len(cfg.Topics))
	return nil
}

func inspectCommand(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	schemaPath := fs.String("schema", "./data/schema.yaml", "Path to the topic layout file")
	topic := fs.String("topic", "", "Only print this topic")
	if err := fs.Parse(args); err != nil {
		return err
	}

	schema, err := signalbridge.LoadSchema(*schemaPath)
	if err != nil {
		return err
	}
	topics := schema.Topics()
	if *topic != "" {
		topics = []string{*topic}
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for _, t := range topics {
		ex := signalbridge.NewPackageTreeExtractor(schema, t)
		if !ex.IsSetupSuccessful() {
			return fmt.Errorf("topic %s: %w", t, ex.Err())
		}
		size, _ := schema.Size(t)
		fmt.Fprintf(tw, "%s\t%d bytes\t\t\n", t, size)
		for _, s := range ex.Signals() {
			d := s.Descriptor
			fmt.Fprintf(tw, "  %s\t@%d\t%s\t[%d]\n", s.Name, d.Offset, d.Type, d.ArrayLength)
		}
	}
	return nil
}

func extractCommand(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	schemaPath := fs.String("schema", "./data/schema.yaml", "Path to the topic layout file")
	topic := fs.String("topic", "", "Topic the blob belongs to")
	blobPath := fs.String("file", "", "Raw topic blob to decode")
	only := fs.String("signals", "", "Comma separated signal URLs to keep")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topic == "" || *blobPath == "" {
		return fmt.Errorf("-topic and -file are required")
	}

	schema, err := signalbridge.LoadSchema(*schemaPath)
	if err != nil {
		return err
	}
	blob, err := os.ReadFile(*blobPath)
	if err != nil {
		return err
	}

	ex := signalbridge.NewPackageTreeExtractor(schema, *topic)
	if !ex.IsSetupSuccessful() {
		return ex.Err()
	}
	if *only != "" {
		ex.PurgeUnusedLeaves(strings.Split(*only, ","))
	}
	ex.SetMemory(blob)

	for _, s := range ex.Signals() {
		for i := 0; i < s.Len(); i++ {
			name := s.Name
			if s.Len() > 1 {
				name = fmt.Sprintf("%s[%d]", s.Name, i)
			}
			v, err := s.Read(i)
			if err != nil {
				fmt.Printf("%s\terror: %v\n", name, err)
				continue
			}
			fmt.Printf("%s\t%s\n", name, v)
		}
	}
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsTargets = []string{
	"bridge_messages_received_total",
	"bridge_decode_failures_total",
	"bridge_samples_ingested_total",
	"bridge_queue_length",
	"bridge_wal_size_bytes",
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values := make(map[string]float64, len(statsTargets))
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range statsTargets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] received=%.0f decode_failed=%.0f ingested=%.0f queue=%.0f wal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["bridge_messages_received_total"],
		values["bridge_decode_failures_total"],
		values["bridge_samples_ingested_total"],
		values["bridge_queue_length"],
		values["bridge_wal_size_bytes"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`SignalBridge CLI

Usage:
  signal-bridge <command> [flags]

Commands:
  run        Start the bridge runtime using the provided config
  validate   Load the config and bind every configured topic without starting
  inspect    Print the signals, offsets and types of the topics in a schema
  extract    Decode one raw topic blob from disk and print its signal values
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  signal-bridge run -config ./data/config.yaml
  signal-bridge validate -config ./data/config.yaml
  signal-bridge inspect -schema ./data/schema.yaml -topic device
  signal-bridge extract -schema ./data/schema.yaml -topic device -file ./device.bin
  signal-bridge stats -url http://localhost:9100/metrics -interval 1s
`)
}
