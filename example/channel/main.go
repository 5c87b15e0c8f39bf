package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/SignalBridge"
)

func main() {
	flow, err := signalbridge.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := signalbridge.NewChannelSink("fanout", 32)
	defer closeBatches()

	go summarize(batches)

	if err := flow.Run(ctx, signalbridge.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

// summarize prints how many signal values each batch carried per topic.
func summarize(batches <-chan []signalbridge.Sample) {
	for batch := range batches {
		perTopic := make(map[string]int)
		for _, s := range batch {
			perTopic[s.Topic] += len(s.Values)
		}
		fmt.Printf("[%s] %d samples %v\n", time.Now().Format(time.RFC3339), len(batch), perTopic)
	}
}
