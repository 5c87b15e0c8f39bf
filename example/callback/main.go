package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/ghalamif/SignalBridge/pkg/signalbridge"
)

func main() {
	flow, err := signalbridge.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []signalbridge.Sample) error {
		for _, sample := range batch {
			urls := make([]string, 0, len(sample.Values))
			for u := range sample.Values {
				urls = append(urls, u)
			}
			sort.Strings(urls)

			fmt.Printf("%s topic=%s seq=%d\n", sample.Timestamp.Format(time.RFC3339Nano), sample.Topic, sample.Seq)
			for _, u := range urls {
				fmt.Printf("  %s = %g\n", u, sample.Values[u])
			}
		}
		return nil
	}

	flow.StreamIN(signalbridge.StreamInTopics(signalbridge.TopicConfig{
		URL:      "vehicle.ego.motion",
		Required: []string{"vehicle.ego.motion.speed", "vehicle.ego.motion.yawRate"},
	}))

	if err := flow.Run(ctx,
		signalbridge.StreamOutCallback("stdout", callback),
		signalbridge.StreamOutTopics("vehicle.ego.motion"),
	); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
