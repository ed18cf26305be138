package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/runner"
	"github.com/thep200/github-verifier/pkg/kafka"
	"github.com/thep200/github-verifier/pkg/log"
)

// counts gom số event theo status để in tổng kết định kỳ
type counts struct {
	mu      sync.Mutex
	byState map[string]int
	starred int
	forked  int
}

func main() {
	// Parse command line arguments
	consumerType := flag.String("type", "", "Type of consumer to run (verification, engagement)")
	flag.Parse()

	if *consumerType == "" {
		fmt.Println("Please specify a consumer type: -type=[verification|engagement]")
		os.Exit(1)
	}

	// Load configuration
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, _ := log.NewCslLogger()

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var topic string
	switch *consumerType {
	case "verification":
		topic = config.Kafka.Producer.TopicVerification
	case "engagement":
		topic = config.Kafka.Producer.TopicEngagement
	default:
		logger.Error(ctx, "Unknown consumer type: %s", *consumerType)
		os.Exit(1)
	}

	tally := &counts{byState: make(map[string]int)}
	consumer := kafka.NewConsumer(config, logger, topic)

	go func() {
		err := consumer.Start(ctx, func(key, value []byte) error {
			var event runner.Event
			if err := json.Unmarshal(value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal event: %w", err)
			}

			tally.mu.Lock()
			tally.byState[event.Status]++
			if event.HasStarred {
				tally.starred++
			}
			if event.HasForked {
				tally.forked++
			}
			tally.mu.Unlock()

			logger.Info(ctx, "Event for %s: status=%s", event.Handle, event.Status)
			return nil
		})
		if err != nil {
			logger.Error(ctx, "Consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "%s consumer started successfully", *consumerType)

	// Wait for termination signal
	<-sigCh
	logger.Info(ctx, "Received shutdown signal, gracefully shutting down...")
	cancel()

	tally.mu.Lock()
	logger.Info(ctx, "Consumed events by status: %v (starred=%d, forked=%d)", tally.byState, tally.starred, tally.forked)
	tally.mu.Unlock()
}
