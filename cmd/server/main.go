package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/httpapi"
	"github.com/thep200/github-verifier/pkg/log"
)

func main() {
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := log.NewCslLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httpapi.NewServer(logger, config)

	// Config hot-reload: áp dụng pacing mới mà không cần restart server
	loader.RegisterConfigChangeCallback(func(c *cfg.Config) {
		logger.Info(ctx, "Configuration reloaded, applying new pacing limits")
		server.ApplyConfig(c)
	})

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error(ctx, "Server error: %v", err)
			os.Exit(1)
		}
	case <-sigCh:
		logger.Info(ctx, "Received shutdown signal, gracefully shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error(ctx, "Graceful shutdown failed: %v", err)
			os.Exit(1)
		}
	}
}
