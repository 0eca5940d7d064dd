package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linkguard-hq/linkguard/pkg/config"
	"github.com/linkguard-hq/linkguard/pkg/health"
	"github.com/linkguard-hq/linkguard/pkg/httpclient"
	"github.com/linkguard-hq/linkguard/pkg/logger"
	"github.com/linkguard-hq/linkguard/pkg/monitor"
	"github.com/linkguard-hq/linkguard/pkg/queue"
	"github.com/linkguard-hq/linkguard/pkg/retry"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Open the queue store; an empty path keeps the queue in memory
	var store queue.Store
	if cfg.QueueDBPath != "" {
		boltStore, err := queue.NewBoltStore(cfg.QueueDBPath, stdLogger)
		if err != nil {
			log.Fatalf("Failed to open queue store: %v", err)
		}
		store = boltStore
	} else {
		store = queue.NewMemoryStore()
	}

	// Status monitor over the OS interface table plus a liveness probe
	source := monitor.NewInterfaceSource(cfg.SourcePollInterval, stdLogger)
	statusMonitor := monitor.NewStatusMonitor(source, monitor.Config{
		ProbeURL:      cfg.ProbeURL,
		ProbeInterval: cfg.ProbeInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
		SaveDataMode:  cfg.SaveDataMode,
	}, nil, stdLogger)

	// Retry engine resumes parked operations on reconnect
	engine := retry.NewEngine(cfg.ReconnectStagger, nil, stdLogger)
	engine.BindMonitor(statusMonitor)

	// HTTP client wrapper and the offline queue it feeds
	client := httpclient.New(engine, statusMonitor, retry.ParsePreset(cfg.DefaultPreset), httpclient.BreakerConfig{
		Enabled:      cfg.CircuitBreaker.Enabled,
		Threshold:    cfg.CircuitBreaker.Threshold,
		Window:       cfg.CircuitBreaker.WindowDuration,
		ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
	}, stdLogger)

	offlineQueue := queue.New(store, client, statusMonitor, cfg.ReplayDelay, nil, stdLogger)
	client.AttachQueue(offlineQueue)

	source.Start()
	statusMonitor.Start()

	// Replay anything left over from the previous run
	go offlineQueue.ProcessQueue(context.Background())

	healthServer := health.NewServer(cfg.MetricsPort, statusMonitor, offlineQueue, engine, client, stdLogger)
	go healthServer.Start()

	// Wait for termination signal, then release timers and listeners
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh
	log.Println("Received termination signal, shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		stdLogger.Error("Health server shutdown: %v", err)
	}

	offlineQueue.Dispose()
	engine.Dispose()
	statusMonitor.Stop()
	source.Stop()
	if err := store.Close(); err != nil {
		stdLogger.Error("Closing queue store: %v", err)
	}
}
