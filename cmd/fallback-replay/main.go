// Command fallback-replay drains the fallback queue back onto the bus once
// it recovers from an outage.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/socialpulse/notifyhub/internal/bus"
	"github.com/socialpulse/notifyhub/internal/config"
	"github.com/socialpulse/notifyhub/internal/envutil"
	"github.com/socialpulse/notifyhub/internal/fallback"
	"github.com/socialpulse/notifyhub/internal/metrics"
	"github.com/socialpulse/notifyhub/internal/retry"
)

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.Info("starting fallback-replay service",
		"bus_brokers", cfg.BusBrokers,
		"db_url", envutil.MaskDSN(cfg.DBURL),
		"poll_interval", cfg.FallbackPollInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	db, err := envutil.ConnectPostgres(cfg.DBURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := envutil.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	metricsCollector := metrics.NewCollector("fallback-replay", redisClient)
	metricsCollector.Start(ctx)
	defer metricsCollector.Stop()

	producer, err := bus.NewProducer(cfg.BusBrokers)
	if err != nil {
		slog.Error("failed to create kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	store := fallback.NewStore(db)
	retryCfg := retry.Config{
		MaxRetries:     cfg.RetryMaxRetries,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
		BackoffFactor:  cfg.RetryBackoffFactor,
		JitterFraction: 0.1,
	}

	worker := fallback.NewReplayWorker(store, producer, cfg.FallbackPollInterval, 100, retryCfg, metricsCollector)
	worker.Run(ctx)

	slog.Info("fallback-replay service stopped")
}
