// Command api serves the inbound HTTP surface: event intake, notification
// listing, preference management, and fallback queue observability.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/socialpulse/notifyhub/internal/bus"
	"github.com/socialpulse/notifyhub/internal/config"
	"github.com/socialpulse/notifyhub/internal/envutil"
	"github.com/socialpulse/notifyhub/internal/fallback"
	"github.com/socialpulse/notifyhub/internal/history"
	"github.com/socialpulse/notifyhub/internal/httpapi"
	"github.com/socialpulse/notifyhub/internal/ingest"
	"github.com/socialpulse/notifyhub/internal/preference"
	"github.com/socialpulse/notifyhub/internal/retry"
)

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.Info("starting api service", "http_addr", cfg.HTTPAddr, "bus_brokers", cfg.BusBrokers, "db_url", envutil.MaskDSN(cfg.DBURL))

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

	producer, err := bus.NewProducer(cfg.BusBrokers)
	if err != nil {
		slog.Error("failed to create kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	historyStore := history.NewStore(db)
	prefStore := preference.NewStore(db)
	fallbackStore := fallback.NewStore(db)

	retryCfg := retry.Config{
		MaxRetries:     cfg.RetryMaxRetries,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
		BackoffFactor:  cfg.RetryBackoffFactor,
		JitterFraction: 0.1,
	}
	resilientProducer := ingest.NewResilientProducer(producer, fallbackStore, retryCfg)

	handlers := httpapi.NewHandlers(resilientProducer, historyStore, prefStore, fallbackStore)
	server := httpapi.NewServer(cfg.HTTPAddr, handlers)

	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during http server shutdown", "error", err)
	}

	slog.Info("api service stopped")
}
