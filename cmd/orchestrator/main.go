// Command orchestrator runs the Delivery Orchestrator and the per-channel
// worker pools (push, email, sms). It exposes a small internal HTTP endpoint
// that the aggregator calls once a notification's debounce window elapses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/socialpulse/notifyhub/internal/channel"
	"github.com/socialpulse/notifyhub/internal/channel/email"
	"github.com/socialpulse/notifyhub/internal/channel/push"
	"github.com/socialpulse/notifyhub/internal/channel/sms"
	"github.com/socialpulse/notifyhub/internal/config"
	"github.com/socialpulse/notifyhub/internal/delivery"
	"github.com/socialpulse/notifyhub/internal/domain"
	"github.com/socialpulse/notifyhub/internal/envutil"
	"github.com/socialpulse/notifyhub/internal/history"
	"github.com/socialpulse/notifyhub/internal/metrics"
	"github.com/socialpulse/notifyhub/internal/preference"
	"github.com/socialpulse/notifyhub/internal/retry"
)

type notifyReadyRequest struct {
	NotificationID string `json:"notification_id"`
	TargetUserID   string `json:"target_user_id"`
	Type           string `json:"type"`
	ObjectID       string `json:"object_id"`
	Title          string `json:"title"`
}

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	orchestratorAddr := envutil.GetEnvOrDefault("ORCHESTRATOR_HTTP_ADDR", ":8081")
	emailFrom := envutil.GetEnvOrDefault("EMAIL_FROM_ADDRESS", "notifications@socialpulse.example")
	smsGatewayURL := envutil.GetEnvOrDefault("SMS_GATEWAY_URL", "")
	pushWebhookAuth := cfg.PushProviderKey

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.Info("starting orchestrator service",
		"http_addr", orchestratorAddr,
		"db_url", envutil.MaskDSN(cfg.DBURL),
		"redis_addr", cfg.RedisAddr,
		"channel_pool_size", cfg.ChannelPoolSize,
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

	metricsCollector := metrics.NewCollector("orchestrator", redisClient)
	metricsCollector.Start(ctx)
	defer metricsCollector.Stop()

	historyStore := history.NewStore(db)
	prefStore := preference.NewStore(db)

	retryCfg := retryConfigFrom(cfg)
	sendTimeout := 30 * time.Second

	pools := map[domain.Channel]*channel.Pool{
		domain.ChannelPush:  channel.NewPool(push.NewSender(pushWebhookAuth), cfg.ChannelPoolSize, cfg.ChannelQueueSize, sendTimeout, retryCfg),
		domain.ChannelEmail: channel.NewPool(email.NewSender(emailFrom, 14), cfg.ChannelPoolSize, cfg.ChannelQueueSize, sendTimeout, retryCfg),
		domain.ChannelSMS:   channel.NewPool(sms.NewSender(smsGatewayURL, cfg.SMSProviderKey), cfg.ChannelPoolSize, cfg.ChannelQueueSize, sendTimeout, retryCfg),
	}
	defer func() {
		for _, p := range pools {
			p.Close()
		}
	}()

	orchestrator := delivery.NewOrchestrator(prefStore, historyStore, pools, metricsCollector)

	mux := http.NewServeMux()
	mux.HandleFunc("/internal/notify-ready", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req notifyReadyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		key := domain.AggregationKey{
			TargetUserID: req.TargetUserID,
			Type:         domain.EventType(req.Type),
			ObjectID:     req.ObjectID,
		}
		if err := orchestrator.NotifyReady(r.Context(), req.NotificationID, key, req.Title); err != nil {
			slog.Error("failed to orchestrate delivery", "notification_id", req.NotificationID, "error", err)
			http.Error(w, "Failed to orchestrate delivery", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{Addr: orchestratorAddr, Handler: mux, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}

	go func() {
		slog.Info("orchestrator http server listening", "addr", orchestratorAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("orchestrator http server failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during orchestrator http server shutdown", "error", err)
	}

	slog.Info("orchestrator service stopped")
}

func retryConfigFrom(cfg *config.Config) retry.Config {
	return retry.Config{
		MaxRetries:     cfg.RetryMaxRetries,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
		BackoffFactor:  cfg.RetryBackoffFactor,
		JitterFraction: 0.1,
	}
}
