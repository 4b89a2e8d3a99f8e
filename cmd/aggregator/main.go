// Command aggregator consumes inbound events off all three priority topics,
// folds them into aggregation buckets, and hands ready notifications to a
// remote orchestrator over HTTP once their debounce window elapses.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/socialpulse/notifyhub/internal/aggregation"
	"github.com/socialpulse/notifyhub/internal/aggregation/shardedmutex"
	"github.com/socialpulse/notifyhub/internal/aggregation/state"
	"github.com/socialpulse/notifyhub/internal/bus"
	"github.com/socialpulse/notifyhub/internal/config"
	"github.com/socialpulse/notifyhub/internal/domain"
	"github.com/socialpulse/notifyhub/internal/envutil"
	"github.com/socialpulse/notifyhub/internal/history"
	"github.com/socialpulse/notifyhub/internal/metrics"
)

// httpReadyNotifier forwards a ready notification to the orchestrator
// service's internal endpoint; the aggregator and orchestrator are separate
// deployable binaries, mirroring the teacher's aggregator/sender service
// split with the Kafka bus replaced here by a direct call since there is no
// "notifications.ready" topic schema to invent beyond what spec.md defines.
type httpReadyNotifier struct {
	client *http.Client
	url    string
}

func (n *httpReadyNotifier) NotifyReady(ctx context.Context, notificationID string, key domain.AggregationKey, title string) error {
	body, err := json.Marshal(map[string]any{
		"notification_id": notificationID,
		"target_user_id":  key.TargetUserID,
		"type":            key.Type,
		"object_id":       key.ObjectID,
		"title":           title,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ready notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to notify orchestrator: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("orchestrator notify returned status %d", resp.StatusCode)
	}
	return nil
}

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	orchestratorURL := envutil.GetEnvOrDefault("ORCHESTRATOR_NOTIFY_URL", "http://localhost:8081/internal/notify-ready")

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.Info("starting aggregator service",
		"bus_brokers", cfg.BusBrokers,
		"db_url", envutil.MaskDSN(cfg.DBURL),
		"redis_addr", cfg.RedisAddr,
		"orchestrator_notify_url", orchestratorURL,
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

	metricsCollector := metrics.NewCollector("aggregator", redisClient)
	metricsCollector.Start(ctx)
	defer metricsCollector.Stop()

	historyStore := history.NewStore(db)
	stateStore := state.NewStore(redisClient)
	locks := shardedmutex.New(cfg.ShardedMutexStripes)
	notifier := &httpReadyNotifier{client: &http.Client{Timeout: 10 * time.Second}, url: orchestratorURL}

	windows := aggregation.Windows{
		Like:    cfg.AggWindowLike,
		Comment: cfg.AggWindowComment,
		Follow:  cfg.AggWindowFollow,
	}
	engine := aggregation.NewEngine(stateStore, historyStore, notifier, locks, windows, metricsCollector)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.PollReadyBuckets(ctx)
	}()

	for _, topic := range bus.Topics {
		consumer, err := bus.NewConsumer(cfg.BusBrokers, topic, "aggregator-group")
		if err != nil {
			slog.Error("failed to create kafka consumer", "topic", topic, "error", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func(topic string, c *bus.Consumer) {
			defer wg.Done()
			defer c.Close()
			consumeLoop(ctx, c, engine)
		}(topic, consumer)
	}

	wg.Wait()
	slog.Info("aggregator service stopped")
}

func consumeLoop(ctx context.Context, c *bus.Consumer, engine *aggregation.Engine) {
	for {
		if ctx.Err() != nil {
			return
		}

		e, msg, err := c.ReadEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read event", "error", err)
			continue
		}

		if err := e.Validate(); err != nil {
			slog.Warn("dropping invalid event", "event_id", e.EventID, "error", err)
			if commitErr := c.CommitMessage(ctx, msg); commitErr != nil {
				slog.Error("failed to commit offset for invalid event", "error", commitErr)
			}
			continue
		}

		if err := engine.HandleEvent(ctx, e); err != nil {
			slog.Error("failed to handle event, will redeliver", "event_id", e.EventID, "error", err)
			continue
		}

		if err := c.CommitMessage(ctx, msg); err != nil {
			slog.Error("failed to commit offset", "error", err)
		}
	}
}
