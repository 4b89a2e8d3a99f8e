// Package metrics provides a shared metrics collection and reporting system.
// Components write metrics to Redis for centralized access, the same
// write-a-JSON-snapshot-per-service convention used across this pipeline.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for component metrics.
	KeyPrefix = "metrics:"
	// TTL is how long metrics stay in Redis if not refreshed.
	TTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot holds metrics for a single component at one point in time.
type Snapshot struct {
	Component   string    `json:"component"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "unhealthy"

	EventsReceived  uint64 `json:"events_received"`
	EventsProcessed uint64 `json:"events_processed"`
	EventsPublished uint64 `json:"events_published"`
	ProcessingErrors uint64 `json:"processing_errors"`

	EventsPerSecond float64 `json:"events_per_second"`

	AvgProcessingLatencyNs float64 `json:"avg_processing_latency_ns"`

	CustomCounters map[string]uint64 `json:"custom_counters,omitempty"`
}

// Collector collects and reports metrics for one pipeline component
// (aggregator, orchestrator, replay worker, ...).
type Collector struct {
	component      string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	eventsReceived  atomic.Uint64
	eventsProcessed atomic.Uint64
	eventsPublished atomic.Uint64
	processingErrors atomic.Uint64

	lastReportTime     time.Time
	lastProcessedCount uint64

	totalLatencyNs atomic.Uint64
	latencyCount   atomic.Uint64

	customMu       sync.RWMutex
	customCounters map[string]*atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector for component.
func NewCollector(component string, redisClient *redis.Client) *Collector {
	return &Collector{
		component:      component,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		lastReportTime: time.Now().UTC(),
		customCounters: make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.writeSnapshot(context.Background())
				return
			case <-c.stopCh:
				c.writeSnapshot(context.Background())
				return
			case <-ticker.C:
				c.writeSnapshot(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) RecordReceived() { c.eventsReceived.Add(1) }

func (c *Collector) RecordProcessed(latency time.Duration) {
	c.eventsProcessed.Add(1)
	c.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
	c.latencyCount.Add(1)
}

func (c *Collector) RecordPublished() { c.eventsPublished.Add(1) }

func (c *Collector) RecordError() { c.processingErrors.Add(1) }

func (c *Collector) IncrementCustom(name string) {
	c.customMu.RLock()
	counter, exists := c.customCounters[name]
	c.customMu.RUnlock()

	if !exists {
		c.customMu.Lock()
		if counter, exists = c.customCounters[name]; !exists {
			counter = &atomic.Uint64{}
			c.customCounters[name] = counter
		}
		c.customMu.Unlock()
	}
	counter.Add(1)
}

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *Snapshot {
	now := time.Now().UTC()
	processed := c.eventsProcessed.Load()

	elapsed := now.Sub(c.lastReportTime).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(processed-c.lastProcessedCount) / elapsed
	}

	var avgLatencyNs float64
	latencyCount := c.latencyCount.Load()
	if latencyCount > 0 {
		avgLatencyNs = float64(c.totalLatencyNs.Load()) / float64(latencyCount)
	}

	c.customMu.RLock()
	customCounters := make(map[string]uint64, len(c.customCounters))
	for name, counter := range c.customCounters {
		customCounters[name] = counter.Load()
	}
	c.customMu.RUnlock()

	return &Snapshot{
		Component:              c.component,
		StartedAt:              c.startedAt,
		LastUpdated:            now,
		Status:                 "healthy",
		EventsReceived:         c.eventsReceived.Load(),
		EventsProcessed:        processed,
		EventsPublished:        c.eventsPublished.Load(),
		ProcessingErrors:       c.processingErrors.Load(),
		EventsPerSecond:        rate,
		AvgProcessingLatencyNs: avgLatencyNs,
		CustomCounters:         customCounters,
	}
}

func (c *Collector) writeSnapshot(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snap := c.GetSnapshot()
	c.lastReportTime = snap.LastUpdated
	c.lastProcessedCount = snap.EventsProcessed

	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("failed to marshal metrics snapshot", "component", c.component, "error", err)
		return
	}

	key := KeyPrefix + c.component
	if err := c.redis.Set(ctx, key, data, TTL).Err(); err != nil {
		slog.Error("failed to write metrics to redis", "component", c.component, "error", err)
		return
	}
}

// Reader reads component metrics back out of Redis, for the
// get_fallback_queue_stats-style admin surface.
type Reader struct {
	redis *redis.Client
}

func NewReader(redisClient *redis.Client) *Reader {
	return &Reader{redis: redisClient}
}

func (r *Reader) GetSnapshot(ctx context.Context, component string) (*Snapshot, error) {
	key := KeyPrefix + component
	data, err := r.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no metrics found for component: %s", component)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	if time.Since(snap.LastUpdated) > TTL {
		snap.Status = "unhealthy"
	}

	return &snap, nil
}
