package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/socialpulse/notifyhub/internal/aggregation/shardedmutex"
	"github.com/socialpulse/notifyhub/internal/aggregation/state"
	"github.com/socialpulse/notifyhub/internal/domain"
	"github.com/socialpulse/notifyhub/internal/history"
	"github.com/socialpulse/notifyhub/internal/metrics"
)

// Windows holds the per-event-type aggregation windows.
type Windows struct {
	Like    time.Duration
	Comment time.Duration
	Follow  time.Duration
}

// ReadyNotifier is implemented by the Delivery Orchestrator's intake side.
type ReadyNotifier interface {
	NotifyReady(ctx context.Context, notificationID string, key domain.AggregationKey, title string) error
}

// Engine is the Aggregation/Dedup Engine: it folds inbound events into
// per-key buckets and, once a bucket's debounce window elapses, emits
// exactly one notification for that cycle.
type Engine struct {
	state    *state.Store
	history  *history.Store
	notifier ReadyNotifier
	locks    *shardedmutex.Striped
	windows  Windows
	metrics  *metrics.Collector

	pollInterval time.Duration
}

// NewEngine constructs an Engine. metrics may be nil.
func NewEngine(st *state.Store, hist *history.Store, notifier ReadyNotifier, locks *shardedmutex.Striped, windows Windows, m *metrics.Collector) *Engine {
	return &Engine{
		state:        st,
		history:      hist,
		notifier:     notifier,
		locks:        locks,
		windows:      windows,
		metrics:      m,
		pollInterval: time.Second,
	}
}

// HandleEvent folds e into its bucket, serialized per-key via the sharded
// mutex so concurrent handlers for the same target/object never race on the
// read-modify-write inside Redis (the Lua script makes each single fold
// atomic; the stripe lock additionally serializes the subsequent
// readiness check against that same key so a burst doesn't double-emit).
// Events whose actor is their own target are dropped.
func (eng *Engine) HandleEvent(ctx context.Context, e *domain.Event) error {
	if eng.metrics != nil {
		eng.metrics.RecordReceived()
	}
	if e.ActorID == e.TargetUserID {
		return nil
	}
	start := time.Now()

	key := KeyFor(e)
	window := WindowFor(e.Type, eng.windows.Like, eng.windows.Comment, eng.windows.Follow)

	var emitErr error
	eng.locks.WithLock(key.String(), func() {
		if err := eng.state.FoldEvent(ctx, key, e.ActorID, e.EventID, start, window, domain.MaxTrackedActors); err != nil {
			emitErr = err
			return
		}

		bucket, err := eng.state.Get(ctx, key)
		if err != nil {
			emitErr = err
			return
		}

		if !Ready(bucket, start) {
			return
		}

		emitErr = eng.emit(ctx, key, bucket)
	})

	if eng.metrics != nil {
		if emitErr != nil {
			eng.metrics.RecordError()
		}
		eng.metrics.RecordProcessed(time.Since(start))
	}

	return emitErr
}

// emit writes the NotificationHistory row, marks the bucket sent, and hands
// the notification to the orchestrator. Order matters: history is written
// before the bucket is marked sent, and the notification id is derived from
// the key and the cycle's first event time, so a crash between the two makes
// the next sweep re-emit the same id, whose insert is a no-op, rather than
// losing or duplicating the notification.
func (eng *Engine) emit(ctx context.Context, key domain.AggregationKey, bucket *domain.AggregationBucket) error {
	cycle := fmt.Sprintf("%s@%d", key.String(), bucket.FirstEventAt.UnixNano())
	notificationID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(cycle)).String()
	title, message := bucket.TitleAndMessage(key.Type)

	var actorID string
	if len(bucket.ActorIDs) > 0 {
		actorID = bucket.ActorIDs[0]
	}

	if err := eng.history.Insert(ctx, &domain.NotificationHistory{
		NotificationID:  notificationID,
		TargetUserID:    key.TargetUserID,
		Type:            key.Type,
		Priority:        domain.DefaultPriorityForType(key.Type),
		ActorID:         actorID,
		ActorName:       actorID,
		IsAggregated:    len(bucket.EventIDs) > 1,
		AggregatedCount: len(bucket.EventIDs),
		AggregatedIDs:   bucket.EventIDs,
		Title:           title,
		Message:         message,
		TargetRef:       domain.TargetRef{Type: string(key.Type), ID: key.ObjectID},
		Status:          domain.StatusPending,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}); err != nil {
		return err
	}

	if err := eng.state.MarkSent(ctx, key); err != nil {
		slog.Error("failed to mark aggregation bucket sent", "key", key.String(), "error", err)
	}

	if eng.metrics != nil {
		eng.metrics.IncrementCustom("notifications_created")
	}

	slog.Info("aggregation cycle ready, notifying orchestrator",
		"notification_id", notificationID, "key", key.String(), "count", bucket.Count)

	return eng.notifier.NotifyReady(ctx, notificationID, key, title)
}

// PollReadyBuckets periodically sweeps for buckets whose debounce window
// elapsed without a fresh event arriving to trigger HandleEvent's own
// readiness check (the tail case: the last event in a burst starts a
// countdown that nothing else will ever poke again).
func (eng *Engine) PollReadyBuckets(ctx context.Context) {
	ticker := time.NewTicker(eng.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.sweepOnce(ctx)
		}
	}
}

func (eng *Engine) sweepOnce(ctx context.Context) {
	now := time.Now()
	ready, err := eng.state.ScanReady(ctx, now)
	if err != nil {
		slog.Error("failed to scan ready aggregation buckets", "error", err)
		return
	}

	for _, bucket := range ready {
		key := bucket.Key
		eng.locks.WithLock(key.String(), func() {
			// Re-read under the lock: another goroutine may have just sent it.
			fresh, err := eng.state.Get(ctx, key)
			if err != nil || !Ready(fresh, time.Now()) {
				return
			}
			if err := eng.emit(ctx, key, fresh); err != nil {
				slog.Error("failed to emit ready bucket", "key", key.String(), "error", err)
			}
		})
	}
}
