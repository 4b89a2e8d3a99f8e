package fallback

import (
	"context"
	"log/slog"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
	"github.com/socialpulse/notifyhub/internal/metrics"
	"github.com/socialpulse/notifyhub/internal/retry"
)

// Publisher is implemented by the bus producer.
type Publisher interface {
	Publish(ctx context.Context, e *domain.Event) error
}

// purgeRetention is how long a processed fallback entry is kept around
// before the janitor deletes it, per spec.
const purgeRetention = 7 * 24 * time.Hour

// purgeInterval is how often the janitor sweeps for processed entries past
// purgeRetention. It runs far less often than the replay poll since it's
// pure housekeeping, not on any delivery-latency critical path.
const purgeInterval = time.Hour

// ReplayWorker periodically drains the fallback queue back onto the bus. It
// runs independently of the bus producer's own per-publish retry: once an
// event lands here the bus was confirmed down, so replay uses DoAlways
// rather than the transient/permanent classifier (a publish failure here
// always means "still down", never "this message is malformed"). It also
// runs the janitor that purges old processed entries.
type ReplayWorker struct {
	store        *Store
	publisher    Publisher
	pollInterval time.Duration
	batchSize    int
	retryCfg     retry.Config
	metrics      *metrics.Collector
}

func NewReplayWorker(store *Store, publisher Publisher, pollInterval time.Duration, batchSize int, retryCfg retry.Config, m *metrics.Collector) *ReplayWorker {
	return &ReplayWorker{
		store:        store,
		publisher:    publisher,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		retryCfg:     retryCfg,
		metrics:      m,
	}
}

// Run blocks, replaying batches on every poll tick and purging old processed
// entries on every purge tick, until ctx is cancelled.
func (w *ReplayWorker) Run(ctx context.Context) {
	replayTicker := time.NewTicker(w.pollInterval)
	defer replayTicker.Stop()
	purgeTicker := time.NewTicker(purgeInterval)
	defer purgeTicker.Stop()

	slog.Info("fallback replay worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("fallback replay worker stopped")
			return
		case <-replayTicker.C:
			w.replayOnce(ctx)
		case <-purgeTicker.C:
			w.purgeOnce(ctx)
		}
	}
}

func (w *ReplayWorker) purgeOnce(ctx context.Context) {
	n, err := w.store.PurgeProcessed(ctx, purgeRetention)
	if err != nil {
		slog.Error("failed to purge processed fallback entries", "error", err)
		return
	}
	if n > 0 {
		slog.Info("purged processed fallback entries", "count", n, "retention", purgeRetention)
	}
}

func (w *ReplayWorker) replayOnce(ctx context.Context) {
	batch, err := w.store.ClaimBatch(ctx, w.batchSize, w.retryCfg)
	if err != nil {
		slog.Error("failed to claim fallback batch", "error", err)
		return
	}

	for _, entry := range batch {
		err := retry.DoAlways(ctx, w.retryCfg, "fallback-replay", func() error {
			return w.publisher.Publish(ctx, &entry.Event)
		})

		if err != nil {
			if recErr := w.store.RecordFailedAttempt(ctx, entry.ID, err.Error()); recErr != nil {
				slog.Error("failed to record fallback replay failure", "id", entry.ID, "error", recErr)
			}
			if entry.RetryCount+1 >= domain.PoisonThreshold {
				slog.Warn("fallback entry exceeded poison threshold, bus still unreachable",
					"id", entry.ID, "event_id", entry.Event.EventID, "retry_count", entry.RetryCount+1)
				if w.metrics != nil {
					w.metrics.IncrementCustom("fallback_poison_entries")
				}
			}
			continue
		}

		if markErr := w.store.MarkProcessed(ctx, entry.ID); markErr != nil {
			slog.Error("failed to mark fallback entry processed", "id", entry.ID, "error", markErr)
			continue
		}

		if w.metrics != nil {
			w.metrics.RecordPublished()
			w.metrics.IncrementCustom("fallback_replayed")
		}
		slog.Info("replayed fallback entry", "id", entry.ID, "event_id", entry.Event.EventID)
	}
}
