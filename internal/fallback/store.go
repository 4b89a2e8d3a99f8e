// Package fallback is the Fallback Queue Store and Replay Worker: events
// that could not be published to the bus are persisted here and replayed
// once the bus recovers, trading strict ordering for durability during an
// outage.
package fallback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
	"github.com/socialpulse/notifyhub/internal/retry"
)

// Store wraps a *sql.DB with the fallback_queue table.
type Store struct {
	conn *sql.DB
}

func NewStore(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// Enqueue durably persists e, serialized as JSON the same way the
// aggregator persists event context as JSONB.
func (s *Store) Enqueue(ctx context.Context, e domain.Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event for fallback queue: %w", err)
	}

	const query = `
		INSERT INTO fallback_queue (event_id, target_id, priority, payload, enqueued_at, retry_count, processed)
		VALUES ($1, $2, $3, $4, $5, 0, false)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err = s.conn.ExecContext(ctx, query, e.EventID, e.TargetUserID, e.Priority, payload, time.Now())
	if err != nil {
		return fmt.Errorf("failed to enqueue fallback entry: %w", err)
	}
	return nil
}

// ClaimBatch returns up to limit unprocessed entries ordered by priority
// then age, for the replay worker to attempt. high-priority events are
// replayed before normal/low even if they arrived later.
//
// A backoff gate is applied in Go rather than SQL: an entry is eligible only
// once last_retry_at is null or at least backoff(retry_count) - computed from
// retryCfg, the same curve the retry coordinator itself uses - has elapsed
// since the last attempt, so a poisoned entry isn't re-attempted on every
// poll. Since Postgres has no access to retryCfg's values, this over-fetches
// candidates and filters them in Go rather than encoding the curve in SQL.
func (s *Store) ClaimBatch(ctx context.Context, limit int, retryCfg retry.Config) ([]domain.FallbackQueueEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	scanLimit := limit * 4
	const query = `
		SELECT id, event_id, target_id, priority, payload, enqueued_at, retry_count, last_retry_at
		FROM fallback_queue
		WHERE processed = false
		ORDER BY
			CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END ASC,
			enqueued_at ASC
		LIMIT $1
	`
	rows, err := s.conn.QueryContext(ctx, query, scanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim fallback batch: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var out []domain.FallbackQueueEntry
	for rows.Next() {
		if len(out) >= limit {
			break
		}
		var entry domain.FallbackQueueEntry
		var payload []byte
		var priority string
		var lastRetry sql.NullTime
		if err := rows.Scan(&entry.ID, &entry.Event.EventID, &entry.TargetID, &priority, &payload, &entry.EnqueuedAt, &entry.RetryCount, &lastRetry); err != nil {
			return nil, fmt.Errorf("failed to scan fallback entry: %w", err)
		}
		if err := json.Unmarshal(payload, &entry.Event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fallback payload: %w", err)
		}
		if lastRetry.Valid {
			entry.LastRetryAt = &lastRetry.Time
			if now.Sub(lastRetry.Time) < retry.CalculateBackoff(retryCfg, entry.RetryCount) {
				continue
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// MarkProcessed marks an entry as successfully replayed.
func (s *Store) MarkProcessed(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now()
	const query = `UPDATE fallback_queue SET processed = true, processed_at = $1, last_retry_at = $1 WHERE id = $2`
	_, err := s.conn.ExecContext(ctx, query, now, id)
	return err
}

// RecordFailedAttempt bumps retry_count and last_retry_at, and records
// lastErr, after a replay attempt fails.
func (s *Store) RecordFailedAttempt(ctx context.Context, id int64, lastErr string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `UPDATE fallback_queue SET retry_count = retry_count + 1, last_retry_at = $1, last_error = $2 WHERE id = $3`
	_, err := s.conn.ExecContext(ctx, query, time.Now(), lastErr, id)
	return err
}

// PurgeProcessed deletes processed entries older than retention, so the
// fallback queue doesn't grow unbounded with rows nothing will ever read
// again.
func (s *Store) PurgeProcessed(ctx context.Context, retention time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `DELETE FROM fallback_queue WHERE processed = true AND processed_at < $1`
	res, err := s.conn.ExecContext(ctx, query, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge processed fallback entries: %w", err)
	}
	return res.RowsAffected()
}

// CountStuck returns how many entries have exceeded domain.PoisonThreshold
// retries without succeeding, for the get_fallback_queue_stats operation.
func (s *Store) CountStuck(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `SELECT count(*) FROM fallback_queue WHERE processed = false AND retry_count >= $1`
	var n int
	err := s.conn.QueryRowContext(ctx, query, domain.PoisonThreshold).Scan(&n)
	return n, err
}

// CountPending returns the total unprocessed backlog size.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `SELECT count(*) FROM fallback_queue WHERE processed = false`
	var n int
	err := s.conn.QueryRowContext(ctx, query).Scan(&n)
	return n, err
}
