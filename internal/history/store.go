// Package history is the Notification History Store: the durable,
// user-facing record of dispatched notifications, plus per-channel delivery
// results used for idempotent retry.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
)

// Store wraps a *sql.DB with the notification_history and channel_results
// tables.
type Store struct {
	conn *sql.DB
}

func NewStore(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// Insert idempotently inserts a notification history row, keyed on
// notification_id. A conflict (the aggregation engine re-emitting the same
// cycle after a failure between this insert and marking the bucket sent) is
// treated as success, not error, per the dedup boundary documented in the
// aggregation engine.
func (s *Store) Insert(ctx context.Context, n *domain.NotificationHistory) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	aggregatedIDs, err := json.Marshal(n.AggregatedIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregated ids: %w", err)
	}
	channels, err := json.Marshal(n.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}
	metadata, err := marshalMetadata(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	const query = `
		INSERT INTO notification_history (
			notification_id, target_user_id, type, priority, actor_id, actor_name,
			is_aggregated, aggregated_count, aggregated_ids, title, message,
			target_ref_type, target_ref_id, status, channels, metadata,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (notification_id) DO NOTHING
	`
	_, err = s.conn.ExecContext(ctx, query,
		n.NotificationID, n.TargetUserID, n.Type, n.Priority, n.ActorID, n.ActorName,
		n.IsAggregated, n.AggregatedCount, aggregatedIDs, n.Title, n.Message,
		n.TargetRef.Type, n.TargetRef.ID, n.Status, channels, metadata,
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification history: %w", err)
	}
	return nil
}

const selectColumns = `
	notification_id, target_user_id, type, priority, actor_id, actor_name,
	is_aggregated, aggregated_count, aggregated_ids, title, message,
	target_ref_type, target_ref_id, status, channels, metadata,
	created_at, updated_at, read_at
`

func scanNotification(scan func(...any) error) (*domain.NotificationHistory, error) {
	var n domain.NotificationHistory
	var aggregatedIDs, channels, metadata []byte
	var targetRefType, targetRefID sql.NullString
	var readAt sql.NullTime

	if err := scan(
		&n.NotificationID, &n.TargetUserID, &n.Type, &n.Priority, &n.ActorID, &n.ActorName,
		&n.IsAggregated, &n.AggregatedCount, &aggregatedIDs, &n.Title, &n.Message,
		&targetRefType, &targetRefID, &n.Status, &channels, &metadata,
		&n.CreatedAt, &n.UpdatedAt, &readAt,
	); err != nil {
		return nil, err
	}

	if len(aggregatedIDs) > 0 {
		if err := json.Unmarshal(aggregatedIDs, &n.AggregatedIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aggregated ids: %w", err)
		}
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &n.Channels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	n.TargetRef = domain.TargetRef{Type: targetRefType.String, ID: targetRefID.String}
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	return &n, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

// Get loads a single notification history row by id.
func (s *Store) Get(ctx context.Context, notificationID string) (*domain.NotificationHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + selectColumns + ` FROM notification_history WHERE notification_id = $1`
	row := s.conn.QueryRowContext(ctx, query, notificationID)
	n, err := scanNotification(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Resource: "notification", Key: notificationID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification %s: %w", notificationID, err)
	}
	return n, nil
}

// UpdateDeliveryOutcome is the Delivery Orchestrator's terminal write: it
// sets both the overall delivery_status and the list of channels attempted
// this cycle in one statement, since spec ties them together (delivered if
// every attempted channel succeeded, partial if some did, failed if all
// did).
func (s *Store) UpdateDeliveryOutcome(ctx context.Context, notificationID string, status domain.NotificationStatus, channels []domain.Channel) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	const query = `UPDATE notification_history SET status = $1, channels = $2, updated_at = $3 WHERE notification_id = $4`
	_, err = s.conn.ExecContext(ctx, query, status, channelsJSON, time.Now(), notificationID)
	if err != nil {
		return fmt.Errorf("failed to update delivery outcome: %w", err)
	}
	return nil
}

// MarkRead stamps read_at and sets a notification's status to READ when its
// delivery status is terminal (DELIVERED, PARTIAL or FAILED); a PENDING
// status is left as it is.
func (s *Store) MarkRead(ctx context.Context, notificationID, targetUserID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now()
	const query = `
		UPDATE notification_history
		SET status = CASE WHEN status IN ('DELIVERED', 'PARTIAL', 'FAILED') THEN $1 ELSE status END,
			updated_at = $2, read_at = $2
		WHERE notification_id = $3 AND target_user_id = $4
	`
	res, err := s.conn.ExecContext(ctx, query, domain.StatusRead, now, notificationID, targetUserID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.NotFoundError{Resource: "notification", Key: notificationID}
	}
	return nil
}

// ListForUser returns recent notifications for a user, newest first, for the
// list_notifications inbound operation.
func (s *Store) ListForUser(ctx context.Context, targetUserID string, limit int) ([]domain.NotificationHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT ` + selectColumns + `
		FROM notification_history
		WHERE target_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.conn.QueryContext(ctx, query, targetUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationHistory
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// InsertChannelResultIdempotent records one channel delivery attempt
// idempotently: a retried orchestrator run that already recorded this
// (notification_id, channel) pair is a no-op, matching the aggregator's
// INSERT ... ON CONFLICT DO NOTHING RETURNING dedup pattern.
func (s *Store) InsertChannelResultIdempotent(ctx context.Context, r *domain.ChannelResult) (inserted bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `
		INSERT INTO channel_results (notification_id, channel, status, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (notification_id, channel) DO NOTHING
		RETURNING notification_id
	`
	var id string
	scanErr := s.conn.QueryRowContext(ctx, query, r.NotificationID, r.Channel, r.Status, r.Attempts, r.LastError).Scan(&id)
	if scanErr == sql.ErrNoRows {
		slog.Debug("channel result already recorded, skipping", "notification_id", r.NotificationID, "channel", r.Channel)
		return false, nil
	}
	if scanErr != nil {
		return false, fmt.Errorf("failed to insert channel result: %w", scanErr)
	}
	return true, nil
}

// UpdateChannelResult overwrites an existing channel result with the
// channel's final outcome once its dispatch has completed or failed.
func (s *Store) UpdateChannelResult(ctx context.Context, r *domain.ChannelResult) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `
		UPDATE channel_results SET status = $1, attempts = $2, last_error = $3, delivered_at = $4
		WHERE notification_id = $5 AND channel = $6
	`
	_, err := s.conn.ExecContext(ctx, query, r.Status, r.Attempts, r.LastError, r.DeliveredAt, r.NotificationID, r.Channel)
	if err != nil {
		return fmt.Errorf("failed to update channel result: %w", err)
	}
	return nil
}
