// Package preference is the Preference Store plus the Preference+DND
// Evaluator: it loads a user's channel/event-type/quiet-hours configuration
// and decides, for a given channel and moment, whether delivery proceeds.
package preference

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
)

// Store wraps a *sql.DB with the user_preferences table.
type Store struct {
	conn *sql.DB
}

func NewStore(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// Get loads a user's preference row, returning sensible defaults (every
// channel and event type enabled, no quiet hours) if the user has never set
// one — preference rows are opt-out, not opt-in.
func (s *Store) Get(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `
		SELECT push_enabled, email_enabled, sms_enabled,
		       like_enabled, comment_enabled, follow_enabled, mention_enabled, bell_post_enabled,
		       quiet_hours_start, quiet_hours_end, timezone,
		       push_endpoint, email_address, phone_number
		FROM user_preferences WHERE user_id = $1
	`
	var (
		pushEnabled, emailEnabled, smsEnabled                                   sql.NullBool
		likeEnabled, commentEnabled, followEnabled, mentionEnabled, bellEnabled sql.NullBool
		quietStart, quietEnd, timezone                                         sql.NullString
		pushEndpoint, emailAddr, phone                                         sql.NullString
	)
	err := s.conn.QueryRowContext(ctx, query, userID).Scan(
		&pushEnabled, &emailEnabled, &smsEnabled,
		&likeEnabled, &commentEnabled, &followEnabled, &mentionEnabled, &bellEnabled,
		&quietStart, &quietEnd, &timezone,
		&pushEndpoint, &emailAddr, &phone,
	)
	if err == sql.ErrNoRows {
		return defaultPreference(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences for %s: %w", userID, err)
	}

	p := &domain.NotificationPreference{
		UserID:           userID,
		ChannelEnabled:   map[domain.Channel]bool{},
		EventTypeEnabled: map[domain.EventType]bool{},
		QuietHours:       domain.QuietHours{Start: quietStart.String, End: quietEnd.String},
		Timezone:         timezone.String,
		PushEndpoint:     pushEndpoint.String,
		Email:            emailAddr.String,
		Phone:            phone.String,
	}
	setIfValid(p.ChannelEnabled, domain.ChannelPush, pushEnabled)
	setIfValid(p.ChannelEnabled, domain.ChannelEmail, emailEnabled)
	setIfValid(p.ChannelEnabled, domain.ChannelSMS, smsEnabled)
	setEventIfValid(p.EventTypeEnabled, domain.EventLike, likeEnabled)
	setEventIfValid(p.EventTypeEnabled, domain.EventComment, commentEnabled)
	setEventIfValid(p.EventTypeEnabled, domain.EventFollow, followEnabled)
	setEventIfValid(p.EventTypeEnabled, domain.EventMention, mentionEnabled)
	setEventIfValid(p.EventTypeEnabled, domain.EventBell, bellEnabled)

	return p, nil
}

func setIfValid(m map[domain.Channel]bool, ch domain.Channel, v sql.NullBool) {
	if v.Valid {
		m[ch] = v.Bool
	}
}

func setEventIfValid(m map[domain.EventType]bool, et domain.EventType, v sql.NullBool) {
	if v.Valid {
		m[et] = v.Bool
	}
}

func defaultPreference(userID string) *domain.NotificationPreference {
	return &domain.NotificationPreference{
		UserID:           userID,
		ChannelEnabled:   map[domain.Channel]bool{},
		EventTypeEnabled: map[domain.EventType]bool{},
	}
}

// Update upserts a user's preference row, used by the update_preferences
// inbound operation. A channel or event type missing from the maps is
// stored as enabled.
func (s *Store) Update(ctx context.Context, p *domain.NotificationPreference) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	channelOn := func(ch domain.Channel) bool {
		v, ok := p.ChannelEnabled[ch]
		return !ok || v
	}
	eventOn := func(et domain.EventType) bool {
		v, ok := p.EventTypeEnabled[et]
		return !ok || v
	}

	const query = `
		INSERT INTO user_preferences (
			user_id, push_enabled, email_enabled, sms_enabled,
			like_enabled, comment_enabled, follow_enabled, mention_enabled, bell_post_enabled,
			quiet_hours_start, quiet_hours_end, timezone,
			push_endpoint, email_address, phone_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id) DO UPDATE SET
			push_enabled = EXCLUDED.push_enabled,
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			like_enabled = EXCLUDED.like_enabled,
			comment_enabled = EXCLUDED.comment_enabled,
			follow_enabled = EXCLUDED.follow_enabled,
			mention_enabled = EXCLUDED.mention_enabled,
			bell_post_enabled = EXCLUDED.bell_post_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			push_endpoint = EXCLUDED.push_endpoint,
			email_address = EXCLUDED.email_address,
			phone_number = EXCLUDED.phone_number
	`
	_, err := s.conn.ExecContext(ctx, query,
		p.UserID,
		channelOn(domain.ChannelPush), channelOn(domain.ChannelEmail), channelOn(domain.ChannelSMS),
		eventOn(domain.EventLike), eventOn(domain.EventComment), eventOn(domain.EventFollow),
		eventOn(domain.EventMention), eventOn(domain.EventBell),
		p.QuietHours.Start, p.QuietHours.End, p.Timezone,
		p.PushEndpoint, p.Email, p.Phone,
	)
	if err != nil {
		return fmt.Errorf("failed to update preferences for %s: %w", p.UserID, err)
	}
	return nil
}
