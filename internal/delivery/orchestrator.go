// Package delivery is the Delivery Orchestrator: given a ready notification,
// it loads the target's preferences, applies the DND/channel gate per
// channel, and fans out to the bounded Channel Worker pools, recording each
// channel's outcome idempotently.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/socialpulse/notifyhub/internal/channel"
	"github.com/socialpulse/notifyhub/internal/domain"
	"github.com/socialpulse/notifyhub/internal/history"
	"github.com/socialpulse/notifyhub/internal/metrics"
	"github.com/socialpulse/notifyhub/internal/preference"
)

// PreferenceLoader is implemented by preference.Store.
type PreferenceLoader interface {
	Get(ctx context.Context, userID string) (*domain.NotificationPreference, error)
}

// HistoryRecorder is implemented by history.Store; narrowed to an interface
// so the orchestrator's fan-out logic can be tested without a database.
type HistoryRecorder interface {
	Get(ctx context.Context, notificationID string) (*domain.NotificationHistory, error)
	UpdateDeliveryOutcome(ctx context.Context, notificationID string, status domain.NotificationStatus, channels []domain.Channel) error
	InsertChannelResultIdempotent(ctx context.Context, r *domain.ChannelResult) (bool, error)
	UpdateChannelResult(ctx context.Context, r *domain.ChannelResult) error
}

// channelOutcome is one attempted channel's eventual result, fed into
// awaitResults so the terminal delivery_status is computed once, from every
// channel's outcome together, rather than independently per channel.
type channelOutcome struct {
	channel domain.Channel
	result  <-chan error // nil if the channel failed before dispatch
}

// Orchestrator fans a ready notification out to every allowed channel.
type Orchestrator struct {
	prefs   PreferenceLoader
	history HistoryRecorder
	pools   map[domain.Channel]*channel.Pool
	metrics *metrics.Collector
	now     func() time.Time
}

func NewOrchestrator(prefs PreferenceLoader, hist HistoryRecorder, pools map[domain.Channel]*channel.Pool, m *metrics.Collector) *Orchestrator {
	return &Orchestrator{
		prefs:   prefs,
		history: hist,
		pools:   pools,
		metrics: m,
		now:     time.Now,
	}
}

// NotifyReady implements aggregation.ReadyNotifier: it is invoked once per
// aggregation cycle for a notification that has already been durably
// written to history.
func (o *Orchestrator) NotifyReady(ctx context.Context, notificationID string, key domain.AggregationKey, title string) error {
	n, err := o.history.Get(ctx, notificationID)
	if err != nil {
		return err
	}

	p, err := o.prefs.Get(ctx, n.TargetUserID)
	if err != nil {
		return err
	}

	priority := priorityFor(key.Type)
	now := o.now()

	var attempted []domain.Channel // every channel this run attempted, success or fail
	var inFlight []channelOutcome
	immediateFailures := 0
	eligible := 0 // channels that passed target/preference gating, whether or not this run dispatched them

	for ch, pool := range o.pools {
		target := p.Target(ch)
		if target == "" {
			continue
		}
		if !preference.Allowed(p, n.Type, priority, ch, now) {
			slog.Debug("channel suppressed by preference/DND",
				"notification_id", notificationID, "channel", ch, "target_user_id", n.TargetUserID)
			continue
		}
		eligible++

		inserted, err := o.history.InsertChannelResultIdempotent(ctx, &domain.ChannelResult{
			NotificationID: notificationID,
			Channel:        ch,
			Status:         domain.StatusPending,
			Attempts:       1,
		})
		if err != nil {
			slog.Error("failed to record channel dispatch", "notification_id", notificationID, "channel", ch, "error", err)
			continue
		}
		if !inserted {
			// Already dispatched on a prior run of this same cycle; that run
			// owns this channel's outcome, so don't double-count it here.
			continue
		}

		attempted = append(attempted, ch)

		result := make(chan error, 1)
		if !pool.Submit(channel.Task{Target: target, Notification: n, Result: result}) {
			slog.Warn("channel pool saturated, dropping dispatch",
				"channel", ch, "notification_id", notificationID)
			if o.metrics != nil {
				o.metrics.IncrementCustom("channel_backpressure_drops")
			}
			immediateFailures++
			if updErr := o.history.UpdateChannelResult(ctx, &domain.ChannelResult{
				NotificationID: notificationID,
				Channel:        ch,
				Status:         domain.StatusFailed,
				Attempts:       1,
				LastError:      "channel pool saturated",
			}); updErr != nil {
				slog.Error("failed to update channel result", "notification_id", notificationID, "channel", ch, "error", updErr)
			}
			continue
		}

		inFlight = append(inFlight, channelOutcome{channel: ch, result: result})
	}

	if o.metrics != nil {
		o.metrics.IncrementCustom("notifications_dispatched")
	}

	if eligible == 0 {
		// No channel is configured for this user, or everything was
		// suppressed by DND/preferences: "every attempted channel succeeded"
		// holds vacuously over the empty set, so this cycle is done,
		// delivered, with no channels.
		slog.Info("no channel eligible, marking delivered with no channels",
			"notification_id", notificationID, "target_user_id", n.TargetUserID)
		return o.history.UpdateDeliveryOutcome(ctx, notificationID, domain.StatusDelivered, nil)
	}

	if len(attempted) == 0 {
		// Every eligible channel was already dispatched by a prior run of
		// this same cycle; this invocation (a retry/duplicate call) has
		// nothing new to do, so leave the previously computed outcome alone.
		return nil
	}

	slog.Info("orchestrated delivery", "notification_id", notificationID, "channels_attempted", len(attempted))
	go o.awaitResults(context.Background(), notificationID, attempted, immediateFailures, inFlight)
	return nil
}

// awaitResults blocks on every in-flight channel result for one notification
// cycle, then computes and writes the terminal delivery status once:
// delivered if every attempted channel succeeded, partial if some did,
// failed if all attempted channels failed.
func (o *Orchestrator) awaitResults(ctx context.Context, notificationID string, attempted []domain.Channel, immediateFailures int, inFlight []channelOutcome) {
	failures := immediateFailures
	successes := 0

	for _, oc := range inFlight {
		err := <-oc.result

		status := domain.StatusDelivered
		lastErr := ""
		var deliveredAt *time.Time
		if err != nil {
			status = domain.StatusFailed
			lastErr = err.Error()
			failures++
		} else {
			t := time.Now()
			deliveredAt = &t
			successes++
		}

		if updErr := o.history.UpdateChannelResult(ctx, &domain.ChannelResult{
			NotificationID: notificationID,
			Channel:        oc.channel,
			Status:         status,
			Attempts:       1,
			LastError:      lastErr,
			DeliveredAt:    deliveredAt,
		}); updErr != nil {
			slog.Error("failed to update channel result", "notification_id", notificationID, "channel", oc.channel, "error", updErr)
		}
	}

	if immediateFailures == 0 && len(inFlight) == 0 {
		// This invocation dispatched nothing new (a retried/duplicate call
		// for an already-fully-processed cycle); don't clobber a previously
		// computed terminal status.
		return
	}

	var final domain.NotificationStatus
	switch {
	case failures == 0:
		final = domain.StatusDelivered
	case successes > 0:
		final = domain.StatusPartial
	default:
		final = domain.StatusFailed
	}

	if updErr := o.history.UpdateDeliveryOutcome(ctx, notificationID, final, attempted); updErr != nil {
		slog.Error("failed to update delivery outcome", "notification_id", notificationID, "error", updErr)
	}
}

func priorityFor(t domain.EventType) domain.Priority {
	return domain.DefaultPriorityForType(t)
}
