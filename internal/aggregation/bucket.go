// Package aggregation implements the Aggregation/Dedup Engine: it folds
// bursts of same-type events for the same target into a single debounced
// notification per window, per the per-event-type windows configured for it.
package aggregation

import (
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
)

// WindowFor returns the debounce window for an event type, or zero if that
// type is never aggregated (mentions and bell_post are always delivered
// immediately, one notification per event).
func WindowFor(t domain.EventType, likeWindow, commentWindow, followWindow time.Duration) time.Duration {
	switch t {
	case domain.EventLike:
		return likeWindow
	case domain.EventComment:
		return commentWindow
	case domain.EventFollow:
		return followWindow
	default:
		return 0
	}
}

// KeyFor computes the AggregationKey an event folds into. Likes and comments
// group by the object (post/comment) they target; follows group by target
// user only (one "N people followed you" burst per user); mentions and
// bell_post never aggregate, so each gets its own key by event id, ensuring
// every such event starts (and immediately closes) its own one-event bucket.
func KeyFor(e *domain.Event) domain.AggregationKey {
	switch e.Type {
	case domain.EventLike, domain.EventComment:
		return domain.AggregationKey{TargetUserID: e.TargetUserID, Type: e.Type, ObjectID: e.ObjectID}
	case domain.EventFollow:
		return domain.AggregationKey{TargetUserID: e.TargetUserID, Type: e.Type}
	default:
		return domain.AggregationKey{TargetUserID: e.TargetUserID, Type: e.Type, ObjectID: e.EventID}
	}
}

// ApplyEvent folds e into bucket (which may be freshly zero-valued, meaning
// "no existing bucket"), returning the updated bucket and whether this event
// should trigger a fresh debounce-window countdown. The window is extended
// ("debounced") on the bucket's first event and on every subsequent event
// while the bucket hasn't yet sent for this cycle, per spec: bursts delay the
// send until activity quiets down, but a bucket that already sent this cycle
// does not re-open when a new event arrives within the same window. A sent
// bucket whose last event is more than one window old is replaced by a new
// bucket.
func ApplyEvent(bucket *domain.AggregationBucket, e *domain.Event, window time.Duration, now time.Time) *domain.AggregationBucket {
	if bucket == nil || (bucket.Sent && window > 0 && now.Sub(bucket.LastEventAt) > window) {
		bucket = &domain.AggregationBucket{
			Key:          KeyFor(e),
			FirstEventAt: now,
		}
	}

	bucket.LastEventAt = now
	bucket.AddActor(e.ActorID)
	bucket.AddEvent(e.EventID)

	if window <= 0 {
		// Non-aggregating types: each event is its own immediately-ready bucket.
		bucket.DebounceUntil = now
		return bucket
	}

	if !bucket.Sent {
		bucket.DebounceUntil = now.Add(window)
	}

	return bucket
}

// Ready reports whether bucket's debounce window has elapsed and it hasn't
// already sent for this cycle.
func Ready(bucket *domain.AggregationBucket, now time.Time) bool {
	if bucket == nil || bucket.Sent {
		return false
	}
	return !now.Before(bucket.DebounceUntil)
}
