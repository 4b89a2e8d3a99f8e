package domain

import (
	"fmt"
	"time"
)

// AggregationKey identifies the bucket a given event folds into: all events
// for the same target user, event type, and (when the type groups by object,
// e.g. comments on the same post) object are debounced together.
type AggregationKey struct {
	TargetUserID string
	Type         EventType
	ObjectID     string // empty for event types that don't group by object (e.g. follow)
}

// String renders the key as a flat Redis/lookup key.
func (k AggregationKey) String() string {
	if k.ObjectID == "" {
		return string(k.Type) + ":" + k.TargetUserID
	}
	return string(k.Type) + ":" + k.TargetUserID + ":" + k.ObjectID
}

// AggregationBucket accumulates events for one AggregationKey across its
// debounce window. A bucket is only ever the subject of one active debounce
// timer at a time (Design Note: single send per bucket cycle, no re-send on
// growth after the cycle's notification has gone out).
type AggregationBucket struct {
	Key      AggregationKey
	ActorIDs []string // capped at MaxTrackedActors, deduplicated, insertion order
	// EventIDs is every source event id folded into this cycle, never
	// capped: NotificationHistory.AggregatedCount must always equal its
	// cardinality.
	EventIDs      []string
	Count         int // total events folded in, may exceed len(ActorIDs) if capped
	FirstEventAt  time.Time
	LastEventAt   time.Time
	DebounceUntil time.Time
	Sent          bool // true once a notification has been emitted for this cycle
	Version       int64
}

// MaxTrackedActors bounds how many distinct actor ids a bucket stores before
// it starts just incrementing Count without tracking the actor by name.
const MaxTrackedActors = 10

// DisplayActorLimit bounds how many actor names are spelled out in a
// rendered title before collapsing the rest into "and K others" — distinct
// from, and always <=, MaxTrackedActors.
const DisplayActorLimit = 2

// AddActor folds a new actor into the bucket, respecting MaxTrackedActors.
func (b *AggregationBucket) AddActor(actorID string) {
	b.Count++
	for _, a := range b.ActorIDs {
		if a == actorID {
			return
		}
	}
	if len(b.ActorIDs) < MaxTrackedActors {
		b.ActorIDs = append(b.ActorIDs, actorID)
	}
}

// AddEvent records eventID in the bucket's uncapped event id list.
func (b *AggregationBucket) AddEvent(eventID string) {
	b.EventIDs = append(b.EventIDs, eventID)
}

// actorsText renders the "who" clause of a title, e.g. "Alice and 4 others"
// or "Alice and Bob". At most DisplayActorLimit names are spelled out; any
// remaining activity (whether a distinct actor beyond the tracked set, or
// overflow from the same actor acting more than once) is collapsed into a
// trailing "and K others".
func (b *AggregationBucket) actorsText() string {
	n := len(b.ActorIDs)
	if n == 0 {
		return ""
	}

	shown := n
	if shown > DisplayActorLimit {
		shown = DisplayActorLimit
	}
	overflow := b.Count - shown

	var names string
	switch shown {
	case 1:
		names = b.ActorIDs[0]
	default:
		names = b.ActorIDs[0]
		for i := 1; i < shown-1; i++ {
			names += ", " + b.ActorIDs[i]
		}
		if overflow > 0 {
			names += ", " + b.ActorIDs[shown-1]
		} else {
			names += " and " + b.ActorIDs[shown-1]
		}
	}

	if overflow <= 0 {
		return names
	}
	plural := "s"
	if overflow == 1 {
		plural = ""
	}
	return fmt.Sprintf("%s and %d other%s", names, overflow, plural)
}

// TitleAndMessage renders the display text for this bucket's event type,
// e.g. "Alice and 4 others liked your post", feeding
// NotificationHistory.Title/Message.
func (b *AggregationBucket) TitleAndMessage(t EventType) (title, message string) {
	actors := b.actorsText()

	switch t {
	case EventLike:
		return actors + " liked your post", "Tap to see who's been liking your post."
	case EventComment:
		return actors + " commented on your post", "Tap to read the new comments."
	case EventFollow:
		return actors + " followed you", "Tap to view your new followers."
	case EventMention:
		return actors + " mentioned you", "Tap to see where you were mentioned."
	case EventBell:
		return actors + " posted something new", "Tap to catch up on their latest post."
	default:
		return actors, ""
	}
}
