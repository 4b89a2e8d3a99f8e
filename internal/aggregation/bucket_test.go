package aggregation

import (
	"testing"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
)

func baseEvent(actor string, typ domain.EventType) *domain.Event {
	return &domain.Event{
		EventID:      "evt-" + actor,
		Type:         typ,
		ActorID:      actor,
		TargetUserID: "user-1",
		ObjectID:     "post-1",
	}
}

func TestApplyEvent_NewBucketStartsWindow(t *testing.T) {
	now := time.Now()
	e := baseEvent("actor-a", domain.EventLike)
	b := ApplyEvent(nil, e, 5*time.Minute, now)

	if b.Key.TargetUserID != "user-1" || b.Key.ObjectID != "post-1" {
		t.Fatalf("unexpected key: %+v", b.Key)
	}
	if !b.DebounceUntil.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expected debounce until now+5m, got %v", b.DebounceUntil)
	}
	if b.Count != 1 {
		t.Fatalf("expected count 1, got %d", b.Count)
	}
}

func TestApplyEvent_BurstExtendsWindow(t *testing.T) {
	now := time.Now()
	b := ApplyEvent(nil, baseEvent("a", domain.EventLike), 5*time.Minute, now)

	later := now.Add(4 * time.Minute)
	b = ApplyEvent(b, baseEvent("b", domain.EventLike), 5*time.Minute, later)

	if !b.DebounceUntil.Equal(later.Add(5 * time.Minute)) {
		t.Fatalf("expected window extended from the later event, got %v", b.DebounceUntil)
	}
	if b.Count != 2 {
		t.Fatalf("expected count 2, got %d", b.Count)
	}
}

func TestApplyEvent_SentBucketDoesNotReopenWindow(t *testing.T) {
	now := time.Now()
	b := ApplyEvent(nil, baseEvent("a", domain.EventLike), 5*time.Minute, now)
	b.Sent = true
	prevDeadline := b.DebounceUntil

	later := now.Add(1 * time.Minute)
	b = ApplyEvent(b, baseEvent("b", domain.EventLike), 5*time.Minute, later)

	if !b.DebounceUntil.Equal(prevDeadline) {
		t.Fatalf("sent bucket should not get a new debounce deadline, got %v want %v", b.DebounceUntil, prevDeadline)
	}
	if b.Count != 2 {
		t.Fatalf("event should still be folded in for count purposes, got %d", b.Count)
	}
}

func TestApplyEvent_NonAggregatingTypeIsImmediatelyReady(t *testing.T) {
	now := time.Now()
	b := ApplyEvent(nil, baseEvent("a", domain.EventMention), 0, now)

	if !Ready(b, now) {
		t.Fatal("expected non-aggregating event to be immediately ready")
	}
}

func TestReady(t *testing.T) {
	now := time.Now()
	b := ApplyEvent(nil, baseEvent("a", domain.EventLike), 5*time.Minute, now)

	if Ready(b, now) {
		t.Fatal("should not be ready immediately")
	}
	if !Ready(b, now.Add(5*time.Minute)) {
		t.Fatal("should be ready once the window elapses")
	}
}

func TestReady_AlreadySentIsNeverReadyAgain(t *testing.T) {
	b := &domain.AggregationBucket{Sent: true, DebounceUntil: time.Now().Add(-time.Hour)}
	if Ready(b, time.Now()) {
		t.Fatal("a sent bucket must never be ready again within the same cycle")
	}
}

func TestKeyFor_FollowGroupsByUserOnly(t *testing.T) {
	e := baseEvent("a", domain.EventFollow)
	k := KeyFor(e)
	if k.ObjectID != "" {
		t.Fatalf("expected follow events to group without an object id, got %q", k.ObjectID)
	}
}

func TestKeyFor_MentionNeverAggregates(t *testing.T) {
	e1 := baseEvent("a", domain.EventMention)
	e2 := baseEvent("b", domain.EventMention)
	e2.EventID = "evt-other"
	if KeyFor(e1) == KeyFor(e2) {
		t.Fatal("distinct mention events must never share a key")
	}
}
