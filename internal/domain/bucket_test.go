package domain

import "testing"

func TestAggregationBucket_TitleAndMessage_CollapsesOverflow(t *testing.T) {
	b := &AggregationBucket{}
	b.AddActor("A")
	b.AddActor("B")
	b.AddActor("C")
	b.AddEvent("e1")
	b.AddEvent("e2")
	b.AddEvent("e3")

	title, _ := b.TitleAndMessage(EventLike)
	want := "A, B and 1 other liked your post"
	if title != want {
		t.Fatalf("title = %q, want %q", title, want)
	}
}

func TestAggregationBucket_TitleAndMessage_TwoActorsNoOverflow(t *testing.T) {
	b := &AggregationBucket{}
	b.AddActor("A")
	b.AddActor("B")
	b.AddEvent("e1")
	b.AddEvent("e2")

	title, _ := b.TitleAndMessage(EventFollow)
	want := "A and B followed you"
	if title != want {
		t.Fatalf("title = %q, want %q", title, want)
	}
}

func TestAggregationBucket_TitleAndMessage_SingleActor(t *testing.T) {
	b := &AggregationBucket{}
	b.AddActor("A")
	b.AddEvent("e1")

	title, _ := b.TitleAndMessage(EventComment)
	want := "A commented on your post"
	if title != want {
		t.Fatalf("title = %q, want %q", title, want)
	}
}

func TestAggregationBucket_ActorIDsCappedButEventIDsUncapped(t *testing.T) {
	b := &AggregationBucket{}
	for i := 0; i < MaxTrackedActors+5; i++ {
		b.AddActor(string(rune('a' + i)))
		b.AddEvent(string(rune('a' + i)))
	}

	if len(b.ActorIDs) != MaxTrackedActors {
		t.Fatalf("expected ActorIDs capped at %d, got %d", MaxTrackedActors, len(b.ActorIDs))
	}
	if len(b.EventIDs) != MaxTrackedActors+5 {
		t.Fatalf("expected EventIDs uncapped at %d, got %d", MaxTrackedActors+5, len(b.EventIDs))
	}
	if b.Count != MaxTrackedActors+5 {
		t.Fatalf("expected Count to track every fold, got %d", b.Count)
	}
}

func TestAggregationBucket_AddActor_DedupesRepeatActor(t *testing.T) {
	b := &AggregationBucket{}
	b.AddActor("A")
	b.AddActor("A")
	b.AddActor("A")

	if len(b.ActorIDs) != 1 {
		t.Fatalf("expected a repeated actor to be tracked once, got %d", len(b.ActorIDs))
	}
	if b.Count != 3 {
		t.Fatalf("expected every fold to still count, got %d", b.Count)
	}
}
