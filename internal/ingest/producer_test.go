package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
	"github.com/socialpulse/notifyhub/internal/retry"
)

type fakeBus struct {
	failTimes int
	calls     int
	published []*domain.Event
}

func (f *fakeBus) Publish(ctx context.Context, e *domain.Event) error {
	f.calls++
	if f.calls <= f.failTimes {
		return errors.New("connection refused")
	}
	f.published = append(f.published, e)
	return nil
}

type fakeFallback struct {
	enqueued []domain.Event
	err      error
}

func (f *fakeFallback) Enqueue(ctx context.Context, e domain.Event) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, e)
	return nil
}

func fastRetryConfig() retry.Config {
	return retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1, JitterFraction: 0}
}

func TestPublish_SucceedsAfterTransientFailures(t *testing.T) {
	bus := &fakeBus{failTimes: 1}
	fb := &fakeFallback{}
	p := NewResilientProducer(bus, fb, fastRetryConfig())

	e := &domain.Event{EventID: "e1"}
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.published) != 1 {
		t.Errorf("expected event published to bus, got %d published", len(bus.published))
	}
	if len(fb.enqueued) != 0 {
		t.Errorf("expected no fallback enqueue when bus eventually succeeds")
	}
}

func TestPublish_FallsBackWhenRetriesExhausted(t *testing.T) {
	bus := &fakeBus{failTimes: 100}
	fb := &fakeFallback{}
	p := NewResilientProducer(bus, fb, fastRetryConfig())

	e := &domain.Event{EventID: "e1"}
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fb.enqueued) != 1 || fb.enqueued[0].EventID != "e1" {
		t.Errorf("expected event enqueued to fallback, got %+v", fb.enqueued)
	}
}

func TestPublish_ReturnsErrorWhenFallbackEnqueueFails(t *testing.T) {
	bus := &fakeBus{failTimes: 100}
	fb := &fakeFallback{err: errors.New("db down")}
	p := NewResilientProducer(bus, fb, fastRetryConfig())

	e := &domain.Event{EventID: "e1"}
	if err := p.Publish(context.Background(), e); err == nil {
		t.Fatal("expected error when fallback enqueue also fails")
	}
}
