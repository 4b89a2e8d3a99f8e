// Package ingest wraps the bus producer with the retry-then-fallback
// behavior the Event Bus Adapter owns: publish attempts are retried per the
// shared retry.Config, and an event that still can't be published is handed
// to the fallback queue rather than dropped, grounded on
// services/aggregator/internal/processor's commit-only-on-success loop
// shape generalized to the producer side of the pipeline.
package ingest

import (
	"context"
	"log/slog"

	"github.com/socialpulse/notifyhub/internal/domain"
	"github.com/socialpulse/notifyhub/internal/fallback"
	"github.com/socialpulse/notifyhub/internal/retry"
)

// Publisher is implemented by bus.Producer.
type Publisher interface {
	Publish(ctx context.Context, e *domain.Event) error
}

// FallbackEnqueuer is implemented by fallback.Store.
type FallbackEnqueuer interface {
	Enqueue(ctx context.Context, e domain.Event) error
}

// ResilientProducer is the event-intake side of the Event Bus Adapter: every
// publish is retried, and a publish that exhausts retries is durably queued
// for the replay worker instead of being lost.
type ResilientProducer struct {
	bus      Publisher
	fallback FallbackEnqueuer
	retryCfg retry.Config
}

func NewResilientProducer(bus Publisher, fb FallbackEnqueuer, retryCfg retry.Config) *ResilientProducer {
	return &ResilientProducer{bus: bus, fallback: fb, retryCfg: retryCfg}
}

// Publish retries the bus publish and falls back to the durable queue on
// exhaustion. It only returns an error if the fallback enqueue itself fails,
// since a successfully-queued fallback entry is a complete (if degraded)
// outcome from the caller's point of view.
func (p *ResilientProducer) Publish(ctx context.Context, e *domain.Event) error {
	err := retry.Do(ctx, p.retryCfg, "bus-publish", func() error {
		return p.bus.Publish(ctx, e)
	})
	if err == nil {
		return nil
	}

	slog.Warn("bus publish exhausted retries, falling back to durable queue", "event_id", e.EventID, "error", err)
	if fbErr := p.fallback.Enqueue(ctx, *e); fbErr != nil {
		return fbErr
	}
	return nil
}
