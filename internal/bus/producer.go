package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/socialpulse/notifyhub/internal/domain"
)

// Producer publishes Events to their priority topic, keyed by target user
// for per-recipient ordering.
type Producer struct {
	writers map[string]*kafka.Writer // topic -> writer
	brokers []string
}

// NewProducer opens one writer per priority topic.
func NewProducer(brokers string) (*Producer, error) {
	if err := validateProducerParams(brokers, Topics[0]); err != nil {
		return nil, err
	}
	brokerList := ParseBrokers(brokers)

	writers := make(map[string]*kafka.Writer, len(Topics))
	for _, topic := range Topics {
		writers[topic] = NewWriter(brokerList, topic)
	}

	slog.Info("kafka producer initialized", "brokers", brokerList, "topics", Topics)

	return &Producer{writers: writers, brokers: brokerList}, nil
}

func buildMessage(e *domain.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(e.TargetUserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "schema_version", Value: []byte(fmt.Sprintf("%d", e.SchemaVersion))},
			{Key: "event_id", Value: []byte(e.EventID)},
			{Key: "type", Value: []byte(e.Type)},
		},
		Time: time.Now(),
	}, nil
}

// Publish serializes e to JSON and publishes it to its priority topic.
func (p *Producer) Publish(ctx context.Context, e *domain.Event) error {
	writer, ok := p.writers[e.Topic()]
	if !ok {
		return fmt.Errorf("no writer configured for topic %q", e.Topic())
	}

	msg, err := buildMessage(e)
	if err != nil {
		return err
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}

	slog.Debug("published event", "event_id", e.EventID, "topic", e.Topic(), "target_user_id", e.TargetUserID)
	return nil
}

// Close closes every writer.
func (p *Producer) Close() error {
	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing writer for topic %s: %w", topic, err)
		}
	}
	return firstErr
}
