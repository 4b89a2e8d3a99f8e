package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/socialpulse/notifyhub/internal/domain"
)

// Consumer wraps a Kafka reader bound to one priority topic.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer opens a reader for topic in the given consumer group,
// configured for at-least-once delivery (StartOffset only applies when the
// group has no committed offset yet).
func NewConsumer(brokers, topic, groupID string) (*Consumer, error) {
	if err := validateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}
	brokerList := ParseBrokers(brokers)

	slog.Info("kafka consumer initialized", "brokers", brokerList, "topic", topic, "group_id", groupID)

	reader := kafka.NewReader(NewReaderConfig(brokerList, topic, groupID))
	return &Consumer{reader: reader, topic: topic}, nil
}

// ReadEvent reads and deserializes the next message as an Event. The caller
// must CommitMessage only after the event has been fully and durably
// handled.
func (c *Consumer) ReadEvent(ctx context.Context) (*domain.Event, kafka.Message, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return nil, msg, fmt.Errorf("failed to read message from kafka: %w", err)
	}

	var e domain.Event
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return nil, msg, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &e, msg, nil
}

// CommitMessage commits the offset for msg.
func (c *Consumer) CommitMessage(ctx context.Context, msg kafka.Message) error {
	return c.reader.CommitMessages(ctx, msg)
}

// Close closes the reader.
func (c *Consumer) Close() error {
	slog.Info("closing kafka consumer", "topic", c.topic)
	return c.reader.Close()
}
