// Package bus wraps segmentio/kafka-go as the pipeline's Event Bus Adapter:
// one topic per priority, partitioned by target user for per-recipient
// ordering, manual offset commit so a message is only acknowledged after it
// has been durably handled downstream (at-least-once delivery).
package bus

import (
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	MaxPollWait    = 1 * time.Second
	CommitInterval = 0 // manual commit after every successful handle
	ReadTimeout    = 10 * time.Second
	WriteTimeout   = 5 * time.Second
)

// Topics is the fixed set of priority topics the pipeline publishes and
// consumes on.
var Topics = []string{"notifications.high", "notifications.normal", "notifications.low"}

// ParseBrokers parses a comma-separated broker list and trims whitespace.
func ParseBrokers(brokers string) []string {
	if brokers == "" {
		return nil
	}
	list := strings.Split(brokers, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	return list
}

func validateConsumerParams(brokers, topic, groupID string) error {
	if brokers == "" {
		return fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return fmt.Errorf("groupID cannot be empty")
	}
	return nil
}

func validateProducerParams(brokers, topic string) error {
	if brokers == "" {
		return fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	return nil
}

// NewReaderConfig creates the reader configuration shared by every consumer
// in the pipeline: at-least-once semantics, start from the earliest
// uncommitted offset.
func NewReaderConfig(brokers []string, topic, groupID string) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        MaxPollWait,
		CommitInterval: CommitInterval,
		StartOffset:    kafka.FirstOffset,
	}
}

// NewWriter creates a Kafka writer configured for synchronous, at-least-once
// writes, partitioned by key (the pipeline always keys by target user id for
// per-recipient ordering and tenant locality).
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}
