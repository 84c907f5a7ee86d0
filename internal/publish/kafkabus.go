package publish

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaLogBus implements LogBus over a franz-go client.
type KafkaLogBus struct {
	client *kgo.Client
	topic  string
}

// NewKafkaLogBus builds a KafkaLogBus from an already-connected client.
func NewKafkaLogBus(client *kgo.Client, topic string) *KafkaLogBus {
	return &KafkaLogBus{client: client, topic: topic}
}

// Produce synchronously produces one record, keyed for log-bus
// partitioning. An empty key lets the client fall back to its default
// (sticky random) partitioner.
func (b *KafkaLogBus) Produce(ctx context.Context, key string, value []byte) error {
	record := &kgo.Record{Topic: b.topic, Value: value}
	if key != "" {
		record.Key = []byte(key)
	}
	result := b.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("kafkabus: produce to %s: %w", b.topic, err)
	}
	return nil
}
