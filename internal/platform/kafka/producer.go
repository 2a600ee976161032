// Package kafka wraps the franz-go producer used by the audit sink.
package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes records to a single topic.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer connects to the given brokers and ensures the topic exists.
// Topic creation is best-effort: brokers with auto-create or pre-provisioned
// topics report "already exists", which is fine.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	// Existing topics are not an error; anything else surfaces on produce.
	adm := kadm.NewClient(client)
	_, _ = adm.CreateTopics(ctx, 1, 1, nil, topic)

	return &Producer{client: client, topic: topic}, nil
}

// Produce synchronously publishes one keyed record.
func (p *Producer) Produce(ctx context.Context, key, value []byte) error {
	rec := &kgo.Record{Topic: p.topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
