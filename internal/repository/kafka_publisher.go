package repository

import (
	"context"
	"strconv"

	"SignalFeed/internal/domain/models"
	pkgkafka "SignalFeed/pkg/kafka"
)

// KafkaEventPublisher implements repository.EventPublisher on a Kafka topic.
// Messages are keyed by symbol so one instrument's events stay ordered.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, e *models.SignalEvent) error {
	key := e.Symbol
	if key == "" {
		key = strconv.FormatInt(e.ID, 10)
	}
	return p.producer.Publish(ctx, p.topic, []byte(key), e)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
