package repository

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"FinCoord/internal/domain/models"
	domrepo "FinCoord/internal/domain/repository"
	pkgkafka "FinCoord/pkg/kafka"
)

// batchPublisher is the part of pkg/kafka.Producer the publisher needs.
type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaResultPublisher publishes each result to the results topic keyed by result id.
type KafkaResultPublisher struct {
	producer batchPublisher
	topic    string
}

var _ domrepo.ResultSink = (*KafkaResultPublisher)(nil)

// NewKafkaResultPublisher creates the publisher. The producer is closed by its owner.
func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) Name() string { return "kafka" }

func (p *KafkaResultPublisher) Send(ctx context.Context, r *models.CoordinationResult) error {
	if r == nil {
		return nil
	}
	msg := pkgkafka.Message{
		Key:   []byte(r.ID),
		Value: r,
		Headers: []kafka.Header{
			{Key: "trace_id", Value: []byte(r.ID)},
			{Key: "coordination_mode", Value: []byte(r.CoordinationMode)},
			{Key: "partial", Value: []byte(fmt.Sprintf("%t", r.Partial))},
		},
	}
	if err := p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{msg}); err != nil {
		return fmt.Errorf("publish result %s: %w", r.ID, err)
	}
	return nil
}

func (p *KafkaResultPublisher) Close() error { return nil }
