package repository

import (
	"context"

	"StatArb/internal/domain/models"
	domrepo "StatArb/internal/domain/repository"
	pkgkafka "StatArb/pkg/kafka"
)

// KafkaPublisher emits trades and signals as JSON, keyed by symbol so each
// symbol stays ordered within its partition.
type KafkaPublisher struct {
	producer     *pkgkafka.Producer
	tradesTopic  string
	signalsTopic string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, tradesTopic, signalsTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, tradesTopic: tradesTopic, signalsTopic: signalsTopic}
}

func (p *KafkaPublisher) PublishTrade(ctx context.Context, t *models.Trade) error {
	return p.producer.Publish(ctx, p.tradesTopic, []byte(t.Symbol), t)
}

func (p *KafkaPublisher) PublishTrades(ctx context.Context, trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(trades))
	for _, t := range trades {
		if t == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(t.Symbol), Value: t})
	}
	return p.producer.PublishBatch(ctx, p.tradesTopic, msgs)
}

// PublishSignal is a no-op without a signals topic.
func (p *KafkaPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	if p.signalsTopic == "" {
		return nil
	}
	return p.producer.Publish(ctx, p.signalsTopic, []byte(s.Symbol), s)
}

// PublishMessage lets the log collector ship batches through the same
// producer.
func (p *KafkaPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.Publisher = (*KafkaPublisher)(nil)
