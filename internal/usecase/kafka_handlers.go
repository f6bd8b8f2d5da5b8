package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"StatArb/internal/domain/models"
	domrepo "StatArb/internal/domain/repository"
	"StatArb/internal/domain/service"
	pkgkafka "StatArb/pkg/kafka"
)

// KafkaQuotesHandler feeds quotes published on a Kafka topic into the
// engine. Used when the feed mode is kafka.
type KafkaQuotesHandler struct {
	topic   string
	sink    service.QuoteSink
	metrics domrepo.Metrics
}

func NewKafkaQuotesHandler(topic string, sink service.QuoteSink, metrics domrepo.Metrics) *KafkaQuotesHandler {
	return &KafkaQuotesHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaQuotesHandler) Topic() string { return h.topic }

// Handle expects a JSON-encoded models.Quote. Malformed or unknown-symbol
// messages are dropped without retry.
func (h *KafkaQuotesHandler) Handle(ctx context.Context, b []byte) error {
	var q models.Quote
	if err := json.Unmarshal(b, &q); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return nil
	}
	if err := q.Validate(); err != nil {
		h.metrics.RecordError("consumer_validate")
		return nil
	}
	h.metrics.RecordLatency("ingest_e2e", time.Since(q.Timestamp).Seconds())

	if err := h.sink.Dispatch(ctx, &q); err != nil {
		if errors.Is(err, models.ErrInvalidSymbol) {
			h.metrics.RecordError("unknown_symbol")
			return nil
		}
		h.metrics.RecordError("consumer_dispatch")
		return fmt.Errorf("dispatch %s/%s: %w", q.Exchange, q.Symbol, err)
	}
	return nil
}

// KafkaTradesHandler persists trades from the event bus into the trade
// store, so a Kafka-backed deployment still keeps full history.
type KafkaTradesHandler struct {
	topic   string
	store   domrepo.TradeStore
	metrics domrepo.Metrics
}

func NewKafkaTradesHandler(topic string, store domrepo.TradeStore, metrics domrepo.Metrics) *KafkaTradesHandler {
	return &KafkaTradesHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaTradesHandler) Topic() string { return h.topic }

func (h *KafkaTradesHandler) Handle(ctx context.Context, b []byte) error {
	var t models.Trade
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	start := time.Now()
	err := h.store.Store(ctx, &t)
	h.metrics.RecordLatency("ch_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent(BackendClickHouse, t.Symbol)
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*KafkaQuotesHandler)(nil)
	_ pkgkafka.MessageHandler = (*KafkaTradesHandler)(nil)
)
