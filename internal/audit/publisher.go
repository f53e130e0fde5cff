package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/domain"
)

// Publisher emits evaluation audit events. Publishing is fire-and-forget:
// it never blocks cart evaluation and never surfaces errors to callers.
type Publisher interface {
	Publish(event *domain.EvaluationEvent)
	Close() error
}

// Envelope is the wire shape of an audit event
type Envelope struct {
	EventID           string    `json:"event_id"`
	EventType         string    `json:"event_type"`
	StoreID           string    `json:"store_id"`
	BundleID          string    `json:"bundle_id"`
	CartHash          string    `json:"cart_hash"`
	MatchedVariantIDs []string  `json:"matched_variant_ids"`
	OccurredAt        time.Time `json:"occurred_at"`
	Producer          string    `json:"producer"`
}

// KafkaPublisher writes audit events to a Kafka topic through an async
// writer; delivery errors are logged, never returned.
type KafkaPublisher struct {
	w      *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a new Kafka audit publisher
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(event *domain.EvaluationEvent) {
	envelope := Envelope{
		EventID:           event.ID.String(),
		EventType:         event.EventType,
		StoreID:           event.StoreID.String(),
		BundleID:          event.BundleID.String(),
		CartHash:          event.CartHash,
		MatchedVariantIDs: event.MatchedVariantIDs,
		OccurredAt:        event.CreatedAt,
		Producer:          "bundles-service",
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Warn("Failed to marshal audit event", zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.StoreID.String()),
		Value: value,
		Time:  event.CreatedAt,
	}
	if err := p.w.WriteMessages(context.Background(), msg); err != nil {
		p.logger.Warn("Failed to publish audit event", zap.Error(err))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NopPublisher discards audit events; used when Kafka is not configured
type NopPublisher struct{}

func (NopPublisher) Publish(*domain.EvaluationEvent) {}
func (NopPublisher) Close() error                    { return nil }
