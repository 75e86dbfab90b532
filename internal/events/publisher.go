// Package events publishes domain events after their transaction commits.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TypeOfferApproved    = "offer.approved"
	TypeOfferAccepted    = "offer.accepted"
	TypeOrderCreated     = "order.created"
	TypeShipmentAdvanced = "shipment.advanced"
)

// Event is the envelope written to the topic
type Event struct {
	ID          uuid.UUID   `json:"id"`
	Type        string      `json:"type"`
	OrgID       uuid.UUID   `json:"orgId"`
	AggregateID uuid.UUID   `json:"aggregateId"`
	OccurredAt  time.Time   `json:"occurredAt"`
	Data        interface{} `json:"data,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time
func NewEvent(eventType string, orgID, aggregateID uuid.UUID, data interface{}) Event {
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		OrgID:       orgID,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Data:        data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// messageWriter abstracts kafka.Writer for testability
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by organization so one org's events stay ordered
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	addrs := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	return &KafkaPublisher{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(addrs...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           5 * time.Second,
		},
	}
}

// NewKafkaPublisherWith wraps an existing writer
func NewKafkaPublisherWith(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.OrgID.String()),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
		},
		Time: evt.OccurredAt,
	})
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// LogPublisher only logs events. Used when kafka is disabled.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Debug("domain event",
		zap.String("type", evt.Type),
		zap.String("org_id", evt.OrgID.String()),
		zap.String("aggregate_id", evt.AggregateID.String()),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// New picks the publisher from configuration
func New(cfg *config.KafkaConfig, logger *zap.Logger) Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("Kafka publishing disabled, events are logged only")
		return NewLogPublisher(logger.Named("events"))
	}
	logger.Info("Kafka publisher configured",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

// PublishAfterCommit sends an event and logs instead of failing; the state change it
// describes is already durable.
func PublishAfterCommit(ctx context.Context, p Publisher, logger *zap.Logger, evt Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, evt); err != nil {
		logger.Warn("failed to publish domain event",
			zap.String("type", evt.Type),
			zap.String("aggregate_id", evt.AggregateID.String()),
			zap.Error(err),
		)
	}
}
