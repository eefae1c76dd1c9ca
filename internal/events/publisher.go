package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// WatermillPublisher publishes events through any watermill
// message.Publisher (Kafka in production, GoChannel in tests).
type WatermillPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewKafkaEventPublisher creates a Kafka-backed publisher.
func NewKafkaEventPublisher(brokers []string, logger *slog.Logger) (*WatermillPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: no brokers configured")
	}

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}

	return NewPublisher(publisher, logger), nil
}

// NewPublisher wraps an existing watermill publisher.
func NewPublisher(publisher message.Publisher, logger *slog.Logger) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

// Publish stamps the envelope and sends it to the topic. The envelope ID
// doubles as the watermill message UUID so brokers can dedupe.
func (p *WatermillPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	stampEvent(event)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", event.Type)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		p.logger.Error("Failed to publish event",
			"topic", topic,
			"event_type", event.Type,
			"error", err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.logger.Debug("Event published",
		"topic", topic,
		"event_type", event.Type,
		"event_id", event.ID)

	return nil
}

// Close shuts down the underlying publisher.
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// stampEvent fills any envelope fields the caller left blank.
func stampEvent(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Source == "" {
		event.Source = Source
	}
	if event.Version == "" {
		event.Version = "1.0"
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

// NewEvent builds an envelope for the given type and payload.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    Source,
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
