package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/services"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// AggregationWorker consumes aggregation requests off the heartbeat path and
// runs the completion cascade. Delivery is at-least-once; the cascade is
// idempotent, so redelivery after a crash settles to the same state.
type AggregationWorker struct {
	router      *message.Router
	subscriber  message.Subscriber
	aggregation services.AggregationService
	logger      *slog.Logger
}

// NewKafkaSubscriber creates the consumer-group subscriber used in
// production. Tests use watermill's GoChannel pubsub instead.
func NewKafkaSubscriber(brokers []string, consumerGroup string, logger *slog.Logger) (message.Subscriber, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka subscriber: no brokers configured")
	}
	return kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:       brokers,
			Unmarshaler:   kafka.DefaultMarshaler{},
			ConsumerGroup: consumerGroup,
		},
		watermill.NewSlogLogger(logger),
	)
}

func NewAggregationWorker(
	subscriber message.Subscriber,
	aggregation services.AggregationService,
	maxRetries int,
	logger *slog.Logger,
) (*AggregationWorker, error) {
	wmLogger := watermill.NewSlogLogger(logger)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	worker := &AggregationWorker{
		router:      router,
		subscriber:  subscriber,
		aggregation: aggregation,
		logger:      logger,
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      maxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware,
	)

	router.AddNoPublisherHandler(
		"aggregation_requested",
		events.TopicAggregationRequested,
		subscriber,
		worker.handleAggregationRequested,
	)

	return worker, nil
}

// Run blocks until ctx is cancelled or the router fails.
func (w *AggregationWorker) Run(ctx context.Context) error {
	w.logger.Info("aggregation worker starting", "topic", events.TopicAggregationRequested)
	return w.router.Run(ctx)
}

// Running is closed once the router's handlers are up; useful in tests.
func (w *AggregationWorker) Running() chan struct{} {
	return w.router.Running()
}

func (w *AggregationWorker) Close() error {
	return w.router.Close()
}

type aggregationEnvelope struct {
	ID   string                           `json:"id"`
	Type string                           `json:"type"`
	Data events.AggregationRequestedEvent `json:"data"`
}

func (w *AggregationWorker) handleAggregationRequested(msg *message.Message) error {
	var envelope aggregationEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		// A poisoned payload will never parse; drop it instead of retrying.
		w.logger.Error("dropping malformed aggregation request",
			"message_uuid", msg.UUID, "error", err)
		return nil
	}

	req := envelope.Data
	w.logger.Debug("processing aggregation request",
		"event_id", envelope.ID,
		"user_id", req.UserID,
		"block_id", req.BlockID)

	err := w.aggregation.AggregateFromBlock(msg.Context(), req.UserID, req.BlockID, req.EnrollmentID)
	if err != nil {
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) {
			// Invariant violation (e.g. a completion event without an
			// enrollment). Retrying cannot repair corrupted state; ack the
			// message but make the violation loud.
			w.logger.Error("aggregation invariant violation",
				"event_id", envelope.ID,
				"user_id", req.UserID,
				"block_id", req.BlockID,
				"error", err)
			return nil
		}
		if services.IsNotFoundError(err) {
			// The referenced rows are gone; retrying cannot help.
			w.logger.Warn("aggregation target missing, dropping request",
				"event_id", envelope.ID, "error", err)
			return nil
		}
		w.logger.Error("aggregation failed, will retry",
			"event_id", envelope.ID,
			"user_id", req.UserID,
			"block_id", req.BlockID,
			"error", err)
		return err
	}
	return nil
}
