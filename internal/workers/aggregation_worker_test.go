package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/services"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type aggregationCall struct {
	userID       string
	blockID      uint
	enrollmentID uint
}

type stubAggregationService struct {
	calls chan aggregationCall
	err   error
}

func (s *stubAggregationService) AggregateFromBlock(ctx context.Context, userID string, blockID, enrollmentID uint) error {
	s.calls <- aggregationCall{userID: userID, blockID: blockID, enrollmentID: enrollmentID}
	return s.err
}

func (s *stubAggregationService) RecomputeCourse(ctx context.Context, userID string, courseID uint) error {
	return nil
}

func (s *stubAggregationService) SyncCourseTotals(ctx context.Context, courseID uint) error {
	return nil
}

func TestAggregationWorker_ProcessesRequest(t *testing.T) {
	logger := slog.Default()
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
	defer pubsub.Close()

	stub := &stubAggregationService{calls: make(chan aggregationCall, 1)}
	worker, err := NewAggregationWorker(pubsub, stub, 1, logger)
	if err != nil {
		t.Fatalf("NewAggregationWorker() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = worker.Run(ctx)
	}()
	<-worker.Running()

	publisher := events.NewPublisher(pubsub, logger)
	event := events.NewEvent("progress.aggregation_requested", events.AggregationRequestedEvent{
		UserID:       "u-1",
		CourseID:     10,
		BlockID:      42,
		EnrollmentID: 7,
	})
	if err := publisher.Publish(ctx, events.TopicAggregationRequested, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case call := <-stub.calls:
		if call.userID != "u-1" || call.blockID != 42 || call.enrollmentID != 7 {
			t.Errorf("unexpected call %+v", call)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("aggregation request was not processed")
	}
}

func TestAggregationWorker_DropsMalformedPayload(t *testing.T) {
	logger := slog.Default()
	stub := &stubAggregationService{calls: make(chan aggregationCall, 1)}
	worker, err := NewAggregationWorker(
		gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger)),
		stub, 1, logger)
	if err != nil {
		t.Fatalf("NewAggregationWorker() error = %v", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), []byte("{not json"))
	if err := worker.handleAggregationRequested(msg); err != nil {
		t.Errorf("malformed payload must be dropped without error, got %v", err)
	}
	select {
	case <-stub.calls:
		t.Error("malformed payload must not reach the aggregation service")
	default:
	}
}

func aggregationRequestMessage(t *testing.T) *message.Message {
	t.Helper()
	payload, err := json.Marshal(events.NewEvent("progress.aggregation_requested", events.AggregationRequestedEvent{
		UserID:       "u-1",
		CourseID:     10,
		BlockID:      42,
		EnrollmentID: 7,
	}))
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return message.NewMessage(watermill.NewUUID(), payload)
}

func TestAggregationWorker_AcksInvariantViolation(t *testing.T) {
	logger := slog.Default()
	stub := &stubAggregationService{
		calls: make(chan aggregationCall, 1),
		err: services.NewDomainError("aggregate progress",
			errors.New("enrollment missing for user u-1 in course 10")),
	}
	worker, err := NewAggregationWorker(
		gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger)),
		stub, 1, logger)
	if err != nil {
		t.Fatalf("NewAggregationWorker() error = %v", err)
	}

	// Corrupted state cannot be repaired by redelivery; the message must be
	// acked instead of looping through the retry middleware.
	if err := worker.handleAggregationRequested(aggregationRequestMessage(t)); err != nil {
		t.Errorf("invariant violation must be acked, got %v", err)
	}
	<-stub.calls
}

func TestAggregationWorker_RetriesTransientFailure(t *testing.T) {
	logger := slog.Default()
	stub := &stubAggregationService{
		calls: make(chan aggregationCall, 1),
		err:   errors.New("connection refused"),
	}
	worker, err := NewAggregationWorker(
		gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger)),
		stub, 1, logger)
	if err != nil {
		t.Fatalf("NewAggregationWorker() error = %v", err)
	}

	if err := worker.handleAggregationRequested(aggregationRequestMessage(t)); err == nil {
		t.Error("transient failure must be returned for retry")
	}
	<-stub.calls
}
