package events

import (
	"context"
	"log/slog"
	"testing"
)

func TestMockEventPublisher(t *testing.T) {
	publisher := NewMockEventPublisher(slog.Default())
	ctx := context.Background()

	event := NewEvent("progress.block_completed", BlockCompletedEvent{
		UserID:  "u-1",
		BlockID: 42,
	})
	if err := publisher.Publish(ctx, TopicBlockCompleted, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	published := publisher.GetPublishedEvents()
	if len(published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(published))
	}
	got := published[0]
	if got.Type != "progress.block_completed" {
		t.Errorf("type = %q, want progress.block_completed", got.Type)
	}
	if got.Source != Source {
		t.Errorf("source = %q, want %q", got.Source, Source)
	}
	if got.Version != "1.0" {
		t.Errorf("version = %q, want 1.0", got.Version)
	}
	if got.ID == "" {
		t.Error("event id must be stamped")
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp must be stamped")
	}

	publisher.ClearEvents()
	if len(publisher.GetPublishedEvents()) != 0 {
		t.Error("ClearEvents() must empty the buffer")
	}
}

func TestMockEventPublisher_EventsOfType(t *testing.T) {
	publisher := NewMockEventPublisher(slog.Default())
	ctx := context.Background()

	_ = publisher.Publish(ctx, TopicBlockCompleted, NewEvent("progress.block_completed", nil))
	_ = publisher.Publish(ctx, TopicCourseCompleted, NewEvent("progress.course_completed", nil))
	_ = publisher.Publish(ctx, TopicBlockCompleted, NewEvent("progress.block_completed", nil))

	if got := len(publisher.EventsOfType("progress.block_completed")); got != 2 {
		t.Errorf("EventsOfType() returned %d events, want 2", got)
	}
}

func TestMockEventPublisher_Closed(t *testing.T) {
	publisher := NewMockEventPublisher(slog.Default())
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	err := publisher.Publish(context.Background(), TopicBlockCompleted, NewEvent("progress.block_completed", nil))
	if err == nil {
		t.Error("Publish() after Close() must fail")
	}
}
