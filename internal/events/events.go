package events

import (
	"context"
	"time"
)

// Source identifies this service in published events.
const Source = "progress-service"

// Topics published by the service.
const (
	TopicAggregationRequested = "progress.aggregation_requested"
	TopicBlockCompleted       = "progress.block_completed"
	TopicCourseCompleted      = "progress.course_completed"
	TopicProgressReset        = "progress.reset"
	TopicAttemptGraded        = "quiz.attempt_graded"
	TopicActivityRecorded     = "activity.recorded"
)

// Event is the envelope for every message this service publishes.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// EventPublisher abstracts the message broker so services and tests can
// swap Kafka for an in-memory implementation.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}

// AggregationRequestedEvent asks the aggregation worker to recompute
// completion rollups after a block flipped to complete.
type AggregationRequestedEvent struct {
	UserID       string `json:"user_id"`
	CourseID     uint   `json:"course_id"`
	LessonID     uint   `json:"lesson_id"`
	BlockID      uint   `json:"block_id"`
	EnrollmentID uint   `json:"enrollment_id"`
}

// BlockCompletedEvent records a block's false-to-true completion
// transition.
type BlockCompletedEvent struct {
	UserID      string    `json:"user_id"`
	CourseID    uint      `json:"course_id"`
	LessonID    uint      `json:"lesson_id"`
	BlockID     uint      `json:"block_id"`
	BlockType   string    `json:"block_type"`
	CompletedAt time.Time `json:"completed_at"`
}

// CourseCompletedEvent fires once when a learner finishes every required
// lesson in a course.
type CourseCompletedEvent struct {
	UserID      string    `json:"user_id"`
	CourseID    uint      `json:"course_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// ProgressResetEvent records an instructor-initiated progress wipe.
type ProgressResetEvent struct {
	UserID      string `json:"user_id"`
	CourseID    uint   `json:"course_id"`
	RequestedBy string `json:"requested_by"`
}

// AttemptGradedEvent carries the final grade of a quiz attempt.
type AttemptGradedEvent struct {
	UserID    string  `json:"user_id"`
	QuizID    uint    `json:"quiz_id"`
	AttemptID uint    `json:"attempt_id"`
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"max_score"`
	Passed    bool    `json:"passed"`
}

// ActivityRecordedEvent is a lightweight trail of learner activity used
// by downstream analytics.
type ActivityRecordedEvent struct {
	UserID    string `json:"user_id"`
	CourseID  uint   `json:"course_id"`
	BlockID   uint   `json:"block_id"`
	TimeDelta int    `json:"time_delta"`
}
