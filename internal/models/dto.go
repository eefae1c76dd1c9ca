package models

import (
	"time"
)

// ===== PROGRESS DTOs =====

// CourseProgressSnapshot is the read model of one enrollment's derived state.
// Aggregation writes it in a single transaction, so readers never observe a
// half-updated snapshot.
type CourseProgressSnapshot struct {
	CourseID               uint       `json:"course_id"`
	UserID                 string     `json:"user_id"`
	PercentCompleted       float64    `json:"percent_completed"`
	IsCompleted            bool       `json:"is_completed"`
	CompletedAt            *time.Time `json:"completed_at"`
	CachedCompletedLessons int        `json:"completed_lessons"`
	CachedTotalLessons     int        `json:"total_lessons"`
	LastAccessedAt         time.Time  `json:"last_accessed_at"`
}

type ResumeState string

const (
	ResumeAtBlock  ResumeState = "resume"
	ResumeComplete ResumeState = "course_complete"
	ResumeEmpty    ResumeState = "no_content"
)

// ResumePoint tells the client which block to open next. The course_complete
// and no_content states carry no block reference.
type ResumePoint struct {
	State       ResumeState `json:"state"`
	BlockID     *uint       `json:"block_id,omitempty"`
	BlockType   *BlockType  `json:"block_type,omitempty"`
	LessonID    *uint       `json:"lesson_id,omitempty"`
	LessonTitle *string     `json:"lesson_title,omitempty"`
	ModuleID    *uint       `json:"module_id,omitempty"`
	IsStart     bool        `json:"is_start"`
}

// BlockStatus merges a progress record with block metadata; blocks without a
// record yet come back with zero values so the player still gets metadata.
type BlockStatus struct {
	BlockID          uint                   `json:"block_id"`
	BlockType        BlockType              `json:"block_type"`
	IsCompleted      bool                   `json:"is_completed"`
	TimeSpentSeconds int                    `json:"time_spent_seconds"`
	ResumeData       map[string]interface{} `json:"resume_data,omitempty"`
	LastAccessedAt   *time.Time             `json:"last_accessed_at,omitempty"`
}

type ResetProgressResult struct {
	CourseID            uint      `json:"course_id"`
	BlocksCleared       int64     `json:"blocks_cleared"`
	LessonsCleared      int64     `json:"lessons_cleared"`
	ModulesCleared      int64     `json:"modules_cleared"`
	QuizAttemptsCleared int64     `json:"quiz_attempts_cleared"`
	ResetAt             time.Time `json:"reset_at"`
}

// StudentProgressRow is one line of the instructor progress export.
type StudentProgressRow struct {
	UserID           string     `json:"user_id"`
	PercentCompleted float64    `json:"percent_completed"`
	CompletedLessons int        `json:"completed_lessons"`
	TotalLessons     int        `json:"total_lessons"`
	IsCompleted      bool       `json:"is_completed"`
	CompletedAt      *time.Time `json:"completed_at"`
	LastAccessedAt   time.Time  `json:"last_accessed_at"`
}

// ===== SHARED RESPONSES =====

type ErrorResponse struct {
	Error     string      `json:"error,omitempty"`
	Message   string      `json:"message"`
	Code      string      `json:"code,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitempty"`
	Path      string      `json:"path,omitempty"`
}

type SuccessResponse struct {
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
