package repositories

import (
	"time"

	"github.com/SAP-F-2025/progress-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type EnrollmentFilters struct {
	IsCompleted *bool      `json:"is_completed"`
	DateFrom    *time.Time `json:"date_from"`
	DateTo      *time.Time `json:"date_to"`
	Limit       int        `json:"limit"`
	Offset      int        `json:"offset"`
	SortBy      string     `json:"sort_by"`    // "created_at", "percent_completed", "last_accessed_at"
	SortOrder   string     `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	UserID    *string               `json:"user_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ProgressFilters struct {
	IsCompleted *bool `json:"is_completed"`
	Limit       int   `json:"limit"`
	Offset      int   `json:"offset"`
}

// ===== SHARED HELPER STRUCTS =====

// CourseTotals is the authoritative lesson/block census of a course,
// computed from the live content tree.
type CourseTotals struct {
	CourseID       uint `json:"course_id"`
	ModuleCount    int  `json:"module_count"`
	LessonCount    int  `json:"lesson_count"`
	BlockCount     int  `json:"block_count"`
	RequiredBlocks int  `json:"required_blocks"`
}

// ===== SHARED STATISTICS STRUCTS =====

type CourseProgressStats struct {
	EnrolledCount    int     `json:"enrolled_count"`
	CompletedCount   int     `json:"completed_count"`
	AveragePercent   float64 `json:"average_percent"`
	AverageTimeSpent int     `json:"average_time_spent"`
}

type QuizStats struct {
	TotalAttempts     int     `json:"total_attempts"`
	SubmittedAttempts int     `json:"submitted_attempts"`
	AverageScore      float64 `json:"average_score"`
	PassRate          float64 `json:"pass_rate"`
}
