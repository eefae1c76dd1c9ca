package repositories

import (
	"context"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"gorm.io/gorm"
)

// ReportRepository backs instructor-facing progress reports. Queries read
// the denormalized enrollment cache plus quiz attempts, never the raw
// heartbeat trail.
type ReportRepository interface {
	// Per-course progress rows, one per enrolled learner
	GetStudentProgress(ctx context.Context, tx *gorm.DB, courseID uint, filters EnrollmentFilters) ([]*models.StudentProgressRow, int64, error)

	// Per-learner time accounting for a course
	GetTimeSpentByLesson(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (map[uint]int, error)

	// Quiz outcome rows for a course's quizzes
	GetQuizResults(ctx context.Context, tx *gorm.DB, quizID uint, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)
}
