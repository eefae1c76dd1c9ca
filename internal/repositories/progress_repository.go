package repositories

import (
	"context"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"gorm.io/gorm"
)

// BlockProgressRepository manages per-(user, block) tracking records.
// Heartbeat writes go through GetOrCreateForUpdate so concurrent
// heartbeats for the same key serialize on the row lock.
type BlockProgressRepository interface {
	// Basic operations
	Create(ctx context.Context, tx *gorm.DB, progress *models.BlockProgress) error
	Update(ctx context.Context, tx *gorm.DB, progress *models.BlockProgress) error
	GetByUserAndBlock(ctx context.Context, tx *gorm.DB, userID string, blockID uint) (*models.BlockProgress, error)

	// Locked read for the heartbeat write path. Creates the row on first
	// touch; created reports whether a new row was inserted.
	GetOrCreateForUpdate(ctx context.Context, tx *gorm.DB, userID string, blockID uint, enrollmentID uint) (progress *models.BlockProgress, created bool, err error)

	// Scoped reads
	ListByUserAndLesson(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) ([]*models.BlockProgress, error)
	ListByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) ([]*models.BlockProgress, error)
	CountCompletedInLesson(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) (int64, error)
	CompletedBlockIDsInLesson(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) ([]uint, error)

	// Aggregates
	SumTimeSpentByCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error)

	// Reset support
	DeleteByEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID uint) (int64, error)
}

// CompletionRepository manages lesson/module completion marks. Existence
// of a row means complete; rows are inserted idempotently and removed
// only by reset.
type CompletionRepository interface {
	// Lesson level
	LessonCompleted(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) (bool, error)
	MarkLessonComplete(ctx context.Context, tx *gorm.DB, completion *models.LessonCompletion) (created bool, err error)
	CountCompletedLessons(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error)
	CompletedLessonIDs(ctx context.Context, tx *gorm.DB, userID string, courseID uint) ([]uint, error)

	// Module level
	ModuleCompleted(ctx context.Context, tx *gorm.DB, userID string, moduleID uint) (bool, error)
	MarkModuleComplete(ctx context.Context, tx *gorm.DB, completion *models.ModuleCompletion) (created bool, err error)
	CountCompletedModules(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error)

	// Reset support
	DeleteByEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID uint) (lessons int64, modules int64, err error)
}
