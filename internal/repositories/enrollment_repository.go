package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"gorm.io/gorm"
)

// ProgressCacheUpdate is the derived-state write applied to an enrollment
// by the cascade aggregator.
type ProgressCacheUpdate struct {
	PercentCompleted float64
	CompletedLessons int
	TotalLessons     int
	IsCompleted      bool
	CompletedAt      *time.Time
}

// EnrollmentRepository manages the per-(user, course) progress cache.
// Enrollment creation is owned by the enrollment service; this service
// only reads rows and rewrites the derived fields.
type EnrollmentRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Enrollment, error)
	GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error)
	GetByUserAndCourseForUpdate(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error)

	// Derived-state writes
	UpdateProgressCache(ctx context.Context, tx *gorm.DB, enrollmentID uint, update ProgressCacheUpdate) error
	SetCurrentBlock(ctx context.Context, tx *gorm.DB, enrollmentID uint, blockID *uint, accessedAt time.Time) error
	ResetProgressCache(ctx context.Context, tx *gorm.DB, enrollmentID uint, totalLessons int) error

	// Reporting queries
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID uint, filters EnrollmentFilters) ([]*models.Enrollment, int64, error)
	GetCourseStats(ctx context.Context, tx *gorm.DB, courseID uint) (*CourseProgressStats, error)
}
