package postgres

import (
	"context"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/cache"
	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewEnrollmentPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (e *EnrollmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}

func (e *EnrollmentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Enrollment, error) {
	db := e.getDB(tx)
	var enrollment models.Enrollment
	if err := db.WithContext(ctx).First(&enrollment, id).Error; err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (e *EnrollmentPostgreSQL) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error) {
	db := e.getDB(tx)
	var enrollment models.Enrollment
	err := db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// GetByUserAndCourseForUpdate takes a row lock so concurrent aggregation
// runs for the same enrollment serialize.
func (e *EnrollmentPostgreSQL) GetByUserAndCourseForUpdate(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error) {
	db := e.getDB(tx)
	var enrollment models.Enrollment
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (e *EnrollmentPostgreSQL) UpdateProgressCache(ctx context.Context, tx *gorm.DB, enrollmentID uint, update repositories.ProgressCacheUpdate) error {
	db := e.getDB(tx)
	return db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", enrollmentID).
		Updates(map[string]interface{}{
			"percent_completed":        update.PercentCompleted,
			"cached_completed_lessons": update.CompletedLessons,
			"cached_total_lessons":     update.TotalLessons,
			"is_completed":             update.IsCompleted,
			"completed_at":             update.CompletedAt,
		}).Error
}

func (e *EnrollmentPostgreSQL) SetCurrentBlock(ctx context.Context, tx *gorm.DB, enrollmentID uint, blockID *uint, accessedAt time.Time) error {
	db := e.getDB(tx)
	return db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", enrollmentID).
		Updates(map[string]interface{}{
			"current_block_id": blockID,
			"last_accessed_at": accessedAt,
		}).Error
}

func (e *EnrollmentPostgreSQL) ResetProgressCache(ctx context.Context, tx *gorm.DB, enrollmentID uint, totalLessons int) error {
	db := e.getDB(tx)
	return db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", enrollmentID).
		Updates(map[string]interface{}{
			"percent_completed":        0,
			"cached_completed_lessons": 0,
			"cached_total_lessons":     totalLessons,
			"is_completed":             false,
			"completed_at":             nil,
			"current_block_id":         nil,
		}).Error
}

func (e *EnrollmentPostgreSQL) ListByCourse(ctx context.Context, tx *gorm.DB, courseID uint, filters repositories.EnrollmentFilters) ([]*models.Enrollment, int64, error) {
	db := e.getDB(tx)
	var enrollments []*models.Enrollment
	var total int64

	query := db.WithContext(ctx).Model(&models.Enrollment{}).Where("course_id = ?", courseID)
	query = e.helpers.ApplyEnrollmentFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = e.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&enrollments).Error; err != nil {
		return nil, 0, err
	}

	return enrollments, total, nil
}

func (e *EnrollmentPostgreSQL) GetCourseStats(ctx context.Context, tx *gorm.DB, courseID uint) (*repositories.CourseProgressStats, error) {
	db := e.getDB(tx)
	stats := &repositories.CourseProgressStats{}

	row := db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Select("COUNT(*) AS enrolled_count, "+
			"COUNT(*) FILTER (WHERE is_completed) AS completed_count, "+
			"COALESCE(AVG(percent_completed), 0) AS average_percent").
		Where("course_id = ?", courseID).
		Row()

	if err := row.Scan(&stats.EnrolledCount, &stats.CompletedCount, &stats.AveragePercent); err != nil {
		return nil, err
	}

	perUser := db.WithContext(ctx).
		Model(&models.BlockProgress{}).
		Select("SUM(block_progresses.time_spent_seconds) AS total_time").
		Joins("JOIN enrollments ON enrollments.id = block_progresses.enrollment_id").
		Where("enrollments.course_id = ?", courseID).
		Group("block_progresses.user_id")

	var avgTime float64
	err := db.WithContext(ctx).
		Table("(?) AS per_user", perUser).
		Select("COALESCE(AVG(total_time), 0)").
		Scan(&avgTime).Error
	if err != nil {
		return nil, err
	}
	stats.AverageTimeSpent = int(avgTime)

	return stats, nil
}
