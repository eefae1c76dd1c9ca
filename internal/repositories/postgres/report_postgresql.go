package postgres

import (
	"context"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"gorm.io/gorm"
)

type ReportPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewReportPostgreSQL(db *gorm.DB) repositories.ReportRepository {
	return &ReportPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (r *ReportPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// GetStudentProgress reads the denormalized enrollment cache, one row per
// enrolled learner.
func (r *ReportPostgreSQL) GetStudentProgress(ctx context.Context, tx *gorm.DB, courseID uint, filters repositories.EnrollmentFilters) ([]*models.StudentProgressRow, int64, error) {
	db := r.getDB(tx)
	var rows []*models.StudentProgressRow
	var total int64

	query := db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ?", courseID)
	query = r.helpers.ApplyEnrollmentFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = r.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	err := query.
		Select("user_id, percent_completed, cached_completed_lessons AS completed_lessons, " +
			"cached_total_lessons AS total_lessons, is_completed, completed_at, last_accessed_at").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}

func (r *ReportPostgreSQL) GetTimeSpentByLesson(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (map[uint]int, error) {
	db := r.getDB(tx)

	type lessonTime struct {
		LessonID  uint
		TotalTime int
	}

	var results []lessonTime
	err := db.WithContext(ctx).
		Model(&models.BlockProgress{}).
		Select("content_blocks.lesson_id AS lesson_id, SUM(block_progresses.time_spent_seconds) AS total_time").
		Joins("JOIN content_blocks ON content_blocks.id = block_progresses.block_id").
		Joins("JOIN lessons ON lessons.id = content_blocks.lesson_id").
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("block_progresses.user_id = ? AND course_modules.course_id = ?", userID, courseID).
		Group("content_blocks.lesson_id").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	out := make(map[uint]int, len(results))
	for _, row := range results {
		out[row.LessonID] = row.TotalTime
	}
	return out, nil
}

func (r *ReportPostgreSQL) GetQuizResults(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	db := r.getDB(tx)
	var attempts []*models.QuizAttempt
	var total int64

	query := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ?", quizID)
	query = r.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = r.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}
