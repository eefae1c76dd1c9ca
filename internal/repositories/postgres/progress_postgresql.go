package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/cache"
	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BlockProgressPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewBlockProgressPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.BlockProgressRepository {
	return &BlockProgressPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (p *BlockProgressPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return p.db
}

func (p *BlockProgressPostgreSQL) Create(ctx context.Context, tx *gorm.DB, progress *models.BlockProgress) error {
	db := p.getDB(tx)
	return db.WithContext(ctx).Create(progress).Error
}

func (p *BlockProgressPostgreSQL) Update(ctx context.Context, tx *gorm.DB, progress *models.BlockProgress) error {
	db := p.getDB(tx)
	return db.WithContext(ctx).Save(progress).Error
}

func (p *BlockProgressPostgreSQL) GetByUserAndBlock(ctx context.Context, tx *gorm.DB, userID string, blockID uint) (*models.BlockProgress, error) {
	db := p.getDB(tx)
	var progress models.BlockProgress
	err := db.WithContext(ctx).
		Where("user_id = ? AND block_id = ?", userID, blockID).
		First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// GetOrCreateForUpdate locks the (user, block) row for the duration of the
// surrounding transaction. On first touch the row is inserted, then
// re-read under the lock so two racing first heartbeats serialize on the
// unique index instead of both inserting.
func (p *BlockProgressPostgreSQL) GetOrCreateForUpdate(ctx context.Context, tx *gorm.DB, userID string, blockID uint, enrollmentID uint) (*models.BlockProgress, bool, error) {
	db := p.getDB(tx)

	var progress models.BlockProgress
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND block_id = ?", userID, blockID).
		First(&progress).Error
	if err == nil {
		return &progress, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	fresh := models.BlockProgress{
		UserID:         userID,
		BlockID:        blockID,
		EnrollmentID:   enrollmentID,
		LastAccessedAt: time.Now().UTC(),
	}
	err = db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "block_id"}},
			DoNothing: true,
		}).
		Create(&fresh).Error
	if err != nil {
		return nil, false, err
	}

	// Re-read under lock: either our insert or the one that won the race
	err = db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND block_id = ?", userID, blockID).
		First(&progress).Error
	if err != nil {
		return nil, false, err
	}

	return &progress, fresh.ID == progress.ID, nil
}

func (p *BlockProgressPostgreSQL) ListByUserAndLesson(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) ([]*models.BlockProgress, error) {
	db := p.getDB(tx)
	var records []*models.BlockProgress
	err := db.WithContext(ctx).
		Joins("JOIN content_blocks ON content_blocks.id = block_progresses.block_id").
		Where("block_progresses.user_id = ? AND content_blocks.lesson_id = ?", userID, lessonID).
		Order("content_blocks.position ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (p *BlockProgressPostgreSQL) ListByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) ([]*models.BlockProgress, error) {
	db := p.getDB(tx)
	var records []*models.BlockProgress
	err := db.WithContext(ctx).
		Joins("JOIN content_blocks ON content_blocks.id = block_progresses.block_id").
		Joins("JOIN lessons ON lessons.id = content_blocks.lesson_id").
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("block_progresses.user_id = ? AND course_modules.course_id = ?", userID, courseID).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (p *BlockProgressPostgreSQL) CountCompletedInLesson(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) (int64, error) {
	db := p.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.BlockProgress{}).
		Joins("JOIN content_blocks ON content_blocks.id = block_progresses.block_id").
		Where("block_progresses.user_id = ? AND content_blocks.lesson_id = ? AND block_progresses.is_completed = ?",
			userID, lessonID, true).
		Count(&count).Error
	return count, err
}

func (p *BlockProgressPostgreSQL) CompletedBlockIDsInLesson(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) ([]uint, error) {
	db := p.getDB(tx)
	var ids []uint
	err := db.WithContext(ctx).
		Model(&models.BlockProgress{}).
		Joins("JOIN content_blocks ON content_blocks.id = block_progresses.block_id").
		Where("block_progresses.user_id = ? AND content_blocks.lesson_id = ? AND block_progresses.is_completed = ?",
			userID, lessonID, true).
		Pluck("block_progresses.block_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (p *BlockProgressPostgreSQL) SumTimeSpentByCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error) {
	db := p.getDB(tx)
	var total int64
	err := db.WithContext(ctx).
		Model(&models.BlockProgress{}).
		Select("COALESCE(SUM(block_progresses.time_spent_seconds), 0)").
		Joins("JOIN enrollments ON enrollments.id = block_progresses.enrollment_id").
		Where("block_progresses.user_id = ? AND enrollments.course_id = ?", userID, courseID).
		Scan(&total).Error
	return total, err
}

func (p *BlockProgressPostgreSQL) DeleteByEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID uint) (int64, error) {
	db := p.getDB(tx)
	result := db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Delete(&models.BlockProgress{})
	return result.RowsAffected, result.Error
}

// ===== COMPLETIONS =====

type CompletionPostgreSQL struct {
	db *gorm.DB
}

func NewCompletionPostgreSQL(db *gorm.DB) repositories.CompletionRepository {
	return &CompletionPostgreSQL{db: db}
}

func (c *CompletionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

func (c *CompletionPostgreSQL) LessonCompleted(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) (bool, error) {
	db := c.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.LessonCompletion{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Count(&count).Error
	return count > 0, err
}

// MarkLessonComplete inserts idempotently; re-running aggregation for an
// already complete lesson is a no-op.
func (c *CompletionPostgreSQL) MarkLessonComplete(ctx context.Context, tx *gorm.DB, completion *models.LessonCompletion) (bool, error) {
	db := c.getDB(tx)
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
			DoNothing: true,
		}).
		Create(completion)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (c *CompletionPostgreSQL) CountCompletedLessons(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error) {
	db := c.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.LessonCompletion{}).
		Joins("JOIN lessons ON lessons.id = lesson_completions.lesson_id").
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("lesson_completions.user_id = ? AND course_modules.course_id = ?", userID, courseID).
		Count(&count).Error
	return count, err
}

func (c *CompletionPostgreSQL) CompletedLessonIDs(ctx context.Context, tx *gorm.DB, userID string, courseID uint) ([]uint, error) {
	db := c.getDB(tx)
	var ids []uint
	err := db.WithContext(ctx).
		Model(&models.LessonCompletion{}).
		Joins("JOIN lessons ON lessons.id = lesson_completions.lesson_id").
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("lesson_completions.user_id = ? AND course_modules.course_id = ?", userID, courseID).
		Pluck("lesson_completions.lesson_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *CompletionPostgreSQL) ModuleCompleted(ctx context.Context, tx *gorm.DB, userID string, moduleID uint) (bool, error) {
	db := c.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ModuleCompletion{}).
		Where("user_id = ? AND module_id = ?", userID, moduleID).
		Count(&count).Error
	return count > 0, err
}

func (c *CompletionPostgreSQL) MarkModuleComplete(ctx context.Context, tx *gorm.DB, completion *models.ModuleCompletion) (bool, error) {
	db := c.getDB(tx)
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "module_id"}},
			DoNothing: true,
		}).
		Create(completion)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (c *CompletionPostgreSQL) CountCompletedModules(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error) {
	db := c.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ModuleCompletion{}).
		Joins("JOIN course_modules ON course_modules.id = module_completions.module_id").
		Where("module_completions.user_id = ? AND course_modules.course_id = ?", userID, courseID).
		Count(&count).Error
	return count, err
}

func (c *CompletionPostgreSQL) DeleteByEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID uint) (int64, int64, error) {
	db := c.getDB(tx)

	lessonResult := db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Delete(&models.LessonCompletion{})
	if lessonResult.Error != nil {
		return 0, 0, lessonResult.Error
	}

	moduleResult := db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Delete(&models.ModuleCompletion{})
	if moduleResult.Error != nil {
		return lessonResult.RowsAffected, 0, moduleResult.Error
	}

	return lessonResult.RowsAffected, moduleResult.RowsAffected, nil
}
