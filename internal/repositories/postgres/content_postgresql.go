package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/progress-service/internal/cache"
	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type ContentTreePostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewContentTreePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.ContentTreeRepository {
	return &ContentTreePostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (c *ContentTreePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

func (c *ContentTreePostgreSQL) GetCourse(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	db := c.getDB(tx)
	var course models.Course
	if err := db.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

// GetCourseTree loads the whole containment tree with every level ordered
// by position. Cached because aggregation and resume both walk it.
func (c *ContentTreePostgreSQL) GetCourseTree(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	db := c.getDB(tx)

	load := func() (interface{}, error) {
		var course models.Course
		err := db.WithContext(ctx).
			Preload("Modules", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC, id ASC")
			}).
			Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC, id ASC")
			}).
			Preload("Modules.Lessons.Blocks", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC, id ASC")
			}).
			First(&course, id).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load course tree: %w", err)
		}
		return &course, nil
	}

	// Inside a transaction, read the live tree
	if tx != nil {
		course, err := load()
		if err != nil {
			return nil, err
		}
		return course.(*models.Course), nil
	}

	var course models.Course
	cacheKey := fmt.Sprintf("course:%d", id)
	err := c.cacheManager.Tree.CacheOrExecute(ctx, cacheKey, &course, cache.TreeCacheConfig.TTL, load)
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *ContentTreePostgreSQL) GetCourseTotals(ctx context.Context, tx *gorm.DB, id uint) (*repositories.CourseTotals, error) {
	db := c.getDB(tx)
	totals := &repositories.CourseTotals{CourseID: id}

	var moduleCount int64
	if err := db.WithContext(ctx).
		Model(&models.CourseModule{}).
		Where("course_id = ?", id).
		Count(&moduleCount).Error; err != nil {
		return nil, err
	}
	totals.ModuleCount = int(moduleCount)

	var lessonCount int64
	if err := db.WithContext(ctx).
		Model(&models.Lesson{}).
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("course_modules.course_id = ?", id).
		Count(&lessonCount).Error; err != nil {
		return nil, err
	}
	totals.LessonCount = int(lessonCount)

	var blockCount int64
	blockQuery := db.WithContext(ctx).
		Model(&models.ContentBlock{}).
		Joins("JOIN lessons ON lessons.id = content_blocks.lesson_id").
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("course_modules.course_id = ?", id)
	if err := blockQuery.Count(&blockCount).Error; err != nil {
		return nil, err
	}
	totals.BlockCount = int(blockCount)

	var requiredCount int64
	if err := db.WithContext(ctx).
		Model(&models.ContentBlock{}).
		Joins("JOIN lessons ON lessons.id = content_blocks.lesson_id").
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("course_modules.course_id = ? AND content_blocks.required = ?", id, true).
		Count(&requiredCount).Error; err != nil {
		return nil, err
	}
	totals.RequiredBlocks = int(requiredCount)

	return totals, nil
}

func (c *ContentTreePostgreSQL) GetModule(ctx context.Context, tx *gorm.DB, id uint) (*models.CourseModule, error) {
	db := c.getDB(tx)
	var module models.CourseModule
	if err := db.WithContext(ctx).First(&module, id).Error; err != nil {
		return nil, err
	}
	return &module, nil
}

func (c *ContentTreePostgreSQL) GetLesson(ctx context.Context, tx *gorm.DB, id uint) (*models.Lesson, error) {
	db := c.getDB(tx)
	var lesson models.Lesson
	if err := db.WithContext(ctx).First(&lesson, id).Error; err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (c *ContentTreePostgreSQL) GetLessonsByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Lesson, error) {
	db := c.getDB(tx)
	var lessons []*models.Lesson
	err := db.WithContext(ctx).
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("course_modules.course_id = ?", courseID).
		Order("course_modules.position ASC, lessons.position ASC, lessons.id ASC").
		Find(&lessons).Error
	if err != nil {
		return nil, err
	}
	return lessons, nil
}

func (c *ContentTreePostgreSQL) GetLessonsByModule(ctx context.Context, tx *gorm.DB, moduleID uint) ([]*models.Lesson, error) {
	db := c.getDB(tx)
	var lessons []*models.Lesson
	err := db.WithContext(ctx).
		Where("module_id = ?", moduleID).
		Order("position ASC, id ASC").
		Find(&lessons).Error
	if err != nil {
		return nil, err
	}
	return lessons, nil
}

func (c *ContentTreePostgreSQL) GetBlock(ctx context.Context, tx *gorm.DB, id uint) (*models.ContentBlock, error) {
	db := c.getDB(tx)
	var block models.ContentBlock
	if err := db.WithContext(ctx).First(&block, id).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *ContentTreePostgreSQL) GetBlockWithLesson(ctx context.Context, tx *gorm.DB, id uint) (*models.ContentBlock, error) {
	db := c.getDB(tx)
	var block models.ContentBlock
	if err := db.WithContext(ctx).
		Preload("Lesson").
		Preload("Lesson.Module").
		First(&block, id).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *ContentTreePostgreSQL) GetBlockByQuizID(ctx context.Context, tx *gorm.DB, quizID uint) (*models.ContentBlock, error) {
	db := c.getDB(tx)
	var block models.ContentBlock
	if err := db.WithContext(ctx).
		Where("type = ? AND payload->>'quiz_id' = ?", models.BlockQuiz, fmt.Sprintf("%d", quizID)).
		First(&block).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *ContentTreePostgreSQL) GetBlocksByLesson(ctx context.Context, tx *gorm.DB, lessonID uint) ([]*models.ContentBlock, error) {
	db := c.getDB(tx)
	var blocks []*models.ContentBlock
	err := db.WithContext(ctx).
		Where("lesson_id = ?", lessonID).
		Order("position ASC, id ASC").
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (c *ContentTreePostgreSQL) GetRequiredBlockIDsByLesson(ctx context.Context, tx *gorm.DB, lessonID uint) ([]uint, error) {
	db := c.getDB(tx)
	var ids []uint
	err := db.WithContext(ctx).
		Model(&models.ContentBlock{}).
		Where("lesson_id = ? AND required = ?", lessonID, true).
		Order("position ASC, id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *ContentTreePostgreSQL) CountRequiredBlocks(ctx context.Context, tx *gorm.DB, lessonID uint) (int64, error) {
	db := c.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ContentBlock{}).
		Where("lesson_id = ? AND required = ?", lessonID, true).
		Count(&count).Error
	return count, err
}

func (c *ContentTreePostgreSQL) GetCourseIDForBlock(ctx context.Context, tx *gorm.DB, blockID uint) (uint, error) {
	db := c.getDB(tx)
	var courseID uint
	err := db.WithContext(ctx).
		Model(&models.ContentBlock{}).
		Select("course_modules.course_id").
		Joins("JOIN lessons ON lessons.id = content_blocks.lesson_id").
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("content_blocks.id = ?", blockID).
		Scan(&courseID).Error
	if err != nil {
		return 0, err
	}
	if courseID == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return courseID, nil
}

func (c *ContentTreePostgreSQL) GetCourseIDForLesson(ctx context.Context, tx *gorm.DB, lessonID uint) (uint, error) {
	db := c.getDB(tx)
	var courseID uint
	err := db.WithContext(ctx).
		Model(&models.Lesson{}).
		Select("course_modules.course_id").
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("lessons.id = ?", lessonID).
		Scan(&courseID).Error
	if err != nil {
		return 0, err
	}
	if courseID == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return courseID, nil
}
