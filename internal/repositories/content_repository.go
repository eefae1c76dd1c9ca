package repositories

import (
	"context"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"gorm.io/gorm"
)

// ContentTreeRepository reads the course containment tree. The tree is
// owned by the authoring service; nothing here writes it.
type ContentTreeRepository interface {
	// Course level
	GetCourse(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error)
	GetCourseTree(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) // modules, lessons, blocks preloaded in position order
	GetCourseTotals(ctx context.Context, tx *gorm.DB, id uint) (*CourseTotals, error)

	// Module / lesson level
	GetModule(ctx context.Context, tx *gorm.DB, id uint) (*models.CourseModule, error)
	GetLesson(ctx context.Context, tx *gorm.DB, id uint) (*models.Lesson, error)
	GetLessonsByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Lesson, error)
	GetLessonsByModule(ctx context.Context, tx *gorm.DB, moduleID uint) ([]*models.Lesson, error)

	// Block level
	GetBlock(ctx context.Context, tx *gorm.DB, id uint) (*models.ContentBlock, error)
	GetBlockWithLesson(ctx context.Context, tx *gorm.DB, id uint) (*models.ContentBlock, error)
	GetBlockByQuizID(ctx context.Context, tx *gorm.DB, quizID uint) (*models.ContentBlock, error)
	GetBlocksByLesson(ctx context.Context, tx *gorm.DB, lessonID uint) ([]*models.ContentBlock, error)
	GetRequiredBlockIDsByLesson(ctx context.Context, tx *gorm.DB, lessonID uint) ([]uint, error)
	CountRequiredBlocks(ctx context.Context, tx *gorm.DB, lessonID uint) (int64, error)

	// Resolution helpers
	GetCourseIDForBlock(ctx context.Context, tx *gorm.DB, blockID uint) (uint, error)
	GetCourseIDForLesson(ctx context.Context, tx *gorm.DB, lessonID uint) (uint, error)
}
