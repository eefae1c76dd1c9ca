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

type QuizPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuizPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuizPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuizPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := q.getDB(tx)

	var quiz models.Quiz
	if tx != nil {
		if err := db.WithContext(ctx).First(&quiz, id).Error; err != nil {
			return nil, err
		}
		return &quiz, nil
	}

	cacheKey := fmt.Sprintf("id:%d", id)
	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizCacheConfig.TTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		if err := db.WithContext(ctx).First(&dbQuiz, id).Error; err != nil {
			return nil, fmt.Errorf("failed to get quiz: %w", err)
		}
		return &dbQuiz, nil
	})
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) GetWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := q.getDB(tx)
	var quiz models.Quiz
	err := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&quiz, id).Error
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) GetQuestion(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizQuestion, error) {
	db := q.getDB(tx)
	var question models.QuizQuestion
	if err := db.WithContext(ctx).First(&question, id).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (q *QuizPostgreSQL) GetQuestionsByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.QuizQuestion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := q.getDB(tx)
	var questions []*models.QuizQuestion
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (q *QuizPostgreSQL) CountQuestions(ctx context.Context, tx *gorm.DB, quizID uint) (int64, error) {
	db := q.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.QuizQuestion{}).
		Where("quiz_id = ?", quizID).
		Count(&count).Error
	return count, err
}

func (q *QuizPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.QuizStats, error) {
	db := q.getDB(tx)
	stats := &repositories.QuizStats{}

	row := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Select("COUNT(*) AS total_attempts, "+
			"COUNT(*) FILTER (WHERE status IN ('submitted', 'graded')) AS submitted_attempts, "+
			"COALESCE(AVG(score) FILTER (WHERE status = 'graded'), 0) AS average_score, "+
			"COALESCE(AVG(CASE WHEN passed THEN 1.0 ELSE 0.0 END) FILTER (WHERE status = 'graded'), 0) AS pass_rate").
		Where("quiz_id = ?", quizID).
		Row()

	if err := row.Scan(&stats.TotalAttempts, &stats.SubmittedAttempts, &stats.AverageScore, &stats.PassRate); err != nil {
		return nil, err
	}

	return stats, nil
}
