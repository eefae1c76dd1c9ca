package postgres

import (
	"context"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB, _ *redis.Client) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

func (a *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// Upsert keyed on (attempt_id, question_id): re-answering a question
// before grading replaces the stored answer and clears any prior grade.
func (a *AnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, answer *models.QuestionAnswer) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"answer", "score", "is_correct", "is_graded", "feedback", "updated_at",
			}),
		}).
		Create(answer).Error
}

func (a *AnswerPostgreSQL) Update(ctx context.Context, tx *gorm.DB, answer *models.QuestionAnswer) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Save(answer).Error
}

func (a *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuestionAnswer, error) {
	db := a.getDB(tx)
	var answers []*models.QuestionAnswer
	err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Find(&answers).Error
	if err != nil {
		return nil, err
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.QuestionAnswer, error) {
	db := a.getDB(tx)
	var answer models.QuestionAnswer
	err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) CountUngraded(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.QuestionAnswer{}).
		Where("attempt_id = ? AND is_graded = ?", attemptID, false).
		Count(&count).Error
	return count, err
}
