package repositories

import (
	"context"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"gorm.io/gorm"
)

// QuizRepository reads quiz definitions. Authoring owns the rows.
type QuizRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	GetWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	GetQuestion(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizQuestion, error)
	GetQuestionsByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.QuizQuestion, error)
	CountQuestions(ctx context.Context, tx *gorm.DB, quizID uint) (int64, error)
	GetStats(ctx context.Context, tx *gorm.DB, quizID uint) (*QuizStats, error)
}

// AttemptRepository manages quiz attempt rows.
type AttemptRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error

	// Attempt-limit queries
	CountByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int64, error)
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.QuizAttempt, error)

	// Listing
	ListByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)
	ListByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)

	// Multi-attempt grade resolution
	ListGradedByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) ([]*models.QuizAttempt, error)

	// Reset support
	DeleteByEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID uint) (int64, error)
}

// AnswerRepository manages per-(attempt, question) answer rows.
type AnswerRepository interface {
	// Upsert keyed on (attempt_id, question_id); re-submission before
	// grading overwrites the stored answer.
	Upsert(ctx context.Context, tx *gorm.DB, answer *models.QuestionAnswer) error
	Update(ctx context.Context, tx *gorm.DB, answer *models.QuestionAnswer) error
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuestionAnswer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.QuestionAnswer, error)
	CountUngraded(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error)
}
