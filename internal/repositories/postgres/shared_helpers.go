package postgres

import (
	"context"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"gorm.io/gorm"
)

// SharedHelpers contains common database operations
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// CountAttemptsByUser counts attempts by a learner for a quiz
func (h *SharedHelpers) CountAttemptsByUser(ctx context.Context, quizID uint, userID string) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Count(&count).Error
	return count, err
}

// CountAttemptsByStatus counts attempts by status
func (h *SharedHelpers) CountAttemptsByStatus(ctx context.Context, quizID uint, status models.AttemptStatus) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ? AND status = ?", quizID, status).
		Count(&count).Error
	return count, err
}

// GetQuizBasicInfo gets the quiz fields needed for attempt gating
func (h *SharedHelpers) GetQuizBasicInfo(ctx context.Context, quizID uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := h.db.WithContext(ctx).
		Select("id, max_attempts, passing_ratio, questions_count, shuffle_questions, grading_method").
		First(&quiz, quizID).Error
	return &quiz, err
}

// ApplyAttemptFilters applies common filters to attempt queries
func (h *SharedHelpers) ApplyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

// ApplyEnrollmentFilters applies common filters to enrollment queries
func (h *SharedHelpers) ApplyEnrollmentFilters(query *gorm.DB, filters repositories.EnrollmentFilters) *gorm.DB {
	if filters.IsCompleted != nil {
		query = query.Where("is_completed = ?", *filters.IsCompleted)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

// ApplyPaginationAndSort applies pagination and sorting with SQL injection protection
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	// Whitelist allowed sort columns
	allowedSortColumns := map[string]bool{
		"created_at":        true,
		"updated_at":        true,
		"id":                true,
		"status":            true,
		"score":             true,
		"percent_completed": true,
		"last_accessed_at":  true,
		"started_at":        true,
		"submitted_at":      true,
	}

	// Validate and set sort column
	if sortBy == "" || !allowedSortColumns[sortBy] {
		sortBy = "created_at"
	}

	// Validate and set sort order
	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}

// AttemptValidation is the result of an attempt-eligibility check
type AttemptValidation struct {
	CanStart bool   `json:"can_start"`
	Reason   string `json:"reason,omitempty"`
}

// ValidateAttemptEligibility checks if a learner can start a new attempt
func (h *SharedHelpers) ValidateAttemptEligibility(ctx context.Context, quizID uint, userID string) (*AttemptValidation, error) {
	validation := &AttemptValidation{CanStart: true}

	quiz, err := h.GetQuizBasicInfo(ctx, quizID)
	if err != nil {
		return nil, err
	}

	// Check max attempts; zero means unlimited
	if quiz.MaxAttempts > 0 {
		attemptCount, err := h.CountAttemptsByUser(ctx, quizID, userID)
		if err != nil {
			return nil, err
		}
		if attemptCount >= int64(quiz.MaxAttempts) {
			validation.CanStart = false
			validation.Reason = "Maximum attempts reached"
			return validation, nil
		}
	}

	return validation, nil
}

// GetRemainingAttempts calculates remaining attempts for a learner; -1
// means unlimited
func (h *SharedHelpers) GetRemainingAttempts(ctx context.Context, quizID uint, userID string) (int, error) {
	quiz, err := h.GetQuizBasicInfo(ctx, quizID)
	if err != nil {
		return 0, err
	}

	if quiz.MaxAttempts == 0 {
		return -1, nil
	}

	attemptCount, err := h.CountAttemptsByUser(ctx, quizID, userID)
	if err != nil {
		return 0, err
	}

	remaining := quiz.MaxAttempts - int(attemptCount)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
