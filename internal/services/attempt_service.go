package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/cache"
	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/SAP-F-2025/progress-service/internal/validator"
	"gorm.io/gorm"
)

type attemptService struct {
	repo         repositories.Repository
	db           *gorm.DB
	logger       *slog.Logger
	validator    *validator.Validator
	publisher    events.EventPublisher
	cacheManager *cache.CacheManager
}

func NewAttemptService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	cacheManager *cache.CacheManager,
) AttemptService {
	return &attemptService{
		repo:         repo,
		db:           db,
		logger:       logger,
		validator:    validator,
		publisher:    publisher,
		cacheManager: cacheManager,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, userID string) (*AttemptResponse, error) {
	s.logger.Info("Starting quiz attempt", "quiz_id", req.QuizID, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	quiz, err := s.repo.Quiz().GetWithQuestions(ctx, nil, req.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	// An open attempt is resumed instead of burning a new attempt number.
	active, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, userID, req.QuizID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if active != nil {
		s.logger.Info("Resuming existing attempt", "attempt_id", active.ID)
		return s.buildAttemptResponse(ctx, quiz, active, true)
	}

	count, err := s.repo.Attempt().CountByUserAndQuiz(ctx, nil, userID, req.QuizID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if verrs := s.validator.ValidateAttemptStart(int(count), quiz.MaxAttempts); verrs.HasErrors() {
		return nil, ErrAttemptLimitExceeded
	}

	enrollmentID := s.resolveEnrollmentID(ctx, userID, req.QuizID)

	var attempt *models.QuizAttempt
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt = &models.QuizAttempt{
			QuizID:        req.QuizID,
			UserID:        userID,
			EnrollmentID:  enrollmentID,
			AttemptNumber: int(count) + 1,
			Status:        models.AttemptInProgress,
			StartedAt:     time.Now(),
		}
		if txErr := txRepo.Attempt().Create(ctx, nil, attempt); txErr != nil {
			return txErr
		}

		// The paper is drawn from a seed derived from the attempt id, so
		// the same order can be re-derived for replay and audit.
		order := drawQuestionOrder(quiz, attempt.ID)
		raw, txErr := json.Marshal(order)
		if txErr != nil {
			return fmt.Errorf("failed to encode question order: %w", txErr)
		}
		attempt.QuestionOrder = raw
		attempt.MaxScore = maxScoreFor(quiz, order)
		return txRepo.Attempt().Update(ctx, nil, attempt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("Attempt created",
		"attempt_id", attempt.ID,
		"attempt_number", attempt.AttemptNumber,
		"questions", len(attempt.QuestionIDs()))

	return s.buildAttemptResponse(ctx, quiz, attempt, true)
}

func (s *attemptService) GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDWithAnswers(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if err := s.checkAttemptAccess(ctx, attempt, userID); err != nil {
		return nil, err
	}

	quiz, err := s.repo.Quiz().GetWithQuestions(ctx, nil, attempt.QuizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return s.buildAttemptResponse(ctx, quiz, attempt, attempt.Status == models.AttemptInProgress)
}

func (s *attemptService) SubmitAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest, userID string) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return NewPermissionError(userID, attemptID, "attempt", "answer", "attempt belongs to another user")
	}
	if attempt.Status != models.AttemptInProgress {
		return ErrAttemptNotActive
	}
	if !attempt.HasQuestion(req.QuestionID) {
		return ErrQuestionNotInAttempt
	}

	raw, err := json.Marshal(req.Answer)
	if err != nil {
		return fmt.Errorf("failed to encode answer: %w", err)
	}
	answer := &models.QuestionAnswer{
		AttemptID:  attemptID,
		QuestionID: req.QuestionID,
		Answer:     raw,
	}
	if err := s.repo.Answer().Upsert(ctx, nil, answer); err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

func (s *attemptService) Submit(ctx context.Context, req *SubmitAttemptRequest, userID string) (*AttemptGradingResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, req.AttemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, req.AttemptID, "attempt", "submit", "attempt belongs to another user")
	}
	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptAlreadySubmitted
	}

	questions, err := s.repo.Quiz().GetQuestionsByIDs(ctx, nil, attempt.QuestionIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	var result *AttemptGradingResult
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		// Merge any answers sent with the final submission over drafts.
		for _, ans := range req.Answers {
			if !attempt.HasQuestion(ans.QuestionID) {
				return ErrQuestionNotInAttempt
			}
			raw, txErr := json.Marshal(ans.Answer)
			if txErr != nil {
				return fmt.Errorf("failed to encode answer: %w", txErr)
			}
			if txErr := txRepo.Answer().Upsert(ctx, nil, &models.QuestionAnswer{
				AttemptID:  attempt.ID,
				QuestionID: ans.QuestionID,
				Answer:     raw,
			}); txErr != nil {
				return txErr
			}
		}

		answers, txErr := txRepo.Answer().GetByAttempt(ctx, nil, attempt.ID)
		if txErr != nil {
			return txErr
		}

		var gradeErr error
		result, gradeErr = s.gradeAttempt(ctx, txRepo, attempt, questions, answers)
		return gradeErr
	})
	if err != nil {
		return nil, err
	}

	if result.Status == models.AttemptGraded {
		s.finalizeGradedAttempt(ctx, attempt, result)
	}
	return result, nil
}

// GradeEssay records an instructor's rubric scores for one essay answer and
// finalizes the attempt once nothing is left ungraded.
func (s *attemptService) GradeEssay(ctx context.Context, req *GradeEssayRequest, graderID string) (*GradingResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.checkGraderRole(ctx, graderID); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, req.AttemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.Status == models.AttemptInProgress {
		return nil, NewBusinessRuleError("grade_unsubmitted", "attempt has not been submitted yet")
	}
	if attempt.Status == models.AttemptGraded {
		return nil, ErrAnswerAlreadyGraded
	}

	question, err := s.repo.Quiz().GetQuestion(ctx, nil, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if !question.Type.RequiresManualGrading() {
		return nil, ErrNotManuallyGradable
	}

	rubric, err := rubricFor(question)
	if err != nil {
		return nil, err
	}
	if verrs := s.validator.ValidateRubricScores(req.CriterionScores, rubric); verrs.HasErrors() {
		return nil, verrs
	}

	score := clampRubricScore(req.CriterionScores, rubric, question.Points)

	var (
		result    *GradingResult
		finalized *AttemptGradingResult
	)
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		answer, txErr := txRepo.Answer().GetByAttemptAndQuestion(ctx, nil, req.AttemptID, req.QuestionID)
		if txErr != nil {
			if repositories.IsNotFoundError(txErr) {
				return ErrAnswerNotFound
			}
			return txErr
		}

		correct := score >= question.Points
		answer.Score = score
		answer.IsCorrect = &correct
		answer.IsGraded = true
		answer.Feedback = req.Feedback
		if txErr = txRepo.Answer().Update(ctx, nil, answer); txErr != nil {
			return txErr
		}

		result = &GradingResult{
			QuestionID: question.ID,
			Score:      score,
			MaxScore:   question.Points,
			IsCorrect:  &correct,
			IsGraded:   true,
			Feedback:   req.Feedback,
		}
		finalized, txErr = s.maybeFinalizeAttempt(ctx, txRepo, attempt)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if finalized != nil {
		s.finalizeGradedAttempt(ctx, attempt, finalized)
	}
	s.logger.Info("essay graded",
		"attempt_id", req.AttemptID,
		"question_id", req.QuestionID,
		"score", score,
		"grader_id", graderID)
	return result, nil
}

// ===== QUERIES =====

func (s *attemptService) ListByUserAndQuiz(ctx context.Context, quizID uint, userID string, filters repositories.AttemptFilters) (*AttemptListResponse, error) {
	attempts, total, err := s.repo.Attempt().ListByUserAndQuiz(ctx, nil, userID, quizID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	size := filters.Limit
	if size <= 0 {
		size = len(attempts)
	}
	page := 1
	if size > 0 {
		page = filters.Offset/size + 1
	}
	return &AttemptListResponse{
		Attempts: attempts,
		Total:    total,
		Page:     page,
		Size:     size,
	}, nil
}

// Regrade re-runs automatic grading over an attempt's stored answers, e.g.
// after an answer key was corrected. Manually graded essay scores are kept
// as-is; ungraded essays keep the attempt in submitted state.
func (s *attemptService) Regrade(ctx context.Context, attemptID uint, graderID string) (*AttemptGradingResult, error) {
	if err := s.checkGraderRole(ctx, graderID); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.Status == models.AttemptInProgress {
		return nil, NewBusinessRuleError("regrade_unsubmitted", "attempt has not been submitted yet")
	}

	questions, err := s.repo.Quiz().GetQuestionsByIDs(ctx, nil, attempt.QuestionIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	questionByID := make(map[uint]*models.QuizQuestion, len(questions))
	for _, q := range questions {
		questionByID[q.ID] = q
	}

	var result *AttemptGradingResult
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		answers, txErr := txRepo.Answer().GetByAttempt(ctx, nil, attempt.ID)
		if txErr != nil {
			return txErr
		}

		result = &AttemptGradingResult{AttemptID: attempt.ID, GradedAt: time.Now()}
		for _, answer := range answers {
			question, ok := questionByID[answer.QuestionID]
			if !ok {
				continue
			}
			result.MaxScore += question.Points

			if question.Type.RequiresManualGrading() {
				// Rubric scores stand; only count what is still ungraded.
				if !answer.IsGraded {
					result.PendingManual++
					result.Results = append(result.Results, GradingResult{
						QuestionID: answer.QuestionID,
						MaxScore:   question.Points,
					})
					continue
				}
				result.Score += answer.Score
				result.Results = append(result.Results, GradingResult{
					QuestionID: answer.QuestionID,
					Score:      answer.Score,
					MaxScore:   question.Points,
					IsCorrect:  answer.IsCorrect,
					IsGraded:   true,
					Feedback:   answer.Feedback,
				})
				continue
			}

			ratio, correct, gradeErr := gradeAnswerPayload(question, answer.Answer)
			if gradeErr != nil {
				s.logger.Warn("failed to regrade answer, scoring zero",
					"attempt_id", attempt.ID, "question_id", answer.QuestionID, "error", gradeErr)
				ratio, correct = 0, false
			}
			answer.Score = ratio * question.Points
			answer.IsCorrect = &correct
			answer.IsGraded = true
			if txErr := txRepo.Answer().Update(ctx, nil, answer); txErr != nil {
				return fmt.Errorf("failed to save regraded answer: %w", txErr)
			}

			result.Score += answer.Score
			isCorrect := correct
			result.Results = append(result.Results, GradingResult{
				QuestionID: answer.QuestionID,
				Score:      answer.Score,
				MaxScore:   question.Points,
				IsCorrect:  &isCorrect,
				IsGraded:   true,
			})
		}

		attempt.Score = result.Score
		attempt.MaxScore = result.MaxScore
		if result.PendingManual == 0 {
			attempt.Status = models.AttemptGraded
			attempt.Passed = result.MaxScore > 0 && result.Score/result.MaxScore >= s.passingRatio(ctx, attempt.QuizID)
		} else {
			attempt.Status = models.AttemptSubmitted
			attempt.Passed = false
		}
		result.Status = attempt.Status
		result.Passed = attempt.Passed

		return txRepo.Attempt().Update(ctx, nil, attempt)
	})
	if err != nil {
		return nil, err
	}

	if result.Status == models.AttemptGraded {
		s.finalizeGradedAttempt(ctx, attempt, result)
	}
	return result, nil
}

// GetQuizResult folds all graded attempts into the learner's effective score
// using the quiz's grading method.
func (s *attemptService) GetQuizResult(ctx context.Context, quizID uint, userID string) (*QuizResultResponse, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	attempts, err := s.repo.Attempt().ListGradedByUserAndQuiz(ctx, nil, userID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to list graded attempts: %w", err)
	}
	if len(attempts) == 0 {
		return nil, ErrAttemptNotFound
	}

	score, maxScore, attemptID := resolveEffectiveScore(quiz.GradingMethod, attempts)
	passed := maxScore > 0 && score/maxScore >= quiz.PassingRatio

	return &QuizResultResponse{
		QuizID:        quizID,
		UserID:        userID,
		Score:         score,
		MaxScore:      maxScore,
		Passed:        passed,
		GradingMethod: quiz.GradingMethod,
		AttemptCount:  len(attempts),
		BestAttemptID: attemptID,
	}, nil
}
