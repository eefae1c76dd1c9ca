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

type progressService struct {
	repo         repositories.Repository
	db           *gorm.DB
	logger       *slog.Logger
	validator    *validator.Validator
	publisher    events.EventPublisher
	strategies   *StrategyResolver
	cacheManager *cache.CacheManager
	aggregation  AggregationService
}

func NewProgressService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	cacheManager *cache.CacheManager,
	aggregation AggregationService,
) ProgressService {
	return &progressService{
		repo:         repo,
		db:           db,
		logger:       logger,
		validator:    validator,
		publisher:    publisher,
		strategies:   NewStrategyResolver(logger),
		cacheManager: cacheManager,
		aggregation:  aggregation,
	}
}

// ===== HEARTBEAT PATH =====

func (s *progressService) Heartbeat(ctx context.Context, req *HeartbeatRequest, userID string) (*HeartbeatResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	block, err := s.repo.ContentTree().GetBlockWithLesson(ctx, nil, req.BlockID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("failed to get block: %w", err)
	}

	courseID, err := s.repo.ContentTree().GetCourseIDForBlock(ctx, nil, req.BlockID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve course for block %d: %w", req.BlockID, err)
	}

	enrollment, err := s.repo.Enrollment().GetByUserAndCourse(ctx, nil, userID, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	explicit := req.Completed != nil && *req.Completed
	if block.Type == models.BlockQuiz {
		// Quiz blocks complete only through a passing attempt; a client
		// cannot claim one via the heartbeat flag.
		explicit = false
	}
	delta := clampTimeDelta(req.TimeDelta)

	var (
		progress      *models.BlockProgress
		justCompleted bool
	)
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		var txErr error
		progress, _, txErr = txRepo.BlockProgress().GetOrCreateForUpdate(ctx, nil, userID, block.ID, enrollment.ID)
		if txErr != nil {
			return txErr
		}

		now := time.Now()
		progress.TimeSpentSeconds += delta
		progress.LastAccessedAt = now

		wasCompleted := progress.IsCompleted
		signal := InteractionSignal(req.InteractionData)
		verdict := s.strategies.Evaluate(block, signal, progress.TimeSpentSeconds)

		// Monotonic OR: heartbeats never clear a completion.
		progress.IsCompleted = wasCompleted || explicit || verdict
		justCompleted = progress.IsCompleted && !wasCompleted
		if justCompleted {
			progress.CompletedAt = &now
		}

		if req.ResumeData != nil {
			raw, marshalErr := json.Marshal(req.ResumeData)
			if marshalErr != nil {
				return fmt.Errorf("failed to encode resume data: %w", marshalErr)
			}
			progress.ResumeData = raw
		}
		if req.InteractionData != nil {
			raw, marshalErr := json.Marshal(req.InteractionData)
			if marshalErr != nil {
				return fmt.Errorf("failed to encode interaction data: %w", marshalErr)
			}
			progress.InteractionData = raw
		}

		if txErr = txRepo.BlockProgress().Update(ctx, nil, progress); txErr != nil {
			return txErr
		}

		blockID := block.ID
		return txRepo.Enrollment().SetCurrentBlock(ctx, nil, enrollment.ID, &blockID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("heartbeat transaction failed: %w", err)
	}

	s.publishActivity(ctx, userID, courseID, block.ID, delta)
	if justCompleted {
		s.publishBlockCompleted(ctx, userID, courseID, block, enrollment.ID)
	}
	cache.InvalidateProgressCache(ctx, s.cacheManager, userID, courseID)

	return &HeartbeatResponse{
		BlockID:          block.ID,
		IsCompleted:      progress.IsCompleted,
		JustCompleted:    justCompleted,
		TimeSpentSeconds: progress.TimeSpentSeconds,
		CoursePercent:    enrollment.PercentCompleted,
	}, nil
}

func (s *progressService) CompleteBlock(ctx context.Context, req *CompleteBlockRequest, userID string) (*CompleteBlockResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	block, err := s.repo.ContentTree().GetBlockWithLesson(ctx, nil, req.BlockID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	if block.Type == models.BlockQuiz {
		return nil, NewBusinessRuleError("quiz_completion",
			"quiz blocks complete only through a passing attempt")
	}

	hb := &HeartbeatRequest{
		BlockID:   req.BlockID,
		TimeDelta: 1,
		Completed: boolPtr(true),
	}
	res, err := s.Heartbeat(ctx, hb, userID)
	if err != nil {
		return nil, err
	}
	return &CompleteBlockResponse{
		BlockID:       res.BlockID,
		IsCompleted:   res.IsCompleted,
		JustCompleted: res.JustCompleted,
		CoursePercent: res.CoursePercent,
	}, nil
}

// ===== READ MODELS =====

func (s *progressService) GetCourseProgress(ctx context.Context, courseID uint, userID string) (*CourseProgressResponse, error) {
	enrollment, err := s.repo.Enrollment().GetByUserAndCourse(ctx, nil, userID, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	course, err := s.repo.ContentTree().GetCourseTree(ctx, nil, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course tree: %w", err)
	}

	progressRows, err := s.repo.BlockProgress().ListByUserAndCourse(ctx, nil, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list block progress: %w", err)
	}
	completedLessons, err := s.repo.Completion().CompletedLessonIDs(ctx, nil, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lesson completions: %w", err)
	}

	return buildCourseProgress(enrollment, course, progressRows, completedLessons), nil
}

func (s *progressService) GetLessonProgress(ctx context.Context, lessonID uint, userID string) (*LessonProgress, error) {
	lesson, err := s.repo.ContentTree().GetLesson(ctx, nil, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}

	blocks, err := s.repo.ContentTree().GetBlocksByLesson(ctx, nil, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson blocks: %w", err)
	}
	progressRows, err := s.repo.BlockProgress().ListByUserAndLesson(ctx, nil, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list block progress: %w", err)
	}
	completed, err := s.repo.Completion().LessonCompleted(ctx, nil, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to check lesson completion: %w", err)
	}

	return buildLessonProgress(lesson, blocks, progressRows, completed), nil
}

func (s *progressService) GetResumePoint(ctx context.Context, courseID uint, userID string) (*models.ResumePoint, error) {
	enrollment, err := s.repo.Enrollment().GetByUserAndCourse(ctx, nil, userID, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	course, err := s.repo.ContentTree().GetCourseTree(ctx, nil, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course tree: %w", err)
	}

	progressRows, err := s.repo.BlockProgress().ListByUserAndCourse(ctx, nil, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list block progress: %w", err)
	}

	return resolveResumePoint(enrollment, course, progressRows), nil
}

// ===== RESET =====

func (s *progressService) ResetProgress(ctx context.Context, req *ResetProgressRequest, requestedBy string) (*models.ResetProgressResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	enrollment, err := s.repo.Enrollment().GetByUserAndCourse(ctx, nil, req.UserID, req.CourseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	totals, err := s.repo.ContentTree().GetCourseTotals(ctx, nil, req.CourseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get course totals: %w", err)
	}

	result := &models.ResetProgressResult{CourseID: req.CourseID}
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		blocks, txErr := txRepo.BlockProgress().DeleteByEnrollment(ctx, nil, enrollment.ID)
		if txErr != nil {
			return txErr
		}
		lessons, modules, txErr := txRepo.Completion().DeleteByEnrollment(ctx, nil, enrollment.ID)
		if txErr != nil {
			return txErr
		}
		attempts, txErr := txRepo.Attempt().DeleteByEnrollment(ctx, nil, enrollment.ID)
		if txErr != nil {
			return txErr
		}

		result.BlocksCleared = blocks
		result.LessonsCleared = lessons
		result.ModulesCleared = modules
		result.QuizAttemptsCleared = attempts

		return txRepo.Enrollment().ResetProgressCache(ctx, nil, enrollment.ID, totals.LessonCount)
	})
	if err != nil {
		return nil, fmt.Errorf("reset transaction failed: %w", err)
	}
	result.ResetAt = time.Now()

	s.logger.Info("progress reset",
		"user_id", req.UserID,
		"course_id", req.CourseID,
		"requested_by", requestedBy,
		"blocks_cleared", result.BlocksCleared,
		"attempts_cleared", result.QuizAttemptsCleared)

	s.publishEvent(ctx, events.TopicProgressReset, events.NewEvent("progress.reset", events.ProgressResetEvent{
		UserID:      req.UserID,
		CourseID:    req.CourseID,
		RequestedBy: requestedBy,
	}))
	cache.InvalidateProgressCache(ctx, s.cacheManager, req.UserID, req.CourseID)

	return result, nil
}

// ===== CONTENT CHANGE =====

func (s *progressService) HandleContentChange(ctx context.Context, req *ContentChangeRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	s.cacheManager.InvalidateCourseTree(ctx, req.CourseID)

	// Completion stays derived from the completion records, so shrinking a
	// course can flip learners to complete but never un-completes anyone.
	return s.aggregation.SyncCourseTotals(ctx, req.CourseID)
}

// RecomputeProgress rebuilds one enrollment's completion cascade from raw
// block progress. Instructor-triggered backfill for imported or repaired
// progress data.
func (s *progressService) RecomputeProgress(ctx context.Context, req *RecomputeProgressRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}
	return s.aggregation.RecomputeCourse(ctx, req.UserID, req.CourseID)
}
