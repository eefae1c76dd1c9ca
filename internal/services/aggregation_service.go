package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/cache"
	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"gorm.io/gorm"
)

type aggregationService struct {
	repo         repositories.Repository
	db           *gorm.DB
	logger       *slog.Logger
	publisher    events.EventPublisher
	cacheManager *cache.CacheManager
}

func NewAggregationService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	publisher events.EventPublisher,
	cacheManager *cache.CacheManager,
) AggregationService {
	return &aggregationService{
		repo:         repo,
		db:           db,
		logger:       logger,
		publisher:    publisher,
		cacheManager: cacheManager,
	}
}

// AggregateFromBlock cascades one block completion upward. The enrollment row
// is locked for the duration so concurrent completions of sibling blocks
// serialize instead of racing on the cached counters. Every step is an
// insert-if-absent, so redelivered events settle to the same state.
func (s *aggregationService) AggregateFromBlock(ctx context.Context, userID string, blockID, enrollmentID uint) error {
	block, err := s.repo.ContentTree().GetBlockWithLesson(ctx, nil, blockID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// Block deleted after the event was emitted; nothing to cascade.
			s.logger.Warn("aggregation skipped, block no longer exists", "block_id", blockID)
			return nil
		}
		return fmt.Errorf("failed to get block: %w", err)
	}

	courseID, err := s.repo.ContentTree().GetCourseIDForBlock(ctx, nil, blockID)
	if err != nil {
		return fmt.Errorf("failed to resolve course for block %d: %w", blockID, err)
	}

	var courseJustCompleted bool
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		enrollment, txErr := txRepo.Enrollment().GetByUserAndCourseForUpdate(ctx, nil, userID, courseID)
		if txErr != nil {
			if repositories.IsNotFoundError(txErr) {
				// A completion event references a course the user is not
				// enrolled in. That is corrupted state, not a stale message;
				// it must reach the worker's error path, not the drop path.
				return NewDomainError("aggregate progress",
					fmt.Errorf("enrollment missing for user %s in course %d (block %d)", userID, courseID, blockID))
			}
			return txErr
		}

		lessonCompleted, txErr := s.cascadeLesson(ctx, txRepo, userID, enrollment.ID, block.LessonID)
		if txErr != nil {
			return txErr
		}
		if lessonCompleted {
			if txErr = s.cascadeModule(ctx, txRepo, userID, enrollment.ID, block.LessonID); txErr != nil {
				return txErr
			}
		}

		courseJustCompleted, txErr = s.refreshEnrollmentCache(ctx, txRepo, enrollment)
		return txErr
	})
	if err != nil {
		return err
	}

	if courseJustCompleted {
		s.publishCourseCompleted(ctx, userID, courseID)
	}
	cache.InvalidateProgressCache(ctx, s.cacheManager, userID, courseID)
	return nil
}

// cascadeLesson marks the lesson complete when every required block in it is
// complete. Returns whether the lesson is complete after the check.
func (s *aggregationService) cascadeLesson(ctx context.Context, txRepo repositories.Repository, userID string, enrollmentID, lessonID uint) (bool, error) {
	requiredIDs, err := txRepo.ContentTree().GetRequiredBlockIDsByLesson(ctx, nil, lessonID)
	if err != nil {
		return false, fmt.Errorf("failed to get required blocks: %w", err)
	}

	completedIDs, err := txRepo.BlockProgress().CompletedBlockIDsInLesson(ctx, nil, userID, lessonID)
	if err != nil {
		return false, fmt.Errorf("failed to get completed blocks: %w", err)
	}
	if len(requiredIDs) == 0 {
		// No required blocks: any completed block finishes the lesson.
		if len(completedIDs) == 0 {
			return false, nil
		}
	} else {
		completed := uintSet(completedIDs)
		for _, id := range requiredIDs {
			if !completed[id] {
				return false, nil
			}
		}
	}

	created, err := txRepo.Completion().MarkLessonComplete(ctx, nil, &models.LessonCompletion{
		UserID:       userID,
		LessonID:     lessonID,
		EnrollmentID: enrollmentID,
		CompletedAt:  time.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark lesson complete: %w", err)
	}
	if created {
		s.logger.Info("lesson completed", "user_id", userID, "lesson_id", lessonID)
	}
	return true, nil
}

// cascadeModule marks the lesson's parent module complete when all of the
// module's lessons carry a completion record.
func (s *aggregationService) cascadeModule(ctx context.Context, txRepo repositories.Repository, userID string, enrollmentID, lessonID uint) error {
	lesson, err := txRepo.ContentTree().GetLesson(ctx, nil, lessonID)
	if err != nil {
		return fmt.Errorf("failed to get lesson: %w", err)
	}

	siblings, err := txRepo.ContentTree().GetLessonsByModule(ctx, nil, lesson.ModuleID)
	if err != nil {
		return fmt.Errorf("failed to get module lessons: %w", err)
	}
	for _, sibling := range siblings {
		done, err := txRepo.Completion().LessonCompleted(ctx, nil, userID, sibling.ID)
		if err != nil {
			return fmt.Errorf("failed to check lesson completion: %w", err)
		}
		if !done {
			return nil
		}
	}

	created, err := txRepo.Completion().MarkModuleComplete(ctx, nil, &models.ModuleCompletion{
		UserID:       userID,
		ModuleID:     lesson.ModuleID,
		EnrollmentID: enrollmentID,
		CompletedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to mark module complete: %w", err)
	}
	if created {
		s.logger.Info("module completed", "user_id", userID, "module_id", lesson.ModuleID)
	}
	return nil
}

// refreshEnrollmentCache recomputes the denormalized counters from the
// completion records and reports a false-to-true course transition.
func (s *aggregationService) refreshEnrollmentCache(ctx context.Context, txRepo repositories.Repository, enrollment *models.Enrollment) (bool, error) {
	totals, err := txRepo.ContentTree().GetCourseTotals(ctx, nil, enrollment.CourseID)
	if err != nil {
		return false, fmt.Errorf("failed to get course totals: %w", err)
	}
	completed, err := txRepo.Completion().CountCompletedLessons(ctx, nil, enrollment.UserID, enrollment.CourseID)
	if err != nil {
		return false, fmt.Errorf("failed to count completed lessons: %w", err)
	}

	update := buildCacheUpdate(int(completed), totals.LessonCount, enrollment.CompletedAt)
	if err := txRepo.Enrollment().UpdateProgressCache(ctx, nil, enrollment.ID, update); err != nil {
		return false, fmt.Errorf("failed to update progress cache: %w", err)
	}
	return update.IsCompleted && !enrollment.IsCompleted, nil
}

// RecomputeCourse rebuilds the whole completion cascade for one enrollment
// from raw block progress. Used after backfills and content restructuring;
// it only ever adds completion records.
func (s *aggregationService) RecomputeCourse(ctx context.Context, userID string, courseID uint) error {
	course, err := s.repo.ContentTree().GetCourseTree(ctx, nil, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrCourseNotFound
		}
		return fmt.Errorf("failed to get course tree: %w", err)
	}

	var courseJustCompleted bool
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		enrollment, txErr := txRepo.Enrollment().GetByUserAndCourseForUpdate(ctx, nil, userID, courseID)
		if txErr != nil {
			if repositories.IsNotFoundError(txErr) {
				return ErrEnrollmentNotFound
			}
			return txErr
		}

		progressRows, txErr := txRepo.BlockProgress().ListByUserAndCourse(ctx, nil, userID, courseID)
		if txErr != nil {
			return txErr
		}
		completedBlocks := make(map[uint]bool, len(progressRows))
		for _, row := range progressRows {
			if row.IsCompleted {
				completedBlocks[row.BlockID] = true
			}
		}

		now := time.Now()
		for i := range course.Modules {
			module := &course.Modules[i]
			moduleComplete := len(module.Lessons) > 0
			for j := range module.Lessons {
				lesson := &module.Lessons[j]
				if !lessonSatisfied(lesson, completedBlocks) {
					moduleComplete = false
					continue
				}
				if _, txErr = txRepo.Completion().MarkLessonComplete(ctx, nil, &models.LessonCompletion{
					UserID:       userID,
					LessonID:     lesson.ID,
					EnrollmentID: enrollment.ID,
					CompletedAt:  now,
				}); txErr != nil {
					return txErr
				}
			}
			if moduleComplete {
				if _, txErr = txRepo.Completion().MarkModuleComplete(ctx, nil, &models.ModuleCompletion{
					UserID:       userID,
					ModuleID:     module.ID,
					EnrollmentID: enrollment.ID,
					CompletedAt:  now,
				}); txErr != nil {
					return txErr
				}
			}
		}

		courseJustCompleted, txErr = s.refreshEnrollmentCache(ctx, txRepo, enrollment)
		return txErr
	})
	if err != nil {
		return err
	}

	if courseJustCompleted {
		s.publishCourseCompleted(ctx, userID, courseID)
	}
	cache.InvalidateProgressCache(ctx, s.cacheManager, userID, courseID)
	return nil
}

// SyncCourseTotals re-syncs every enrollment's cached denominators against
// the current course structure.
func (s *aggregationService) SyncCourseTotals(ctx context.Context, courseID uint) error {
	totals, err := s.repo.ContentTree().GetCourseTotals(ctx, nil, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrCourseNotFound
		}
		return fmt.Errorf("failed to get course totals: %w", err)
	}

	filters := repositories.EnrollmentFilters{Limit: contentChangePageSize}
	for offset := 0; ; offset += contentChangePageSize {
		filters.Offset = offset
		enrollments, _, listErr := s.repo.Enrollment().ListByCourse(ctx, nil, courseID, filters)
		if listErr != nil {
			return fmt.Errorf("failed to list enrollments: %w", listErr)
		}
		if len(enrollments) == 0 {
			break
		}
		for _, enrollment := range enrollments {
			err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
				completed, txErr := txRepo.Completion().CountCompletedLessons(ctx, nil, enrollment.UserID, courseID)
				if txErr != nil {
					return txErr
				}
				update := buildCacheUpdate(int(completed), totals.LessonCount, enrollment.CompletedAt)
				return txRepo.Enrollment().UpdateProgressCache(ctx, nil, enrollment.ID, update)
			})
			if err != nil {
				s.logger.Error("failed to sync enrollment totals",
					"enrollment_id", enrollment.ID, "error", err)
			}
		}
		if len(enrollments) < contentChangePageSize {
			break
		}
	}
	return nil
}

func lessonSatisfied(lesson *models.Lesson, completedBlocks map[uint]bool) bool {
	required, anyDone := 0, false
	for i := range lesson.Blocks {
		block := &lesson.Blocks[i]
		if completedBlocks[block.ID] {
			anyDone = true
		}
		if !block.Required {
			continue
		}
		required++
		if !completedBlocks[block.ID] {
			return false
		}
	}
	// Lessons without required blocks finish on any completed block.
	return required > 0 || anyDone
}

func (s *aggregationService) publishCourseCompleted(ctx context.Context, userID string, courseID uint) {
	if s.publisher == nil {
		return
	}
	event := events.NewEvent("progress.course_completed", events.CourseCompletedEvent{
		UserID:      userID,
		CourseID:    courseID,
		CompletedAt: time.Now().UTC(),
	})
	if err := s.publisher.Publish(ctx, events.TopicCourseCompleted, event); err != nil {
		s.logger.Error("failed to publish course completed event", "error", err)
	}
	s.logger.Info("course completed", "user_id", userID, "course_id", courseID)
}
