package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/SAP-F-2025/progress-service/internal/validator"
)

const contentChangePageSize = 200

func boolPtr(b bool) *bool { return &b }

// clampTimeDelta bounds one heartbeat's reported seconds. The validator
// rejects out-of-range requests already; this keeps internal callers honest.
func clampTimeDelta(delta int) int {
	if delta < 0 {
		return 0
	}
	if delta > validator.MaxHeartbeatDelta {
		return validator.MaxHeartbeatDelta
	}
	return delta
}

// ===== EVENT PUBLISHING =====

func (s *progressService) publishEvent(ctx context.Context, topic string, event *events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		// Event delivery is best effort; progress state is already durable.
		s.logger.Error("failed to publish event", "topic", topic, "error", err)
	}
}

func (s *progressService) publishActivity(ctx context.Context, userID string, courseID, blockID uint, delta int) {
	s.publishEvent(ctx, events.TopicActivityRecorded, events.NewEvent("activity.recorded", events.ActivityRecordedEvent{
		UserID:    userID,
		CourseID:  courseID,
		BlockID:   blockID,
		TimeDelta: delta,
	}))
}

func (s *progressService) publishBlockCompleted(ctx context.Context, userID string, courseID uint, block *models.ContentBlock, enrollmentID uint) {
	s.publishEvent(ctx, events.TopicBlockCompleted, events.NewEvent("progress.block_completed", events.BlockCompletedEvent{
		UserID:      userID,
		CourseID:    courseID,
		LessonID:    block.LessonID,
		BlockID:     block.ID,
		BlockType:   string(block.Type),
		CompletedAt: time.Now().UTC(),
	}))
	s.publishEvent(ctx, events.TopicAggregationRequested, events.NewEvent("progress.aggregation_requested", events.AggregationRequestedEvent{
		UserID:       userID,
		CourseID:     courseID,
		LessonID:     block.LessonID,
		BlockID:      block.ID,
		EnrollmentID: enrollmentID,
	}))
}

// ===== CACHE UPDATE MATH =====

// buildCacheUpdate derives the enrollment cache fields from the completed
// lesson count. completed_at is set once on the first transition to complete
// and preserved afterwards.
func buildCacheUpdate(completed, total int, existingCompletedAt *time.Time) repositories.ProgressCacheUpdate {
	update := repositories.ProgressCacheUpdate{
		CompletedLessons: completed,
		TotalLessons:     total,
	}
	if total > 0 {
		update.PercentCompleted = 100 * float64(completed) / float64(total)
		update.IsCompleted = completed >= total
	}
	if update.IsCompleted {
		if existingCompletedAt != nil {
			update.CompletedAt = existingCompletedAt
		} else {
			now := time.Now()
			update.CompletedAt = &now
		}
	}
	return update
}

// ===== READ MODEL BUILDERS =====

func progressByBlockID(rows []*models.BlockProgress) map[uint]*models.BlockProgress {
	m := make(map[uint]*models.BlockProgress, len(rows))
	for _, row := range rows {
		m[row.BlockID] = row
	}
	return m
}

func uintSet(ids []uint) map[uint]bool {
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func blockStatus(block *models.ContentBlock, progress *models.BlockProgress) *models.BlockStatus {
	status := &models.BlockStatus{
		BlockID:   block.ID,
		BlockType: block.Type,
	}
	if progress == nil {
		return status
	}
	status.IsCompleted = progress.IsCompleted
	status.TimeSpentSeconds = progress.TimeSpentSeconds
	status.LastAccessedAt = &progress.LastAccessedAt
	if len(progress.ResumeData) > 0 {
		var resume map[string]interface{}
		if err := json.Unmarshal(progress.ResumeData, &resume); err == nil {
			status.ResumeData = resume
		}
	}
	return status
}

func buildCourseProgress(
	enrollment *models.Enrollment,
	course *models.Course,
	progressRows []*models.BlockProgress,
	completedLessonIDs []uint,
) *CourseProgressResponse {
	progressMap := progressByBlockID(progressRows)
	lessonDone := uintSet(completedLessonIDs)

	modules := make([]*ModuleProgress, 0, len(course.Modules))
	for i := range course.Modules {
		module := &course.Modules[i]
		mp := &ModuleProgress{
			ModuleID:    module.ID,
			Title:       module.Title,
			IsCompleted: len(module.Lessons) > 0,
			Lessons:     make([]*LessonProgress, 0, len(module.Lessons)),
		}
		for j := range module.Lessons {
			lesson := &module.Lessons[j]
			lp := &LessonProgress{
				LessonID:    lesson.ID,
				Title:       lesson.Title,
				IsCompleted: lessonDone[lesson.ID],
			}
			for k := range lesson.Blocks {
				block := &lesson.Blocks[k]
				status := blockStatus(block, progressMap[block.ID])
				lp.Blocks = append(lp.Blocks, status)
				if block.Required {
					lp.RequiredBlocks++
					if status.IsCompleted {
						lp.CompletedBlocks++
					}
				}
			}
			if !lp.IsCompleted {
				mp.IsCompleted = false
			}
			mp.Lessons = append(mp.Lessons, lp)
		}
		modules = append(modules, mp)
	}

	return &CourseProgressResponse{
		CourseProgressSnapshot: &models.CourseProgressSnapshot{
			CourseID:               enrollment.CourseID,
			UserID:                 enrollment.UserID,
			PercentCompleted:       enrollment.PercentCompleted,
			IsCompleted:            enrollment.IsCompleted,
			CompletedAt:            enrollment.CompletedAt,
			CachedCompletedLessons: enrollment.CachedCompletedLessons,
			CachedTotalLessons:     enrollment.CachedTotalLessons,
			LastAccessedAt:         enrollment.LastAccessedAt,
		},
		Modules: modules,
	}
}

func buildLessonProgress(
	lesson *models.Lesson,
	blocks []*models.ContentBlock,
	progressRows []*models.BlockProgress,
	completed bool,
) *LessonProgress {
	progressMap := progressByBlockID(progressRows)
	lp := &LessonProgress{
		LessonID:    lesson.ID,
		Title:       lesson.Title,
		IsCompleted: completed,
	}
	for _, block := range blocks {
		status := blockStatus(block, progressMap[block.ID])
		lp.Blocks = append(lp.Blocks, status)
		if block.Required {
			lp.RequiredBlocks++
			if status.IsCompleted {
				lp.CompletedBlocks++
			}
		}
	}
	return lp
}

// ===== RESUME RESOLUTION =====

func resumePointForBlock(module *models.CourseModule, lesson *models.Lesson, block *models.ContentBlock, isStart bool) *models.ResumePoint {
	blockID := block.ID
	blockType := block.Type
	lessonID := lesson.ID
	lessonTitle := lesson.Title
	moduleID := module.ID
	return &models.ResumePoint{
		State:       models.ResumeAtBlock,
		BlockID:     &blockID,
		BlockType:   &blockType,
		LessonID:    &lessonID,
		LessonTitle: &lessonTitle,
		ModuleID:    &moduleID,
		IsStart:     isStart,
	}
}

// resolveResumePoint picks the next block for the learner: the explicitly
// tracked current block when it still exists, otherwise the first incomplete
// block in tree order.
func resolveResumePoint(
	enrollment *models.Enrollment,
	course *models.Course,
	progressRows []*models.BlockProgress,
) *models.ResumePoint {
	progressMap := progressByBlockID(progressRows)

	hasBlocks := false
	var firstIncomplete *models.ResumePoint
	var current *models.ResumePoint

	for i := range course.Modules {
		module := &course.Modules[i]
		for j := range module.Lessons {
			lesson := &module.Lessons[j]
			for k := range lesson.Blocks {
				block := &lesson.Blocks[k]
				hasBlocks = true

				progress := progressMap[block.ID]
				// The tracked current block only wins while it is still
				// incomplete; a finished block forwards to the next one.
				if enrollment.CurrentBlockID != nil && *enrollment.CurrentBlockID == block.ID &&
					(progress == nil || !progress.IsCompleted) {
					current = resumePointForBlock(module, lesson, block, false)
				}
				if firstIncomplete == nil && (progress == nil || !progress.IsCompleted) {
					firstIncomplete = resumePointForBlock(module, lesson, block, len(progressRows) == 0)
				}
			}
		}
	}

	if !hasBlocks {
		return &models.ResumePoint{State: models.ResumeEmpty}
	}
	if current != nil {
		return current
	}
	if firstIncomplete != nil {
		return firstIncomplete
	}
	return &models.ResumePoint{State: models.ResumeComplete}
}
