package services

import (
	"context"
	"errors"
	"testing"

	"github.com/SAP-F-2025/progress-service/internal/models"
)

func seedCompletedBlocks(t *testing.T, fix *serviceFixture, enrollmentID uint, blockIDs ...uint) {
	t.Helper()
	ctx := context.Background()
	for _, blockID := range blockIDs {
		err := fix.repo.BlockProgress().Create(ctx, nil, &models.BlockProgress{
			UserID:       "u-1",
			BlockID:      blockID,
			EnrollmentID: enrollmentID,
			IsCompleted:  true,
		})
		if err != nil {
			t.Fatalf("seed block %d: %v", blockID, err)
		}
	}
}

func TestAggregateFromBlock_Idempotent(t *testing.T) {
	fix := newServiceFixture(courseTree())
	enrollment := fix.repo.addEnrollment("u-1", 1)
	ctx := context.Background()

	// Lesson 1 is fully complete; redelivery of the same event must settle
	// to the same state instead of stacking completions.
	seedCompletedBlocks(t, fix, enrollment.ID, 1, 2)

	for i := 0; i < 2; i++ {
		if err := fix.aggregation.AggregateFromBlock(ctx, "u-1", 2, enrollment.ID); err != nil {
			t.Fatalf("AggregateFromBlock() run %d error = %v", i+1, err)
		}
	}

	if len(fix.repo.lessonDone) != 1 {
		t.Errorf("expected 1 lesson completion, got %d", len(fix.repo.lessonDone))
	}
	moduleDone, _ := fix.repo.Completion().ModuleCompleted(ctx, nil, "u-1", 1)
	if moduleDone {
		t.Error("module 1 complete with lesson 2 unfinished")
	}
	if enrollment.CachedCompletedLessons != 1 || enrollment.CachedTotalLessons != 3 {
		t.Errorf("enrollment cache = %d/%d lessons, want 1/3",
			enrollment.CachedCompletedLessons, enrollment.CachedTotalLessons)
	}
	if enrollment.IsCompleted {
		t.Error("course marked complete at 1/3 lessons")
	}
}

func TestAggregateFromBlock_CourseCompletionPublishesOnce(t *testing.T) {
	fix := newServiceFixture(courseTree())
	enrollment := fix.repo.addEnrollment("u-1", 1)
	ctx := context.Background()

	seedCompletedBlocks(t, fix, enrollment.ID, 1, 2, 3, 4)
	for _, blockID := range []uint{2, 3, 4, 4} {
		if err := fix.aggregation.AggregateFromBlock(ctx, "u-1", blockID, enrollment.ID); err != nil {
			t.Fatalf("AggregateFromBlock(%d) error = %v", blockID, err)
		}
	}

	if !enrollment.IsCompleted || enrollment.CompletedAt == nil {
		t.Error("course not marked complete with every lesson done")
	}
	if enrollment.PercentCompleted != 100 {
		t.Errorf("PercentCompleted = %v, want 100", enrollment.PercentCompleted)
	}
	if got := len(fix.publisher.EventsOfType("progress.course_completed")); got != 1 {
		t.Errorf("expected exactly 1 course_completed event, got %d", got)
	}
}

func TestAggregateFromBlock_MissingEnrollmentIsDomainError(t *testing.T) {
	fix := newServiceFixture(courseTree())
	ctx := context.Background()

	err := fix.aggregation.AggregateFromBlock(ctx, "ghost", 2, 99)
	if err == nil {
		t.Fatal("expected an error for a completion without an enrollment")
	}
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Errorf("error = %v, want *DomainError", err)
	}
	// The violation must not look like a stale not-found, or the worker
	// would quietly drop it.
	if IsNotFoundError(err) {
		t.Error("missing enrollment classified as not-found")
	}
}
