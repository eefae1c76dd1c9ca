package services

import (
	"context"
	"testing"

	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/models"
)

func courseTree() *models.Course {
	// M1: L1 (B1, B2), L2 (B3); M2: L3 (B4)
	return &models.Course{
		ID: 1,
		Modules: []models.CourseModule{
			{
				ID: 1,
				Lessons: []models.Lesson{
					{ID: 1, Title: "L1", Blocks: []models.ContentBlock{
						{ID: 1, Type: models.BlockVideo, Required: true},
						{ID: 2, Type: models.BlockRichText, Required: true},
					}},
					{ID: 2, Title: "L2", Blocks: []models.ContentBlock{
						{ID: 3, Type: models.BlockQuiz, Required: true},
					}},
				},
			},
			{
				ID: 2,
				Lessons: []models.Lesson{
					{ID: 3, Title: "L3", Blocks: []models.ContentBlock{
						{ID: 4, Type: models.BlockPDF, Required: true},
					}},
				},
			},
		},
	}
}

func completedProgress(blockIDs ...uint) []*models.BlockProgress {
	rows := make([]*models.BlockProgress, 0, len(blockIDs))
	for _, id := range blockIDs {
		rows = append(rows, &models.BlockProgress{BlockID: id, IsCompleted: true})
	}
	return rows
}

func TestResolveResumePoint(t *testing.T) {
	currentBlock := uint(2)
	tests := []struct {
		name        string
		enrollment  *models.Enrollment
		course      *models.Course
		progress    []*models.BlockProgress
		wantState   models.ResumeState
		wantBlockID uint
		wantIsStart bool
	}{
		{
			name:        "fresh learner starts at first block",
			enrollment:  &models.Enrollment{},
			course:      courseTree(),
			wantState:   models.ResumeAtBlock,
			wantBlockID: 1,
			wantIsStart: true,
		},
		{
			name:        "first incomplete block after completed lesson",
			enrollment:  &models.Enrollment{},
			course:      courseTree(),
			progress:    completedProgress(1, 2),
			wantState:   models.ResumeAtBlock,
			wantBlockID: 3,
		},
		{
			name:        "incomplete block within started lesson",
			enrollment:  &models.Enrollment{},
			course:      courseTree(),
			progress:    completedProgress(1),
			wantState:   models.ResumeAtBlock,
			wantBlockID: 2,
		},
		{
			name:        "tracked current block wins while incomplete",
			enrollment:  &models.Enrollment{CurrentBlockID: &currentBlock},
			course:      courseTree(),
			progress:    completedProgress(1),
			wantState:   models.ResumeAtBlock,
			wantBlockID: 2,
		},
		{
			name:        "completed current block forwards to next incomplete",
			enrollment:  &models.Enrollment{CurrentBlockID: &currentBlock},
			course:      courseTree(),
			progress:    completedProgress(1, 2),
			wantState:   models.ResumeAtBlock,
			wantBlockID: 3,
		},
		{
			name:       "everything complete",
			enrollment: &models.Enrollment{},
			course:     courseTree(),
			progress:   completedProgress(1, 2, 3, 4),
			wantState:  models.ResumeComplete,
		},
		{
			name:       "empty course",
			enrollment: &models.Enrollment{},
			course:     &models.Course{ID: 9},
			wantState:  models.ResumeEmpty,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveResumePoint(tt.enrollment, tt.course, tt.progress)
			if got.State != tt.wantState {
				t.Fatalf("state = %v, want %v", got.State, tt.wantState)
			}
			if tt.wantState != models.ResumeAtBlock {
				return
			}
			if got.BlockID == nil || *got.BlockID != tt.wantBlockID {
				t.Errorf("block = %v, want %d", got.BlockID, tt.wantBlockID)
			}
			if got.IsStart != tt.wantIsStart {
				t.Errorf("isStart = %v, want %v", got.IsStart, tt.wantIsStart)
			}
		})
	}
}

func TestBuildCacheUpdate(t *testing.T) {
	tests := []struct {
		name          string
		completed     int
		total         int
		wantPercent   float64
		wantCompleted bool
	}{
		{name: "zero total", completed: 0, total: 0, wantPercent: 0},
		{name: "halfway", completed: 2, total: 4, wantPercent: 50},
		{name: "done", completed: 3, total: 3, wantPercent: 100, wantCompleted: true},
		{name: "shrunk course over-complete", completed: 5, total: 4, wantPercent: 125, wantCompleted: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update := buildCacheUpdate(tt.completed, tt.total, nil)
			if update.PercentCompleted != tt.wantPercent {
				t.Errorf("percent = %v, want %v", update.PercentCompleted, tt.wantPercent)
			}
			if update.IsCompleted != tt.wantCompleted {
				t.Errorf("isCompleted = %v, want %v", update.IsCompleted, tt.wantCompleted)
			}
			if tt.wantCompleted && update.CompletedAt == nil {
				t.Error("completedAt must be set on completion")
			}
			if !tt.wantCompleted && update.CompletedAt != nil {
				t.Error("completedAt must stay nil while incomplete")
			}
		})
	}
}

func TestBuildCacheUpdate_PreservesCompletedAt(t *testing.T) {
	first := buildCacheUpdate(3, 3, nil)
	if first.CompletedAt == nil {
		t.Fatal("expected completedAt on first completion")
	}
	second := buildCacheUpdate(3, 3, first.CompletedAt)
	if second.CompletedAt != first.CompletedAt {
		t.Error("completedAt must be sticky across recomputation")
	}
}

func TestClampTimeDelta(t *testing.T) {
	tests := []struct {
		name  string
		delta int
		want  int
	}{
		{name: "negative", delta: -5, want: 0},
		{name: "normal", delta: 30, want: 30},
		{name: "over cap", delta: 100000, want: 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampTimeDelta(tt.delta); got != tt.want {
				t.Errorf("clampTimeDelta(%d) = %d, want %d", tt.delta, got, tt.want)
			}
		})
	}
}

func TestLessonSatisfied(t *testing.T) {
	lesson := &models.Lesson{Blocks: []models.ContentBlock{
		{ID: 1, Required: true},
		{ID: 2, Required: false},
		{ID: 3, Required: true},
	}}
	optionalOnly := &models.Lesson{Blocks: []models.ContentBlock{
		{ID: 4, Required: false},
	}}

	tests := []struct {
		name      string
		lesson    *models.Lesson
		completed map[uint]bool
		want      bool
	}{
		{name: "all required done", lesson: lesson, completed: map[uint]bool{1: true, 3: true}, want: true},
		{name: "one required missing", lesson: lesson, completed: map[uint]bool{1: true, 2: true}, want: false},
		{name: "optional-only lesson needs activity", lesson: optionalOnly, completed: map[uint]bool{}, want: false},
		{name: "optional-only lesson with activity", lesson: optionalOnly, completed: map[uint]bool{4: true}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lessonSatisfied(tt.lesson, tt.completed); got != tt.want {
				t.Errorf("lessonSatisfied() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeartbeat_CompletionIsMonotonic(t *testing.T) {
	fix := newServiceFixture(courseTree())
	fix.repo.addEnrollment("u-1", 1)
	ctx := context.Background()

	req := &HeartbeatRequest{BlockID: 2, TimeDelta: 30, Completed: boolPtr(true)}
	first, err := fix.progress.Heartbeat(ctx, req, "u-1")
	if err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if !first.IsCompleted || !first.JustCompleted {
		t.Errorf("first heartbeat: IsCompleted=%v JustCompleted=%v, want true/true",
			first.IsCompleted, first.JustCompleted)
	}
	if first.TimeSpentSeconds != 30 {
		t.Errorf("TimeSpentSeconds = %d, want 30", first.TimeSpentSeconds)
	}

	// Redelivering the same heartbeat accumulates time but must not flip
	// the completion transition a second time.
	second, err := fix.progress.Heartbeat(ctx, req, "u-1")
	if err != nil {
		t.Fatalf("second Heartbeat() error = %v", err)
	}
	if !second.IsCompleted {
		t.Error("completion must be monotonic, second heartbeat reported incomplete")
	}
	if second.JustCompleted {
		t.Error("second heartbeat must not report JustCompleted")
	}
	if second.TimeSpentSeconds != 60 {
		t.Errorf("TimeSpentSeconds = %d, want 60", second.TimeSpentSeconds)
	}

	completed := fix.publisher.EventsOfType("progress.block_completed")
	if len(completed) != 1 {
		t.Fatalf("expected 1 block_completed event, got %d", len(completed))
	}
	data, ok := completed[0].Data.(events.BlockCompletedEvent)
	if !ok {
		t.Fatalf("unexpected event payload %T", completed[0].Data)
	}
	if data.BlockType != string(models.BlockRichText) {
		t.Errorf("event block_type = %q, want %q", data.BlockType, models.BlockRichText)
	}
	if got := len(fix.publisher.EventsOfType("progress.aggregation_requested")); got != 1 {
		t.Errorf("expected 1 aggregation request, got %d", got)
	}
}

func TestHeartbeat_QuizBlockIgnoresClientCompletedFlag(t *testing.T) {
	fix := newServiceFixture(courseTree())
	fix.repo.addEnrollment("u-1", 1)
	ctx := context.Background()

	// Block 3 is a quiz; only a passing attempt may complete it.
	res, err := fix.progress.Heartbeat(ctx, &HeartbeatRequest{
		BlockID:   3,
		TimeDelta: 30,
		Completed: boolPtr(true),
	}, "u-1")
	if err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if res.IsCompleted || res.JustCompleted {
		t.Errorf("quiz block completed via heartbeat flag: IsCompleted=%v JustCompleted=%v",
			res.IsCompleted, res.JustCompleted)
	}
	if res.TimeSpentSeconds != 30 {
		t.Errorf("TimeSpentSeconds = %d, want 30", res.TimeSpentSeconds)
	}
	if got := len(fix.publisher.EventsOfType("progress.block_completed")); got != 0 {
		t.Errorf("expected no block_completed events, got %d", got)
	}
}

func TestResetProgress_ClearsAllRecords(t *testing.T) {
	fix := newServiceFixture(courseTree())
	enrollment := fix.repo.addEnrollment("u-1", 1)
	ctx := context.Background()

	for _, blockID := range []uint{1, 2} {
		_ = fix.repo.BlockProgress().Create(ctx, nil, &models.BlockProgress{
			UserID:       "u-1",
			BlockID:      blockID,
			EnrollmentID: enrollment.ID,
			IsCompleted:  true,
		})
	}
	_, _ = fix.repo.Completion().MarkLessonComplete(ctx, nil, &models.LessonCompletion{
		UserID: "u-1", LessonID: 1, EnrollmentID: enrollment.ID,
	})
	_, _ = fix.repo.Completion().MarkModuleComplete(ctx, nil, &models.ModuleCompletion{
		UserID: "u-1", ModuleID: 1, EnrollmentID: enrollment.ID,
	})
	enrollmentID := enrollment.ID
	_ = fix.repo.Attempt().Create(ctx, nil, &models.QuizAttempt{
		UserID: "u-1", QuizID: 5, EnrollmentID: &enrollmentID,
		AttemptNumber: 1, Status: models.AttemptGraded,
	})
	enrollment.PercentCompleted = 33.3
	enrollment.CachedCompletedLessons = 1

	result, err := fix.progress.ResetProgress(ctx, &ResetProgressRequest{
		UserID: "u-1", CourseID: 1,
	}, "t-1")
	if err != nil {
		t.Fatalf("ResetProgress() error = %v", err)
	}

	if result.BlocksCleared != 2 || result.LessonsCleared != 1 ||
		result.ModulesCleared != 1 || result.QuizAttemptsCleared != 1 {
		t.Errorf("unexpected reset counts %+v", result)
	}
	if len(fix.repo.blockProgress) != 0 || len(fix.repo.lessonDone) != 0 ||
		len(fix.repo.moduleDone) != 0 || len(fix.repo.attempts) != 0 {
		t.Error("reset left progress records behind")
	}
	if enrollment.PercentCompleted != 0 || enrollment.IsCompleted ||
		enrollment.CachedCompletedLessons != 0 {
		t.Errorf("enrollment cache not reset: %+v", enrollment)
	}
	if enrollment.CachedTotalLessons != 3 {
		t.Errorf("CachedTotalLessons = %d, want 3", enrollment.CachedTotalLessons)
	}
	if got := len(fix.publisher.EventsOfType("progress.reset")); got != 1 {
		t.Errorf("expected 1 reset event, got %d", got)
	}
}

func TestHandleContentChange_SyncsEnrollmentTotals(t *testing.T) {
	fix := newServiceFixture(courseTree())
	done := fix.repo.addEnrollment("u-1", 1)
	fresh := fix.repo.addEnrollment("u-2", 1)
	ctx := context.Background()

	_, _ = fix.repo.Completion().MarkLessonComplete(ctx, nil, &models.LessonCompletion{
		UserID: "u-1", LessonID: 1, EnrollmentID: done.ID,
	})

	if err := fix.progress.HandleContentChange(ctx, &ContentChangeRequest{CourseID: 1}); err != nil {
		t.Fatalf("HandleContentChange() error = %v", err)
	}

	if done.CachedTotalLessons != 3 || done.CachedCompletedLessons != 1 {
		t.Errorf("synced enrollment = %d/%d lessons, want 1/3",
			done.CachedCompletedLessons, done.CachedTotalLessons)
	}
	if fresh.CachedTotalLessons != 3 || fresh.CachedCompletedLessons != 0 {
		t.Errorf("fresh enrollment = %d/%d lessons, want 0/3",
			fresh.CachedCompletedLessons, fresh.CachedTotalLessons)
	}
}

func TestRecomputeProgress_RebuildsCascade(t *testing.T) {
	fix := newServiceFixture(courseTree())
	enrollment := fix.repo.addEnrollment("u-1", 1)
	ctx := context.Background()

	// Raw block progress exists but the cascade records were lost.
	for _, blockID := range []uint{1, 2} {
		_ = fix.repo.BlockProgress().Create(ctx, nil, &models.BlockProgress{
			UserID:       "u-1",
			BlockID:      blockID,
			EnrollmentID: enrollment.ID,
			IsCompleted:  true,
		})
	}

	err := fix.progress.RecomputeProgress(ctx, &RecomputeProgressRequest{
		UserID: "u-1", CourseID: 1,
	})
	if err != nil {
		t.Fatalf("RecomputeProgress() error = %v", err)
	}

	lessonDone, _ := fix.repo.Completion().LessonCompleted(ctx, nil, "u-1", 1)
	if !lessonDone {
		t.Error("lesson 1 not marked complete after recompute")
	}
	moduleDone, _ := fix.repo.Completion().ModuleCompleted(ctx, nil, "u-1", 1)
	if moduleDone {
		t.Error("module 1 marked complete with lesson 2 unfinished")
	}
	if enrollment.CachedCompletedLessons != 1 || enrollment.CachedTotalLessons != 3 {
		t.Errorf("enrollment cache = %d/%d lessons, want 1/3",
			enrollment.CachedCompletedLessons, enrollment.CachedTotalLessons)
	}
}
