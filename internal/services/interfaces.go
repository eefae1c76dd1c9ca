package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/SAP-F-2025/progress-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type HeartbeatRequest = validator.HeartbeatRequest
type CompleteBlockRequest = validator.CompleteBlockRequest
type ResetProgressRequest = validator.ResetProgressRequest
type ContentChangeRequest = validator.ContentChangeRequest
type RecomputeProgressRequest = validator.RecomputeProgressRequest

type HeartbeatResponse struct {
	BlockID          uint    `json:"block_id"`
	IsCompleted      bool    `json:"is_completed"`
	JustCompleted    bool    `json:"just_completed"`
	TimeSpentSeconds int     `json:"time_spent_seconds"`
	CoursePercent    float64 `json:"course_percent"`
}

type CompleteBlockResponse struct {
	BlockID       uint    `json:"block_id"`
	IsCompleted   bool    `json:"is_completed"`
	JustCompleted bool    `json:"just_completed"`
	CoursePercent float64 `json:"course_percent"`
}

type CourseProgressResponse struct {
	*models.CourseProgressSnapshot
	Modules []*ModuleProgress `json:"modules"`
}

type ModuleProgress struct {
	ModuleID    uint              `json:"module_id"`
	Title       string            `json:"title"`
	IsCompleted bool              `json:"is_completed"`
	Lessons     []*LessonProgress `json:"lessons"`
}

type LessonProgress struct {
	LessonID        uint                  `json:"lesson_id"`
	Title           string                `json:"title"`
	IsCompleted     bool                  `json:"is_completed"`
	CompletedBlocks int                   `json:"completed_blocks"`
	RequiredBlocks  int                   `json:"required_blocks"`
	Blocks          []*models.BlockStatus `json:"blocks,omitempty"`
}

// ===== QUIZ ATTEMPT DTOs =====

// Use business validator types
type StartAttemptRequest = validator.StartAttemptRequest
type SubmitAnswerRequest = validator.SubmitAnswerRequest
type SubmitAttemptRequest = validator.SubmitAttemptRequest
type GradeEssayRequest = validator.GradeEssayRequest

type AttemptResponse struct {
	*models.QuizAttempt
	CanSubmit         bool                 `json:"can_submit"`
	RemainingAttempts int                  `json:"remaining_attempts"` // -1 means unlimited
	Questions         []QuestionForAttempt `json:"questions,omitempty"`
}

// QuestionForAttempt is a learner-facing projection: the answer key is never
// serialized and option order follows the per-attempt shuffle.
type QuestionForAttempt struct {
	ID       uint                   `json:"id"`
	Type     models.QuestionType    `json:"type"`
	Content  map[string]interface{} `json:"content"`
	Points   float64                `json:"points"`
	Position int                    `json:"position"`
	IsFirst  bool                   `json:"is_first"`
	IsLast   bool                   `json:"is_last"`
}

type AttemptListResponse struct {
	Attempts []*models.QuizAttempt `json:"attempts"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	Size     int                   `json:"size"`
}

type GradingResult struct {
	QuestionID uint    `json:"question_id"`
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
	IsCorrect  *bool   `json:"is_correct"`
	IsGraded   bool    `json:"is_graded"`
	Feedback   *string `json:"feedback,omitempty"`
}

type AttemptGradingResult struct {
	AttemptID     uint                 `json:"attempt_id"`
	Score         float64              `json:"score"`
	MaxScore      float64              `json:"max_score"`
	Passed        bool                 `json:"passed"`
	Status        models.AttemptStatus `json:"status"`
	PendingManual int                  `json:"pending_manual"`
	Results       []GradingResult      `json:"results"`
	GradedAt      time.Time            `json:"graded_at"`
}

// QuizResultResponse is the learner's effective result after applying the
// quiz's grading method over all graded attempts.
type QuizResultResponse struct {
	QuizID        uint                 `json:"quiz_id"`
	UserID        string               `json:"user_id"`
	Score         float64              `json:"score"`
	MaxScore      float64              `json:"max_score"`
	Passed        bool                 `json:"passed"`
	GradingMethod models.GradingMethod `json:"grading_method"`
	AttemptCount  int                  `json:"attempt_count"`
	BestAttemptID uint                 `json:"attempt_id"`
}

// ===== REPORT DTOs =====

type CourseProgressReport struct {
	CourseID uint                              `json:"course_id"`
	Stats    *repositories.CourseProgressStats `json:"stats"`
	Rows     []*models.StudentProgressRow      `json:"rows"`
	Total    int64                             `json:"total"`
}

type QuizResultsReport struct {
	QuizID   uint                    `json:"quiz_id"`
	Stats    *repositories.QuizStats `json:"stats"`
	Attempts []*models.QuizAttempt   `json:"attempts"`
	Total    int64                   `json:"total"`
}

// ===== SERVICE INTERFACES =====

type ProgressService interface {
	// Heartbeat records watch/read time for a block and evaluates completion
	// rules for the block's type. Completion is monotonic: a completed block
	// never reverts outside of ResetProgress.
	Heartbeat(ctx context.Context, req *HeartbeatRequest, userID string) (*HeartbeatResponse, error)

	// CompleteBlock explicitly marks a non-quiz block complete (e.g. the
	// learner clicked "mark as done" on a file download).
	CompleteBlock(ctx context.Context, req *CompleteBlockRequest, userID string) (*CompleteBlockResponse, error)

	GetCourseProgress(ctx context.Context, courseID uint, userID string) (*CourseProgressResponse, error)
	GetLessonProgress(ctx context.Context, lessonID uint, userID string) (*LessonProgress, error)
	GetResumePoint(ctx context.Context, courseID uint, userID string) (*models.ResumePoint, error)

	// ResetProgress wipes all progress (blocks, lessons, modules, quiz
	// attempts) for an enrollment. Admin/teacher only.
	ResetProgress(ctx context.Context, req *ResetProgressRequest, requestedBy string) (*models.ResetProgressResult, error)

	// HandleContentChange re-syncs cached denominators for every enrollment
	// of a course after its structure changed.
	HandleContentChange(ctx context.Context, req *ContentChangeRequest) error

	// RecomputeProgress rebuilds one enrollment's completion cascade from
	// raw block progress. Admin/teacher backfill tool.
	RecomputeProgress(ctx context.Context, req *RecomputeProgressRequest) error
}

type AggregationService interface {
	// AggregateFromBlock cascades a block completion upward: lesson, module,
	// course, and the enrollment's cached counters, in one transaction.
	AggregateFromBlock(ctx context.Context, userID string, blockID, enrollmentID uint) error

	// RecomputeCourse rebuilds lesson/module/course completion for one
	// enrollment from raw block progress rows.
	RecomputeCourse(ctx context.Context, userID string, courseID uint) error

	SyncCourseTotals(ctx context.Context, courseID uint) error
}

type AttemptService interface {
	Start(ctx context.Context, req *StartAttemptRequest, userID string) (*AttemptResponse, error)
	GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	SubmitAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest, userID string) error
	Submit(ctx context.Context, req *SubmitAttemptRequest, userID string) (*AttemptGradingResult, error)
	GradeEssay(ctx context.Context, req *GradeEssayRequest, graderID string) (*GradingResult, error)

	// Regrade re-runs automatic grading over stored answers, keeping manual
	// essay scores. Teacher/admin only.
	Regrade(ctx context.Context, attemptID uint, graderID string) (*AttemptGradingResult, error)
	ListByUserAndQuiz(ctx context.Context, quizID uint, userID string, filters repositories.AttemptFilters) (*AttemptListResponse, error)
	GetQuizResult(ctx context.Context, quizID uint, userID string) (*QuizResultResponse, error)
}

type ReportService interface {
	GetCourseProgressReport(ctx context.Context, courseID uint, filters repositories.EnrollmentFilters) (*CourseProgressReport, error)
	ExportCourseProgressXLSX(ctx context.Context, courseID uint) ([]byte, error)
	GetQuizResults(ctx context.Context, quizID uint, filters repositories.AttemptFilters) (*QuizResultsReport, error)
}
