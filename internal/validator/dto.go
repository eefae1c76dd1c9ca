package validator

// HeartbeatRequest reports viewing activity for a single content block.
// TimeDelta is the seconds elapsed since the previous heartbeat; the
// service clamps it server-side, the tag rejects obvious garbage early.
type HeartbeatRequest struct {
	BlockID         uint                   `json:"block_id" validate:"required"`
	TimeDelta       int                    `json:"time_delta" validate:"required,heartbeat_delta"`
	Completed       *bool                  `json:"completed"`
	ResumeData      map[string]interface{} `json:"resume_data" validate:"omitempty"`
	InteractionData map[string]interface{} `json:"interaction_data" validate:"omitempty"`
}

// CompleteBlockRequest explicitly marks a block complete, used by block
// types whose completion is driven by a learner action (read confirm).
type CompleteBlockRequest struct {
	BlockID uint `json:"block_id" validate:"required"`
}

// ResetProgressRequest wipes a learner's progress in a course so they can
// start over. Instructor/admin only.
type ResetProgressRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	CourseID uint   `json:"course_id" validate:"required"`
}

// ContentChangeRequest notifies the service that a course's structure was
// edited so cached totals can be re-synced.
type ContentChangeRequest struct {
	CourseID uint `json:"course_id" validate:"required"`
}

// RecomputeProgressRequest rebuilds one enrollment's completion cascade from
// raw block progress. Instructor/admin backfill tool.
type RecomputeProgressRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	CourseID uint   `json:"course_id" validate:"required"`
}

// StartAttemptRequest begins (or resumes) a quiz attempt.
type StartAttemptRequest struct {
	QuizID uint `json:"quiz_id" validate:"required"`
}

// SubmitAnswerRequest saves a single answer within an attempt.
type SubmitAnswerRequest struct {
	QuestionID uint        `json:"question_id" validate:"required"`
	Answer     interface{} `json:"answer" validate:"required"`
}

// SubmitAttemptRequest finalizes an attempt. Answers included here are
// merged over previously saved drafts before grading.
type SubmitAttemptRequest struct {
	AttemptID uint                  `json:"attempt_id" validate:"required"`
	Answers   []SubmitAnswerRequest `json:"answers" validate:"omitempty,dive"`
}

// GradeEssayRequest records an instructor's rubric scores for a manually
// graded answer.
type GradeEssayRequest struct {
	AttemptID       uint               `json:"attempt_id" validate:"required"`
	QuestionID      uint               `json:"question_id" validate:"required"`
	CriterionScores map[string]float64 `json:"criterion_scores" validate:"required,min=1"`
	Feedback        *string            `json:"feedback" validate:"omitempty,max=2000"`
}
