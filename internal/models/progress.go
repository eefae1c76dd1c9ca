package models

import (
	"time"

	"gorm.io/datatypes"
)

// BlockProgress is the per-(user, block) tracking record, created on the first
// heartbeat and mutated only by the progress service.
//
// Invariants enforced by the service layer:
//   - TimeSpentSeconds is monotonically non-decreasing,
//   - IsCompleted never transitions true -> false outside an explicit reset.
type BlockProgress struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	UserID  string `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_block_progress_user_block"`
	BlockID uint   `json:"block_id" gorm:"not null;uniqueIndex:idx_block_progress_user_block;index"`

	// Denormalized for reset/aggregation queries scoped to one enrollment.
	EnrollmentID uint `json:"enrollment_id" gorm:"not null;index"`

	IsCompleted      bool       `json:"is_completed" gorm:"default:false;index"`
	TimeSpentSeconds int        `json:"time_spent_seconds" gorm:"default:0"`
	CompletedAt      *time.Time `json:"completed_at"`

	// Opaque client state (playback position, scroll offset). Replaced
	// wholesale on every heartbeat that carries it; never merged.
	ResumeData datatypes.JSON `json:"resume_data" gorm:"type:jsonb"`

	// Last interaction signal, kept for the evaluator and for audit.
	InteractionData datatypes.JSON `json:"interaction_data" gorm:"type:jsonb"`

	LastAccessedAt time.Time `json:"last_accessed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Block      ContentBlock `json:"block,omitempty" gorm:"foreignKey:BlockID"`
	Enrollment Enrollment   `json:"-" gorm:"foreignKey:EnrollmentID"`
}

// LessonCompletion existence means the lesson is complete for the user.
// Rows are written only by the cascade aggregator and removed only by reset.
type LessonCompletion struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	UserID       string `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_lesson_completion_user_lesson"`
	LessonID     uint   `json:"lesson_id" gorm:"not null;uniqueIndex:idx_lesson_completion_user_lesson;index"`
	EnrollmentID uint   `json:"enrollment_id" gorm:"not null;index"`

	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`

	Lesson     Lesson     `json:"-" gorm:"foreignKey:LessonID"`
	Enrollment Enrollment `json:"-" gorm:"foreignKey:EnrollmentID"`
}

// ModuleCompletion mirrors LessonCompletion one level up.
type ModuleCompletion struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	UserID       string `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_module_completion_user_module"`
	ModuleID     uint   `json:"module_id" gorm:"not null;uniqueIndex:idx_module_completion_user_module;index"`
	EnrollmentID uint   `json:"enrollment_id" gorm:"not null;index"`

	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`

	Module     CourseModule `json:"-" gorm:"foreignKey:ModuleID"`
	Enrollment Enrollment   `json:"-" gorm:"foreignKey:EnrollmentID"`
}
