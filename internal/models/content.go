package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// BlockType is the closed set of content block kinds the progress engine knows
// how to complete. Unknown values fall through to the evaluator's default branch.
type BlockType string

const (
	BlockRichText BlockType = "rich_text"
	BlockVideo    BlockType = "video"
	BlockQuiz     BlockType = "quiz"
	BlockPDF      BlockType = "pdf"
	BlockDocx     BlockType = "docx"
	BlockFile     BlockType = "file"
	BlockAudio    BlockType = "audio"
)

// Valid reports whether t is a known block type.
func (t BlockType) Valid() bool {
	switch t {
	case BlockRichText, BlockVideo, BlockQuiz, BlockPDF, BlockDocx, BlockFile, BlockAudio:
		return true
	}
	return false
}

// Course, CourseModule, Lesson and ContentBlock are owned by the
// content-authoring service. The progress engine reads them to walk the
// containment tree and must tolerate the tree changing between reads.
type Course struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	Title     string `json:"title" gorm:"not null;size:255"`
	Published bool   `json:"published" gorm:"default:false;index"`
	OwnerID   string `json:"owner_id" gorm:"index;size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Modules []CourseModule `json:"modules,omitempty" gorm:"foreignKey:CourseID"`
}

type CourseModule struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	CourseID uint   `json:"course_id" gorm:"not null;index"`
	Title    string `json:"title" gorm:"not null;size:255"`
	Position int    `json:"position" gorm:"not null;default:0;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Course  Course   `json:"-" gorm:"foreignKey:CourseID"`
	Lessons []Lesson `json:"lessons,omitempty" gorm:"foreignKey:ModuleID"`
}

type Lesson struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	ModuleID uint   `json:"module_id" gorm:"not null;index"`
	Title    string `json:"title" gorm:"not null;size:255"`
	Position int    `json:"position" gorm:"not null;default:0;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Module CourseModule   `json:"-" gorm:"foreignKey:ModuleID"`
	Blocks []ContentBlock `json:"blocks,omitempty" gorm:"foreignKey:LessonID"`
}

// The table is course_modules to avoid colliding with schema tooling that
// treats "modules" as reserved.
func (CourseModule) TableName() string { return "course_modules" }

type ContentBlock struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	LessonID uint      `json:"lesson_id" gorm:"not null;index"`
	Type     BlockType `json:"type" gorm:"not null;size:32;index"`
	Position int       `json:"position" gorm:"not null;default:0;index"`

	// Type-specific configuration: video duration, min_read_seconds, quiz_id, ...
	Payload datatypes.JSON `json:"payload" gorm:"type:jsonb"`

	// Duration in seconds for video/audio blocks; 0 means "look in payload".
	Duration int `json:"duration" gorm:"default:0"`

	// Required blocks gate lesson completion; optional ones do not.
	Required bool `json:"required" gorm:"default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lesson Lesson `json:"-" gorm:"foreignKey:LessonID"`
}

// PayloadMap decodes the JSONB payload; a broken payload decodes to an empty
// map so numeric lookups default to zero.
func (b *ContentBlock) PayloadMap() map[string]interface{} {
	out := map[string]interface{}{}
	if len(b.Payload) == 0 {
		return out
	}
	_ = json.Unmarshal(b.Payload, &out)
	return out
}

// PayloadInt reads a numeric payload field, tolerating both float64 (JSON
// numbers) and string-encoded values authored by older tooling.
func (b *ContentBlock) PayloadInt(key string) int {
	v, ok := b.PayloadMap()[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// QuizID returns the quiz bound to a quiz-type block, 0 when absent.
func (b *ContentBlock) QuizID() uint {
	return uint(b.PayloadInt("quiz_id"))
}

// Enrollment is the denormalized per-(user, course) progress cache. The
// cached_* fields and percent_completed are derived by the cascade aggregator;
// nobody else writes them.
type Enrollment struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	UserID   string `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_enrollment_user_course"`
	CourseID uint   `json:"course_id" gorm:"not null;uniqueIndex:idx_enrollment_user_course;index"`

	PercentCompleted       float64    `json:"percent_completed" gorm:"default:0"`
	IsCompleted            bool       `json:"is_completed" gorm:"default:false;index"`
	CompletedAt            *time.Time `json:"completed_at"`
	CachedCompletedLessons int        `json:"cached_completed_lessons" gorm:"default:0"`
	CachedTotalLessons     int        `json:"cached_total_lessons" gorm:"default:0"`

	// Resume pointer: the block the learner touched most recently.
	CurrentBlockID *uint     `json:"current_block_id" gorm:"index"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Course       Course        `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	CurrentBlock *ContentBlock `json:"current_block,omitempty" gorm:"foreignKey:CurrentBlockID"`
}
