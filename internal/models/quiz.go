package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiChoice  QuestionType = "multi_choice"
	TrueFalse    QuestionType = "true_false"
	ShortAnswer  QuestionType = "short_answer"
	FillBlank    QuestionType = "fill_blank"
	Matching     QuestionType = "matching"
	Ordering     QuestionType = "ordering"
	Essay        QuestionType = "essay"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultiChoice, TrueFalse, ShortAnswer, FillBlank, Matching, Ordering, Essay:
		return true
	}
	return false
}

// RequiresManualGrading reports whether answers of this type need an
// instructor grade before the attempt can be finalized.
func (t QuestionType) RequiresManualGrading() bool {
	return t == Essay
}

type GradingMethod string

const (
	GradeHighest GradingMethod = "highest"
	GradeAverage GradingMethod = "average"
	GradeFirst   GradingMethod = "first"
	GradeLast    GradingMethod = "last"
)

// Valid reports whether m is a known grading method.
func (m GradingMethod) Valid() bool {
	switch m {
	case GradeHighest, GradeAverage, GradeFirst, GradeLast:
		return true
	}
	return false
}

// Quiz definitions are owned by content-authoring; the attempt engine reads
// them for attempt limits, pass thresholds and the question set.
type Quiz struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Title string `json:"title" gorm:"size:255"`

	// 0 means unlimited attempts.
	MaxAttempts int `json:"max_attempts" gorm:"default:0"`

	// Fraction of max score required to pass, e.g. 0.5.
	PassingRatio float64 `json:"passing_ratio" gorm:"default:0.5"`

	// Number of questions drawn per attempt; 0 draws the full set.
	QuestionsCount   int           `json:"questions_count" gorm:"default:0"`
	ShuffleQuestions bool          `json:"shuffle_questions" gorm:"default:true"`
	GradingMethod    GradingMethod `json:"grading_method" gorm:"size:20;default:highest"`

	OwnerID   string    `json:"owner_id" gorm:"index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Questions []QuizQuestion `json:"questions,omitempty" gorm:"foreignKey:QuizID"`
}

type QuizQuestion struct {
	ID       uint         `json:"id" gorm:"primaryKey"`
	QuizID   uint         `json:"quiz_id" gorm:"not null;index"`
	Type     QuestionType `json:"type" gorm:"not null;size:32;index"`
	Position int          `json:"position" gorm:"default:0"`
	Points   float64      `json:"points" gorm:"default:1"`

	// Prompt text, options, media references.
	Content datatypes.JSON `json:"content" gorm:"type:jsonb"`

	// Correct-answer / rubric definition, never serialized to learners.
	Answer datatypes.JSON `json:"-" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Quiz Quiz `json:"-" gorm:"foreignKey:QuizID"`
}

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
)

// QuizAttempt records one sitting of a quiz. QuestionOrder is fixed at
// creation so the randomized paper can be replayed for review and audit.
// Once Status reaches graded the row is immutable.
type QuizAttempt struct {
	ID            uint   `json:"id" gorm:"primaryKey"`
	QuizID        uint   `json:"quiz_id" gorm:"not null;index"`
	UserID        string `json:"user_id" gorm:"not null;size:255;index"`
	EnrollmentID  *uint  `json:"enrollment_id" gorm:"index"`
	AttemptNumber int    `json:"attempt_number" gorm:"not null"`

	Status AttemptStatus `json:"status" gorm:"size:20;default:in_progress;index"`

	// Ordered question IDs as drawn for this attempt ([]uint as JSONB).
	QuestionOrder datatypes.JSON `json:"question_order" gorm:"type:jsonb"`

	Score    float64 `json:"score" gorm:"default:0"`
	MaxScore float64 `json:"max_score" gorm:"default:0"`
	Passed   bool    `json:"passed" gorm:"default:false"`

	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Quiz       Quiz             `json:"quiz,omitempty" gorm:"foreignKey:QuizID"`
	Enrollment *Enrollment      `json:"-" gorm:"foreignKey:EnrollmentID"`
	Answers    []QuestionAnswer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

// QuestionIDs decodes the stored question order.
func (a *QuizAttempt) QuestionIDs() []uint {
	var ids []uint
	if len(a.QuestionOrder) == 0 {
		return ids
	}
	_ = json.Unmarshal(a.QuestionOrder, &ids)
	return ids
}

// HasQuestion reports whether the question belongs to this attempt's paper.
func (a *QuizAttempt) HasQuestion(questionID uint) bool {
	for _, id := range a.QuestionIDs() {
		if id == questionID {
			return true
		}
	}
	return false
}

// QuestionAnswer is the per-(attempt, question) answer record. Re-submission
// before grading overwrites; after grading the attempt is frozen.
type QuestionAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question;index"`

	// Answer content, shape depends on the question type.
	Answer datatypes.JSON `json:"answer" gorm:"type:jsonb"`

	Score     float64 `json:"score" gorm:"default:0"`
	IsCorrect *bool   `json:"is_correct"`
	IsGraded  bool    `json:"is_graded" gorm:"default:false"`
	Feedback  *string `json:"feedback" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attempt  QuizAttempt  `json:"-" gorm:"foreignKey:AttemptID"`
	Question QuizQuestion `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}
