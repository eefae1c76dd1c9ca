package services

import (
	"math"
	"testing"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"gorm.io/datatypes"
)

func question(qtype models.QuestionType, points float64, key string) *models.QuizQuestion {
	return &models.QuizQuestion{
		ID:     1,
		Type:   qtype,
		Points: points,
		Answer: datatypes.JSON(key),
	}
}

func TestGradeAnswerPayload(t *testing.T) {
	tests := []struct {
		name        string
		question    *models.QuizQuestion
		answer      string
		wantRatio   float64
		wantCorrect bool
		wantErr     bool
	}{
		{
			name:        "single choice correct",
			question:    question(models.SingleChoice, 2, `{"correct":"b"}`),
			answer:      `{"selected":"b"}`,
			wantRatio:   1,
			wantCorrect: true,
		},
		{
			name:      "single choice wrong",
			question:  question(models.SingleChoice, 2, `{"correct":"b"}`),
			answer:    `{"selected":"a"}`,
			wantRatio: 0,
		},
		{
			name:        "multi choice full credit",
			question:    question(models.MultiChoice, 4, `{"correct":["a","c"]}`),
			answer:      `{"selected":["c","a"]}`,
			wantRatio:   1,
			wantCorrect: true,
		},
		{
			name:      "multi choice partial credit",
			question:  question(models.MultiChoice, 4, `{"correct":["a","b","c","d"]}`),
			answer:    `{"selected":["a","b"]}`,
			wantRatio: 0.5,
		},
		{
			name:      "multi choice wrong picks subtract",
			question:  question(models.MultiChoice, 4, `{"correct":["a","b"]}`),
			answer:    `{"selected":["a","x"]}`,
			wantRatio: 0,
		},
		{
			name:      "multi choice clamps at zero",
			question:  question(models.MultiChoice, 4, `{"correct":["a"]}`),
			answer:    `{"selected":["x","y","z"]}`,
			wantRatio: 0,
		},
		{
			name:        "true false correct",
			question:    question(models.TrueFalse, 1, `{"correct":false}`),
			answer:      `{"value":false}`,
			wantRatio:   1,
			wantCorrect: true,
		},
		{
			name:      "true false missing value",
			question:  question(models.TrueFalse, 1, `{"correct":false}`),
			answer:    `{}`,
			wantRatio: 0,
		},
		{
			name:        "short answer case insensitive",
			question:    question(models.ShortAnswer, 2, `{"accepted":["Paris"]}`),
			answer:      `{"text":"  paris "}`,
			wantRatio:   1,
			wantCorrect: true,
		},
		{
			name:      "short answer case sensitive mismatch",
			question:  question(models.ShortAnswer, 2, `{"accepted":["Paris"],"case_sensitive":true}`),
			answer:    `{"text":"paris"}`,
			wantRatio: 0,
		},
		{
			name:      "fill blank partial",
			question:  question(models.FillBlank, 3, `{"blanks":[["cat"],["dog","hound"]]}`),
			answer:    `{"blanks":["cat","wolf"]}`,
			wantRatio: 0.5,
		},
		{
			name:        "fill blank alternative spelling",
			question:    question(models.FillBlank, 3, `{"blanks":[["cat"],["dog","hound"]]}`),
			answer:      `{"blanks":["cat","hound"]}`,
			wantRatio:   1,
			wantCorrect: true,
		},
		{
			name:      "matching partial",
			question:  question(models.Matching, 4, `{"pairs":{"a":"1","b":"2","c":"3","d":"4"}}`),
			answer:    `{"pairs":{"a":"1","b":"3","c":"3","d":"4"}}`,
			wantRatio: 0.75,
		},
		{
			name:        "ordering exact",
			question:    question(models.Ordering, 2, `{"order":["x","y","z"]}`),
			answer:      `{"order":["x","y","z"]}`,
			wantRatio:   1,
			wantCorrect: true,
		},
		{
			name:      "ordering off by one",
			question:  question(models.Ordering, 2, `{"order":["x","y","z"]}`),
			answer:    `{"order":["x","z","y"]}`,
			wantRatio: 0,
		},
		{
			name:      "empty answer scores zero",
			question:  question(models.SingleChoice, 2, `{"correct":"b"}`),
			answer:    "",
			wantRatio: 0,
		},
		{
			name:     "essay needs manual grading",
			question: question(models.Essay, 10, `{"rubric":{"clarity":5}}`),
			answer:   `{"text":"..."}`,
			wantErr:  true,
		},
		{
			name:     "malformed key",
			question: question(models.Matching, 4, `{"pairs":`),
			answer:   `{"pairs":{}}`,
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var answer datatypes.JSON
			if tt.answer != "" {
				answer = datatypes.JSON(tt.answer)
			}
			ratio, correct, err := gradeAnswerPayload(tt.question, answer)
			if (err != nil) != tt.wantErr {
				t.Fatalf("gradeAnswerPayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if math.Abs(ratio-tt.wantRatio) > 1e-9 {
				t.Errorf("ratio = %v, want %v", ratio, tt.wantRatio)
			}
			if correct != tt.wantCorrect {
				t.Errorf("correct = %v, want %v", correct, tt.wantCorrect)
			}
		})
	}
}

func TestClampRubricScore(t *testing.T) {
	rubric := map[string]float64{"clarity": 5, "depth": 5}
	tests := []struct {
		name   string
		scores map[string]float64
		max    float64
		want   float64
	}{
		{
			name:   "sum within bounds",
			scores: map[string]float64{"clarity": 3, "depth": 4},
			max:    10,
			want:   7,
		},
		{
			name:   "criterion clamped to its max",
			scores: map[string]float64{"clarity": 9, "depth": 2},
			max:    10,
			want:   7,
		},
		{
			name:   "negative clamped to zero",
			scores: map[string]float64{"clarity": -3, "depth": 4},
			max:    10,
			want:   4,
		},
		{
			name:   "unknown criterion ignored",
			scores: map[string]float64{"clarity": 3, "style": 5},
			max:    10,
			want:   3,
		},
		{
			name:   "total clamped to question points",
			scores: map[string]float64{"clarity": 5, "depth": 5},
			max:    8,
			want:   8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampRubricScore(tt.scores, rubric, tt.max); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("clampRubricScore() = %v, want %v", got, tt.want)
			}
		})
	}
}
