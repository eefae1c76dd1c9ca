package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"gorm.io/datatypes"
)

func quizWithQuestions(n int) *models.Quiz {
	quiz := &models.Quiz{ID: 1, ShuffleQuestions: true}
	for i := 1; i <= n; i++ {
		quiz.Questions = append(quiz.Questions, models.QuizQuestion{
			ID:     uint(i),
			QuizID: 1,
			Points: 1,
		})
	}
	return quiz
}

func TestDrawQuestionOrder_Deterministic(t *testing.T) {
	quiz := quizWithQuestions(20)

	first := drawQuestionOrder(quiz, 42)
	second := drawQuestionOrder(quiz, 42)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same attempt id produced different orders: %v vs %v", first, second)
	}

	other := drawQuestionOrder(quiz, 43)
	if reflect.DeepEqual(first, other) {
		t.Errorf("different attempt ids produced identical orders: %v", first)
	}
}

func TestDrawQuestionOrder_Subset(t *testing.T) {
	quiz := quizWithQuestions(10)
	quiz.QuestionsCount = 4

	order := drawQuestionOrder(quiz, 7)
	if len(order) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(order))
	}
	seen := map[uint]bool{}
	for _, id := range order {
		if seen[id] {
			t.Errorf("duplicate question %d in order", id)
		}
		seen[id] = true
	}
}

func TestDrawQuestionOrder_NoShuffle(t *testing.T) {
	quiz := quizWithQuestions(5)
	quiz.ShuffleQuestions = false

	order := drawQuestionOrder(quiz, 99)
	want := []uint{1, 2, 3, 4, 5}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestShuffleOptions_Deterministic(t *testing.T) {
	content := map[string]interface{}{
		"prompt":  "pick one",
		"options": []interface{}{"a", "b", "c", "d", "e", "f"},
	}
	raw, _ := json.Marshal(content)
	q := &models.QuizQuestion{ID: 3, Content: datatypes.JSON(raw)}

	first := shuffleOptions(q, 42)
	second := shuffleOptions(q, 42)
	if !reflect.DeepEqual(first["options"], second["options"]) {
		t.Error("same seed produced different option orders")
	}
	if first["prompt"] != "pick one" {
		t.Error("non-option content must pass through untouched")
	}
}

func TestRemainingAttempts(t *testing.T) {
	tests := []struct {
		name          string
		maxAttempts   int
		attemptNumber int
		want          int
	}{
		{name: "unlimited", maxAttempts: 0, attemptNumber: 5, want: -1},
		{name: "some left", maxAttempts: 3, attemptNumber: 1, want: 2},
		{name: "last one", maxAttempts: 3, attemptNumber: 3, want: 0},
		{name: "never negative", maxAttempts: 3, attemptNumber: 4, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := remainingAttempts(tt.maxAttempts, tt.attemptNumber); got != tt.want {
				t.Errorf("remainingAttempts() = %v, want %v", got, tt.want)
			}
		})
	}
}

func gradedAttempt(id uint, number int, score, max float64) *models.QuizAttempt {
	return &models.QuizAttempt{
		ID:            id,
		AttemptNumber: number,
		Status:        models.AttemptGraded,
		Score:         score,
		MaxScore:      max,
	}
}

func TestResolveEffectiveScore(t *testing.T) {
	attempts := []*models.QuizAttempt{
		gradedAttempt(10, 1, 4, 10),
		gradedAttempt(11, 2, 9, 10),
		gradedAttempt(12, 3, 6, 10),
	}

	tests := []struct {
		name          string
		method        models.GradingMethod
		wantScore     float64
		wantAttemptID uint
	}{
		{name: "highest", method: models.GradeHighest, wantScore: 9, wantAttemptID: 11},
		{name: "first", method: models.GradeFirst, wantScore: 4, wantAttemptID: 10},
		{name: "last", method: models.GradeLast, wantScore: 6, wantAttemptID: 12},
		{name: "average", method: models.GradeAverage, wantScore: 19.0 / 3.0, wantAttemptID: 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, maxScore, attemptID := resolveEffectiveScore(tt.method, attempts)
			if math.Abs(score-tt.wantScore) > 1e-9 {
				t.Errorf("score = %v, want %v", score, tt.wantScore)
			}
			if maxScore != 10 {
				t.Errorf("maxScore = %v, want 10", maxScore)
			}
			if attemptID != tt.wantAttemptID {
				t.Errorf("attemptID = %v, want %v", attemptID, tt.wantAttemptID)
			}
		})
	}
}

func TestResolveEffectiveScore_AverageMixedMaxScores(t *testing.T) {
	// Question sub-sampling drew the third attempt a smaller paper. The
	// average must be over pass ratios, not raw scores, or the short paper
	// would drag the result down.
	attempts := []*models.QuizAttempt{
		gradedAttempt(20, 1, 4, 10),
		gradedAttempt(21, 2, 9, 10),
		gradedAttempt(22, 3, 3, 5),
	}

	score, maxScore, attemptID := resolveEffectiveScore(models.GradeAverage, attempts)

	want := (0.4 + 0.9 + 0.6) / 3 * 10
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", score, want)
	}
	if maxScore != 10 {
		t.Errorf("maxScore = %v, want 10", maxScore)
	}
	if attemptID != 21 {
		t.Errorf("attemptID = %v, want 21", attemptID)
	}
}

func TestStartAttempt_EnforcesAttemptLimit(t *testing.T) {
	fix := newServiceFixture(courseTree())
	fix.repo.addEnrollment("u-1", 1)
	quiz := quizWithQuestions(3)
	quiz.MaxAttempts = 3
	fix.repo.addQuiz(quiz)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		resp, err := fix.attempts.Start(ctx, &StartAttemptRequest{QuizID: quiz.ID}, "u-1")
		if err != nil {
			t.Fatalf("Start() attempt %d error = %v", i, err)
		}
		if resp.AttemptNumber != i {
			t.Errorf("attempt number = %d, want %d", resp.AttemptNumber, i)
		}
		// Close the attempt out so the next Start draws a fresh one
		// instead of resuming.
		fix.repo.attempts[resp.ID].Status = models.AttemptGraded
	}

	_, err := fix.attempts.Start(ctx, &StartAttemptRequest{QuizID: quiz.ID}, "u-1")
	if !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Errorf("fourth Start() error = %v, want ErrAttemptLimitExceeded", err)
	}
}

func TestStartAttempt_ResumesActiveAttempt(t *testing.T) {
	fix := newServiceFixture(courseTree())
	fix.repo.addEnrollment("u-1", 1)
	quiz := quizWithQuestions(3)
	quiz.MaxAttempts = 1
	fix.repo.addQuiz(quiz)
	ctx := context.Background()

	first, err := fix.attempts.Start(ctx, &StartAttemptRequest{QuizID: quiz.ID}, "u-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	second, err := fix.attempts.Start(ctx, &StartAttemptRequest{QuizID: quiz.ID}, "u-1")
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("open attempt was not resumed: got attempt %d, want %d", second.ID, first.ID)
	}
}
