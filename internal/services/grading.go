package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"gorm.io/datatypes"
)

// gradeAnswerPayload scores one auto-gradable answer against the question's
// answer key. The returned ratio is in [0, 1]; callers multiply by the
// question's points. Essays are never auto-graded.
func gradeAnswerPayload(question *models.QuizQuestion, answer datatypes.JSON) (ratio float64, correct bool, err error) {
	if len(answer) == 0 {
		return 0, false, nil
	}

	switch question.Type {
	case models.SingleChoice:
		return gradeSingleChoice(question.Answer, answer)
	case models.MultiChoice:
		return gradeMultiChoice(question.Answer, answer)
	case models.TrueFalse:
		return gradeTrueFalse(question.Answer, answer)
	case models.ShortAnswer:
		return gradeShortAnswer(question.Answer, answer)
	case models.FillBlank:
		return gradeFillBlank(question.Answer, answer)
	case models.Matching:
		return gradeMatching(question.Answer, answer)
	case models.Ordering:
		return gradeOrdering(question.Answer, answer)
	case models.Essay:
		return 0, false, ErrManualGradingRequired
	default:
		return 0, false, fmt.Errorf("unsupported question type: %s", question.Type)
	}
}

func gradeSingleChoice(key, answer datatypes.JSON) (float64, bool, error) {
	var def struct {
		Correct string `json:"correct"`
	}
	if err := json.Unmarshal(key, &def); err != nil {
		return 0, false, fmt.Errorf("invalid answer key: %w", err)
	}
	var given struct {
		Selected string `json:"selected"`
	}
	if err := json.Unmarshal(answer, &given); err != nil {
		return 0, false, fmt.Errorf("invalid answer payload: %w", err)
	}
	if given.Selected != "" && given.Selected == def.Correct {
		return 1, true, nil
	}
	return 0, false, nil
}

// gradeMultiChoice awards partial credit: (hits - misses) / len(correct),
// clamped at zero so wild guessing cannot go negative.
func gradeMultiChoice(key, answer datatypes.JSON) (float64, bool, error) {
	var def struct {
		Correct []string `json:"correct"`
	}
	if err := json.Unmarshal(key, &def); err != nil {
		return 0, false, fmt.Errorf("invalid answer key: %w", err)
	}
	var given struct {
		Selected []string `json:"selected"`
	}
	if err := json.Unmarshal(answer, &given); err != nil {
		return 0, false, fmt.Errorf("invalid answer payload: %w", err)
	}
	if len(def.Correct) == 0 {
		return 0, false, fmt.Errorf("answer key has no correct options")
	}

	correctSet := make(map[string]bool, len(def.Correct))
	for _, option := range def.Correct {
		correctSet[option] = true
	}

	hits, misses := 0, 0
	for _, option := range given.Selected {
		if correctSet[option] {
			hits++
		} else {
			misses++
		}
	}

	ratio := float64(hits-misses) / float64(len(def.Correct))
	if ratio < 0 {
		ratio = 0
	}
	return ratio, hits == len(def.Correct) && misses == 0, nil
}

func gradeTrueFalse(key, answer datatypes.JSON) (float64, bool, error) {
	var def struct {
		Correct bool `json:"correct"`
	}
	if err := json.Unmarshal(key, &def); err != nil {
		return 0, false, fmt.Errorf("invalid answer key: %w", err)
	}
	var given struct {
		Value *bool `json:"value"`
	}
	if err := json.Unmarshal(answer, &given); err != nil {
		return 0, false, fmt.Errorf("invalid answer payload: %w", err)
	}
	if given.Value != nil && *given.Value == def.Correct {
		return 1, true, nil
	}
	return 0, false, nil
}

func gradeShortAnswer(key, answer datatypes.JSON) (float64, bool, error) {
	var def struct {
		Accepted      []string `json:"accepted"`
		CaseSensitive bool     `json:"case_sensitive"`
	}
	if err := json.Unmarshal(key, &def); err != nil {
		return 0, false, fmt.Errorf("invalid answer key: %w", err)
	}
	var given struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(answer, &given); err != nil {
		return 0, false, fmt.Errorf("invalid answer payload: %w", err)
	}

	text := strings.TrimSpace(given.Text)
	for _, accepted := range def.Accepted {
		if equalsFold(text, strings.TrimSpace(accepted), def.CaseSensitive) {
			return 1, true, nil
		}
	}
	return 0, false, nil
}

// gradeFillBlank awards equal weight per blank; each blank may carry several
// accepted spellings.
func gradeFillBlank(key, answer datatypes.JSON) (float64, bool, error) {
	var def struct {
		Blanks        [][]string `json:"blanks"`
		CaseSensitive bool       `json:"case_sensitive"`
	}
	if err := json.Unmarshal(key, &def); err != nil {
		return 0, false, fmt.Errorf("invalid answer key: %w", err)
	}
	var given struct {
		Blanks []string `json:"blanks"`
	}
	if err := json.Unmarshal(answer, &given); err != nil {
		return 0, false, fmt.Errorf("invalid answer payload: %w", err)
	}
	if len(def.Blanks) == 0 {
		return 0, false, fmt.Errorf("answer key has no blanks")
	}

	filled := 0
	for i, accepted := range def.Blanks {
		if i >= len(given.Blanks) {
			break
		}
		text := strings.TrimSpace(given.Blanks[i])
		for _, want := range accepted {
			if equalsFold(text, strings.TrimSpace(want), def.CaseSensitive) {
				filled++
				break
			}
		}
	}

	ratio := float64(filled) / float64(len(def.Blanks))
	return ratio, filled == len(def.Blanks), nil
}

// gradeMatching awards the fraction of correctly matched pairs.
func gradeMatching(key, answer datatypes.JSON) (float64, bool, error) {
	var def struct {
		Pairs map[string]string `json:"pairs"`
	}
	if err := json.Unmarshal(key, &def); err != nil {
		return 0, false, fmt.Errorf("invalid answer key: %w", err)
	}
	var given struct {
		Pairs map[string]string `json:"pairs"`
	}
	if err := json.Unmarshal(answer, &given); err != nil {
		return 0, false, fmt.Errorf("invalid answer payload: %w", err)
	}
	if len(def.Pairs) == 0 {
		return 0, false, fmt.Errorf("answer key has no pairs")
	}

	matched := 0
	for left, right := range def.Pairs {
		if given.Pairs[left] == right {
			matched++
		}
	}

	ratio := float64(matched) / float64(len(def.Pairs))
	return ratio, matched == len(def.Pairs), nil
}

// gradeOrdering is all-or-nothing: the sequence must match exactly.
func gradeOrdering(key, answer datatypes.JSON) (float64, bool, error) {
	var def struct {
		Order []string `json:"order"`
	}
	if err := json.Unmarshal(key, &def); err != nil {
		return 0, false, fmt.Errorf("invalid answer key: %w", err)
	}
	var given struct {
		Order []string `json:"order"`
	}
	if err := json.Unmarshal(answer, &given); err != nil {
		return 0, false, fmt.Errorf("invalid answer payload: %w", err)
	}
	if len(def.Order) == 0 {
		return 0, false, fmt.Errorf("answer key has no order")
	}
	if len(given.Order) != len(def.Order) {
		return 0, false, nil
	}
	for i := range def.Order {
		if given.Order[i] != def.Order[i] {
			return 0, false, nil
		}
	}
	return 1, true, nil
}

func equalsFold(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}
