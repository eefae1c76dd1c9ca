package validator

import (
	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// MaxHeartbeatDelta caps the time credited by a single heartbeat. Clients
// send heartbeats at most every 30s, so anything beyond this is a stalled
// tab or a forged request.
const MaxHeartbeatDelta = 300

// registerRules registers custom field validators used by the DTO tags.
func (v *Validator) registerRules() {
	// Heartbeat delta (1-300 seconds)
	v.validate.RegisterValidation("heartbeat_delta", func(fl validator.FieldLevel) bool {
		delta := fl.Field().Int()
		return delta >= 1 && delta <= MaxHeartbeatDelta
	})

	// Content block type
	v.validate.RegisterValidation("block_type", func(fl validator.FieldLevel) bool {
		return models.BlockType(fl.Field().String()).Valid()
	})

	// Quiz question type
	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return models.QuestionType(fl.Field().String()).Valid()
	})

	// Multi-attempt grading method
	v.validate.RegisterValidation("grading_method", func(fl validator.FieldLevel) bool {
		return models.GradingMethod(fl.Field().String()).Valid()
	})
}

// ValidateAttemptStart checks attempt-limit rules before a new attempt is
// created. maxAttempts of zero means unlimited.
func (v *Validator) ValidateAttemptStart(attemptCount int, maxAttempts int) ValidationErrors {
	var errors ValidationErrors

	if maxAttempts > 0 && attemptCount >= maxAttempts {
		errors = append(errors, ValidationError{
			Field:   "attempts",
			Message: "maximum attempts exceeded",
			Value:   attemptCount,
			Rule:    "attempt_limit",
		})
	}

	return errors
}

// ValidateRubricScores checks instructor-entered criterion scores against
// the rubric definition. Unknown criteria are rejected; scores outside
// [0, max] are reported but the grader clamps them anyway.
func (v *Validator) ValidateRubricScores(scores map[string]float64, rubric map[string]float64) ValidationErrors {
	var errors ValidationErrors

	for name, score := range scores {
		max, ok := rubric[name]
		if !ok {
			errors = append(errors, ValidationError{
				Field:   "criterion_scores",
				Message: "unknown rubric criterion: " + name,
				Value:   name,
				Rule:    "rubric_criterion",
			})
			continue
		}
		if score < 0 || score > max {
			errors = append(errors, ValidationError{
				Field:   "criterion_scores",
				Message: "score out of range for criterion: " + name,
				Value:   score,
				Rule:    "rubric_range",
			})
		}
	}

	return errors
}
