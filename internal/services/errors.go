package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/progress-service/internal/validator"
)

// ===== SENTINEL ERRORS =====

var (
	ErrCourseNotFound     = errors.New("course not found")
	ErrLessonNotFound     = errors.New("lesson not found")
	ErrBlockNotFound      = errors.New("content block not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrNotEnrolled        = errors.New("user is not enrolled in this course")

	ErrQuizNotFound            = errors.New("quiz not found")
	ErrQuestionNotFound        = errors.New("question not found")
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAnswerNotFound          = errors.New("answer not found")
	ErrAttemptNotActive        = errors.New("attempt is not in progress")
	ErrAttemptAlreadySubmitted = errors.New("attempt has already been submitted")
	ErrAttemptLimitExceeded    = errors.New("maximum number of attempts reached")
	ErrQuestionNotInAttempt    = errors.New("question does not belong to this attempt")
	ErrAnswerAlreadyGraded     = errors.New("answer has already been graded")
	ErrManualGradingRequired   = errors.New("answer requires manual grading")
	ErrNotManuallyGradable     = errors.New("answer is auto-graded and cannot be graded manually")
)

// ValidationErrors mirrors the validator package type so handlers can map it
// to HTTP 400 without importing validator directly.
type ValidationErrors = validator.ValidationErrors

// ===== TYPED ERRORS =====

// BusinessRuleError represents a violated domain rule (mapped to HTTP 409).
type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violated (%s): %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message}
}

// PermissionError represents a denied action on a resource (mapped to HTTP 403).
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// DomainError wraps unexpected internal failures with operation context
// (mapped to HTTP 500).
type DomainError struct {
	Operation string
	Err       error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(operation string, err error) *DomainError {
	return &DomainError{Operation: operation, Err: err}
}

// ===== CLASSIFICATION HELPERS =====

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrCourseNotFound) ||
		errors.Is(err, ErrLessonNotFound) ||
		errors.Is(err, ErrBlockNotFound) ||
		errors.Is(err, ErrEnrollmentNotFound) ||
		errors.Is(err, ErrQuizNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrAnswerNotFound)
}

func IsConflictError(err error) bool {
	var bre *BusinessRuleError
	if errors.As(err, &bre) {
		return true
	}
	return errors.Is(err, ErrAttemptLimitExceeded) ||
		errors.Is(err, ErrAttemptNotActive) ||
		errors.Is(err, ErrAttemptAlreadySubmitted) ||
		errors.Is(err, ErrAnswerAlreadyGraded)
}

func IsPermissionError(err error) bool {
	var pe *PermissionError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrNotEnrolled)
}

func IsValidationError(err error) bool {
	var ve ValidationErrors
	return errors.As(err, &ve)
}
