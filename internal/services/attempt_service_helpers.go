package services

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/cache"
	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
)

// ===== DETERMINISTIC SHUFFLING =====

// attemptSeed derives the shuffle seed for one attempt. Re-deriving from the
// same attempt id always yields the same paper.
func attemptSeed(attemptID uint) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "attempt:%d", attemptID)
	return int64(h.Sum64())
}

// questionSeed derives an independent seed per (attempt, question) so option
// order does not correlate with question order.
func questionSeed(attemptID, questionID uint) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "attempt:%d:question:%d", attemptID, questionID)
	return int64(h.Sum64())
}

func shuffledUints(ids []uint, seed int64) []uint {
	out := make([]uint, len(ids))
	copy(out, ids)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// drawQuestionOrder produces the frozen paper for an attempt: shuffle when
// the quiz asks for it, then cut to questions_count when a subset is drawn.
func drawQuestionOrder(quiz *models.Quiz, attemptID uint) []uint {
	ids := make([]uint, 0, len(quiz.Questions))
	for i := range quiz.Questions {
		ids = append(ids, quiz.Questions[i].ID)
	}
	if quiz.ShuffleQuestions {
		ids = shuffledUints(ids, attemptSeed(attemptID))
	}
	if quiz.QuestionsCount > 0 && quiz.QuestionsCount < len(ids) {
		ids = ids[:quiz.QuestionsCount]
	}
	return ids
}

func maxScoreFor(quiz *models.Quiz, order []uint) float64 {
	points := make(map[uint]float64, len(quiz.Questions))
	for i := range quiz.Questions {
		points[quiz.Questions[i].ID] = quiz.Questions[i].Points
	}
	var total float64
	for _, id := range order {
		total += points[id]
	}
	return total
}

// ===== RESPONSE BUILDING =====

func (s *attemptService) buildAttemptResponse(ctx context.Context, quiz *models.Quiz, attempt *models.QuizAttempt, includeQuestions bool) (*AttemptResponse, error) {
	resp := &AttemptResponse{
		QuizAttempt:       attempt,
		CanSubmit:         attempt.Status == models.AttemptInProgress,
		RemainingAttempts: remainingAttempts(quiz.MaxAttempts, attempt.AttemptNumber),
	}
	if includeQuestions {
		resp.Questions = questionsForAttempt(quiz, attempt)
	}
	return resp, nil
}

func remainingAttempts(maxAttempts, attemptNumber int) int {
	if maxAttempts == 0 {
		return -1
	}
	remaining := maxAttempts - attemptNumber
	if remaining < 0 {
		return 0
	}
	return remaining
}

// questionsForAttempt projects the paper in attempt order with the answer key
// stripped and options shuffled under the per-question seed.
func questionsForAttempt(quiz *models.Quiz, attempt *models.QuizAttempt) []QuestionForAttempt {
	byID := make(map[uint]*models.QuizQuestion, len(quiz.Questions))
	for i := range quiz.Questions {
		byID[quiz.Questions[i].ID] = &quiz.Questions[i]
	}

	order := attempt.QuestionIDs()
	questions := make([]QuestionForAttempt, 0, len(order))
	for i, id := range order {
		question, ok := byID[id]
		if !ok {
			// Question deleted after the attempt was drawn; skip it.
			continue
		}
		questions = append(questions, QuestionForAttempt{
			ID:       question.ID,
			Type:     question.Type,
			Content:  shuffleOptions(question, attempt.ID),
			Points:   question.Points,
			Position: i + 1,
			IsFirst:  i == 0,
			IsLast:   i == len(order)-1,
		})
	}
	return questions
}

func shuffleOptions(question *models.QuizQuestion, attemptID uint) map[string]interface{} {
	var content map[string]interface{}
	if len(question.Content) > 0 {
		_ = json.Unmarshal(question.Content, &content)
	}
	if content == nil {
		return map[string]interface{}{}
	}
	options, ok := content["options"].([]interface{})
	if !ok || len(options) < 2 {
		return content
	}

	shuffled := make([]interface{}, len(options))
	copy(shuffled, options)
	r := rand.New(rand.NewSource(questionSeed(attemptID, question.ID)))
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	content["options"] = shuffled
	return content
}

// ===== ACCESS CHECKS =====

func (s *attemptService) checkAttemptAccess(ctx context.Context, attempt *models.QuizAttempt, userID string) error {
	if attempt.UserID == userID {
		return nil
	}
	role, err := s.getUserRole(ctx, userID)
	if err != nil {
		return err
	}
	if role == models.RoleTeacher || role == models.RoleAdmin {
		return nil
	}
	return NewPermissionError(userID, attempt.ID, "attempt", "read", "attempt belongs to another user")
}

func (s *attemptService) checkGraderRole(ctx context.Context, graderID string) error {
	role, err := s.getUserRole(ctx, graderID)
	if err != nil {
		return err
	}
	if role != models.RoleTeacher && role != models.RoleAdmin {
		return NewPermissionError(graderID, 0, "attempt", "grade", "grading requires teacher or admin role")
	}
	return nil
}

func (s *attemptService) getUserRole(ctx context.Context, userID string) (models.UserRole, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	return user.Role, nil
}

// resolveEnrollmentID links the attempt to the learner's enrollment when the
// quiz is embedded in a course block. Standalone quizzes carry no enrollment.
func (s *attemptService) resolveEnrollmentID(ctx context.Context, userID string, quizID uint) *uint {
	block, err := s.repo.ContentTree().GetBlockByQuizID(ctx, nil, quizID)
	if err != nil {
		return nil
	}
	courseID, err := s.repo.ContentTree().GetCourseIDForBlock(ctx, nil, block.ID)
	if err != nil {
		return nil
	}
	enrollment, err := s.repo.Enrollment().GetByUserAndCourse(ctx, nil, userID, courseID)
	if err != nil {
		return nil
	}
	id := enrollment.ID
	return &id
}

// ===== GRADING FLOW =====

// gradeAttempt scores every question on the paper. Auto-gradable answers are
// scored immediately; essays stay pending until an instructor grades them.
// Unanswered questions score zero and are marked incorrect.
func (s *attemptService) gradeAttempt(
	ctx context.Context,
	txRepo repositories.Repository,
	attempt *models.QuizAttempt,
	questions []*models.QuizQuestion,
	answers []*models.QuestionAnswer,
) (*AttemptGradingResult, error) {
	questionByID := make(map[uint]*models.QuizQuestion, len(questions))
	for _, q := range questions {
		questionByID[q.ID] = q
	}
	answerByQuestion := make(map[uint]*models.QuestionAnswer, len(answers))
	for _, a := range answers {
		answerByQuestion[a.QuestionID] = a
	}

	now := time.Now()
	result := &AttemptGradingResult{
		AttemptID: attempt.ID,
		GradedAt:  now,
	}

	for _, questionID := range attempt.QuestionIDs() {
		question, ok := questionByID[questionID]
		if !ok {
			continue
		}
		result.MaxScore += question.Points

		answer := answerByQuestion[questionID]
		if answer == nil {
			incorrect := false
			answer = &models.QuestionAnswer{
				AttemptID:  attempt.ID,
				QuestionID: questionID,
				IsCorrect:  &incorrect,
				IsGraded:   true,
			}
			if err := txRepo.Answer().Upsert(ctx, nil, answer); err != nil {
				return nil, fmt.Errorf("failed to record unanswered question: %w", err)
			}
			result.Results = append(result.Results, GradingResult{
				QuestionID: questionID,
				MaxScore:   question.Points,
				IsCorrect:  &incorrect,
				IsGraded:   true,
			})
			continue
		}

		if question.Type.RequiresManualGrading() {
			result.PendingManual++
			result.Results = append(result.Results, GradingResult{
				QuestionID: questionID,
				MaxScore:   question.Points,
			})
			continue
		}

		ratio, correct, err := gradeAnswerPayload(question, answer.Answer)
		if err != nil {
			s.logger.Warn("failed to grade answer, scoring zero",
				"attempt_id", attempt.ID, "question_id", questionID, "error", err)
			ratio, correct = 0, false
		}
		score := ratio * question.Points
		answer.Score = score
		answer.IsCorrect = &correct
		answer.IsGraded = true
		if err := txRepo.Answer().Update(ctx, nil, answer); err != nil {
			return nil, fmt.Errorf("failed to save graded answer: %w", err)
		}

		result.Score += score
		isCorrect := correct
		result.Results = append(result.Results, GradingResult{
			QuestionID: questionID,
			Score:      score,
			MaxScore:   question.Points,
			IsCorrect:  &isCorrect,
			IsGraded:   true,
		})
	}

	attempt.Score = result.Score
	attempt.MaxScore = result.MaxScore
	attempt.SubmittedAt = &now
	if result.PendingManual == 0 {
		attempt.Status = models.AttemptGraded
		attempt.Passed = result.MaxScore > 0 && result.Score/result.MaxScore >= s.passingRatio(ctx, attempt.QuizID)
	} else {
		attempt.Status = models.AttemptSubmitted
	}
	result.Status = attempt.Status
	result.Passed = attempt.Passed

	if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("failed to update attempt: %w", err)
	}
	return result, nil
}

func (s *attemptService) passingRatio(ctx context.Context, quizID uint) float64 {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		s.logger.Error("failed to load quiz for passing ratio", "quiz_id", quizID, "error", err)
		return 1.0
	}
	return quiz.PassingRatio
}

// maybeFinalizeAttempt flips a submitted attempt to graded once every answer
// has a grade, recomputing the total from the answer rows.
func (s *attemptService) maybeFinalizeAttempt(ctx context.Context, txRepo repositories.Repository, attempt *models.QuizAttempt) (*AttemptGradingResult, error) {
	ungraded, err := txRepo.Answer().CountUngraded(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count ungraded answers: %w", err)
	}
	if ungraded > 0 {
		return nil, nil
	}

	answers, err := txRepo.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	var total float64
	for _, answer := range answers {
		total += answer.Score
	}

	attempt.Score = total
	attempt.Status = models.AttemptGraded
	attempt.Passed = attempt.MaxScore > 0 && total/attempt.MaxScore >= s.passingRatio(ctx, attempt.QuizID)
	if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("failed to finalize attempt: %w", err)
	}

	return &AttemptGradingResult{
		AttemptID: attempt.ID,
		Score:     attempt.Score,
		MaxScore:  attempt.MaxScore,
		Passed:    attempt.Passed,
		Status:    models.AttemptGraded,
		GradedAt:  time.Now(),
	}, nil
}

// finalizeGradedAttempt runs the post-grading side effects: the graded event,
// and on a pass, completing the owning quiz block so aggregation can cascade.
func (s *attemptService) finalizeGradedAttempt(ctx context.Context, attempt *models.QuizAttempt, result *AttemptGradingResult) {
	if s.publisher != nil {
		event := events.NewEvent("quiz.attempt_graded", events.AttemptGradedEvent{
			UserID:    attempt.UserID,
			QuizID:    attempt.QuizID,
			AttemptID: attempt.ID,
			Score:     result.Score,
			MaxScore:  result.MaxScore,
			Passed:    result.Passed,
		})
		if err := s.publisher.Publish(ctx, events.TopicAttemptGraded, event); err != nil {
			s.logger.Error("failed to publish attempt graded event", "error", err)
		}
	}
	cache.InvalidateQuizAttemptCache(ctx, s.cacheManager, attempt.UserID, attempt.QuizID)

	if result.Passed {
		s.completeQuizBlock(ctx, attempt)
	}
}

// completeQuizBlock marks the quiz's owning content block complete after a
// passing attempt. This is the only path that completes a quiz block.
func (s *attemptService) completeQuizBlock(ctx context.Context, attempt *models.QuizAttempt) {
	block, err := s.repo.ContentTree().GetBlockByQuizID(ctx, nil, attempt.QuizID)
	if err != nil {
		// Standalone quiz, no block to complete.
		return
	}
	courseID, err := s.repo.ContentTree().GetCourseIDForBlock(ctx, nil, block.ID)
	if err != nil {
		s.logger.Error("failed to resolve course for quiz block", "block_id", block.ID, "error", err)
		return
	}
	enrollment, err := s.repo.Enrollment().GetByUserAndCourse(ctx, nil, attempt.UserID, courseID)
	if err != nil {
		return
	}

	var justCompleted bool
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		progress, _, txErr := txRepo.BlockProgress().GetOrCreateForUpdate(ctx, nil, attempt.UserID, block.ID, enrollment.ID)
		if txErr != nil {
			return txErr
		}
		if progress.IsCompleted {
			return nil
		}
		now := time.Now()
		progress.IsCompleted = true
		progress.CompletedAt = &now
		progress.LastAccessedAt = now
		justCompleted = true
		return txRepo.BlockProgress().Update(ctx, nil, progress)
	})
	if err != nil {
		s.logger.Error("failed to complete quiz block", "block_id", block.ID, "error", err)
		return
	}

	if justCompleted && s.publisher != nil {
		event := events.NewEvent("progress.aggregation_requested", events.AggregationRequestedEvent{
			UserID:       attempt.UserID,
			CourseID:     courseID,
			LessonID:     block.LessonID,
			BlockID:      block.ID,
			EnrollmentID: enrollment.ID,
		})
		if err := s.publisher.Publish(ctx, events.TopicAggregationRequested, event); err != nil {
			s.logger.Error("failed to publish aggregation request", "error", err)
		}
	}
	cache.InvalidateProgressCache(ctx, s.cacheManager, attempt.UserID, courseID)
}

// ===== RESULT RESOLUTION =====

// resolveEffectiveScore applies the grading method over graded attempts.
// Attempts arrive ordered by attempt number ascending.
func resolveEffectiveScore(method models.GradingMethod, attempts []*models.QuizAttempt) (score, maxScore float64, attemptID uint) {
	switch method {
	case models.GradeFirst:
		first := attempts[0]
		return first.Score, first.MaxScore, first.ID
	case models.GradeLast:
		last := attempts[len(attempts)-1]
		return last.Score, last.MaxScore, last.ID
	case models.GradeAverage:
		// Question sub-sampling gives attempts different max scores, so the
		// average is taken over per-attempt ratios and projected onto the
		// best attempt's scale.
		best := attempts[0]
		var ratioSum float64
		for _, a := range attempts {
			ratioSum += ratioOf(a)
			if ratioOf(a) > ratioOf(best) {
				best = a
			}
		}
		avg := ratioSum / float64(len(attempts))
		return avg * best.MaxScore, best.MaxScore, best.ID
	default: // highest
		best := attempts[0]
		for _, a := range attempts {
			if ratioOf(a) > ratioOf(best) {
				best = a
			}
		}
		return best.Score, best.MaxScore, best.ID
	}
}

func ratioOf(a *models.QuizAttempt) float64 {
	if a.MaxScore <= 0 {
		return 0
	}
	return a.Score / a.MaxScore
}

// ===== RUBRIC HELPERS =====

type essayRubric struct {
	Rubric map[string]float64 `json:"rubric"`
}

// rubricFor decodes the criterion→max-points rubric from the question's
// answer definition.
func rubricFor(question *models.QuizQuestion) (map[string]float64, error) {
	var def essayRubric
	if len(question.Answer) > 0 {
		if err := json.Unmarshal(question.Answer, &def); err != nil {
			return nil, NewDomainError("decode essay rubric", err)
		}
	}
	if len(def.Rubric) == 0 {
		return nil, NewDomainError("decode essay rubric",
			fmt.Errorf("question %d has no rubric definition", question.ID))
	}
	return def.Rubric, nil
}

// clampRubricScore sums the awarded criterion scores, clamping each to
// [0, criterion max] and the total to [0, question points].
func clampRubricScore(scores, rubric map[string]float64, maxPoints float64) float64 {
	var total float64
	for criterion, awarded := range scores {
		max, ok := rubric[criterion]
		if !ok {
			continue
		}
		if awarded < 0 {
			awarded = 0
		}
		if awarded > max {
			awarded = max
		}
		total += awarded
	}
	if total > maxPoints {
		total = maxPoints
	}
	return total
}
