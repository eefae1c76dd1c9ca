package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/SAP-F-2025/progress-service/internal/cache"
	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/SAP-F-2025/progress-service/internal/validator"
	"gorm.io/gorm"
)

// fakeRepository is an in-memory repositories.Repository backed by one
// course tree. Missing rows surface as gorm.ErrRecordNotFound so the
// services' not-found classification behaves the same as against postgres.
// WithTransaction runs the callback against the shared state; the services
// under test never rely on rollback.
type fakeRepository struct {
	course        *models.Course
	enrollments   map[uint]*models.Enrollment
	blockProgress map[string]*models.BlockProgress
	lessonDone    map[string]*models.LessonCompletion
	moduleDone    map[string]*models.ModuleCompletion
	quizzes       map[uint]*models.Quiz
	attempts      map[uint]*models.QuizAttempt
	answers       map[string]*models.QuestionAnswer
	nextID        uint
}

func newFakeRepository(course *models.Course) *fakeRepository {
	// Wire up the parent IDs so tree fixtures only need to describe shape.
	for i := range course.Modules {
		module := &course.Modules[i]
		module.CourseID = course.ID
		for j := range module.Lessons {
			lesson := &module.Lessons[j]
			lesson.ModuleID = module.ID
			for k := range lesson.Blocks {
				lesson.Blocks[k].LessonID = lesson.ID
			}
		}
	}
	return &fakeRepository{
		course:        course,
		enrollments:   make(map[uint]*models.Enrollment),
		blockProgress: make(map[string]*models.BlockProgress),
		lessonDone:    make(map[string]*models.LessonCompletion),
		moduleDone:    make(map[string]*models.ModuleCompletion),
		quizzes:       make(map[uint]*models.Quiz),
		attempts:      make(map[uint]*models.QuizAttempt),
		answers:       make(map[string]*models.QuestionAnswer),
	}
}

func (f *fakeRepository) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepository) addEnrollment(userID string, courseID uint) *models.Enrollment {
	enrollment := &models.Enrollment{ID: f.id(), UserID: userID, CourseID: courseID}
	f.enrollments[enrollment.ID] = enrollment
	return enrollment
}

func (f *fakeRepository) addQuiz(quiz *models.Quiz) {
	f.quizzes[quiz.ID] = quiz
}

func userKey(userID string, id uint) string {
	return fmt.Sprintf("%s:%d", userID, id)
}

// ===== TREE NAVIGATION =====

func (f *fakeRepository) findBlock(id uint) *models.ContentBlock {
	for i := range f.course.Modules {
		for j := range f.course.Modules[i].Lessons {
			lesson := &f.course.Modules[i].Lessons[j]
			for k := range lesson.Blocks {
				if lesson.Blocks[k].ID == id {
					return &lesson.Blocks[k]
				}
			}
		}
	}
	return nil
}

func (f *fakeRepository) findLesson(id uint) *models.Lesson {
	for i := range f.course.Modules {
		for j := range f.course.Modules[i].Lessons {
			if f.course.Modules[i].Lessons[j].ID == id {
				return &f.course.Modules[i].Lessons[j]
			}
		}
	}
	return nil
}

func (f *fakeRepository) lessonInCourse(lessonID, courseID uint) bool {
	return courseID == f.course.ID && f.findLesson(lessonID) != nil
}

func (f *fakeRepository) blockInCourse(blockID, courseID uint) bool {
	return courseID == f.course.ID && f.findBlock(blockID) != nil
}

// ===== AGGREGATE ACCESSORS =====

func (f *fakeRepository) ContentTree() repositories.ContentTreeRepository { return fakeContentTree{f} }

func (f *fakeRepository) Enrollment() repositories.EnrollmentRepository { return fakeEnrollments{f} }

func (f *fakeRepository) BlockProgress() repositories.BlockProgressRepository {
	return fakeBlockProgress{f}
}

func (f *fakeRepository) Completion() repositories.CompletionRepository { return fakeCompletions{f} }

func (f *fakeRepository) Quiz() repositories.QuizRepository { return fakeQuizzes{f} }

func (f *fakeRepository) Attempt() repositories.AttemptRepository { return fakeAttempts{f} }

func (f *fakeRepository) Answer() repositories.AnswerRepository { return fakeAnswers{f} }

func (f *fakeRepository) User() repositories.UserRepository { return fakeUsers{} }

func (f *fakeRepository) Report() repositories.ReportRepository { return fakeReports{} }

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) Ping(ctx context.Context) error { return nil }
func (f *fakeRepository) Close() error                   { return nil }

// ===== CONTENT TREE =====

type fakeContentTree struct{ f *fakeRepository }

func (r fakeContentTree) GetCourse(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	if id != r.f.course.ID {
		return nil, gorm.ErrRecordNotFound
	}
	return r.f.course, nil
}

func (r fakeContentTree) GetCourseTree(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	return r.GetCourse(ctx, tx, id)
}

func (r fakeContentTree) GetCourseTotals(ctx context.Context, tx *gorm.DB, id uint) (*repositories.CourseTotals, error) {
	if id != r.f.course.ID {
		return nil, gorm.ErrRecordNotFound
	}
	totals := &repositories.CourseTotals{CourseID: id, ModuleCount: len(r.f.course.Modules)}
	for i := range r.f.course.Modules {
		for j := range r.f.course.Modules[i].Lessons {
			lesson := &r.f.course.Modules[i].Lessons[j]
			totals.LessonCount++
			totals.BlockCount += len(lesson.Blocks)
			for k := range lesson.Blocks {
				if lesson.Blocks[k].Required {
					totals.RequiredBlocks++
				}
			}
		}
	}
	return totals, nil
}

func (r fakeContentTree) GetModule(ctx context.Context, tx *gorm.DB, id uint) (*models.CourseModule, error) {
	for i := range r.f.course.Modules {
		if r.f.course.Modules[i].ID == id {
			return &r.f.course.Modules[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeContentTree) GetLesson(ctx context.Context, tx *gorm.DB, id uint) (*models.Lesson, error) {
	if lesson := r.f.findLesson(id); lesson != nil {
		return lesson, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeContentTree) GetLessonsByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Lesson, error) {
	if courseID != r.f.course.ID {
		return nil, nil
	}
	var lessons []*models.Lesson
	for i := range r.f.course.Modules {
		for j := range r.f.course.Modules[i].Lessons {
			lessons = append(lessons, &r.f.course.Modules[i].Lessons[j])
		}
	}
	return lessons, nil
}

func (r fakeContentTree) GetLessonsByModule(ctx context.Context, tx *gorm.DB, moduleID uint) ([]*models.Lesson, error) {
	module, err := r.GetModule(ctx, tx, moduleID)
	if err != nil {
		return nil, err
	}
	lessons := make([]*models.Lesson, 0, len(module.Lessons))
	for i := range module.Lessons {
		lessons = append(lessons, &module.Lessons[i])
	}
	return lessons, nil
}

func (r fakeContentTree) GetBlock(ctx context.Context, tx *gorm.DB, id uint) (*models.ContentBlock, error) {
	if block := r.f.findBlock(id); block != nil {
		return block, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeContentTree) GetBlockWithLesson(ctx context.Context, tx *gorm.DB, id uint) (*models.ContentBlock, error) {
	return r.GetBlock(ctx, tx, id)
}

func (r fakeContentTree) GetBlockByQuizID(ctx context.Context, tx *gorm.DB, quizID uint) (*models.ContentBlock, error) {
	for i := range r.f.course.Modules {
		for j := range r.f.course.Modules[i].Lessons {
			lesson := &r.f.course.Modules[i].Lessons[j]
			for k := range lesson.Blocks {
				block := &lesson.Blocks[k]
				if block.Type == models.BlockQuiz && uint(block.PayloadInt("quiz_id")) == quizID {
					return block, nil
				}
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeContentTree) GetBlocksByLesson(ctx context.Context, tx *gorm.DB, lessonID uint) ([]*models.ContentBlock, error) {
	lesson := r.f.findLesson(lessonID)
	if lesson == nil {
		return nil, gorm.ErrRecordNotFound
	}
	blocks := make([]*models.ContentBlock, 0, len(lesson.Blocks))
	for i := range lesson.Blocks {
		blocks = append(blocks, &lesson.Blocks[i])
	}
	return blocks, nil
}

func (r fakeContentTree) GetRequiredBlockIDsByLesson(ctx context.Context, tx *gorm.DB, lessonID uint) ([]uint, error) {
	blocks, err := r.GetBlocksByLesson(ctx, tx, lessonID)
	if err != nil {
		return nil, err
	}
	var ids []uint
	for _, block := range blocks {
		if block.Required {
			ids = append(ids, block.ID)
		}
	}
	return ids, nil
}

func (r fakeContentTree) CountRequiredBlocks(ctx context.Context, tx *gorm.DB, lessonID uint) (int64, error) {
	ids, err := r.GetRequiredBlockIDsByLesson(ctx, tx, lessonID)
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (r fakeContentTree) GetCourseIDForBlock(ctx context.Context, tx *gorm.DB, blockID uint) (uint, error) {
	if r.f.findBlock(blockID) == nil {
		return 0, gorm.ErrRecordNotFound
	}
	return r.f.course.ID, nil
}

func (r fakeContentTree) GetCourseIDForLesson(ctx context.Context, tx *gorm.DB, lessonID uint) (uint, error) {
	if r.f.findLesson(lessonID) == nil {
		return 0, gorm.ErrRecordNotFound
	}
	return r.f.course.ID, nil
}

// ===== ENROLLMENTS =====

type fakeEnrollments struct{ f *fakeRepository }

// Reads hand out snapshots, as a row scan would; only the cache-write
// methods touch the stored row. Services rely on the distinction to detect
// false-to-true completion transitions.
func copyEnrollment(enrollment *models.Enrollment) *models.Enrollment {
	snapshot := *enrollment
	return &snapshot
}

func (r fakeEnrollments) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Enrollment, error) {
	if enrollment, ok := r.f.enrollments[id]; ok {
		return copyEnrollment(enrollment), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeEnrollments) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error) {
	for _, enrollment := range r.f.enrollments {
		if enrollment.UserID == userID && enrollment.CourseID == courseID {
			return copyEnrollment(enrollment), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeEnrollments) GetByUserAndCourseForUpdate(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error) {
	return r.GetByUserAndCourse(ctx, tx, userID, courseID)
}

func (r fakeEnrollments) UpdateProgressCache(ctx context.Context, tx *gorm.DB, enrollmentID uint, update repositories.ProgressCacheUpdate) error {
	enrollment, ok := r.f.enrollments[enrollmentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	enrollment.PercentCompleted = update.PercentCompleted
	enrollment.CachedCompletedLessons = update.CompletedLessons
	enrollment.CachedTotalLessons = update.TotalLessons
	enrollment.IsCompleted = update.IsCompleted
	enrollment.CompletedAt = update.CompletedAt
	return nil
}

func (r fakeEnrollments) SetCurrentBlock(ctx context.Context, tx *gorm.DB, enrollmentID uint, blockID *uint, accessedAt time.Time) error {
	enrollment, ok := r.f.enrollments[enrollmentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	enrollment.CurrentBlockID = blockID
	enrollment.LastAccessedAt = accessedAt
	return nil
}

func (r fakeEnrollments) ResetProgressCache(ctx context.Context, tx *gorm.DB, enrollmentID uint, totalLessons int) error {
	enrollment, ok := r.f.enrollments[enrollmentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	enrollment.PercentCompleted = 0
	enrollment.IsCompleted = false
	enrollment.CompletedAt = nil
	enrollment.CachedCompletedLessons = 0
	enrollment.CachedTotalLessons = totalLessons
	enrollment.CurrentBlockID = nil
	return nil
}

func (r fakeEnrollments) ListByCourse(ctx context.Context, tx *gorm.DB, courseID uint, filters repositories.EnrollmentFilters) ([]*models.Enrollment, int64, error) {
	var matched []*models.Enrollment
	for _, enrollment := range r.f.enrollments {
		if enrollment.CourseID == courseID {
			matched = append(matched, enrollment)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := int64(len(matched))
	if filters.Offset > 0 {
		if filters.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	page := make([]*models.Enrollment, len(matched))
	for i, enrollment := range matched {
		page[i] = copyEnrollment(enrollment)
	}
	return page, total, nil
}

func (r fakeEnrollments) GetCourseStats(ctx context.Context, tx *gorm.DB, courseID uint) (*repositories.CourseProgressStats, error) {
	return &repositories.CourseProgressStats{}, nil
}

// ===== BLOCK PROGRESS =====

type fakeBlockProgress struct{ f *fakeRepository }

func (r fakeBlockProgress) Create(ctx context.Context, tx *gorm.DB, progress *models.BlockProgress) error {
	progress.ID = r.f.id()
	r.f.blockProgress[userKey(progress.UserID, progress.BlockID)] = progress
	return nil
}

func (r fakeBlockProgress) Update(ctx context.Context, tx *gorm.DB, progress *models.BlockProgress) error {
	r.f.blockProgress[userKey(progress.UserID, progress.BlockID)] = progress
	return nil
}

func (r fakeBlockProgress) GetByUserAndBlock(ctx context.Context, tx *gorm.DB, userID string, blockID uint) (*models.BlockProgress, error) {
	if progress, ok := r.f.blockProgress[userKey(userID, blockID)]; ok {
		return progress, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeBlockProgress) GetOrCreateForUpdate(ctx context.Context, tx *gorm.DB, userID string, blockID uint, enrollmentID uint) (*models.BlockProgress, bool, error) {
	if progress, ok := r.f.blockProgress[userKey(userID, blockID)]; ok {
		return progress, false, nil
	}
	progress := &models.BlockProgress{
		ID:             r.f.id(),
		UserID:         userID,
		BlockID:        blockID,
		EnrollmentID:   enrollmentID,
		LastAccessedAt: time.Now(),
	}
	r.f.blockProgress[userKey(userID, blockID)] = progress
	return progress, true, nil
}

func (r fakeBlockProgress) listByUser(userID string, keep func(blockID uint) bool) []*models.BlockProgress {
	var rows []*models.BlockProgress
	for _, progress := range r.f.blockProgress {
		if progress.UserID == userID && keep(progress.BlockID) {
			rows = append(rows, progress)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].BlockID < rows[j].BlockID })
	return rows
}

func (r fakeBlockProgress) ListByUserAndLesson(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) ([]*models.BlockProgress, error) {
	return r.listByUser(userID, func(blockID uint) bool {
		block := r.f.findBlock(blockID)
		return block != nil && block.LessonID == lessonID
	}), nil
}

func (r fakeBlockProgress) ListByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) ([]*models.BlockProgress, error) {
	return r.listByUser(userID, func(blockID uint) bool {
		return r.f.blockInCourse(blockID, courseID)
	}), nil
}

func (r fakeBlockProgress) CountCompletedInLesson(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) (int64, error) {
	ids, err := r.CompletedBlockIDsInLesson(ctx, tx, userID, lessonID)
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (r fakeBlockProgress) CompletedBlockIDsInLesson(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) ([]uint, error) {
	rows, err := r.ListByUserAndLesson(ctx, tx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	var ids []uint
	for _, progress := range rows {
		if progress.IsCompleted {
			ids = append(ids, progress.BlockID)
		}
	}
	return ids, nil
}

func (r fakeBlockProgress) SumTimeSpentByCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error) {
	var sum int64
	for _, progress := range r.f.blockProgress {
		if progress.UserID == userID && r.f.blockInCourse(progress.BlockID, courseID) {
			sum += int64(progress.TimeSpentSeconds)
		}
	}
	return sum, nil
}

func (r fakeBlockProgress) DeleteByEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID uint) (int64, error) {
	var deleted int64
	for key, progress := range r.f.blockProgress {
		if progress.EnrollmentID == enrollmentID {
			delete(r.f.blockProgress, key)
			deleted++
		}
	}
	return deleted, nil
}

// ===== COMPLETIONS =====

type fakeCompletions struct{ f *fakeRepository }

func (r fakeCompletions) LessonCompleted(ctx context.Context, tx *gorm.DB, userID string, lessonID uint) (bool, error) {
	_, ok := r.f.lessonDone[userKey(userID, lessonID)]
	return ok, nil
}

func (r fakeCompletions) MarkLessonComplete(ctx context.Context, tx *gorm.DB, completion *models.LessonCompletion) (bool, error) {
	key := userKey(completion.UserID, completion.LessonID)
	if _, ok := r.f.lessonDone[key]; ok {
		return false, nil
	}
	completion.ID = r.f.id()
	r.f.lessonDone[key] = completion
	return true, nil
}

func (r fakeCompletions) CountCompletedLessons(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error) {
	ids, err := r.CompletedLessonIDs(ctx, tx, userID, courseID)
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (r fakeCompletions) CompletedLessonIDs(ctx context.Context, tx *gorm.DB, userID string, courseID uint) ([]uint, error) {
	var ids []uint
	for _, completion := range r.f.lessonDone {
		if completion.UserID == userID && r.f.lessonInCourse(completion.LessonID, courseID) {
			ids = append(ids, completion.LessonID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r fakeCompletions) ModuleCompleted(ctx context.Context, tx *gorm.DB, userID string, moduleID uint) (bool, error) {
	_, ok := r.f.moduleDone[userKey(userID, moduleID)]
	return ok, nil
}

func (r fakeCompletions) MarkModuleComplete(ctx context.Context, tx *gorm.DB, completion *models.ModuleCompletion) (bool, error) {
	key := userKey(completion.UserID, completion.ModuleID)
	if _, ok := r.f.moduleDone[key]; ok {
		return false, nil
	}
	completion.ID = r.f.id()
	r.f.moduleDone[key] = completion
	return true, nil
}

func (r fakeCompletions) CountCompletedModules(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error) {
	var count int64
	for _, completion := range r.f.moduleDone {
		if completion.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r fakeCompletions) DeleteByEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID uint) (int64, int64, error) {
	var lessons, modules int64
	for key, completion := range r.f.lessonDone {
		if completion.EnrollmentID == enrollmentID {
			delete(r.f.lessonDone, key)
			lessons++
		}
	}
	for key, completion := range r.f.moduleDone {
		if completion.EnrollmentID == enrollmentID {
			delete(r.f.moduleDone, key)
			modules++
		}
	}
	return lessons, modules, nil
}

// ===== QUIZZES =====

type fakeQuizzes struct{ f *fakeRepository }

func (r fakeQuizzes) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	if quiz, ok := r.f.quizzes[id]; ok {
		return quiz, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeQuizzes) GetWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	return r.GetByID(ctx, tx, id)
}

func (r fakeQuizzes) GetQuestion(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizQuestion, error) {
	for _, quiz := range r.f.quizzes {
		for i := range quiz.Questions {
			if quiz.Questions[i].ID == id {
				return &quiz.Questions[i], nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeQuizzes) GetQuestionsByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.QuizQuestion, error) {
	var questions []*models.QuizQuestion
	for _, id := range ids {
		question, err := r.GetQuestion(ctx, tx, id)
		if err != nil {
			continue
		}
		questions = append(questions, question)
	}
	return questions, nil
}

func (r fakeQuizzes) CountQuestions(ctx context.Context, tx *gorm.DB, quizID uint) (int64, error) {
	quiz, err := r.GetByID(ctx, tx, quizID)
	if err != nil {
		return 0, err
	}
	return int64(len(quiz.Questions)), nil
}

func (r fakeQuizzes) GetStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.QuizStats, error) {
	return &repositories.QuizStats{}, nil
}

// ===== ATTEMPTS =====

type fakeAttempts struct{ f *fakeRepository }

func (r fakeAttempts) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	attempt.ID = r.f.id()
	r.f.attempts[attempt.ID] = attempt
	return nil
}

func (r fakeAttempts) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	if attempt, ok := r.f.attempts[id]; ok {
		return attempt, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeAttempts) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	attempt, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	attempt.Answers = nil
	for _, answer := range r.f.answers {
		if answer.AttemptID == id {
			attempt.Answers = append(attempt.Answers, *answer)
		}
	}
	return attempt, nil
}

func (r fakeAttempts) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	if _, ok := r.f.attempts[attempt.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.f.attempts[attempt.ID] = attempt
	return nil
}

func (r fakeAttempts) CountByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int64, error) {
	var count int64
	for _, attempt := range r.f.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID {
			count++
		}
	}
	return count, nil
}

func (r fakeAttempts) GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.QuizAttempt, error) {
	for _, attempt := range r.f.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID && attempt.Status == models.AttemptInProgress {
			return attempt, nil
		}
	}
	return nil, nil
}

func (r fakeAttempts) list(keep func(*models.QuizAttempt) bool) []*models.QuizAttempt {
	var matched []*models.QuizAttempt
	for _, attempt := range r.f.attempts {
		if keep(attempt) {
			matched = append(matched, attempt)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].AttemptNumber < matched[j].AttemptNumber })
	return matched
}

func (r fakeAttempts) ListByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	matched := r.list(func(a *models.QuizAttempt) bool {
		return a.UserID == userID && a.QuizID == quizID
	})
	return matched, int64(len(matched)), nil
}

func (r fakeAttempts) ListByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	matched := r.list(func(a *models.QuizAttempt) bool { return a.QuizID == quizID })
	return matched, int64(len(matched)), nil
}

func (r fakeAttempts) ListGradedByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) ([]*models.QuizAttempt, error) {
	return r.list(func(a *models.QuizAttempt) bool {
		return a.UserID == userID && a.QuizID == quizID && a.Status == models.AttemptGraded
	}), nil
}

func (r fakeAttempts) DeleteByEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID uint) (int64, error) {
	var deleted int64
	for id, attempt := range r.f.attempts {
		if attempt.EnrollmentID != nil && *attempt.EnrollmentID == enrollmentID {
			delete(r.f.attempts, id)
			deleted++
		}
	}
	return deleted, nil
}

// ===== ANSWERS =====

type fakeAnswers struct{ f *fakeRepository }

func answerKey(attemptID, questionID uint) string {
	return fmt.Sprintf("%d:%d", attemptID, questionID)
}

func (r fakeAnswers) Upsert(ctx context.Context, tx *gorm.DB, answer *models.QuestionAnswer) error {
	key := answerKey(answer.AttemptID, answer.QuestionID)
	if existing, ok := r.f.answers[key]; ok {
		answer.ID = existing.ID
	} else {
		answer.ID = r.f.id()
	}
	r.f.answers[key] = answer
	return nil
}

func (r fakeAnswers) Update(ctx context.Context, tx *gorm.DB, answer *models.QuestionAnswer) error {
	r.f.answers[answerKey(answer.AttemptID, answer.QuestionID)] = answer
	return nil
}

func (r fakeAnswers) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuestionAnswer, error) {
	var answers []*models.QuestionAnswer
	for _, answer := range r.f.answers {
		if answer.AttemptID == attemptID {
			answers = append(answers, answer)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })
	return answers, nil
}

func (r fakeAnswers) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.QuestionAnswer, error) {
	if answer, ok := r.f.answers[answerKey(attemptID, questionID)]; ok {
		return answer, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeAnswers) CountUngraded(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	var count int64
	for _, answer := range r.f.answers {
		if answer.AttemptID == attemptID && !answer.IsGraded {
			count++
		}
	}
	return count, nil
}

// ===== USERS / REPORTS =====

type fakeUsers struct{}

func (fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (fakeUsers) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	return nil, nil
}

func (fakeUsers) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	return nil, 0, nil
}

func (fakeUsers) ExistsByID(ctx context.Context, id string) (bool, error) { return false, nil }

func (fakeUsers) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	return false, nil
}

type fakeReports struct{}

func (fakeReports) GetStudentProgress(ctx context.Context, tx *gorm.DB, courseID uint, filters repositories.EnrollmentFilters) ([]*models.StudentProgressRow, int64, error) {
	return nil, 0, nil
}

func (fakeReports) GetTimeSpentByLesson(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (map[uint]int, error) {
	return map[uint]int{}, nil
}

func (fakeReports) GetQuizResults(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	return nil, 0, nil
}

// ===== SERVICE FIXTURE =====

type serviceFixture struct {
	repo        *fakeRepository
	publisher   *events.MockEventPublisher
	progress    ProgressService
	attempts    AttemptService
	aggregation AggregationService
}

func newServiceFixture(course *models.Course) *serviceFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newFakeRepository(course)
	publisher := events.NewMockEventPublisher(logger)
	cacheManager := cache.NewCacheManager(nil)
	v := validator.New()
	aggregation := NewAggregationService(repo, nil, logger, publisher, cacheManager)
	return &serviceFixture{
		repo:        repo,
		publisher:   publisher,
		aggregation: aggregation,
		progress:    NewProgressService(repo, nil, logger, v, publisher, cacheManager, aggregation),
		attempts:    NewAttemptService(repo, nil, logger, v, publisher, cacheManager),
	}
}
