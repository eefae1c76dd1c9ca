package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type reportService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewReportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ReportService {
	return &reportService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

func (s *reportService) GetCourseProgressReport(ctx context.Context, courseID uint, filters repositories.EnrollmentFilters) (*CourseProgressReport, error) {
	if _, err := s.repo.ContentTree().GetCourse(ctx, nil, courseID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	rows, total, err := s.repo.Report().GetStudentProgress(ctx, nil, courseID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get student progress: %w", err)
	}
	stats, err := s.repo.Enrollment().GetCourseStats(ctx, nil, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get course stats: %w", err)
	}

	return &CourseProgressReport{
		CourseID: courseID,
		Stats:    stats,
		Rows:     rows,
		Total:    total,
	}, nil
}

// ExportCourseProgressXLSX renders the full progress report as a spreadsheet
// for instructor download.
func (s *reportService) ExportCourseProgressXLSX(ctx context.Context, courseID uint) ([]byte, error) {
	report, err := s.GetCourseProgressReport(ctx, courseID, repositories.EnrollmentFilters{})
	if err != nil {
		return nil, err
	}

	names := s.lookupUserNames(ctx, report.Rows)

	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Warn("failed to close spreadsheet", "error", closeErr)
		}
	}()

	const sheet = "Progress"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headers := []string{"Student ID", "Student Name", "Percent Completed", "Completed Lessons", "Total Lessons", "Completed", "Completed At", "Last Accessed"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for rowIdx, row := range report.Rows {
		completedAt := ""
		if row.CompletedAt != nil {
			completedAt = row.CompletedAt.Format("2006-01-02 15:04:05")
		}
		values := []interface{}{
			row.UserID,
			names[row.UserID],
			row.PercentCompleted,
			row.CompletedLessons,
			row.TotalLessons,
			row.IsCompleted,
			completedAt,
			row.LastAccessedAt.Format("2006-01-02 15:04:05"),
		}
		for colIdx, value := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", rowIdx+2, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render spreadsheet: %w", err)
	}

	s.logger.Info("progress report exported", "course_id", courseID, "rows", len(report.Rows))
	return buf.Bytes(), nil
}

func (s *reportService) GetQuizResults(ctx context.Context, quizID uint, filters repositories.AttemptFilters) (*QuizResultsReport, error) {
	if _, err := s.repo.Quiz().GetByID(ctx, nil, quizID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	attempts, total, err := s.repo.Report().GetQuizResults(ctx, nil, quizID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz results: %w", err)
	}
	stats, err := s.repo.Quiz().GetStats(ctx, nil, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz stats: %w", err)
	}

	return &QuizResultsReport{
		QuizID:   quizID,
		Stats:    stats,
		Attempts: attempts,
		Total:    total,
	}, nil
}

// lookupUserNames resolves display names best effort; export still works
// when the identity provider is unreachable.
func (s *reportService) lookupUserNames(ctx context.Context, rows []*models.StudentProgressRow) map[string]string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names
	}

	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve user names for report", "error", err)
		return names
	}
	for _, user := range users {
		names[user.ID] = user.FullName
	}
	return names
}
