package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/SAP-F-2025/progress-service/internal/services"
	"github.com/SAP-F-2025/progress-service/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	BaseHandler
	reportService services.ReportService
}

func NewReportHandler(reportService services.ReportService, logger utils.Logger) *ReportHandler {
	return &ReportHandler{
		BaseHandler:   NewBaseHandler(logger),
		reportService: reportService,
	}
}

// GetCourseProgressReport returns per-student progress for a course
// @Summary Course progress report
// @Description Returns per-student progress rows plus aggregate course stats
// @Tags reports
// @Produce json
// @Param course_id path uint true "Course ID"
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(50)
// @Param completed query bool false "Filter by completion state"
// @Success 200 {object} services.CourseProgressReport
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /reports/courses/{course_id}/progress [get]
func (h *ReportHandler) GetCourseProgressReport(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	h.LogRequest(c, "Building course progress report", "course_id", courseID)

	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 50)
	if size > 500 {
		size = 500
	}

	filters := repositories.EnrollmentFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.DefaultQuery("sort_by", "percent_completed"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	if completedStr := c.Query("completed"); completedStr != "" {
		completed, err := strconv.ParseBool(completedStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid completed filter",
				Details: err.Error(),
			})
			return
		}
		filters.IsCompleted = &completed
	}

	report, err := h.reportService.GetCourseProgressReport(c.Request.Context(), courseID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// ExportCourseProgress streams the course progress report as an XLSX file
// @Summary Export course progress
// @Description Downloads the per-student progress report as a spreadsheet
// @Tags reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param course_id path uint true "Course ID"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /reports/courses/{course_id}/progress/export [get]
func (h *ReportHandler) ExportCourseProgress(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	h.LogRequest(c, "Exporting course progress", "course_id", courseID)

	data, err := h.reportService.ExportCourseProgressXLSX(c.Request.Context(), courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("course_%d_progress_%s.xlsx", courseID, time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// GetQuizResults returns all graded attempts for a quiz
// @Summary Quiz results report
// @Description Returns attempts for a quiz with aggregate pass/score stats
// @Tags reports
// @Produce json
// @Param quiz_id path uint true "Quiz ID"
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(50)
// @Param user_id query string false "Filter by learner"
// @Success 200 {object} services.QuizResultsReport
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /reports/quizzes/{quiz_id}/results [get]
func (h *ReportHandler) GetQuizResults(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	h.LogRequest(c, "Building quiz results report", "quiz_id", quizID)

	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 50)
	if size > 500 {
		size = 500
	}

	filters := repositories.AttemptFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}
	if userID := c.Query("user_id"); userID != "" {
		filters.UserID = &userID
	}

	report, err := h.reportService.GetQuizResults(c.Request.Context(), quizID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *ReportHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: err.Error(),
		})
		return 0
	}
	return uint(id)
}

func (h *ReportHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 1 {
		return defaultValue
	}
	return value
}

func (h *ReportHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Course not found",
		})
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz not found",
		})
	default:
		h.logger.Error("Unhandled service error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
