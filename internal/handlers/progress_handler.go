package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/progress-service/internal/services"
	"github.com/SAP-F-2025/progress-service/internal/utils"
	"github.com/SAP-F-2025/progress-service/internal/validator"
)

type ProgressHandler struct {
	BaseHandler
	progressService services.ProgressService
	validator       *validator.Validator
}

func NewProgressHandler(
	progressService services.ProgressService,
	validator *validator.Validator,
	logger utils.Logger,
) *ProgressHandler {
	return &ProgressHandler{
		BaseHandler:     NewBaseHandler(logger),
		progressService: progressService,
		validator:       validator,
	}
}

// Heartbeat records watch/read time for a content block
// @Summary Record progress heartbeat
// @Description Accumulates time spent on a block and evaluates its completion rule
// @Tags progress
// @Accept json
// @Produce json
// @Param heartbeat body services.HeartbeatRequest true "Heartbeat data"
// @Success 200 {object} services.HeartbeatResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /progress/heartbeat [post]
func (h *ProgressHandler) Heartbeat(c *gin.Context) {
	var req services.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	resp, err := h.progressService.Heartbeat(c.Request.Context(), &req, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CompleteBlock explicitly marks a block complete
// @Summary Mark a block complete
// @Description Marks a non-quiz block complete (read confirmation, file download)
// @Tags progress
// @Accept json
// @Produce json
// @Param block body services.CompleteBlockRequest true "Block to complete"
// @Success 200 {object} services.CompleteBlockResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /progress/complete-block [post]
func (h *ProgressHandler) CompleteBlock(c *gin.Context) {
	var req services.CompleteBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	h.LogRequest(c, "Completing block", "block_id", req.BlockID)

	resp, err := h.progressService.CompleteBlock(c.Request.Context(), &req, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetCourseProgress returns the full progress tree for a course
// @Summary Get course progress
// @Description Returns cached course percent plus per-module and per-lesson completion
// @Tags progress
// @Produce json
// @Param course_id path uint true "Course ID"
// @Success 200 {object} services.CourseProgressResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /progress/courses/{course_id} [get]
func (h *ProgressHandler) GetCourseProgress(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	resp, err := h.progressService.GetCourseProgress(c.Request.Context(), courseID, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetLessonProgress returns block-level progress within one lesson
// @Summary Get lesson progress
// @Description Returns per-block completion state for a lesson
// @Tags progress
// @Produce json
// @Param lesson_id path uint true "Lesson ID"
// @Success 200 {object} services.LessonProgress
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /progress/lessons/{lesson_id} [get]
func (h *ProgressHandler) GetLessonProgress(c *gin.Context) {
	lessonID := h.parseIDParam(c, "lesson_id")
	if lessonID == 0 {
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	resp, err := h.progressService.GetLessonProgress(c.Request.Context(), lessonID, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetResumePoint returns where the learner should continue a course
// @Summary Get resume point
// @Description Resolves the block a learner should land on when reopening a course
// @Tags progress
// @Produce json
// @Param course_id path uint true "Course ID"
// @Success 200 {object} models.ResumePoint
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /progress/courses/{course_id}/resume [get]
func (h *ProgressHandler) GetResumePoint(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	resp, err := h.progressService.GetResumePoint(c.Request.Context(), courseID, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ResetProgress wipes a learner's progress in a course
// @Summary Reset progress
// @Description Deletes all block, lesson, module and attempt records for an enrollment
// @Tags progress
// @Accept json
// @Produce json
// @Param reset body services.ResetProgressRequest true "Enrollment to reset"
// @Success 200 {object} models.ResetProgressResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /progress/reset [post]
func (h *ProgressHandler) ResetProgress(c *gin.Context) {
	var req services.ResetProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	requestedBy, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	h.LogRequest(c, "Resetting progress", "target_user_id", req.UserID, "course_id", req.CourseID)

	result, err := h.progressService.ResetProgress(c.Request.Context(), &req, requestedBy.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RecomputeProgress rebuilds one enrollment's completion cascade
// @Summary Recompute progress
// @Description Rebuilds lesson/module/course completion for one enrollment from raw block progress
// @Tags progress
// @Accept json
// @Produce json
// @Param recompute body services.RecomputeProgressRequest true "Enrollment to recompute"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /progress/recompute [post]
func (h *ProgressHandler) RecomputeProgress(c *gin.Context) {
	var req services.RecomputeProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Recomputing progress", "target_user_id", req.UserID, "course_id", req.CourseID)

	if err := h.progressService.RecomputeProgress(c.Request.Context(), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Progress recomputed",
	})
}

// HandleContentChange re-syncs cached totals after a course was edited
// @Summary Notify content change
// @Description Recomputes cached lesson totals for every enrollment of a course
// @Tags progress
// @Accept json
// @Produce json
// @Param change body services.ContentChangeRequest true "Changed course"
// @Success 202 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /progress/content-change [post]
func (h *ProgressHandler) HandleContentChange(c *gin.Context) {
	var req services.ContentChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Handling content change", "course_id", req.CourseID)

	if err := h.progressService.HandleContentChange(c.Request.Context(), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{
		Message: "Course totals re-synced",
	})
}

func (h *ProgressHandler) parseIDParam(c *gin.Context, param string) uint {
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

func (h *ProgressHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule": businessRuleError.Rule,
			},
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Course not found",
		})
	case errors.Is(err, services.ErrLessonNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Lesson not found",
		})
	case errors.Is(err, services.ErrBlockNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Block not found",
		})
	case errors.Is(err, services.ErrEnrollmentNotFound), errors.Is(err, services.ErrNotEnrolled):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Enrollment not found",
		})
	default:
		h.logger.Error("Unhandled service error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
