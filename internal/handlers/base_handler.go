package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/utils"
)

// Shared response envelopes, reused by every handler.
type ErrorResponse = models.ErrorResponse
type SuccessResponse = models.SuccessResponse

// BaseHandler carries the pieces every HTTP handler needs.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs an incoming request with its request ID attached.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	logArgs := append([]any{
		"request_id", c.GetString("request_id"),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}, args...)
	h.logger.Info(msg, logArgs...)
}
