package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/progress-service/internal/config"
	"github.com/SAP-F-2025/progress-service/internal/models"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/SAP-F-2025/progress-service/internal/services"
	"github.com/SAP-F-2025/progress-service/internal/utils"
	"github.com/SAP-F-2025/progress-service/internal/validator"
)

type HandlerManager struct {
	progressHandler *ProgressHandler
	attemptHandler  *AttemptHandler
	reportHandler   *ReportHandler
	authMiddleware  *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager *services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		progressHandler: NewProgressHandler(serviceManager.Progress(), validator, logger),
		attemptHandler:  NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		reportHandler:   NewReportHandler(serviceManager.Report(), logger),
		authMiddleware:  authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Progress routes
		progress := v1.Group("/progress")
		{
			// Learner-facing progress tracking
			progress.POST("/heartbeat", hm.progressHandler.Heartbeat)
			progress.POST("/complete-block", hm.progressHandler.CompleteBlock)
			progress.GET("/courses/:course_id", hm.progressHandler.GetCourseProgress)
			progress.GET("/courses/:course_id/resume", hm.progressHandler.GetResumePoint)
			progress.GET("/lessons/:lesson_id", hm.progressHandler.GetLessonProgress)

			// Administrative operations - Teachers and Admins only
			progress.POST("/reset", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.progressHandler.ResetProgress)
			progress.POST("/content-change", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.progressHandler.HandleContentChange)
			progress.POST("/recompute", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.progressHandler.RecomputeProgress)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.POST("/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.POST("/:id/answer", hm.attemptHandler.SubmitAnswer)

			// Manual grading and regrading - Teachers and Admins only
			attempts.POST("/grade-essay", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.attemptHandler.GradeEssay)
			attempts.POST("/:id/regrade", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.attemptHandler.RegradeAttempt)
		}

		// Quiz-scoped attempt views
		quizzes := v1.Group("/quizzes")
		{
			quizzes.GET("/:quiz_id/attempts", hm.attemptHandler.ListAttempts)
			quizzes.GET("/:quiz_id/result", hm.attemptHandler.GetQuizResult)
		}

		// Report routes - Teachers and Admins only
		reports := v1.Group("/reports")
		reports.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin))
		{
			reports.GET("/courses/:course_id/progress", hm.reportHandler.GetCourseProgressReport)
			reports.GET("/courses/:course_id/progress/export", hm.reportHandler.ExportCourseProgress)
			reports.GET("/quizzes/:quiz_id/results", hm.reportHandler.GetQuizResults)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "progress-service",
		})
	})
}
