package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/uat-crowdtest-api/api/swagger"
	"github.com/noah-isme/uat-crowdtest-api/internal/handler"
	"github.com/noah-isme/uat-crowdtest-api/internal/middleware"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/internal/service"
	"github.com/noah-isme/uat-crowdtest-api/pkg/config"
	"github.com/noah-isme/uat-crowdtest-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uat-crowdtest-api/pkg/middleware/cors"
	ratelimitmiddleware "github.com/noah-isme/uat-crowdtest-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/uat-crowdtest-api/pkg/middleware/requestid"
	"github.com/noah-isme/uat-crowdtest-api/pkg/tracing"
)

type routes struct {
	tokens       *service.TokenVerifier
	applications *handler.ApplicationHandler
	testCases    *handler.TestCaseHandler
	tasks        *handler.TaskHandler
	bugReports   *handler.BugReportHandler
	validations  *handler.ValidationHandler
	reports      *handler.ReportHandler
	metrics      *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, h routes) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(tracing.Middleware(cfg.Tracing.ServiceName))
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(ratelimitmiddleware.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, ratelimitmiddleware.ClientIP))
	api.Use(middleware.JWT(h.tokens))
	api.Use(middleware.AuditMeta())

	client := middleware.RequireRoles(models.RoleClient)
	qa := middleware.RequireRoles(models.RoleQASpecialist)
	worker := middleware.RequireRoles(models.RoleCrowdworker)
	reviewers := middleware.RequireRoles(models.RoleClient, models.RoleQASpecialist)
	staffing := middleware.RequireRoles(models.RoleCrowdworker, models.RoleQASpecialist)

	apps := api.Group("/applications")
	apps.POST("", client, h.applications.Create)
	apps.GET("", h.applications.List)
	apps.GET("/:id", h.applications.Get)
	apps.PATCH("/:id", client, h.applications.Update)
	apps.PATCH("/:id/status", client, h.applications.UpdateStatus)
	apps.POST("/:id/test-cases", qa, h.testCases.Create)
	apps.GET("/:id/test-cases", h.testCases.List)
	apps.POST("/:id/pick", worker, h.tasks.Pick)
	apps.GET("/:id/statistics", reviewers, h.reports.Statistics)
	apps.GET("/:id/progress", reviewers, h.reports.Progress)
	apps.GET("/:id/final-report", reviewers, h.reports.FinalReport)
	apps.GET("/:id/final-report/export", reviewers, h.reports.ExportFinalReport)

	api.PUT("/test-cases/:id", qa, h.testCases.Update)
	api.DELETE("/test-cases/:id", qa, h.testCases.Delete)

	tasks := api.Group("/uat-tasks")
	tasks.POST("", worker, h.tasks.Assign)
	tasks.GET("", h.tasks.List)
	tasks.GET("/:id", h.tasks.Get)
	tasks.POST("/:id/start", worker, h.tasks.Start)
	tasks.POST("/:id/complete", worker, h.tasks.Complete)
	tasks.POST("/:id/start-revision", worker, h.tasks.StartRevision)
	tasks.PUT("/:id/execution", worker, h.tasks.RecordExecution)
	tasks.POST("/:id/bug-reports", worker, h.bugReports.Create)
	tasks.GET("/:id/bug-reports", h.bugReports.List)

	api.GET("/workers/:id/can-assign", staffing, h.tasks.CanAssign)

	api.PUT("/bug-reports/:id", worker, h.bugReports.Update)
	api.GET("/bug-reports/:id/validations", h.validations.ListBugValidations)

	api.POST("/bug-validations", qa, h.validations.CreateBugValidation)
	api.PATCH("/bug-validations/:id", qa, h.validations.UpdateBugValidation)
	api.PUT("/bug-validations/:id/complete", qa, h.validations.CompleteBugValidation)

	api.POST("/task-validations", qa, h.validations.CreateTaskValidation)
	api.GET("/task-validations/check-readiness/:taskId", h.validations.CheckReadiness)
	api.GET("/task-validations/:taskId", h.validations.GetTaskValidation)

	return r
}
