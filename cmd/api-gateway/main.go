package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/uat-crowdtest-api/internal/handler"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/internal/repository"
	"github.com/noah-isme/uat-crowdtest-api/internal/service"
	"github.com/noah-isme/uat-crowdtest-api/pkg/cache"
	"github.com/noah-isme/uat-crowdtest-api/pkg/config"
	"github.com/noah-isme/uat-crowdtest-api/pkg/database"
	"github.com/noah-isme/uat-crowdtest-api/pkg/logger"
	"github.com/noah-isme/uat-crowdtest-api/pkg/tracing"
)

// @title UAT Crowdtest API
// @version 1.0.0
// @description Task lifecycle and validation gating engine for crowdsourced user acceptance testing
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.Env)
	if err != nil {
		logr.Sugar().Fatalw("failed to init tracing", "error", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			logr.Sugar().Fatalw("failed to apply migrations", "error", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "addr", cache.Addr(cfg.Redis), "error", err)
		} else {
			defer redisClient.Close()
		}
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "uat", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	tx := repository.NewTransactor(db)
	applications := repository.NewApplicationRepository(db)
	testCases := repository.NewTestCaseRepository(db)
	tasks := repository.NewUATTaskRepository(db)
	bugs := repository.NewBugReportRepository(db)
	validations := repository.NewValidationRepository(db)
	statistics := repository.NewStatisticsRepository(db)

	audit := service.NewAuditDispatcher(repository.NewAuditRepository(db), metrics, service.AuditDispatcherConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
	}, logr)
	audit.Start(context.Background())

	v := service.NewValidator()
	readinessSvc := service.NewReadinessService(tasks, bugs, metrics, logr)
	lifecycleSvc := service.NewTaskLifecycleService(service.TaskLifecycleParams{
		Tx:          tx,
		Tasks:       tasks,
		Validations: validations,
		Readiness:   readinessSvc,
		Audit:       audit,
		Metrics:     metrics,
		Validator:   v,
		Logger:      logr,
	})
	validationSvc := service.NewValidationService(service.ValidationParams{
		Tx:          tx,
		Tasks:       tasks,
		Bugs:        bugs,
		Validations: validations,
		Readiness:   readinessSvc,
		Lifecycle:   lifecycleSvc,
		Audit:       audit,
		Metrics:     metrics,
		Validator:   v,
		Logger:      logr,
	})
	assignmentSvc := service.NewAssignmentService(service.AssignmentParams{
		Tx:             tx,
		Tasks:          tasks,
		TestCases:      testCases,
		Applications:   applications,
		Cache:          cacheSvc,
		Audit:          audit,
		Metrics:        metrics,
		MaxActiveTasks: cfg.Assignment.MaxActiveTasks,
		Logger:         logr,
	})
	statisticsSvc := service.NewStatisticsService(applications, statistics, models.AcceptancePolicy{
		AcceptThreshold:      cfg.Acceptance.AcceptThreshold,
		ProvisionalThreshold: cfg.Acceptance.ProvisionalThreshold,
		ConditionalThreshold: cfg.Acceptance.ConditionalThreshold,
	}, metrics, logr)

	checks := map[string]handler.HealthCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := newRouter(cfg, logr, metrics, routes{
		tokens:       service.NewTokenVerifier(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Audience: cfg.JWT.Audience}, logr),
		applications: handler.NewApplicationHandler(service.NewApplicationService(applications, cacheSvc, audit, v, logr)),
		testCases:    handler.NewTestCaseHandler(service.NewTestCaseService(testCases, applications, cacheSvc, audit, v, logr)),
		tasks:        handler.NewTaskHandler(lifecycleSvc, assignmentSvc),
		bugReports:   handler.NewBugReportHandler(service.NewBugReportService(tx, bugs, tasks, audit, v, logr)),
		validations:  handler.NewValidationHandler(validationSvc, readinessSvc),
		reports:      handler.NewReportHandler(statisticsSvc, service.NewExportService(statisticsSvc, logr, nil, nil)),
		metrics:      handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("http shutdown", "error", err)
	}
	audit.Stop(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Sugar().Warnw("tracing shutdown", "error", err)
	}
}
