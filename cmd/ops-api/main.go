package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/nautilusdive/ops-api/api/swagger"
	"github.com/nautilusdive/ops-api/internal/handler"
	"github.com/nautilusdive/ops-api/internal/mailer"
	"github.com/nautilusdive/ops-api/internal/middleware"
	"github.com/nautilusdive/ops-api/internal/models"
	"github.com/nautilusdive/ops-api/internal/repository"
	"github.com/nautilusdive/ops-api/internal/service"
	"github.com/nautilusdive/ops-api/pkg/cache"
	"github.com/nautilusdive/ops-api/pkg/config"
	"github.com/nautilusdive/ops-api/pkg/database"
	"github.com/nautilusdive/ops-api/pkg/logger"
	corsmiddleware "github.com/nautilusdive/ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/nautilusdive/ops-api/pkg/middleware/requestid"
	"github.com/nautilusdive/ops-api/pkg/storage"
)

// @title Nautilus Dive Ops API
// @version 1.0.0
// @description Dive shop operations: course enrollment, prerequisites, requirement checklists and schedules.
// @BasePath /api/v1
// @schemes http
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metricsService := service.NewMetricsService()

	// Redis is optional: without it the API runs uncached.
	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Eligibility.CacheTTL, logr, cfg.Eligibility.CacheEnabled && cacheRepo != nil)

	store, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	requirementRepo := repository.NewRequirementRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	mail := mailer.New(mailer.Config{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromAddress: cfg.SMTP.FromAddress,
		FromName:    cfg.SMTP.FromName,
		Workers:     cfg.SMTP.Workers,
		MaxRetries:  cfg.SMTP.MaxRetries,
		SendTimeout: cfg.SMTP.SendTimeout,
	}, nil, logr)
	mailCtx, stopMail := context.WithCancel(context.Background())
	mail.Start(mailCtx)
	defer func() {
		stopMail()
		mail.Stop()
	}()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "nautilus-ops-api",
	})
	prerequisiteService := service.NewPrerequisiteService(customerRepo, courseRepo, cacheService, cfg.Eligibility.CacheTTL, logr)
	courseService := service.NewCourseService(courseRepo, cacheService, logr)
	scheduleService := service.NewScheduleService(scheduleRepo, logr)
	customerService := service.NewCustomerService(customerRepo, notificationRepo, logr)
	notificationService := service.NewNotificationService(notificationRepo, logr)
	requirementService := service.NewRequirementService(requirementRepo, courseRepo, store, signer, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, scheduleRepo, userRepo, validate, logr, 30*time.Second)

	workflow := service.NewWorkflowOrchestrator(enrollmentRepo, scheduleRepo, requirementService, notificationService, mail, userRepo, notificationRepo, service.WorkflowConfig{
		AppURL:           cfg.AppURL,
		StepTimeout:      cfg.Workflow.StepTimeout,
		WaiverExpiryDays: cfg.Waivers.ExpiryDays,
	}, logr)
	enrollmentService.SetWorkflow(workflow)
	requirementService.SetReadySignal(workflow)

	authHandler := handler.NewAuthHandler(authService)
	courseHandler := handler.NewCourseHandler(courseService, prerequisiteService)
	customerHandler := handler.NewCustomerHandler(customerService, prerequisiteService, enrollmentService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService, enrollmentService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	requirementHandler := handler.NewRequirementHandler(requirementService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	// Signed token downloads carry their own authorization.
	api.GET("/evidence/download", requirementHandler.DownloadEvidence)

	staff := api.Group("")
	staff.Use(middleware.JWT(authService))
	{
		staff.GET("/courses", courseHandler.List)
		staff.GET("/courses/:id", courseHandler.Get)
		staff.GET("/courses/:id/requirements", courseHandler.Requirements)
		staff.GET("/courses/:id/eligibility/:customerId", courseHandler.Eligibility)
		staff.GET("/courses/:id/schedules", scheduleHandler.ListAvailable)

		staff.GET("/customers/:id/profile", customerHandler.Profile)
		staff.GET("/customers/:id/available-courses", customerHandler.AvailableCourses)
		staff.GET("/customers/:id/enrollments", customerHandler.History)

		staff.GET("/schedules/:id", scheduleHandler.Get)
		staff.GET("/schedules/:id/roster", enrollmentHandler.Roster)
		staff.GET("/schedules/:id/roster/export", enrollmentHandler.ExportRoster)
		staff.GET("/instructors/:id/schedules", scheduleHandler.ListByInstructor)

		staff.POST("/enrollments",
			middleware.RequireRoles(models.RoleAdmin, models.RoleManager, models.RoleStaff),
			enrollmentHandler.Create)
		staff.GET("/enrollments/:id", enrollmentHandler.Get)
		staff.PUT("/enrollments/:id/transfer",
			middleware.RequireRoles(models.RoleAdmin, models.RoleManager),
			enrollmentHandler.Transfer)
		staff.DELETE("/enrollments/:id",
			middleware.RequireRoles(models.RoleAdmin, models.RoleManager),
			enrollmentHandler.Cancel)
		staff.PUT("/enrollments/:id/status",
			middleware.RequireRoles(models.RoleAdmin, models.RoleManager, models.RoleInstructor),
			enrollmentHandler.UpdateStatus)
		staff.GET("/enrollments/:id/requirements", requirementHandler.List)

		staff.PUT("/requirements/:id/complete",
			middleware.Audit(userRepo, models.AuditActionRequirementVerify, "requirement"),
			requirementHandler.Complete)
		staff.POST("/requirements/:id/evidence", requirementHandler.UploadEvidence)
		staff.GET("/requirements/:id/evidence-url", requirementHandler.EvidenceURL)

		staff.POST("/schedules/:id/reconcile",
			middleware.RequireRoles(models.RoleAdmin, models.RoleManager),
			scheduleHandler.Reconcile)

		staff.GET("/notifications", notificationHandler.List)
		staff.PUT("/notifications/:id/read", notificationHandler.MarkRead)

		staff.GET("/ops/metrics", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
