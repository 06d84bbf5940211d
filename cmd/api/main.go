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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/lingoria/school-ops-api/api/swagger"
	"github.com/lingoria/school-ops-api/internal/handler"
	"github.com/lingoria/school-ops-api/internal/repository"
	"github.com/lingoria/school-ops-api/internal/router"
	"github.com/lingoria/school-ops-api/internal/scheduler"
	"github.com/lingoria/school-ops-api/internal/service"
	"github.com/lingoria/school-ops-api/pkg/cache"
	"github.com/lingoria/school-ops-api/pkg/config"
	"github.com/lingoria/school-ops-api/pkg/database"
	"github.com/lingoria/school-ops-api/pkg/export"
	"github.com/lingoria/school-ops-api/pkg/jobs"
	"github.com/lingoria/school-ops-api/pkg/logger"
	corsmiddleware "github.com/lingoria/school-ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lingoria/school-ops-api/pkg/middleware/requestid"
	"github.com/lingoria/school-ops-api/pkg/storage"
	"github.com/lingoria/school-ops-api/pkg/webhook"
)

// @title School Ops API
// @version 1.0.0
// @description Back office for the language school
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// The API stays up without Redis; the beginner cohort cache simply
	// misses every time.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	levelRepo := repository.NewLevelRepository(db)
	productRepo := repository.NewProductRepository(db)
	cohortRepo := repository.NewCohortRepository(db)
	sessionRepo := repository.NewWeeklySessionRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	followUpRepo := repository.NewFollowUpRepository(db)
	touchpointRepo := repository.NewTouchpointRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	chatRepo := repository.NewChatRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Outbound automation calls.
	webhookClient := webhook.NewClient(cfg.Webhooks, logr)
	metricsSvc := service.NewMetricsService()
	dispatcher := service.NewWebhookDispatcher(webhookClient, cfg.Webhooks, metricsSvc, logr)

	// Export rendering and download links.
	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	// Services.
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "school-ops-api",
	})
	studentSvc := service.NewStudentService(studentRepo, levelRepo, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	catalogSvc := service.NewCatalogService(levelRepo, productRepo, validate, logr)
	cohortSvc := service.NewCohortService(
		cohortRepo,
		sessionRepo,
		classRepo,
		enrollmentRepo,
		productRepo,
		teacherRepo,
		dispatcher,
		cacheRepo,
		cfg.Cohorts,
		validate,
		logr,
	)
	classSvc := service.NewClassService(classRepo, teacherRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, cohortRepo, dispatcher, validate, logr)
	attendanceSvc := service.NewAttendanceService(
		attendanceRepo,
		cohortRepo,
		enrollmentRepo,
		export.NewCSVExporter(),
		export.NewPDFExporter(),
		files,
		signer,
		validate,
		logr,
	)
	bookingSvc := service.NewBookingService(productRepo, studentRepo, enrollmentRepo, teacherSvc, cfg.Booking, validate, logr)
	followUpSvc := service.NewFollowUpService(followUpRepo, studentRepo, enrollmentRepo, dispatcher, touchpointRepo, validate, logr)
	touchpointSvc := service.NewTouchpointService(touchpointRepo, studentRepo, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, enrollmentRepo, validate, logr)
	chatSvc := service.NewChatService(chatRepo, cohortRepo, validate, logr)

	// A follow-up message that exhausts its retries freezes the instance.
	dispatcher.SetFinalFailureHook(func(job jobs.Job) {
		if payload, ok := job.Payload.(webhook.FollowUpMessagePayload); ok {
			followUpSvc.MarkFailed(context.Background(), payload.FollowUpID)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	sched, err := scheduler.New(followUpSvc, classSvc, enrollmentSvc, files, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to build scheduler", "error", err)
	}
	sched.Start()
	defer sched.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router.Register(r, cfg.APIPrefix, router.Deps{
		Auth:          handler.NewAuthHandler(authSvc),
		Students:      handler.NewStudentHandler(studentSvc, touchpointSvc),
		Teachers:      handler.NewTeacherHandler(teacherSvc, classSvc),
		Cohorts:       handler.NewCohortHandler(cohortSvc),
		Classes:       handler.NewClassHandler(classSvc),
		Enrollments:   handler.NewEnrollmentHandler(enrollmentSvc),
		Attendance:    handler.NewAttendanceHandler(attendanceSvc, files, signer),
		Booking:       handler.NewBookingHandler(bookingSvc),
		FollowUps:     handler.NewFollowUpHandler(followUpSvc),
		Announcements: handler.NewAnnouncementHandler(announcementSvc),
		Chat:          handler.NewChatHandler(chatSvc),
		Catalog:       handler.NewCatalogHandler(catalogSvc),
		AuthService:   authSvc,
		Metrics:       metricsSvc,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
