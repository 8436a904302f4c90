package main

import (
	"context"
	"errors"
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
	"go.uber.org/zap"

	_ "github.com/campusline/placement-api/api/swagger"
	"github.com/campusline/placement-api/internal/handler"
	"github.com/campusline/placement-api/internal/middleware"
	"github.com/campusline/placement-api/internal/models"
	"github.com/campusline/placement-api/internal/repository"
	"github.com/campusline/placement-api/internal/service"
	"github.com/campusline/placement-api/pkg/cache"
	"github.com/campusline/placement-api/pkg/config"
	"github.com/campusline/placement-api/pkg/database"
	"github.com/campusline/placement-api/pkg/logger"
	corsmiddleware "github.com/campusline/placement-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusline/placement-api/pkg/middleware/requestid"
)

// @title Campusline Placement API
// @version 1.0.0
// @description Campus placement portal API
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

	// The portal degrades gracefully without redis: job listings skip the
	// cache and everything else is unaffected.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, job listing cache disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	jobRepo := repository.NewJobRepository(db)
	roundRepo := repository.NewRoundRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "placement-api",
	})
	eligibilitySvc := service.NewEligibilityService(userRepo, jobRepo, logr)
	jobSvc := service.NewJobService(jobRepo, cacheRepo, eligibilitySvc, metricsSvc, cfg.Jobs.CacheTTL, validate, logr)
	roundSyncSvc := service.NewRoundSyncService(roundRepo, jobRepo, validate, logr)
	sessionSvc := service.NewAttendanceSessionService(roundRepo, appRepo, userRepo, validate, logr, metricsSvc, cfg.Attendance.CodeLength, cfg.Attendance.BcryptCost)
	progressionSvc := service.NewProgressionService(appRepo, roundRepo, jobRepo, userRepo, validate, logr)
	lifecycleSvc := service.NewLifecycleService(roundRepo, appRepo, progressionSvc, metricsSvc, cfg.Lifecycle.SweepInterval, logr)

	var exportSvc *service.ExportService
	if cfg.Export.Enabled {
		exportSvc = service.NewExportService(appRepo, jobRepo, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	jobHandler := handler.NewJobHandler(jobSvc, roundSyncSvc, progressionSvc, exportSvc)
	roundHandler := handler.NewRoundHandler(sessionSvc)
	appHandler := handler.NewApplicationHandler(progressionSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
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
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	jobs := authed.Group("/jobs")
	jobs.GET("", jobHandler.List)
	jobs.GET("/:id", jobHandler.Get)
	jobs.GET("/:id/rounds", jobHandler.ListRounds)
	jobs.POST("", middleware.AdminOnly(), jobHandler.Create)
	jobs.PUT("/:id", middleware.AdminOnly(), jobHandler.Update)
	jobs.POST("/:id/publish", middleware.AdminOnly(), jobHandler.Publish)
	jobs.GET("/:id/eligible", middleware.AdminOnly(), jobHandler.EligibleStudents)
	jobs.PUT("/:id/rounds", middleware.AdminOnly(), jobHandler.SyncRounds)
	jobs.POST("/:id/bulk-advance", middleware.AdminOnly(), jobHandler.BulkAdvance)
	jobs.GET("/:id/export", middleware.AdminOnly(), jobHandler.Export)

	rounds := authed.Group("/rounds")
	rounds.POST("/:id/attendance-session/start", middleware.AdminOnly(), roundHandler.StartSession)
	rounds.POST("/:id/attendance-session/stop", middleware.AdminOnly(), roundHandler.StopSession)
	rounds.GET("/:id/attendance-session/status", roundHandler.SessionStatus)
	rounds.GET("/:id/attendance", middleware.AdminOnly(), roundHandler.Attendees)
	rounds.POST("/:id/attendance-checkin", middleware.RBAC(models.RoleStudent), roundHandler.Checkin)

	applications := authed.Group("/applications")
	applications.POST("", middleware.RBAC(models.RoleStudent), appHandler.Apply)
	applications.GET("", appHandler.List)
	applications.GET("/:id", appHandler.Get)
	applications.GET("/:id/rejections", middleware.AdminOnly(), appHandler.Rejections)
	applications.PUT("/:id/attendance", middleware.AdminOnly(), appHandler.MarkAttendance)
	applications.POST("/:id/advance", middleware.AdminOnly(), appHandler.Advance)
	applications.POST("/:id/finalize", middleware.AdminOnly(), appHandler.Finalize)

	if cfg.Lifecycle.Enabled {
		lifecycleSvc.Start()
		defer lifecycleSvc.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
