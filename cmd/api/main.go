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

	_ "github.com/melodyhq/melody-api/api/swagger"
	"github.com/melodyhq/melody-api/internal/handler"
	"github.com/melodyhq/melody-api/internal/middleware"
	"github.com/melodyhq/melody-api/internal/models"
	"github.com/melodyhq/melody-api/internal/repository"
	"github.com/melodyhq/melody-api/internal/service"
	"github.com/melodyhq/melody-api/pkg/cache"
	"github.com/melodyhq/melody-api/pkg/config"
	"github.com/melodyhq/melody-api/pkg/database"
	"github.com/melodyhq/melody-api/pkg/export"
	"github.com/melodyhq/melody-api/pkg/jobs"
	"github.com/melodyhq/melody-api/pkg/logger"
	corsmiddleware "github.com/melodyhq/melody-api/pkg/middleware/cors"
	reqidmiddleware "github.com/melodyhq/melody-api/pkg/middleware/requestid"
	"github.com/melodyhq/melody-api/pkg/payment"
)

// @title Melody API
// @version 1.0.0
// @description Course marketplace backend
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The catalog cache is an optimization; the API stays up without it.
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	selectionRepo := repository.NewSelectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, cacheRepo, cfg.Catalog.CacheTTL, validate, logr)
	selectionSvc := service.NewSelectionService(selectionRepo, classRepo, validate, logr)

	cleanupQueue := jobs.NewQueue("selection-cleanup", service.CleanupHandler(selectionRepo, logr), jobs.QueueConfig{
		Workers:    cfg.Cleanup.Workers,
		MaxRetries: cfg.Cleanup.MaxRetries,
		RetryDelay: cfg.Cleanup.RetryDelay,
		Logger:     logr,
	})
	cleanupQueue.Start(ctx)
	defer cleanupQueue.Stop()

	purchaseSvc := service.NewPurchaseService(classRepo, enrollmentRepo, selectionRepo, cleanupQueue, metricsSvc, validate, logr)

	gateway := payment.NewMidtransGateway(cfg.Payment.ServerKey, cfg.Payment.Production, logr)
	paymentSvc := service.NewPaymentService(gateway, cfg.Payment.Currency, validate, logr)

	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, export.NewCSVExporter(), export.NewReceiptExporter(), logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	classHandler := handler.NewClassHandler(classSvc, userSvc)
	selectionHandler := handler.NewSelectionHandler(selectionSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, purchaseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

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

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/token", authHandler.Token)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	secured.GET("/users/me", userHandler.Me)
	secured.GET("/classes", classHandler.Catalog)
	secured.GET("/classes/:id", classHandler.Get)
	secured.PATCH("/classes/:id/capacity", classHandler.UpdateCapacity)

	admin := secured.Group("")
	admin.Use(middleware.RequireRole(userSvc, models.RoleAdmin))
	admin.GET("/users", userHandler.List)
	admin.PATCH("/users/:email/role", userHandler.Promote)
	admin.GET("/classes/all", classHandler.ListAll)
	admin.PATCH("/classes/:id/status", classHandler.Review)
	admin.GET("/enrollments/export", enrollmentHandler.Export)

	instructor := secured.Group("")
	instructor.Use(middleware.RequireRole(userSvc, models.RoleInstructor))
	instructor.POST("/classes", classHandler.Create)
	instructor.GET("/instructors/me/classes", classHandler.MyClasses)

	student := secured.Group("")
	student.Use(middleware.RequireRole(userSvc, models.RoleStudent))
	student.POST("/selections", selectionHandler.Create)
	student.GET("/selections", selectionHandler.List)
	student.DELETE("/selections/:id", selectionHandler.Delete)
	student.POST("/payments/intent", paymentHandler.CreateIntent)
	student.POST("/payments/purchase", paymentHandler.Purchase)
	student.GET("/enrollments", enrollmentHandler.List)
	student.GET("/enrollments/:id/receipt", enrollmentHandler.Receipt)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
