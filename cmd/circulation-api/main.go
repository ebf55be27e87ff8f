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

	_ "github.com/kcls-dev/circulation-api/api/swagger"
	"github.com/kcls-dev/circulation-api/internal/handler"
	"github.com/kcls-dev/circulation-api/internal/middleware"
	"github.com/kcls-dev/circulation-api/internal/models"
	"github.com/kcls-dev/circulation-api/internal/repository"
	"github.com/kcls-dev/circulation-api/internal/service"
	"github.com/kcls-dev/circulation-api/pkg/cache"
	"github.com/kcls-dev/circulation-api/pkg/config"
	"github.com/kcls-dev/circulation-api/pkg/database"
	"github.com/kcls-dev/circulation-api/pkg/logger"
	corsmiddleware "github.com/kcls-dev/circulation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kcls-dev/circulation-api/pkg/middleware/requestid"
)

// @title Circulation API
// @version 1.0.0
// @description Borrow/return lifecycle engine for library circulation
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
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := repository.NewStore(db)
	borrowRepo := repository.NewBorrowRepository()
	inventoryRepo := repository.NewInventoryRepository()
	notificationRepo := repository.NewNotificationRepository()
	auditRepo := repository.NewAuditRepository()
	settingsRepo := repository.NewSettingsRepository()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	auditSvc := service.NewAuditService(auditRepo, db, cfg.Audit.Workers, cfg.Audit.BufferSize, logr)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	authSvc := service.NewAuthService(cfg.JWT, logr)
	settingsSvc := service.NewSettingsService(db, store, settingsRepo, auditSvc, redisClient, cfg.Circulation.SettingsCacheTTL, logr)
	borrowSvc := service.NewBorrowService(db, store, borrowRepo, inventoryRepo, notificationSvc, auditSvc, redisClient, cfg.Circulation.DueDateCacheTTL, metricsSvc, validate, logr)
	returnSvc := service.NewReturnService(db, store, borrowRepo, inventoryRepo, notificationSvc, auditSvc, redisClient, validate, logr)
	exportSvc := service.NewExportService(db, borrowRepo, borrowRepo, logr)

	if cfg.Circulation.AutoReturnEnabled {
		autoReturnSvc := service.NewAutoReturnService(db, store, borrowRepo, notificationSvc, metricsSvc, cfg.Circulation.AutoReturnInterval, logr)
		go autoReturnSvc.Run(ctx)
	}
	autoOverdueSvc := service.NewAutoOverdueService(db, borrowRepo, notificationSvc, settingsSvc, auditSvc, metricsSvc, cfg.Circulation.OverduePollFloor, cfg.Circulation.OverduePollCeil, logr)
	go autoOverdueSvc.Run(ctx)

	borrowHandler := handler.NewBorrowHandler(borrowSvc, exportSvc)
	returnHandler := handler.NewReturnHandler(returnSvc)
	reportHandler := handler.NewReportHandler(exportSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)
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
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := middleware.RequireRoles(models.RoleLibrarian, models.RoleAdmin)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		borrow := api.Group("/borrow")
		{
			borrow.POST("", middleware.RequireRoles(models.RoleBorrower, models.RoleLibrarian, models.RoleAdmin), borrowHandler.Create)
			borrow.GET("", staff, borrowHandler.List)
			borrow.GET("/borrower/:id", middleware.RBAC("LIBRARIAN", "ADMIN", "SELF"), borrowHandler.ListByBorrower)
			borrow.GET("/:id", staff, borrowHandler.Get)
			borrow.GET("/:id/due-date", borrowHandler.DueDate)
			borrow.GET("/:id/slip", staff, borrowHandler.Slip)
			borrow.PUT("/:id/approve", staff, borrowHandler.Approve)
			borrow.PUT("/:id/reject", staff, borrowHandler.Reject)
			borrow.PUT("/:id/retrieved", staff, borrowHandler.MarkRetrieved)
		}

		api.POST("/return", staff, returnHandler.Record)
		api.GET("/return", staff, returnHandler.List)
		api.POST("/lost", staff, returnHandler.MarkLost)

		api.GET("/reports/overdue", staff, reportHandler.Overdue)

		settings := api.Group("/settings")
		{
			settings.GET("/circulation", adminOnly, settingsHandler.Get)
			settings.PUT("/circulation", adminOnly, settingsHandler.Update)
		}
	}

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
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}
