package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/openfund-labs/fundflow-api/api/swagger"
	"github.com/openfund-labs/fundflow-api/internal/handler"
	"github.com/openfund-labs/fundflow-api/internal/jobs"
	"github.com/openfund-labs/fundflow-api/internal/middleware"
	"github.com/openfund-labs/fundflow-api/internal/models"
	"github.com/openfund-labs/fundflow-api/internal/repository"
	"github.com/openfund-labs/fundflow-api/internal/service"
	"github.com/openfund-labs/fundflow-api/pkg/cache"
	"github.com/openfund-labs/fundflow-api/pkg/config"
	"github.com/openfund-labs/fundflow-api/pkg/database"
	"github.com/openfund-labs/fundflow-api/pkg/logger"
	corsmiddleware "github.com/openfund-labs/fundflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/openfund-labs/fundflow-api/pkg/middleware/requestid"
	"github.com/openfund-labs/fundflow-api/pkg/notify"
)

// @title FundFlow API
// @version 1.0.0
// @description Funding platform workflow and authorization engine
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	rbacRepo := repository.NewRBACRepository(db)
	caseRepo := repository.NewCaseRepository(db)
	contributionRepo := repository.NewContributionRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.RBAC.CacheTTL, logr,
		cfg.RBAC.CacheEnabled && redisClient != nil)

	permissionService := service.NewPermissionService(rbacRepo, cacheService,
		cfg.RBAC.CacheEnabled && redisClient != nil, cfg.RBAC.CacheTTL, logr)

	var dispatcher service.Dispatcher
	if cfg.Notifications.Enabled && cfg.Notifications.AMQPURL != "" {
		publisher, err := notify.NewPublisher(cfg.Notifications.AMQPURL, cfg.Notifications.Exchange, logr)
		if err != nil {
			logr.Sugar().Warnw("amqp unavailable, falling back to log dispatcher", "error", err)
		} else {
			defer publisher.Close() //nolint:errcheck
			dispatcher = service.DispatcherFunc(func(ctx context.Context, event models.Event) error {
				return publisher.Publish(ctx, string(event.Kind), event)
			})
		}
	}
	notificationService := service.NewNotificationService(dispatcher, service.NotificationConfig{
		Workers:   cfg.Notifications.WorkerConcurrency,
		QueueSize: cfg.Notifications.QueueBuffer,
	}, logr)
	notificationService.Start(context.Background())
	defer notificationService.Stop()

	authService := service.NewAuthService(userRepo, auditRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "fundflow-api",
	})
	caseService := service.NewCaseLifecycleService(caseRepo, permissionService, auditRepo, notificationService, logr)
	contributionService := service.NewContributionService(contributionRepo, caseRepo, projectRepo, permissionService, auditRepo, notificationService, logr)
	projectService := service.NewProjectCycleService(projectRepo, permissionService, auditRepo, notificationService, logr)
	exportService := service.NewExportService(contributionRepo, caseRepo, userRepo, permissionService, logr)

	if cfg.Scheduler.Enabled {
		scheduler := jobs.NewScheduler(cfg.Scheduler, projectService, caseService, logr)
		scheduler.Start(context.Background())
		defer scheduler.Stop()
	}

	authHandler := handler.NewAuthHandler(authService)
	caseHandler := handler.NewCaseHandler(caseService)
	contributionHandler := handler.NewContributionHandler(contributionService)
	projectHandler := handler.NewProjectHandler(projectService)
	rbacHandler := handler.NewRBACHandler(permissionService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

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
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.PUT("/password", middleware.JWT(authService), authHandler.ChangePassword)
	}

	cases := api.Group("/cases")
	{
		cases.GET("", middleware.OptionalJWT(authService), caseHandler.List)
		cases.GET("/:id", middleware.OptionalJWT(authService), caseHandler.Get)
		cases.GET("/:id/history", middleware.OptionalJWT(authService), caseHandler.History)
		cases.POST("", middleware.JWT(authService), caseHandler.Create)
		cases.PUT("/:id/status", middleware.JWT(authService), caseHandler.ChangeStatus)
	}

	contributions := api.Group("/contributions", middleware.JWT(authService))
	{
		contributions.POST("", contributionHandler.Create)
		contributions.GET("", contributionHandler.List)
		contributions.GET("/:id", contributionHandler.Get)
		contributions.POST("/:id/approve",
			middleware.RequirePermission(permissionService, models.PermContributionsReview),
			contributionHandler.Approve)
		contributions.POST("/:id/reject",
			middleware.RequirePermission(permissionService, models.PermContributionsReview),
			contributionHandler.Reject)
		contributions.POST("/:id/resubmit", contributionHandler.Resubmit)
		contributions.POST("/:id/revise", contributionHandler.Revise)
		if cfg.Exports.Enabled {
			contributions.GET("/:id/receipt", exportHandler.DonationReceipt)
		}
	}

	projects := api.Group("/projects")
	{
		projects.GET("", projectHandler.List)
		projects.GET("/:id", projectHandler.Get)
		projects.POST("", middleware.JWT(authService), projectHandler.Create)
		projects.POST("/:id/advance", middleware.JWT(authService), projectHandler.Advance)
		projects.POST("/:id/pause", middleware.JWT(authService), projectHandler.Pause)
		projects.POST("/:id/resume", middleware.JWT(authService), projectHandler.Resume)
		projects.DELETE("/:id", middleware.JWT(authService), projectHandler.Cancel)
	}

	rbac := api.Group("", middleware.JWT(authService))
	{
		rbac.GET("/roles", rbacHandler.ListRoles)
		rbac.GET("/permissions", rbacHandler.ListPermissions)
		rbac.POST("/roles",
			middleware.RequirePermission(permissionService, models.PermRolesManage),
			rbacHandler.CreateRole)
		rbac.PUT("/users/:id/roles", rbacHandler.AssignRoles)
		rbac.GET("/users/:id/grants",
			middleware.RequirePermission(permissionService, models.PermRolesManage),
			rbacHandler.UserGrants)
		rbac.POST("/users/:id/refresh",
			middleware.RequirePermission(permissionService, models.PermRolesManage),
			rbacHandler.RefreshGrants)
		rbac.GET("/me/grants", rbacHandler.MyGrants)
	}

	if cfg.Exports.Enabled {
		exports := api.Group("/exports", middleware.JWT(authService))
		exports.GET("/contributions", exportHandler.ContributionsCSV)
	}

	ops := api.Group("/ops", middleware.JWT(authService),
		middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
	{
		ops.GET("/metrics", metricsHandler.Snapshot)
		ops.POST("/rbac/refresh", rbacHandler.RefreshAllGrants)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
