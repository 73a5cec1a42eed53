package main

import (
	"context"
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

	_ "github.com/docnest/docnest-api/api/swagger"
	"github.com/docnest/docnest-api/internal/handler"
	"github.com/docnest/docnest-api/internal/middleware"
	"github.com/docnest/docnest-api/internal/models"
	"github.com/docnest/docnest-api/internal/repository"
	"github.com/docnest/docnest-api/internal/service"
	"github.com/docnest/docnest-api/pkg/cache"
	"github.com/docnest/docnest-api/pkg/config"
	"github.com/docnest/docnest-api/pkg/database"
	"github.com/docnest/docnest-api/pkg/export"
	"github.com/docnest/docnest-api/pkg/jobs"
	"github.com/docnest/docnest-api/pkg/logger"
	corsmiddleware "github.com/docnest/docnest-api/pkg/middleware/cors"
	reqidmiddleware "github.com/docnest/docnest-api/pkg/middleware/requestid"
	"github.com/docnest/docnest-api/pkg/storage"
)

// @title DocNest API
// @version 1.0.0
// @description Hierarchical folder access control and document metadata service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const srvShutdownTimeout = 10 * time.Second

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, entitlement cache disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()
	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Entitlements.CacheTTL, logr, cfg.Entitlements.CacheEnabled)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Entitlements.CacheTTL, logr, false)
	}

	userRepo := repository.NewUserRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	folderRepo := repository.NewFolderRepository(db, cfg.Hierarchy.MaxDepth)
	permissionRepo := repository.NewPermissionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	reportRepo := repository.NewReportRepository(db)

	validate := validator.New()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "docnest-api",
	})

	walker := service.NewHierarchyWalker(folderRepo, cfg.Hierarchy.MaxDepth)
	entitlementSvc := service.NewEntitlementService(departmentRepo, cacheSvc, cfg.Entitlements.CacheTTL, logr)
	accessSvc := service.NewAccessService(walker, permissionRepo, userRepo, entitlementSvc, logr)

	folderSvc := service.NewFolderService(folderRepo, accessSvc, walker, userRepo, validate, logr)
	permissionSvc := service.NewPermissionService(permissionRepo, folderRepo, userRepo, departmentRepo, accessSvc, userRepo, validate, logr)
	documentSvc := service.NewDocumentService(documentRepo, folderRepo, accessSvc, userRepo, validate, logr)
	departmentSvc := service.NewDepartmentService(departmentRepo, entitlementSvc, validate, logr)
	userSvc := service.NewUserService(userRepo, departmentRepo, entitlementSvc, validate, logr)

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc := service.NewExportService(
			permissionRepo,
			folderRepo,
			walker,
			store,
			signer,
			service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.SignedURLTTL},
			logr,
			export.NewCSVExporter(),
			export.NewPDFExporter(),
		)
		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		reportSvc = service.NewReportService(reportRepo, accessSvc, queue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	departmentHandler := handler.NewDepartmentHandler(departmentSvc)
	folderHandler := handler.NewFolderHandler(folderSvc, accessSvc)
	permissionHandler := handler.NewPermissionHandler(permissionSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc)
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
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authSvc))

	protected.GET("/metrics/summary", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Summary)

	users := protected.Group("/users")
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleManager), userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleManager), "SELF"), userHandler.Get)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)
	}

	departments := protected.Group("/departments")
	{
		departments.GET("", departmentHandler.List)
		departments.GET("/:id", departmentHandler.Get)
		departments.POST("", middleware.RequireRoles(models.RoleAdmin), departmentHandler.Create)
		departments.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), departmentHandler.Update)
		departments.GET("/:id/permissions", middleware.RequireRoles(models.RoleAdmin, models.RoleManager), departmentHandler.Permissions)
		departments.POST("/:id/permissions",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionDeptPermAdd, "departments"),
			departmentHandler.AddPermission)
		departments.DELETE("/:id/permissions/:permission",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionDeptPermRemove, "departments"),
			departmentHandler.RemovePermission)
	}

	folders := protected.Group("/folders")
	{
		folders.GET("", folderHandler.List)
		folders.POST("", folderHandler.Create)
		folders.GET("/:id", folderHandler.Get)
		folders.PUT("/:id", folderHandler.Update)
		folders.DELETE("/:id", folderHandler.Delete)
		folders.GET("/:id/children", folderHandler.Children)
		folders.GET("/:id/path", folderHandler.Path)
		folders.GET("/:id/access", folderHandler.CheckAccess)
		folders.GET("/:id/permissions", permissionHandler.List)
		folders.POST("/:id/permissions", permissionHandler.Grant)
		folders.DELETE("/:id/permissions", permissionHandler.Revoke)
	}

	documents := protected.Group("/documents")
	{
		documents.GET("", documentHandler.List)
		documents.POST("", documentHandler.Create)
		documents.GET("/:id", documentHandler.Get)
		documents.PUT("/:id", documentHandler.Update)
		documents.DELETE("/:id", documentHandler.Delete)
	}

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		reports := api.Group("/reports")
		{
			reports.POST("/generate", middleware.JWT(authSvc), reportHandler.Generate)
			reports.GET("/:id/status", middleware.JWT(authSvc), reportHandler.Status)
			// Download is authorized by the signed token alone so links can be
			// opened outside an authenticated session.
			reports.GET("/download", reportHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), srvShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Sugar().Warnw("server shutdown", "error", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
