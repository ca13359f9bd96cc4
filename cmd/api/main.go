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

	"github.com/aiready/selfcheck-api/internal/generator"
	"github.com/aiready/selfcheck-api/internal/handler"
	"github.com/aiready/selfcheck-api/internal/middleware"
	"github.com/aiready/selfcheck-api/internal/models"
	"github.com/aiready/selfcheck-api/internal/repository"
	"github.com/aiready/selfcheck-api/internal/service"
	"github.com/aiready/selfcheck-api/pkg/cache"
	"github.com/aiready/selfcheck-api/pkg/config"
	"github.com/aiready/selfcheck-api/pkg/database"
	"github.com/aiready/selfcheck-api/pkg/events"
	"github.com/aiready/selfcheck-api/pkg/jobs"
	"github.com/aiready/selfcheck-api/pkg/logger"
	corsmiddleware "github.com/aiready/selfcheck-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aiready/selfcheck-api/pkg/middleware/requestid"
)

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

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, content cache disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close()
		}
	}

	versionRepo := repository.NewVersionRepository(db)
	contentRepo := repository.NewContentRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	checklistRepo := repository.NewChecklistRepository(db)

	var gen generator.Generator
	if cfg.Generation.Provider == "template" {
		gen = generator.NewTemplateGenerator()
	} else {
		gen, err = generator.NewGenAIGenerator(cfg.Generation)
		if err != nil {
			logr.Sugar().Fatalw("failed to init generator", "error", err)
		}
	}

	metricsSvc := service.NewMetricsService()
	broadcaster := events.NewBroadcaster(cfg.Generation.SubscriberBuf, logr)

	versionSvc := service.NewVersionService(versionRepo, logr)
	contentSvc := service.NewContentService(contentRepo, cacheRepo, metricsSvc, nil, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	generationSvc := service.NewGenerationService(generationRepo, checklistRepo, contentRepo, gen, broadcaster, metricsSvc, cfg.Generation, logr)
	exportSvc := service.NewExportService(versionRepo, checklistRepo, nil, nil, cfg.Export.PDFEnabled, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewQueue("generation", generationSvc.Handle, jobs.QueueConfig{Workers: 1, Logger: logr})
	queue.Start(ctx)
	defer queue.Stop()
	generationSvc.BindQueue(queue)

	versionHandler := handler.NewVersionHandler(versionSvc, exportSvc)
	assessmentHandler := handler.NewAssessmentHandler(versionSvc)
	contentHandler := handler.NewContentHandler(contentSvc)
	generationHandler := handler.NewGenerationHandler(generationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))

	versions := api.Group("/versions")
	{
		versions.GET("", versionHandler.List)
		versions.POST("", versionHandler.Create)
		versions.POST("/migrate", versionHandler.Migrate)
		versions.GET("/:id", versionHandler.Get)
		versions.PUT("/:id", versionHandler.Update)
		versions.DELETE("/:id", versionHandler.Delete)
		versions.POST("/:id/duplicate", versionHandler.Duplicate)
		versions.POST("/:id/activate", versionHandler.Activate)
		versions.GET("/:id/export", versionHandler.Export)
	}

	assessment := api.Group("/assessment")
	{
		assessment.GET("/items", assessmentHandler.ListItems)
		assessment.PUT("/items", assessmentHandler.SaveItem)
	}

	content := api.Group("/content")
	{
		content.GET("/:type/items/:itemId", contentHandler.Get)
		content.GET("/:type/versions", contentHandler.ListVersions)
		content.GET("/:type/stats", contentHandler.Stats)
		content.GET("/:type/events", generationHandler.Events)
		content.GET("/:type/jobs", generationHandler.ListJobs)

		operator := content.Group("")
		operator.Use(middleware.RequireRoles(models.RoleOperator))
		{
			operator.PUT("/:type/active", contentHandler.SetActive)
			operator.GET("/:type/bundle", contentHandler.ExportBundle)
			operator.POST("/:type/bundle", contentHandler.ImportBundle)
			operator.DELETE("/:type", contentHandler.Clear)
			operator.POST("/:type/generate", generationHandler.Start)
		}
	}

	api.GET("/generation/jobs/:id", generationHandler.Job)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
