package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"storeadmin/internal/caching"
	"storeadmin/internal/catalog"
	"storeadmin/internal/config"
	"storeadmin/internal/handlers"
	"storeadmin/internal/jobs/background"
	"storeadmin/internal/middleware"
	"storeadmin/internal/productform"
	"storeadmin/internal/services"
	"storeadmin/internal/upload"
	"storeadmin/pkg/logger"
)

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Sugar().Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg.App.Env)
	defer func() { _ = log.Sync() }()

	// Cache: Redis when configured, in-process otherwise
	var cacheSvc caching.CacheService
	if cfg.Redis.Addr != "" {
		cacheSvc = caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	} else {
		log.Warn("REDIS_ADDR not set, using in-process cache")
		cacheSvc = caching.NewMemoryCacheService()
	}

	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, log)
	categoryStore := catalog.NewStore(catalogClient, cacheSvc, cfg.Forms.CategoryCacheTTL, log)

	uploader, err := newUploader(cfg, catalogClient, log)
	if err != nil {
		log.Fatalf("Failed to initialize %s upload backend: %v", cfg.Upload.Backend, err)
	}

	forms := productform.NewManager(productform.Deps{
		Products:   catalogClient,
		Categories: categoryStore,
		Uploader:   uploader,
		Logger:     log,
	}, cfg.Forms.IdleTimeout)

	verifier, stopJWKS, err := middleware.NewJWKSVerifier(cfg.Auth.JWKSURL, cfg.Auth.RefreshInterval, cfg.Auth.ClientID, cfg.Auth.Issuers, log)
	if err != nil {
		log.Fatalf("Failed to initialize token verifier: %v", err)
	}
	defer stopJWKS()

	if _, err := categoryStore.Refresh(context.Background()); err != nil {
		log.Warnw("initial category load failed, will retry on schedule", "error", err)
	}

	scheduler, err := background.NewJobScheduler(forms, background.CategoryRefresherFunc(func(ctx context.Context) error {
		_, err := categoryStore.Refresh(ctx)
		return err
	}), cfg.Forms.CategoryRefreshEvery, log)
	if err != nil {
		log.Fatalf("Failed to create job scheduler: %v", err)
	}
	scheduler.Start()

	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()

	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())
	e.Use(echoMiddleware.BodyLimit(bodyLimit(cfg.Upload.MaxFileSize)))

	healthHandlers := handlers.NewHealthHandlers(cacheSvc, categoryStore, forms)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)

	auditMiddleware := middleware.NewAuditMiddleware(log)
	v1 := e.Group("/v1",
		middleware.SessionMiddleware(verifier, cacheSvc, log),
		middleware.RequireAdmin(cfg.Auth.AdminEmails),
		auditMiddleware.AuditRequest(),
	)

	v1.GET("/metrics", healthHandlers.GetMetrics)

	jobHandlers := handlers.NewJobHandlers(scheduler)
	v1.GET("/jobs", jobHandlers.ListJobs)
	v1.POST("/jobs/:name/run", jobHandlers.RunJob)

	authHandlers := handlers.NewAuthHandlers(cacheSvc)
	v1.GET("/auth/session", authHandlers.GetSession)
	v1.POST("/auth/signout", authHandlers.SignOut)

	categoryHandlers := handlers.NewCategoryHandlers(categoryStore)
	v1.GET("/categories", categoryHandlers.ListCategories)
	v1.POST("/categories", categoryHandlers.CreateCategory)
	v1.PUT("/categories/:id", categoryHandlers.UpdateCategory)
	v1.DELETE("/categories/:id", categoryHandlers.DeleteCategory)

	formHandlers := handlers.NewFormHandlers(forms, cfg.Upload.MaxFileSize)
	v1.POST("/forms", formHandlers.OpenForm)
	v1.GET("/forms/:id", formHandlers.GetForm)
	v1.PATCH("/forms/:id", formHandlers.UpdateForm)
	v1.DELETE("/forms/:id", formHandlers.DiscardForm)
	v1.PUT("/forms/:id/properties/:name", formHandlers.SetProperty)
	v1.POST("/forms/:id/images", formHandlers.UploadImages)
	v1.PUT("/forms/:id/images", formHandlers.ReorderImages)
	v1.POST("/forms/:id/save", formHandlers.SaveForm)
	v1.GET("/forms/:id/events", formHandlers.StreamEvents)

	go func() {
		log.Infow("starting server", "addr", cfg.App.Addr(), "catalog", cfg.Catalog.BaseURL, "upload_backend", cfg.Upload.Backend)
		if err := e.Start(cfg.App.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Errorw("server shutdown failed", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Errorw("scheduler shutdown failed", "error", err)
	}
}

func newUploader(cfg *config.Config, catalogClient *catalog.Client, log *zap.SugaredLogger) (upload.Uploader, error) {
	switch cfg.Upload.Backend {
	case config.UploadBackendMinio:
		m := cfg.Minio
		uploader, err := services.NewMinioUploader(m.Endpoint, m.AccessKey, m.SecretKey, m.UseSSL, m.Bucket, m.PublicURL, log)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := uploader.EnsureBucketExists(ctx); err != nil {
			return nil, err
		}
		return uploader, nil
	case config.UploadBackendCloudinary:
		return services.NewCloudinaryUploader(cfg.Cloudinary.URL, cfg.Cloudinary.Folder, log)
	default:
		return catalogClient, nil
	}
}

// bodyLimit leaves room for several files per upload request.
func bodyLimit(maxFileSize int64) string {
	const mb = 1024 * 1024
	limit := maxFileSize * 10 / mb
	if limit < 10 {
		limit = 10
	}
	return strconv.FormatInt(limit, 10) + "M"
}
