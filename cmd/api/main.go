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

	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pkgvalidator "github.com/johnquangdev/clinical-scribe/pkg/validator"

	"github.com/johnquangdev/clinical-scribe/internal/adapter/handler"
	"github.com/johnquangdev/clinical-scribe/internal/adapter/repository"
	"github.com/johnquangdev/clinical-scribe/internal/domain/repositories"
	"github.com/johnquangdev/clinical-scribe/internal/infrastructure/cache"
	"github.com/johnquangdev/clinical-scribe/internal/infrastructure/database"
	"github.com/johnquangdev/clinical-scribe/internal/infrastructure/dataset"
	"github.com/johnquangdev/clinical-scribe/internal/infrastructure/storage"
	aiuse "github.com/johnquangdev/clinical-scribe/internal/usecase/ai"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/session"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/suggestion"
	pkgai "github.com/johnquangdev/clinical-scribe/pkg/ai"
	"github.com/johnquangdev/clinical-scribe/pkg/config"
	"github.com/johnquangdev/clinical-scribe/pkg/workerpool"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = false

	// Custom logger format
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))

	// Recover from panics
	e.Use(middleware.Recover())

	// CORS middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		AllowCredentials: true,
	}))

	ctx := context.Background()
	logger.Info("🔧 Initializing dependencies...")

	// Initialize Database
	logger.Info("📦 Connecting to database...")
	var artifacts repositories.ArtifactRepository
	var feedback handler.FeedbackStore
	db, err := database.NewPostgresDB(cfg, logger)
	switch {
	case err != nil && cfg.IsDevelopment():
		logger.Warn("⚠️  Database unavailable, artifacts will not be persisted", zap.Error(err))
	case err != nil:
		logger.Fatal("Failed to connect to database", zap.Error(err))
	default:
		defer database.CloseDB(db)

		if cfg.Database.AutoMigrate {
			logger.Info("🔄 Applying sql-migrate migrations", zap.String("dir", database.MigrationsDir))
			if _, err := database.Migrate(db, migrate.Up, logger); err != nil {
				logger.Fatal("Failed to apply migrations", zap.Error(err))
			}
		}
		artifactRepo := repository.NewArtifactRepository(db, logger)
		artifacts = artifactRepo
		feedback = artifactRepo
	}

	// Initialize report storage
	logger.Info("🗄️  Connecting to object storage...")
	var reports repositories.ReportStore
	minioClient, err := storage.NewMinIOClient(ctx, &cfg.Storage)
	switch {
	case err != nil && cfg.IsDevelopment():
		logger.Warn("⚠️  Object storage unavailable, reports will not be stored", zap.Error(err))
	case err != nil:
		logger.Fatal("Failed to connect to object storage", zap.Error(err))
	default:
		reports = storage.NewReportStore(minioClient, logger)
	}

	// Initialize suggestion index
	var index repositories.SuggestionIndex = cache.NewMemoryIndex()
	if cfg.Suggestions.Backend == "redis" {
		logger.Info("📦 Connecting to Redis...")
		redisClient, err := cache.NewRedisClient(ctx, cfg)
		switch {
		case err != nil && cfg.IsDevelopment():
			logger.Warn("⚠️  Redis unavailable, using in-memory suggestion index", zap.Error(err))
		case err != nil:
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		default:
			defer redisClient.Close()
			index = cache.NewRedisIndex(redisClient, cfg.Suggestions.KeyPrefix, logger)
		}
	}
	suggestions := suggestion.NewService(index, cfg.Suggestions.TopK, logger)

	// Initialize dataset export
	var exporter session.DatasetExporter
	if cfg.Dataset.Enabled {
		writer, err := dataset.NewJSONLWriter(cfg.Dataset.Path, "", logger)
		if err != nil {
			logger.Fatal("Failed to prepare dataset export", zap.Error(err))
		}
		exporter = writer
	}

	// Initialize extraction
	logger.Info("🤖 Initializing AI components...", zap.String("model", cfg.Groq.Model))
	groqClient := pkgai.NewGroqClient(&cfg.Groq)
	extractor := aiuse.NewExtractor(groqClient, logger)

	// Initialize session usecase
	pool := workerpool.New(cfg.Scheduler.WorkerCount, logger)
	logger.Info("🧵 Worker pool ready", zap.Int("size", pool.Size()))
	scheduler := session.NewScheduler(extractor, pool, cfg.Scheduler, logger)
	finalizer := session.NewFinalizer(session.FinalizerDeps{
		Scheduler: scheduler,
		Extractor: extractor,
		Artifacts: artifacts,
		Reports:   reports,
		Suggester: suggestions,
		Dataset:   exporter,
		Pool:      pool,
		Timeout:   cfg.Scheduler.ExtractionTimeout,
	}, logger)
	sessionService := session.NewService(session.NewRegistry(), scheduler, finalizer, logger)

	// Setup router with handlers
	logger.Info("🛣️  Setting up routes...")
	sessionHandler := handler.NewSessionHandler(sessionService, suggestions, feedback, logger)
	socketHandler := handler.NewSessionSocket(sessionService, cfg.Server.AllowedOrigins, logger)
	handler.NewRouter(cfg, sessionHandler, socketHandler).Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		logger.Info("🚀 Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
		)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	sessionService.Shutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("❌ Server forced to shutdown", zap.Error(err))
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Warn("⚠️  Worker pool did not drain", zap.Error(err))
	}

	logger.Info("✅ Server stopped gracefully")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
