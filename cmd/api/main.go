package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/filesearch-rag/backend/internal/api/handlers"
	"github.com/filesearch-rag/backend/internal/intake"
	"github.com/filesearch-rag/backend/internal/metrics"
	"github.com/filesearch-rag/backend/internal/middleware/ratelimit"
	"github.com/filesearch-rag/backend/internal/middleware/security"
	"github.com/filesearch-rag/backend/internal/middleware/validation"
	"github.com/filesearch-rag/backend/internal/provider"
	"github.com/filesearch-rag/backend/internal/search"
	"github.com/filesearch-rag/backend/pkg/circuitbreaker"
	"github.com/filesearch-rag/backend/pkg/config"
	appLogger "github.com/filesearch-rag/backend/pkg/logger"
	"github.com/filesearch-rag/backend/pkg/retry"
)

const version = "1.0.0"

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting file search RAG API server", zap.String("version", version))

	metrics.Init()

	retryConfig := retry.Disabled()
	if cfg.Provider.Retry.Enabled {
		retryConfig = retry.Config{
			MaxAttempts:    cfg.Provider.Retry.MaxAttempts,
			InitialDelay:   time.Duration(cfg.Provider.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:       time.Duration(cfg.Provider.Retry.MaxDelayMs) * time.Millisecond,
			Multiplier:     cfg.Provider.Retry.Multiplier,
			JitterFraction: 0.1,
			Logger:         appLogger.GetLogger(),
		}
	}

	providerClient := provider.NewClient(provider.Config{
		APIKey:       cfg.Provider.APIKey,
		BaseURL:      cfg.Provider.BaseURL,
		Timeout:      time.Duration(cfg.Provider.TimeoutSec) * time.Second,
		PollInterval: time.Duration(cfg.Upload.PollIntervalSec) * time.Second,
		PollTimeout:  time.Duration(cfg.Upload.PollTimeoutSec) * time.Second,
		Retry:        retryConfig,
		Breaker: circuitbreaker.Config{
			MaxRequests:      5,
			Interval:         time.Minute,
			Timeout:          time.Duration(cfg.Provider.Breaker.TimeoutSec) * time.Second,
			FailureThreshold: uint32(cfg.Provider.Breaker.FailureThreshold),
			SuccessThreshold: uint32(cfg.Provider.Breaker.SuccessThreshold),
			Logger:           appLogger.GetLogger(),
		},
	})

	searchManager := search.NewManager(providerClient, cfg.Provider.Model)
	validator := intake.NewValidator(cfg.Upload.MaxFileSizeMB)
	uploader := intake.NewUploader(providerClient, validator, cfg.Upload.ChunkTokens, cfg.Upload.ChunkOverlapTokens)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			Logger:               appLogger.GetLogger(),
		})
		defer limiter.Stop()
		app.Use("/api", limiter.Middleware())
	}

	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	searchHandler := handlers.NewSearchHandler(searchManager)
	storeHandler := handlers.NewStoreHandler(providerClient)
	documentHandler := handlers.NewDocumentHandler(uploader, providerClient)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "RAG System API is running",
			"version": version,
			"status":  "healthy",
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Post("/api/search", searchHandler.HandleSearch)
	app.Post("/api/ask", searchHandler.HandleAsk)
	app.Post("/api/summarize", searchHandler.HandleSummarize)

	app.Post("/api/upload", documentHandler.HandleUpload)
	app.Post("/api/upload-directory", documentHandler.HandleUploadDirectory)
	app.Post("/api/upload-url", documentHandler.HandleUploadURL)

	app.Get("/api/stores", storeHandler.HandleList)
	app.Post("/api/stores", storeHandler.HandleCreate)
	app.Delete("/api/stores/:store_name", storeHandler.HandleDelete)
	app.Get("/api/store-info/:store_name", storeHandler.HandleInfo)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
