package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/dreamforge/api/internal/auth"
	"github.com/dreamforge/api/internal/client"
	"github.com/dreamforge/api/internal/config"
	"github.com/dreamforge/api/internal/handler"
	"github.com/dreamforge/api/internal/middleware"
	"github.com/dreamforge/api/internal/pipeline"
	"github.com/dreamforge/api/internal/provider"
	"github.com/dreamforge/api/internal/queue"
	"github.com/dreamforge/api/internal/service"
	"github.com/dreamforge/api/internal/store"
	"github.com/dreamforge/api/internal/worker"
	ws "github.com/dreamforge/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client and inspector
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	// Initialize validator
	validate := validator.New()

	// Job store and per-job locks
	jobTTL := time.Duration(cfg.Pipeline.JobTTLHours) * time.Hour
	jobStore := store.NewRedisStore(redisClient, jobTTL)
	locks := pipeline.NewJobLocks()

	// Initialize WebSocket hub
	hub := ws.NewHub(jobStore)
	go hub.Run()

	// Generation provider (mock when not configured)
	var generator provider.Generator
	providerClient := provider.NewClient(&cfg.Provider)
	if providerClient.IsConfigured() {
		generator = providerClient
	} else {
		log.Println("Info: generation provider not configured, using mock")
		generator = provider.NewMock()
	}

	// Media tools (mock when not configured)
	var media provider.MediaTools
	mediaClient := provider.NewMediaClient(&cfg.Media)
	if mediaClient.IsConfigured() {
		media = mediaClient
	} else {
		log.Println("Info: media tools not configured, using mock")
		media = provider.NewMockMediaTools()
	}

	// Initialize R2 client (optional - continues if not configured)
	var storage client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, serving provider URLs directly")
	}

	// Initialize OIDC JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.OIDC.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Pipeline and services
	reporter := pipeline.NewReporter(jobStore, time.Duration(cfg.Pipeline.TickMillis)*time.Millisecond)
	runner := pipeline.NewRunner(jobStore, generator, media, storage, reporter, locks, cfg.Pipeline)
	dispatcher := queue.NewAsynqDispatcher(asynqClient, inspector, cfg.Pipeline.MaxPending, jobTTL)
	jobService := service.NewJobService(jobStore, dispatcher, locks, cfg.Pipeline)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    5 * 1024 * 1024, // 5MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"provider": providerClient.IsConfigured(),
				"media":    mediaClient.IsConfigured(),
				"storage":  storage != nil,
				"auth":     jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Job routes
	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), jobHandler.Submit)
	jobs.Get("/:jobId/status", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), jobHandler.Status)
	jobs.Get("/:jobId/manifest", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), jobHandler.Manifest)
	jobs.Post("/:jobId/cancel", rateLimiter.CancelLimit(cfg.RateLimit.CancelPerMin), jobHandler.Cancel)
	jobs.Post("/:jobId/scenes/:sceneIndex/regenerate", rateLimiter.RegenerateLimit(cfg.RateLimit.RegeneratePerHour), jobHandler.RegenerateScene)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, runner)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, runner *pipeline.Runner) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	workers := cfg.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}

	// A single queue drained by a bounded worker pool keeps submission
	// order; with one worker execution is strictly FIFO.
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: workers,
			Queues: map[string]int{
				queue.QueueName: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	jobWorker := worker.NewJobWorker(runner)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeGenerate, jobWorker.ProcessGenerate)
	mux.HandleFunc(queue.TaskTypeRegenerate, jobWorker.ProcessRegenerate)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
