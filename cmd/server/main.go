package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vocalis/internal/cache"
	"vocalis/internal/config"
	"vocalis/internal/database"
	"vocalis/internal/handlers"
	"vocalis/internal/logging"
	"vocalis/internal/middleware"
	"vocalis/internal/services"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Vocalis conversation service...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// Durable store, the single writer of record. Unreachable Mongo is fatal.
	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI environment variable is required")
	}
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongoDB.Initialize(initCtx); err != nil {
		cancelInit()
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}
	cancelInit()

	// Cache tier: an unreachable Redis only degrades the service, the
	// resilient client falls back to the store on every operation.
	var redisService *services.RedisService
	var cacheStore cache.Store
	redisService, err = services.NewRedisService(cfg.RedisURL)
	if err != nil {
		log.Printf("⚠️ Failed to connect to Redis: %v (running without cache)", err)
	} else {
		defer redisService.Close()
		cacheStore = redisService
	}

	snapshotCache := cache.NewClient(cacheStore, cache.ClientConfig{
		CallTimeout: cfg.CacheCallTimeout,
		Breaker: cache.BreakerConfig{
			WindowSize:   cfg.BreakerWindowSize,
			MinCalls:     cfg.BreakerMinCalls,
			FailureRatio: cfg.BreakerFailureRatio,
			Cooldown:     cfg.BreakerCooldown,
			OnStateChange: func(from, to cache.State) {
				if m := services.GetMetrics(); m != nil {
					m.BreakerTransitions.WithLabelValues(string(from), string(to)).Inc()
				}
			},
		},
	})

	// Domain metrics
	services.InitMetrics(snapshotCache.BreakerState)

	// Stores and coordinator, constructed explicitly
	sessionStore := services.NewSessionStore(mongoDB)
	eventStore := services.NewEventStore(mongoDB)
	sessionService := services.NewSessionService(sessionStore, eventStore, snapshotCache, cfg.SessionCacheTTL)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Vocalis v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB is plenty for event payloads
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(middleware.CorrelationID())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("vocalis")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins: getEnv("ALLOWED_ORIGINS", "*"),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept," + middleware.HeaderCorrelationID,
	}))

	// Global rate limiter, excluding health and metrics
	app.Use(limiter.New(limiter.Config{
		Max:        200,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			path := c.Path()
			return path == "/health" || path == "/metrics"
		},
	}))

	// Initialize handlers
	var cachePinger handlers.Pinger
	if redisService != nil {
		cachePinger = redisService
	}
	healthHandler := handlers.NewHealthHandler(mongoDB, cachePinger)
	sessionHandler := handlers.NewSessionHandler(sessionService)

	// Routes
	app.Get("/health", healthHandler.Handle)
	app.Post("/sessions", sessionHandler.Create)
	app.Post("/sessions/:sessionId/events", sessionHandler.AppendEvent)
	app.Get("/sessions/:sessionId", sessionHandler.Get)
	app.Post("/sessions/:sessionId/complete", sessionHandler.Complete)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
