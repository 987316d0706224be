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
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/analysis"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/api/handlers"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/auth"
	cache "github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/cache/redis"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/feedback"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/llm"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/metrics"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/middleware/ratelimit"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/middleware/security"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/session"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/sqlite"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/config"
	appLogger "github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
)

func main() {
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

	appLogger.Info("Starting Interview Helper API Server")

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cacheClient *cache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = cache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, question caching disabled", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	authManager := auth.NewManager(
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenExpireMinutes)*time.Minute,
	)

	registry := session.NewRegistry()
	pool := analysis.NewPool(cfg.Session.AnalysisWorkers)
	reporter := feedback.NewGenerator(llmClient)

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
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	var questionCache handlers.QuestionCache
	if cacheClient != nil {
		questionCache = cacheClient
	}

	authHandler := handlers.NewAuthHandler(sqliteClient, authManager)
	sessionHandler := handlers.NewSessionHandler(
		sqliteClient,
		llmClient,
		questionCache,
		registry,
		cfg.Session.DefaultQuestionCount,
		time.Duration(cfg.Session.QuestionCacheTTLMinutes)*time.Minute,
	)
	wsHandler := handlers.NewWebSocketHandler(session.Options{
		Store:             sqliteClient,
		Coach:             llmClient,
		Reporter:          reporter,
		Tokens:            authManager,
		Registry:          registry,
		Pool:              pool,
		HeartbeatInterval: time.Duration(cfg.Session.HeartbeatIntervalSec) * time.Second,
		Cooldown:          time.Duration(cfg.Session.InterventionCooldownSec) * time.Second,
	})

	api := app.Group("/api/v1", limiter.Middleware())

	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)
	api.Get("/auth/me", authHandler.RequireAuth(), authHandler.Me)

	sessions := api.Group("/sessions", authHandler.RequireAuth())
	sessions.Post("/", sessionHandler.CreateSession)
	sessions.Get("/", sessionHandler.ListSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Get("/:id/status", sessionHandler.GetLiveStatus)

	app.Get("/ws/interview/:id", wsHandler.Upgrade, websocket.New(wsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":        "healthy",
			"live_sessions": registry.Len(),
			"time":          time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.Handler())

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
