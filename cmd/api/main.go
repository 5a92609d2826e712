package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/llmcompare/internal/backend"
	"github.com/noah-isme/llmcompare/internal/config"
	"github.com/noah-isme/llmcompare/internal/database"
	"github.com/noah-isme/llmcompare/internal/handler"
	"github.com/noah-isme/llmcompare/internal/middleware"
	"github.com/noah-isme/llmcompare/internal/render"
	"github.com/noah-isme/llmcompare/internal/router"
	"github.com/noah-isme/llmcompare/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	store := service.NewMemorySessionStore()
	storeKind := "memory"
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		store = service.NewRedisSessionStore(redisClient, "llmcompare")
		storeKind = "redis"
	} else {
		logger.Warn().Msg("redis url not configured, submission guard is local to this process")
	}

	backendClient, err := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("failed to create backend client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionService := service.NewSubmissionService(backendClient, store, render.NewMarkdownRenderer(), validate, service.SubmissionConfig{
		LockTTL:   cfg.SubmissionLockTTL,
		AnswerTTL: cfg.AnswerCacheTTL,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		ReadTimeout:  30 * time.Second,
		// The synchronous submission waits on both backend stages.
		WriteTimeout: cfg.BackendTimeout*2 + 30*time.Second,
	})

	middleware.Register(app, middleware.Config{
		Logger:    &logger,
		AccessLog: cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		PageHandler:       handler.NewPageHandler(cfg, logger),
		URLHandler:        handler.NewURLHandler(logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		AnswerHandler:     handler.NewAnswerHandler(submissionService, logger),
		SessionStore:      storeKind,
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Str("backend", cfg.BackendURL).Msg("starting server")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
