package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kurid3v/AVinci/internal/config"
	"github.com/kurid3v/AVinci/internal/database"
	"github.com/kurid3v/AVinci/internal/grading"
	"github.com/kurid3v/AVinci/internal/handler"
	applogger "github.com/kurid3v/AVinci/internal/logger"
	"github.com/kurid3v/AVinci/internal/middleware"
	"github.com/kurid3v/AVinci/internal/repository"
	"github.com/kurid3v/AVinci/internal/router"
	"github.com/kurid3v/AVinci/internal/service"
	"github.com/kurid3v/AVinci/pkg/ai"
	cloud "github.com/kurid3v/AVinci/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := applogger.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	var archive service.ScanArchive
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Enabled() {
		uploader, err := cloud.New(cloudCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		archive = uploader
	}

	client, closeClient := newAIClient(cfg, logger)
	defer closeClient()

	engine, err := grading.NewEngine(client, grading.Config{
		Model:       cfg.AIModel,
		Temperature: cfg.AITemperature,
		Retry: ai.RetryPolicy{
			MaxRetries:   cfg.AIMaxRetries,
			InitialDelay: cfg.AIInitialDelay,
			CallTimeout:  cfg.AICallTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build grading engine")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	problemRepo := repository.NewProblemRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	var locker service.Locker
	if redisClient != nil {
		locker = service.NewRedisLocker(redisClient, "avinci:lock:")
	}

	activityService := service.NewActivityService(activityRepo, logger)
	events := service.NewEventPublisher(redisClient, natsConn, cfg.EventsChannel, logger)
	problemService := service.NewProblemService(problemRepo, validate, activityService, logger)
	submissionService := service.NewSubmissionService(problemRepo, submissionRepo, engine, validate, activityService, events, logger)
	regradeService := service.NewRegradeService(problemRepo, submissionRepo, engine, locker, validate, activityService, events, service.RegradeConfig{
		Concurrency: cfg.RegradeConcurrency,
		LockTTL:     cfg.RegradeLockTTL,
	}, logger)
	gradingService := service.NewGradingService(problemRepo, submissionRepo, engine, validate, cfg.ScanMaxUploadBytes, logger)
	summaryService := service.NewProblemSummaryService(problemRepo, submissionRepo, redisClient, cfg.SummaryCacheTTL, logger)
	scanService := service.NewScanService(engine, archive, cfg.ScanMaxUploadBytes, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.ScanMaxUploadBytes) + 1024*1024,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		StackTraces:  cfg.AppEnv != "production",
	})
	healthProbes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		healthProbes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	router.Register(app, cfg, router.Dependencies{
		ProblemHandler:    handler.NewProblemHandler(problemService, submissionService, regradeService, summaryService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, regradeService, scanService, validate, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		HealthProbes:      healthProbes,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

// newAIClient builds the configured provider. A missing credential is not
// fatal: the engine then answers every AI operation with a configuration error.
func newAIClient(cfg config.Config, logger zerolog.Logger) (ai.Client, func()) {
	noop := func() {}
	if cfg.AIAPIKey() == "" {
		logger.Warn().Str("provider", cfg.AIProvider).Msg("AI API key missing, grading disabled")
		return nil, noop
	}

	switch cfg.AIProvider {
	case "openai":
		client, err := ai.NewOpenAIClient(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.AIModel,
			Logger:  logger,
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to create openai client")
			return nil, noop
		}
		return client, noop
	default:
		client, err := ai.NewGeminiClient(context.Background(), ai.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.AIModel,
			Logger: logger,
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to create gemini client")
			return nil, noop
		}
		return client, func() { _ = client.Close() }
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
