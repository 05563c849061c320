package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"persona-mood/internal/config"
	"persona-mood/internal/db"
	apihttp "persona-mood/internal/http"
	"persona-mood/internal/llm"
	"persona-mood/internal/repository"
	"persona-mood/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	if cfg.DebugMode {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	catalog, err := repository.NewCatalogRepository(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("load catalog", zap.Error(err))
	}

	var (
		sessionRepo repository.SessionRepository = repository.NewMemorySessionRepository()
		messageRepo repository.MessageRepository = repository.NewMemoryMessageRepository()
		durable     service.MoodStateStore
	)
	if cfg.HasDatabase() {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		sessionRepo = repository.NewPgSessionRepository(pool)
		messageRepo = repository.NewPgMessageRepository(pool)
		durable = service.NewRepositoryMoodStateStore(repository.NewPgMoodStateRepository(pool))
	} else {
		logger.Warn("DATABASE_URL not set, sessions are kept in memory")
	}

	var (
		cache   service.MoodStateStore
		limiter service.TurnRateLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			cache = service.NewRedisMoodStateStore(redisClient, cfg.SessionTTL)
			limiter = service.NewRedisTurnRateLimiter(redisClient, cfg.TurnRateWindow, cfg.TurnRateMax)
		}
		cancel()
	}
	if cache == nil {
		cache = service.NewMemoryMoodStateStore(cfg.SessionTTL)
	}
	if limiter == nil {
		limiter = service.NewMemoryTurnRateLimiter(cfg.TurnRateWindow, cfg.TurnRateMax)
	}
	moods := service.NewLayeredMoodStateStore(cache, durable, logger)

	llmClient := llm.NewHTTPClient(llm.HTTPClientConfig{
		BaseURL:       cfg.LLMBaseURL,
		APIKey:        cfg.LLMAPIKey,
		ModelFast:     cfg.LLMModelFast,
		ModelQuality:  cfg.LLMModelQuality,
		Temperature:   cfg.LLMTemperature,
		MaxTokens:     cfg.LLMMaxTokens,
		RatePerSecond: cfg.LLMRatePerSecond,
		Timeout:       cfg.LLMTimeout,
	}, logger)

	inference := service.NewMoodInferenceEngine(llmClient, service.InferenceConfig{
		HistoryLimit: cfg.MoodHistoryLimit,
		HistoryTurns: cfg.InferenceHistoryTurns,
	}, logger)
	turnSvc := service.NewTurnService(service.TurnServiceDeps{
		Engine:       service.NewTurnEngine(inference, logger),
		LLM:          llmClient,
		Personas:     catalog,
		Scenarios:    catalog,
		Sessions:     sessionRepo,
		Messages:     messageRepo,
		Moods:        moods,
		Limiter:      limiter,
		HistoryTurns: cfg.InferenceHistoryTurns,
		Logger:       logger,
	})
	devTools := service.NewDevTools(catalog, inference, logger)

	tokens := service.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if !tokens.Enabled() {
		logger.Warn("jwt secret not configured, sessions are anonymous")
	}

	router := apihttp.NewRouter(
		logger,
		tokens,
		apihttp.NewAuthHandler(logger, tokens),
		apihttp.NewSessionHandler(logger, turnSvc),
		apihttp.NewPersonaHandler(logger, catalog, devTools),
		cfg.DebugMode,
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
