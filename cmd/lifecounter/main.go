package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/mossy-p/lifecounter/config"
	"github.com/mossy-p/lifecounter/internal/damage"
	"github.com/mossy-p/lifecounter/internal/handlers"
	"github.com/mossy-p/lifecounter/internal/jobs"
	"github.com/mossy-p/lifecounter/internal/live"
	"github.com/mossy-p/lifecounter/internal/lobby"
	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/mossy-p/lifecounter/internal/ratelimit"
	"github.com/mossy-p/lifecounter/internal/redis"
	"github.com/mossy-p/lifecounter/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to Redis
	client, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer client.Close()

	logger.Info("Redis connection established")

	st := store.NewRedisStore(client, store.Options{
		Limits:     models.Limits{NumericCap: cfg.Game.UpdateFieldCap, StringCap: cfg.Game.StringCap},
		MaxRetries: cfg.Game.TxMaxRetries,
		Logger:     logger,
	})
	limiter := ratelimit.NewFallback(
		ratelimit.NewRedis(client, time.Now, cfg.Limits.DebounceTTL),
		ratelimit.NewMemory(time.Now).WithDebounceTTL(cfg.Limits.DebounceTTL),
		logger,
	)
	publisher := live.NewRedisBroadcaster(client)
	hub := live.NewHub(client, logger)
	defer hub.Close()

	lobbies := lobby.NewManager(st, publisher, logger, lobby.Config{StartingLife: cfg.Game.StartingLife})
	protocol := damage.NewProtocol(st, publisher, logger, cfg.Game.StageDeltaCeiling)
	runner := jobs.NewRunner(lobbies, limiter, logger, jobs.Config{
		Interval:       cfg.Maintenance.CleanupInterval,
		LobbyRetention: cfg.Maintenance.LobbyRetention,
		LobbyBatch:     cfg.Maintenance.LobbyPurgeBatch,
		SweepBatch:     cfg.Maintenance.RateLimitSweepBatch,
	})
	go runner.Run(ctx)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handlers.New(lobbies, protocol, st, limiter, runner, hub, logger, handlers.Options{
		JWTSecret:        cfg.JWTSecret,
		AllowedOrigins:   cfg.AllowedOrigins,
		DebounceInterval: cfg.Limits.DebounceInterval,
		RequestTimeout:   cfg.Limits.RequestTimeout,
		CreateTimeout:    cfg.Limits.CreateTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Graceful shutdown failed")
		}
	}()

	// Start server
	logger.WithField("port", cfg.Port).Info("Starting life counter server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("Failed to start server")
	}
	logger.Info("Server stopped")
}

func configureLogger(logger *logrus.Logger, cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}
