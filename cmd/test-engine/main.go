// Command test-engine is the HTTP entrypoint for the data quality Test
// Execution Engine, the way cmd/analytics-service/main.go wires
// configuration, storage, and the HTTP server together with graceful
// shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/cito-data/test-engine/internal/account"
	"github.com/cito-data/test-engine/internal/api"
	"github.com/cito-data/test-engine/internal/authjwt"
	"github.com/cito-data/test-engine/internal/cache"
	"github.com/cito-data/test-engine/internal/config"
	"github.com/cito-data/test-engine/internal/executor"
	"github.com/cito-data/test-engine/internal/observability"
	"github.com/cito-data/test-engine/internal/storage"
	"github.com/cito-data/test-engine/internal/warehouse"
	"github.com/cito-data/test-engine/internal/webhook"
)

func main() {
	ctx := context.Background()

	cfg := config.MustLoad()

	obs := observability.MustInit(observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			obs.Logger.Error("failed to shutdown observability", zap.Error(err))
		}
	}()
	logger := obs.Logger

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("failed to connect to mongo", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())

	store := storage.New(mongoClient.Database(cfg.MongoDBName))

	warehouseClient, err := warehouse.Open(cfg.SnowflakeDSN)
	if err != nil {
		logger.Fatal("failed to open snowflake connection", zap.Error(err))
	}
	defer warehouseClient.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to parse redis url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	historyCache := cache.NewHistoryCache(cache.Config{
		Client: redisClient,
		Logger: logger,
		TTL:    cfg.HistoryCacheTTL,
	})

	eng := executor.New(store, warehouseClient, cfg.AlertBaseURL)
	eng.WarmupMaxSamples = cfg.WarmupMaxSamples
	eng.WarmupMaxDays = cfg.WarmupMaxDays
	eng.AlertSentGap = cfg.AlertSentGap
	eng.History = historyCache

	obs.Metrics = observability.NewMetrics(prometheus.DefaultRegisterer)

	verifier := authjwt.NewVerifier(cfg.CognitoRegion, cfg.CognitoUserPoolID)
	accountsClient := account.NewClient(cfg.AccountServiceURL, nil)
	var webhookClient *webhook.Client
	if cfg.WebhookURL != "" {
		webhookClient = webhook.NewClient(cfg.WebhookURL, nil)
	}

	apiServer := api.NewServer(api.Config{
		Port:        cfg.HTTPPort,
		Logger:      logger,
		MongoClient: mongoClient,
		RedisClient: redisClient,
	})
	apiServer.RegisterExecuteRoutes(&api.ExecuteHandler{
		Executor: eng,
		Verifier: verifier,
		Accounts: accountsClient,
		Webhook:  webhookClient,
		Logger:   logger,
		Metrics:  obs.Metrics,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      apiServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting test-engine",
			zap.String("service", cfg.ServiceName),
			zap.String("environment", cfg.Environment),
			zap.Int("port", cfg.HTTPPort),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("server error", zap.Error(err))
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			if err := srv.Close(); err != nil {
				logger.Error("force close failed", zap.Error(err))
			}
		}
		logger.Info("shutdown complete")
	}
}
