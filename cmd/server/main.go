package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/api"
	"github.com/jafarshop/bundles/internal/audit"
	"github.com/jafarshop/bundles/internal/catalog"
	"github.com/jafarshop/bundles/internal/config"
	"github.com/jafarshop/bundles/internal/repository/postgres"
	"github.com/jafarshop/bundles/internal/service"
	"github.com/jafarshop/bundles/internal/shopify"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.Environment == "production" {
		logger, _ = zap.NewProduction()
	} else {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	logger.Info("Starting bundle promotions server",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
	)

	// Initialize database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)

	// Platform client, catalog provider and promotion gateway
	client := shopify.NewClient(cfg.Shopify.APIVersion, logger)
	gateway := shopify.NewGateway(client, logger)

	var provider catalog.Provider = catalog.NewShopifyProvider(client, logger)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		provider = catalog.NewCachedProvider(provider, rdb, cfg.Redis.SnapshotTTL, logger)
		logger.Info("Variant snapshot cache enabled", zap.String("redis_addr", cfg.Redis.Addr))
	}

	var publisher audit.Publisher = audit.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info("Evaluation audit publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	evalService := service.NewEvaluationService(repos, provider, publisher, logger)
	offerService := service.NewOfferService(repos, gateway, cfg.Promotions, logger)

	router := api.NewRouter(cfg, repos, evalService, offerService, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Expiry sweep: run once on startup, then on the configured interval
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweeper := service.NewSweeperService(repos, logger)
	go sweeper.RunLoop(sweepCtx, cfg.Promotions.SweepInterval)

	logger.Info("Server started successfully", zap.String("address", srv.Addr))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweep()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
