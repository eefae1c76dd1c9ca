package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/progress-service/internal/cache"
	"github.com/SAP-F-2025/progress-service/internal/config"
	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/handlers"
	"github.com/SAP-F-2025/progress-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/progress-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/progress-service/internal/services"
	"github.com/SAP-F-2025/progress-service/internal/utils"
	"github.com/SAP-F-2025/progress-service/internal/validator"
	"github.com/SAP-F-2025/progress-service/internal/workers"
	"github.com/SAP-F-2025/progress-service/pkg"
)

const aggregationConsumerGroup = "progress-aggregation"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
		}
	}

	// Initialize repositories
	repoConfig := postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
		CasdoorConfig: casdoor.CasdoorConfig{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		},
	}
	repoManager := postgres.NewRepositoryManager(repoConfig)
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}
	repo := repoManager.GetRepository()

	// Initialize validator and cache
	validator := validator.New()
	cacheManager := cache.NewCacheManager(redisClient)

	// Event pipeline: Kafka when brokers are configured, otherwise an
	// in-process pub/sub so local runs still exercise the aggregation worker.
	var (
		publisher  events.EventPublisher
		subscriber message.Subscriber
	)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := events.NewKafkaEventPublisher(cfg.KafkaBrokers, slogLogger)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka publisher: %v", err)
		}
		publisher = kafkaPublisher

		subscriber, err = workers.NewKafkaSubscriber(cfg.KafkaBrokers, aggregationConsumerGroup, slogLogger)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka subscriber: %v", err)
		}
	} else {
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(slogLogger))
		publisher = events.NewPublisher(pubSub, slogLogger)
		subscriber = pubSub
		logger.Info("Kafka brokers not configured, using in-process event bus")
	}

	// Initialize services
	var serviceManager *services.ServiceManager
	if cfg.Environment == "production" {
		serviceManager = services.CreateProductionServiceManager(repo, db, slogLogger, validator, publisher, cacheManager)
	} else {
		serviceManager = services.CreateDevelopmentServiceManager(repo, db, slogLogger, validator, publisher, cacheManager)
	}
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Start the aggregation worker
	worker, err := workers.NewAggregationWorker(subscriber, serviceManager.Aggregation(), serviceManager.Config().Aggregation.MaxRetries, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize aggregation worker: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go func() {
		if err := worker.Run(workerCtx); err != nil {
			logger.Error("Aggregation worker stopped", "error", err)
		}
	}()
	<-worker.Running()

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, validator, logger, cfg.Casdoor, repo.User())

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Stop the worker before the services it calls into
	workerCancel()
	if err := worker.Close(); err != nil {
		log.Printf("Failed to close aggregation worker: %v", err)
	}

	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}
