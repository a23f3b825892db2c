package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"purchase-tracker/config"
	"purchase-tracker/internal/api"
	"purchase-tracker/internal/broker"
	"purchase-tracker/internal/redisclient"
	"purchase-tracker/internal/service"
	"purchase-tracker/internal/store"
	"purchase-tracker/internal/util"
	"purchase-tracker/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting purchase tracker")

	tp, err := util.InitTracer("purchase-tracker", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	ingestService := service.NewIngestService(db, redisClient, eventPublisher)
	recService := service.NewRecommendationService(db, redisClient, eventPublisher, logger)
	analyticsService := service.NewAnalyticsService(db, logger)
	competitorService := service.NewCompetitorService(db, logger, cfg.Business.FuzzyMatchThreshold)

	// every committed invoice triggers a best-effort recommendation refresh;
	// the engine lock makes overlapping triggers a no-op
	ingestService.OnIngested(func(ctx context.Context) {
		go func() {
			if _, err := recService.Generate(context.Background()); err != nil &&
				!errors.Is(err, service.ErrGenerationInProgress) {
				logger.Warn("post-ingest recommendation run failed", zap.Error(err))
			}
		}()
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	invoiceConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicInvoices, cfg.Kafka.ConsumerGroup)
	defer invoiceConsumer.Close()
	invoiceWorker := worker.NewInvoiceWorker(invoiceConsumer, db, redisClient, ingestService, logger)
	go func() {
		if err := invoiceWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Invoice worker error: %v", err)
		}
	}()

	scheduler := worker.NewScheduler(recService, competitorService, logger)
	if err := scheduler.Start(cfg.Business.RecommendationCron, cfg.Business.ScrapeCron); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(db, ingestService, recService, analyticsService, competitorService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	scheduler.Stop()

	log.Println("Server exited")
}
