package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hireloop/hireloop-api/internal/config"
	"github.com/hireloop/hireloop-api/internal/database"
	"github.com/hireloop/hireloop-api/internal/models"
	"github.com/hireloop/hireloop-api/internal/queue"
	"github.com/hireloop/hireloop-api/internal/repository"
	"github.com/hireloop/hireloop-api/internal/worker"
	"github.com/hireloop/hireloop-api/pkg/judge0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("process", "worker").Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Submission{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	natsConn, js, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName+" worker")
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	defer natsConn.Close()

	evaluationQueue, err := queue.NewJetStreamQueue(js, queue.Config{
		Stream:     cfg.QueueStream,
		Subject:    cfg.QueueSubject,
		Group:      cfg.QueueGroup,
		MaxDeliver: cfg.QueueMaxDeliver,
	}, logger)
	if err != nil {
		log.Fatalf("failed to set up evaluation queue: %v", err)
	}

	engine := judge0.NewHTTPClient(judge0.Config{
		BaseURL:      cfg.Judge0BaseURL,
		APIKey:       cfg.Judge0APIKey,
		APIHost:      cfg.Judge0APIHost,
		PollAttempts: cfg.Judge0PollAttempts,
		PollInterval: cfg.Judge0PollInterval,
		Logger:       logger,
	})

	submissionRepo := repository.NewSubmissionRepository(db)
	evaluator := worker.NewEvaluator(submissionRepo, engine, logger)

	// Concurrency across submissions comes from parallel consumers in the same
	// queue group; within one job the poll loop stays sequential.
	stops := make([]func(), 0, cfg.WorkerConcurrency)
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		stop, err := evaluationQueue.Consume(evaluator.Handle)
		if err != nil {
			log.Fatalf("failed to start evaluation consumer: %v", err)
		}
		stops = append(stops, stop)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9100", nil); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics endpoint stopped")
		}
	}()

	logger.Info().Int("consumers", cfg.WorkerConcurrency).Msg("evaluation worker started")

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	for _, stopConsumer := range stops {
		stopConsumer()
	}

	log.Println("worker stopped")
}
