/**
 * Bubble Extraction Worker - Main Entry Point
 *
 * Extracts classified speech bubbles from comic page images.
 *
 * Architecture:
 * - Region detection service for candidate text boxes
 * - Vision-language service for transcription and classification
 * - Optional local Tesseract fallback transcription tier
 * - JSON page cache for idempotent, resumable runs
 * - Optional PostgreSQL run store and Qdrant dialogue index
 *
 * Two run modes:
 * - One-shot: INPUT_DIR set, process the directory and exit
 * - Queue: REDIS_URL set, consume extraction runs from Redis until signaled
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dougiefresh49/comic-reader/internal/clients"
	"github.com/dougiefresh49/comic-reader/internal/config"
	"github.com/dougiefresh49/comic-reader/internal/processor"
	"github.com/dougiefresh49/comic-reader/internal/queue"
	"github.com/dougiefresh49/comic-reader/internal/storage"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Bubble extraction worker starting...")
	log.Printf("Configuration loaded: Detector=%s, Vision=%s, Cache=%s, Concurrency=%d",
		cfg.DetectorURL, cfg.VisionURL, cfg.CachePath, cfg.PageConcurrency)

	// Initialize storage (cache required, PostgreSQL/Qdrant optional)
	storageManager, err := storage.NewStorageManager(
		cfg.CachePath,
		cfg.DatabaseURL,
		cfg.QdrantURL,
		cfg.QdrantCollection,
	)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer storageManager.Close()
	log.Printf("Storage initialized: %d pages cached, runStore=%v, dialogueIndex=%v",
		storageManager.Cache.Len(), storageManager.HasRunStore(), storageManager.HasDialogueIndex())

	// Initialize upstream clients and verify they respond
	detector := clients.NewDetectorClient(cfg.DetectorURL)
	vision := clients.NewVisionClient(cfg.VisionURL, cfg.VisionAPIKey)

	healthCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := detector.HealthCheck(healthCtx); err != nil {
		log.Printf("Warning: detector health check failed: %v", err)
	}
	if err := vision.HealthCheck(healthCtx); err != nil {
		log.Printf("Warning: vision service health check failed: %v", err)
	}
	cancel()

	// Optional embedding client for the dialogue index
	var embedder *processor.EmbeddingClient
	if cfg.EmbeddingAPIKey != "" && storageManager.HasDialogueIndex() {
		embedder, err = processor.NewEmbeddingClient(cfg.EmbeddingAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize embedding client: %v", err)
		}
		log.Printf("Dialogue indexing enabled")
	}

	// Build the pipeline
	pages := processor.NewPageProcessor(cfg, detector, vision)
	batch := processor.NewBatchProcessor(cfg, pages, storageManager, embedder)

	if cfg.InputDir != "" {
		runOneShot(cfg, batch)
		return
	}

	runQueueMode(cfg, batch)
}

// runOneShot processes a local directory and exits with a non-zero status
// when any page failed.
func runOneShot(cfg *config.Config, batch *processor.BatchProcessor) {
	log.Printf("One-shot mode: processing %s", cfg.InputDir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := batch.ProcessRun(ctx, "", cfg.InputDir)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	if summary.Failed > 0 {
		log.Printf("Run finished with %d failed pages: %v", summary.Failed, summary.FailedPages)
		os.Exit(1)
	}
}

// runQueueMode consumes extraction runs from Redis until signaled. Storage
// is closed by main's deferred Close once this returns.
func runQueueMode(cfg *config.Config, batch *processor.BatchProcessor) {
	log.Printf("Queue mode: connecting to Redis...")

	events, err := queue.NewEventPublisher(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}
	defer events.Close()

	// Page state transitions stream out as progress events.
	batch.OnStatus = func(runID, page string, state processor.PageState) {
		events.PublishPageState(context.Background(), runID, page, state)
	}

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Handler:           batch,
		Events:            events,
		ProcessingTimeout: int64(cfg.ProcessingTimeout),
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	ctx := context.Background()
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("Bubble extraction worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", cfg.QueueName)
	log.Printf("Page concurrency: %d", cfg.PageConcurrency)
	log.Printf("Cache: %s", cfg.CachePath)
	log.Printf("===========================================")
	log.Printf("Waiting for runs...")

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	if err := consumer.Stop(ctx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}

	log.Printf("Shutdown complete")
}
