/**
 * TextExtract Worker - Main Entry Point
 *
 * Go worker for text extraction from PDFs and images.
 *
 * Architecture:
 * - Redis list consumer (or Asynq) for the job queue
 * - PDF decomposition into text lines and embedded images
 * - Image preprocessing and multi-configuration Tesseract OCR
 * - Quality scoring and language detection over the assembled text
 * - PostgreSQL persistence with a Redis result cache
 * - Optional VoyageAI embeddings indexed into Qdrant per chunk
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/textextract-worker/internal/config"
	"github.com/adverant/nexus/textextract-worker/internal/document"
	"github.com/adverant/nexus/textextract-worker/internal/imageprep"
	"github.com/adverant/nexus/textextract-worker/internal/logging"
	"github.com/adverant/nexus/textextract-worker/internal/ocr"
	"github.com/adverant/nexus/textextract-worker/internal/ocr/tesseract"
	"github.com/adverant/nexus/textextract-worker/internal/pdfdoc"
	"github.com/adverant/nexus/textextract-worker/internal/processor"
	"github.com/adverant/nexus/textextract-worker/internal/queue"
	"github.com/adverant/nexus/textextract-worker/internal/storage"
)

// stopper shuts down a started queue backend
type stopper func() error

func main() {
	logger := logging.NewLogger("Worker")

	if err := godotenv.Load(".env.nexus"); err != nil {
		logger.Warn(".env.nexus not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	logger.Info("TextExtract Worker starting",
		"queueBackend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"qdrant", cfg.QdrantURL != "")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	storageManager, err := storage.NewStorageManager(storage.StorageConfig{
		PostgresURL:      cfg.DatabaseURL,
		QdrantAddress:    cfg.QdrantURL,
		QdrantCollection: cfg.QdrantCollection,
		Redis:            redisClient,
		ResultTTL:        time.Duration(cfg.ResultCacheTTL) * time.Second,
	}, logging.NewLogger("Storage"))
	if err != nil {
		logger.Error("Failed to initialize storage manager", "error", err)
		os.Exit(1)
	}

	extractor := newExtractor(cfg, logger)

	var embedder processor.Embedder
	if cfg.VoyageAPIKey != "" {
		client, err := processor.NewEmbeddingClient(cfg.VoyageAPIKey, logging.NewLogger("Embedding"))
		if err != nil {
			logger.Error("Failed to initialize embedding client", "error", err)
			os.Exit(1)
		}
		embedder = client
	}

	defaults := document.DefaultOptions()
	defaults.ExtractImages = cfg.ExtractImages
	defaults.PreserveLayout = cfg.PreserveLayout
	defaults.ConfidenceThreshold = cfg.ConfidenceThreshold
	defaults.Languages = cfg.OCRLanguages

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		MaxFileSize:    cfg.MaxFileSize,
		DefaultOptions: defaults,
		Extractor:      extractor,
		Store:          storageManager,
		Embedder:       embedder,
		Logger:         logging.NewLogger("Processor"),
	})
	if err != nil {
		logger.Error("Failed to initialize document processor", "error", err)
		os.Exit(1)
	}

	stop, err := startConsumer(cfg, redisClient, proc)
	if err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}

	if err := healthCheck(storageManager); err != nil {
		logger.Warn("Health check failed", "error", err)
	}

	logger.Info("TextExtract Worker is ready, waiting for jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Initiating graceful shutdown", "signal", sig.String())

	if err := stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	if err := storageManager.Close(); err != nil {
		logger.Error("Error closing storage manager", "error", err)
	}

	logger.Info("Shutdown complete")
}

// newExtractor probes Tesseract once and assembles the extraction pipeline
func newExtractor(cfg *config.Config, logger *logging.Logger) *processor.Extractor {
	tessCfg := tesseract.Config{
		TesseractPath:  cfg.TesseractPath,
		TessdataPrefix: cfg.TessdataPrefix,
	}
	engine := tesseract.Probe(tessCfg)
	if engine.Available {
		logger.Info("Tesseract OCR available", "version", engine.Version, "languages", len(engine.Languages))
	} else {
		logger.Warn("Tesseract OCR not available, image text will not be recognized", "reason", engine.Reason)
	}

	searcher := ocr.NewSearcher(
		tesseract.NewEngine(tessCfg),
		engine,
		ocr.SearchOptions{Parallel: cfg.OCRParallelConfigs},
		logging.NewLogger("OCRSearch"),
	)

	return processor.NewExtractor(
		processor.ExtractorConfig{
			MaxFileSize:      cfg.MaxFileSize,
			MaxPages:         cfg.MaxPages,
			ImageConcurrency: cfg.ImageConcurrency,
		},
		pdfdoc.NewDecomposer(cfg.TempDir, logging.NewLogger("PDFDecomposer")),
		imageprep.NewPreprocessor(imageprep.DefaultOptions(), logging.NewLogger("ImagePrep")),
		searcher,
		logging.NewLogger("Extractor"),
	)
}

// startConsumer starts the configured queue backend and returns its stop func
func startConsumer(cfg *config.Config, redisClient *redis.Client, proc processor.DocumentProcessorInterface) (stopper, error) {
	switch cfg.QueueBackend {
	case "asynq":
		consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			Logger:            logging.NewLogger("Consumer"),
		})
		if err != nil {
			return nil, err
		}
		if err := consumer.Start(context.Background()); err != nil {
			return nil, err
		}
		return func() error { return consumer.Stop(context.Background()) }, nil

	default:
		consumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			Client:            redisClient,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			Logger:            logging.NewLogger("RedisConsumer"),
		})
		if err != nil {
			return nil, err
		}
		if err := consumer.Start(); err != nil {
			return nil, err
		}
		return consumer.Stop, nil
	}
}

// healthCheck verifies the database and vector store are reachable
func healthCheck(sm *storage.StorageManager) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sm.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if _, err := sm.GetStats(ctx); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}
