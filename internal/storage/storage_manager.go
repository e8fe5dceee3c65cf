/**
 * Storage Manager for the TextExtract Worker
 *
 * Coordinates storage operations across PostgreSQL (jobs and results),
 * Redis (result cache) and Qdrant (chunk vectors). Qdrant and Redis are
 * optional; PostgreSQL is the source of truth.
 */

package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/textextract-worker/internal/document"
	"github.com/adverant/nexus/textextract-worker/internal/logging"
)

// StorageConfig selects the backends to connect
type StorageConfig struct {
	PostgresURL      string
	QdrantAddress    string
	QdrantCollection string
	// Redis enables the result cache when set
	Redis     *redis.Client
	ResultTTL time.Duration
}

// StorageManager coordinates PostgreSQL, Redis and Qdrant operations
type StorageManager struct {
	postgres *PostgresClient
	qdrant   *QdrantClient
	cache    *ResultCache
	logger   *logging.Logger
}

// ExtractionInput is a finished result to persist
type ExtractionInput struct {
	JobID         string
	FileHash      string
	OptionsDigest string
	Filename      string
	MimeType      string
	Result        *document.Result
}

// ChunkIndexInput pairs chunks with their embeddings
type ChunkIndexInput struct {
	ExtractionID  string
	JobID         string
	FileHash      string
	OptionsDigest string
	Filename      string
	Chunks        []document.Chunk
	Embeddings    [][]float32
}

// NewStorageManager creates a new storage manager
func NewStorageManager(cfg StorageConfig, logger *logging.Logger) (*StorageManager, error) {
	if logger == nil {
		logger = logging.NewLogger("Storage")
	}

	postgres, err := NewPostgresClient(cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	sm := &StorageManager{postgres: postgres, logger: logger}

	if cfg.QdrantAddress != "" {
		qdrant, err := NewQdrantClient(cfg.QdrantAddress, cfg.QdrantCollection)
		if err != nil {
			postgres.Close()
			return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
		}
		sm.qdrant = qdrant
	} else {
		logger.Warn("Qdrant address not configured, chunks will not be indexed")
	}

	if cfg.Redis != nil {
		sm.cache = NewResultCache(cfg.Redis, cfg.ResultTTL)
	}

	return sm, nil
}

// CanIndex reports whether a vector store is connected
func (sm *StorageManager) CanIndex() bool {
	return sm.qdrant != nil
}

// LookupExtraction returns a stored result for the same content and
// options. Redis is consulted first; a PostgreSQL hit refills the cache.
func (sm *StorageManager) LookupExtraction(ctx context.Context, fileHash, optionsDigest string) (*ExtractionRecord, error) {
	if sm.cache != nil {
		rec, err := sm.cache.Get(ctx, fileHash, optionsDigest)
		if err != nil {
			sm.logger.Warn("Result cache read failed", "hash", fileHash, "error", err)
		} else if rec != nil {
			return rec, nil
		}
	}

	rec, err := sm.postgres.FindExtraction(ctx, fileHash, optionsDigest)
	if err != nil || rec == nil {
		return nil, err
	}

	if sm.cache != nil {
		if err := sm.cache.Set(ctx, rec); err != nil {
			sm.logger.Warn("Result cache refill failed", "hash", fileHash, "error", err)
		}
	}
	return rec, nil
}

// StoreExtraction persists a result in PostgreSQL, then caches it
func (sm *StorageManager) StoreExtraction(ctx context.Context, input *ExtractionInput) (*ExtractionRecord, error) {
	if input == nil {
		return nil, fmt.Errorf("input is required")
	}

	rec := &ExtractionRecord{
		ID:            uuid.New().String(),
		JobID:         input.JobID,
		FileHash:      input.FileHash,
		OptionsDigest: input.OptionsDigest,
		Filename:      input.Filename,
		MimeType:      input.MimeType,
		Result:        input.Result,
	}
	if err := sm.postgres.InsertExtraction(ctx, rec); err != nil {
		return nil, err
	}

	if sm.cache != nil {
		if err := sm.cache.Set(ctx, rec); err != nil {
			sm.logger.Warn("Result cache write failed", "hash", rec.FileHash, "error", err)
		}
	}
	return rec, nil
}

// IndexChunks writes one vector per chunk to Qdrant and records the count
// in PostgreSQL. If the count cannot be recorded the points are removed.
func (sm *StorageManager) IndexChunks(ctx context.Context, input *ChunkIndexInput) (int, error) {
	if sm.qdrant == nil {
		return 0, fmt.Errorf("vector store is not configured")
	}

	points, err := buildChunkPoints(input)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	if err := sm.qdrant.UpsertVectors(ctx, points); err != nil {
		return 0, fmt.Errorf("failed to store vectors in Qdrant: %w", err)
	}

	if err := sm.postgres.MarkIndexed(ctx, input.ExtractionID, len(points)); err != nil {
		ids := make([]string, len(points))
		for i, p := range points {
			ids[i] = p.ID
		}
		if delErr := sm.qdrant.DeleteVectors(ctx, ids); delErr != nil {
			sm.logger.Error("Vector rollback failed", "extraction", input.ExtractionID, "error", delErr)
		}
		return 0, err
	}

	// the cached copy was written before indexing
	if sm.cache != nil {
		if err := sm.cache.Invalidate(ctx, input.FileHash, input.OptionsDigest); err != nil {
			sm.logger.Warn("Result cache invalidation failed", "hash", input.FileHash, "error", err)
		}
	}

	return len(points), nil
}

// buildChunkPoints creates one point per chunk; embeddings[i] belongs to chunks[i]
func buildChunkPoints(input *ChunkIndexInput) ([]*VectorPoint, error) {
	if input == nil {
		return nil, fmt.Errorf("input is required")
	}
	if input.FileHash == "" {
		return nil, fmt.Errorf("file hash is required")
	}
	if len(input.Chunks) != len(input.Embeddings) {
		return nil, fmt.Errorf("chunk/embedding count mismatch: %d chunks, %d embeddings", len(input.Chunks), len(input.Embeddings))
	}

	points := make([]*VectorPoint, 0, len(input.Chunks))
	for i, chunk := range input.Chunks {
		points = append(points, &VectorPoint{
			ID:     chunkPointID(input.FileHash, input.OptionsDigest, i),
			Vector: input.Embeddings[i],
			Metadata: map[string]interface{}{
				"extraction_id":  input.ExtractionID,
				"job_id":         input.JobID,
				"file_hash":      input.FileHash,
				"options_digest": input.OptionsDigest,
				"filename":       input.Filename,
				"chunk_index":    i,
				"page":           chunk.Page,
				"type":           string(chunk.Type),
				"language":       chunk.Language,
				"confidence":     chunk.Confidence,
				"text":           chunk.Text,
			},
		})
	}
	return points, nil
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return sm.postgres.GetJobByID(ctx, jobID)
}

// Ping checks PostgreSQL connectivity
func (sm *StorageManager) Ping(ctx context.Context) error {
	return sm.postgres.Ping(ctx)
}

// GetStats returns statistics from the connected systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	pgStats := sm.postgres.GetStats()

	stats := map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}

	if sm.qdrant != nil {
		qdrantStats, err := sm.qdrant.GetCollectionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Qdrant stats: %w", err)
		}
		stats["qdrant"] = qdrantStats
	}

	return stats, nil
}

// Close closes all connections. The Redis client belongs to the caller.
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.qdrant != nil {
		qdErr = sm.qdrant.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}

	return nil
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres drops \u0000 escapes, which JSONB rejects, and
// turns other control character escapes into spaces. OCR output regularly
// contains both.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
