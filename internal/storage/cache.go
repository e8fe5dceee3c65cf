package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/textextract-worker/internal/document"
)

const cacheKeyPrefix = "textextract:result:"

// ResultCache keeps recent extraction results in Redis
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache creates a cache over an existing client. A zero ttl keeps
// entries until evicted.
func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

// cacheKey identifies a result by content hash and options digest
func cacheKey(fileHash, optionsDigest string) string {
	return cacheKeyPrefix + fileHash + ":" + optionsDigest
}

// Get returns the cached result, or nil on a miss
func (c *ResultCache) Get(ctx context.Context, fileHash, optionsDigest string) (*ExtractionRecord, error) {
	data, err := c.client.Get(ctx, cacheKey(fileHash, optionsDigest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached result: %w", err)
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return entry.record(fileHash, optionsDigest), nil
}

// Set stores a result under its content hash and options digest
func (c *ResultCache) Set(ctx context.Context, rec *ExtractionRecord) error {
	data, err := json.Marshal(newCacheEntry(rec))
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(rec.FileHash, rec.OptionsDigest), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// Invalidate drops a cached result so the next lookup reads PostgreSQL
func (c *ResultCache) Invalidate(ctx context.Context, fileHash, optionsDigest string) error {
	if err := c.client.Del(ctx, cacheKey(fileHash, optionsDigest)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached result: %w", err)
	}
	return nil
}

type cacheEntry struct {
	ID            string           `json:"id"`
	JobID         string           `json:"jobId"`
	Filename      string           `json:"filename"`
	MimeType      string           `json:"mimeType"`
	Result        *document.Result `json:"result"`
	ChunksIndexed int              `json:"chunksIndexed"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func newCacheEntry(rec *ExtractionRecord) cacheEntry {
	return cacheEntry{
		ID:            rec.ID,
		JobID:         rec.JobID,
		Filename:      rec.Filename,
		MimeType:      rec.MimeType,
		Result:        rec.Result,
		ChunksIndexed: rec.ChunksIndexed,
		CreatedAt:     rec.CreatedAt,
	}
}

func (e cacheEntry) record(fileHash, optionsDigest string) *ExtractionRecord {
	return &ExtractionRecord{
		ID:            e.ID,
		JobID:         e.JobID,
		FileHash:      fileHash,
		OptionsDigest: optionsDigest,
		Filename:      e.Filename,
		MimeType:      e.MimeType,
		Result:        e.Result,
		ChunksIndexed: e.ChunksIndexed,
		CreatedAt:     e.CreatedAt,
	}
}
