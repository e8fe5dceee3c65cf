/**
 * PostgreSQL Client for the TextExtract Worker
 *
 * Handles job status persistence and stores extraction results keyed by
 * content hash and options digest.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/textextract-worker/internal/document"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	QualityScore     float64
	ProcessingTimeMs int64
	ExtractionID     string
	ErrorCode        string
	ErrorMessage     string
	Method           string
	Metadata         map[string]interface{}
}

// ExtractionRecord is one stored extraction result
type ExtractionRecord struct {
	ID            string
	JobID         string
	FileHash      string
	OptionsDigest string
	Filename      string
	MimeType      string
	Result        *document.Result
	ChunksIndexed int
	CreatedAt     time.Time
}

// sanitizeConfidence rounds a score to 4 decimal places and clamps it to
// [0,1] so it fits NUMERIC(5,4)
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus upserts the job row, so the worker can create it on the
// first status update
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	quality := sanitizeConfidence(update.QualityScore)

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	query := `
		INSERT INTO textextract.extraction_jobs (
			id, user_id, filename, mime_type, file_size,
			status, quality_score, processing_time_ms, extraction_id,
			error_code, error_message, method, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($13, ''), 'anonymous'), COALESCE(NULLIF($10, ''), 'unknown'),
			COALESCE(NULLIF($11, ''), 'application/octet-stream'), COALESCE($12, 0),
			$2, NULLIF($3::NUMERIC(5,4), 0), NULLIF($4, 0),
			CASE WHEN $5 = '' THEN NULL ELSE $5::uuid END,
			NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			COALESCE($9::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			quality_score = COALESCE(EXCLUDED.quality_score, textextract.extraction_jobs.quality_score),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, textextract.extraction_jobs.processing_time_ms),
			extraction_id = COALESCE(EXCLUDED.extraction_id, textextract.extraction_jobs.extraction_id),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			method = COALESCE(EXCLUDED.method, textextract.extraction_jobs.method),
			metadata = textextract.extraction_jobs.metadata || EXCLUDED.metadata,
			file_size = COALESCE(NULLIF(EXCLUDED.file_size, 0), textextract.extraction_jobs.file_size),
			updated_at = NOW()
		RETURNING id
	`

	var filename, mimeType, userID string
	var fileSize int64
	if update.Metadata != nil {
		if fn, ok := update.Metadata["filename"].(string); ok {
			filename = fn
		}
		if mt, ok := update.Metadata["mimeType"].(string); ok {
			mimeType = mt
		}
		switch fs := update.Metadata["fileSize"].(type) {
		case int64:
			fileSize = fs
		case int:
			fileSize = int64(fs)
		case float64:
			fileSize = int64(fs)
		}
		if uid, ok := update.Metadata["userId"].(string); ok {
			userID = uid
		}
	}

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.Status,           // $2
		quality,                 // $3
		update.ProcessingTimeMs, // $4
		update.ExtractionID,     // $5
		update.ErrorCode,        // $6
		update.ErrorMessage,     // $7
		update.Method,           // $8
		metadataJSON,            // $9
		filename,                // $10
		mimeType,                // $11
		fileSize,                // $12
		userID,                  // $13
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s, quality=%.4f): %w",
			update.JobID, update.Status, quality, err)
	}

	return nil
}

// InsertExtraction stores a result. A second result for the same content
// and options replaces the first and keeps its ID.
func (p *PostgresClient) InsertExtraction(ctx context.Context, rec *ExtractionRecord) error {
	if rec.FileHash == "" {
		return fmt.Errorf("file hash is required")
	}
	if rec.Result == nil {
		return fmt.Errorf("result is required")
	}

	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	resultJSON = sanitizeJSONForPostgres(resultJSON)

	query := `
		INSERT INTO textextract.document_extractions (
			id, job_id, file_hash, options_digest, filename, mime_type,
			pages, chunk_count, quality_score, language, languages,
			ocr_available, result, created_at
		) VALUES (
			$1::uuid, NULLIF($2, '')::uuid, $3, $4, $5, $6,
			$7, $8, $9::NUMERIC(5,4), $10, $11,
			$12, $13::jsonb, NOW()
		)
		ON CONFLICT (file_hash, options_digest) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			filename = EXCLUDED.filename,
			mime_type = EXCLUDED.mime_type,
			pages = EXCLUDED.pages,
			chunk_count = EXCLUDED.chunk_count,
			quality_score = EXCLUDED.quality_score,
			language = EXCLUDED.language,
			languages = EXCLUDED.languages,
			ocr_available = EXCLUDED.ocr_available,
			result = EXCLUDED.result,
			chunks_indexed = 0
		RETURNING id, created_at
	`

	err = p.db.QueryRowContext(
		ctx,
		query,
		rec.ID,
		rec.JobID,
		rec.FileHash,
		rec.OptionsDigest,
		rec.Filename,
		rec.MimeType,
		rec.Result.Pages,
		len(rec.Result.Chunks),
		sanitizeConfidence(rec.Result.QualityScore),
		rec.Result.Language,
		pq.Array(rec.Result.Languages),
		rec.Result.OCRAvailable,
		resultJSON,
	).Scan(&rec.ID, &rec.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to store extraction (hash=%s): %w", rec.FileHash, err)
	}
	return nil
}

// FindExtraction returns the stored result for content and options, or nil
func (p *PostgresClient) FindExtraction(ctx context.Context, fileHash, optionsDigest string) (*ExtractionRecord, error) {
	query := `
		SELECT id, COALESCE(job_id::text, ''), filename, mime_type, result, chunks_indexed, created_at
		FROM textextract.document_extractions
		WHERE file_hash = $1 AND options_digest = $2
	`

	rec := &ExtractionRecord{FileHash: fileHash, OptionsDigest: optionsDigest}
	var resultJSON []byte
	err := p.db.QueryRowContext(ctx, query, fileHash, optionsDigest).Scan(
		&rec.ID, &rec.JobID, &rec.Filename, &rec.MimeType, &resultJSON, &rec.ChunksIndexed, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find extraction: %w", err)
	}

	rec.Result = &document.Result{}
	if err := json.Unmarshal(resultJSON, rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored result: %w", err)
	}
	return rec, nil
}

// MarkIndexed records how many chunks were written to the vector store
func (p *PostgresClient) MarkIndexed(ctx context.Context, extractionID string, count int) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE textextract.document_extractions SET chunks_indexed = $2 WHERE id = $1::uuid`,
		extractionID, count)
	if err != nil {
		return fmt.Errorf("failed to mark extraction indexed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("extraction not found: %s", extractionID)
	}
	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, user_id, filename, mime_type, file_size, status,
			quality_score, processing_time_ms, extraction_id,
			error_code, error_message, method, metadata,
			created_at, updated_at
		FROM textextract.extraction_jobs
		WHERE id = $1::uuid
	`

	var (
		id, userID, filename                  string
		mimeType, status                      sql.NullString
		fileSize                              sql.NullInt64
		quality                               sql.NullFloat64
		processingTimeMs                      sql.NullInt64
		extractionID, errorCode, errorMessage sql.NullString
		method                                sql.NullString
		metadataJSON                          []byte
		createdAt, updatedAt                  time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &userID, &filename, &mimeType, &fileSize, &status,
		&quality, &processingTimeMs, &extractionID,
		&errorCode, &errorMessage, &method,
		&metadataJSON, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	result := map[string]interface{}{
		"id":        id,
		"userId":    userID,
		"filename":  filename,
		"status":    status.String,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
		"metadata":  metadata,
	}

	if mimeType.Valid {
		result["mimeType"] = mimeType.String
	}
	if fileSize.Valid {
		result["fileSize"] = fileSize.Int64
	}
	if quality.Valid {
		result["qualityScore"] = quality.Float64
	}
	if processingTimeMs.Valid {
		result["processingTimeMs"] = processingTimeMs.Int64
	}
	if extractionID.Valid {
		result["extractionId"] = extractionID.String
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}
	if method.Valid {
		result["method"] = method.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
