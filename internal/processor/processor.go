/**
 * Document Processor for the TextExtract Worker
 *
 * Runs one queued job end to end:
 * - load the file from the job buffer or its URL
 * - resolve the media type from the declared type and magic bytes
 * - reuse a stored result for identical content and options
 * - extract text, chunks, quality and language
 * - persist the result and index its chunks for semantic search
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/textextract-worker/internal/document"
	apperrors "github.com/adverant/nexus/textextract-worker/internal/errors"
	"github.com/adverant/nexus/textextract-worker/internal/logging"
	"github.com/adverant/nexus/textextract-worker/internal/storage"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error
}

// DocumentExtractor produces a Result for one document
type DocumentExtractor interface {
	Extract(ctx context.Context, doc *document.Document, opts document.Options) (*document.Result, error)
	// OCREngine reports the engine state new results would be produced with
	OCREngine() (available bool, version string)
}

// ResultStore persists jobs and results
type ResultStore interface {
	LookupExtraction(ctx context.Context, fileHash, optionsDigest string) (*storage.ExtractionRecord, error)
	StoreExtraction(ctx context.Context, input *storage.ExtractionInput) (*storage.ExtractionRecord, error)
	IndexChunks(ctx context.Context, input *storage.ChunkIndexInput) (int, error)
	CanIndex() bool
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// Embedder turns texts into vectors; embeddings[i] belongs to texts[i]
type Embedder interface {
	GenerateEmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	MaxFileSize    int64
	DefaultOptions document.Options
	Extractor      DocumentExtractor
	Store          ResultStore
	// Embedder is optional; without it chunks are not indexed
	Embedder   Embedder
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID      string
	UserID     string
	Filename   string
	MimeType   string
	FileSize   int64
	FileURL    string
	FileBuffer []byte
	Metadata   map[string]interface{}
	// Options overrides the configured defaults field by field
	Options *document.OptionOverrides
}

// ProcessResult represents the processing result
type ProcessResult struct {
	ExtractionID     string  `json:"extractionId"`
	FileHash         string  `json:"fileHash"`
	Pages            int     `json:"pages"`
	Chunks           int     `json:"chunks"`
	ChunksIndexed    int     `json:"chunksIndexed"`
	QualityScore     float64 `json:"qualityScore"`
	Language         string  `json:"language"`
	OCRAvailable     bool    `json:"ocrAvailable"`
	Method           string  `json:"method"`
	Warnings         int     `json:"warnings"`
	Cached           bool    `json:"cached"`
	ProcessingTimeMs int64   `json:"processingTimeMs"`
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config     *ProcessorConfig
	extractor  DocumentExtractor
	store      ResultStore
	embedder   Embedder
	httpClient *http.Client
	logger     *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}

	if cfg.Store == nil {
		return nil, fmt.Errorf("result store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Processor")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}

	if cfg.Embedder == nil || !cfg.Store.CanIndex() {
		logger.Warn("Chunk indexing disabled", "embedder", cfg.Embedder != nil, "vectorStore", cfg.Store.CanIndex())
	}

	return &DocumentProcessor{
		config:     cfg,
		extractor:  cfg.Extractor,
		store:      cfg.Store,
		embedder:   cfg.Embedder,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ProcessDocument processes a document through the complete pipeline
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	start := time.Now()
	logger := p.logger.With("job", req.JobID)
	logger.Info("Starting extraction pipeline", "file", req.Filename)

	fileData, err := p.loadFile(ctx, logger, req)
	if err != nil {
		return nil, tagJob(fmt.Errorf("failed to load file: %w", err), req.JobID)
	}

	mediaType, mimeType, ok := document.ResolveMediaType(req.MimeType, fileData)
	if !ok {
		return nil, apperrors.NewUnsupportedFormatError(req.JobID, mimeType)
	}
	if mimeType != req.MimeType {
		logger.Info("Resolved media type", "declared", req.MimeType, "mime", mimeType)
	}

	doc := document.New(req.Filename, mediaType, mimeType, fileData)

	opts := req.Options.Apply(p.config.DefaultOptions)
	digest := opts.Digest()

	rec, err := p.store.LookupExtraction(ctx, doc.Hash(), digest)
	if err != nil {
		logger.Warn("Stored result lookup failed", "hash", doc.Hash(), "error", err)
	} else if p.reusable(rec) {
		logger.Info("Reusing stored extraction", "extraction", rec.ID, "hash", doc.Hash())
		return summarize(rec, rec.ChunksIndexed, true, start), nil
	} else if rec != nil {
		logger.Info("Stored extraction was produced with a different OCR engine, extracting again",
			"extraction", rec.ID,
			"storedOCR", rec.Result != nil && rec.Result.OCRAvailable)
	}

	res, err := p.extractor.Extract(ctx, doc, opts)
	if err != nil {
		return nil, tagJob(err, req.JobID)
	}
	if !res.Success {
		if ctx.Err() != nil {
			return nil, apperrors.NewProcessingTimeoutError(req.JobID, time.Since(start), ctx.Err())
		}
		return nil, apperrors.NewPipelineFailedError(req.JobID, errors.New(res.Error))
	}
	for _, w := range res.Warnings {
		logger.Warn("Extraction warning", "warning", w)
	}

	rec, err = p.store.StoreExtraction(ctx, &storage.ExtractionInput{
		JobID:         req.JobID,
		FileHash:      doc.Hash(),
		OptionsDigest: digest,
		Filename:      req.Filename,
		MimeType:      mimeType,
		Result:        res,
	})
	if err != nil {
		return nil, apperrors.NewStorageFailedError(req.JobID, err)
	}
	logger.Info("Extraction stored", "extraction", rec.ID, "chunks", len(res.Chunks))

	indexed := p.indexChunks(ctx, logger, req.JobID, rec)

	result := summarize(rec, indexed, false, start)
	logger.Info("Extraction pipeline complete",
		"extraction", result.ExtractionID,
		"quality", result.QualityScore,
		"language", result.Language,
		"duration", time.Since(start))
	return result, nil
}

// reusable reports whether a stored result matches what extracting now
// would produce. Results only repeat under the same OCR engine state.
func (p *DocumentProcessor) reusable(rec *storage.ExtractionRecord) bool {
	if rec == nil || rec.Result == nil || !rec.Result.Success {
		return false
	}
	available, version := p.extractor.OCREngine()
	return rec.Result.OCRAvailable == available && rec.Result.OCREngineVersion == version
}

// indexChunks embeds and indexes real text. Placeholder chunks from an
// unavailable or failing engine are skipped. Failures are logged and leave
// the extraction stored but unindexed.
func (p *DocumentProcessor) indexChunks(ctx context.Context, logger *logging.Logger, jobID string, rec *storage.ExtractionRecord) int {
	if p.embedder == nil || !p.store.CanIndex() {
		return 0
	}

	var chunks []document.Chunk
	var texts []string
	for _, c := range rec.Result.Chunks {
		if c.Type != document.ChunkText && c.Type != document.ChunkOCRText {
			continue
		}
		chunks = append(chunks, c)
		texts = append(texts, c.Text)
	}
	if len(chunks) == 0 {
		return 0
	}

	embeddings, err := p.embedder.GenerateEmbeddingBatch(ctx, texts)
	if err != nil {
		logger.Warn("Chunk embedding failed, chunks will not be searchable", "error", err)
		return 0
	}

	n, err := p.store.IndexChunks(ctx, &storage.ChunkIndexInput{
		ExtractionID:  rec.ID,
		JobID:         jobID,
		FileHash:      rec.FileHash,
		OptionsDigest: rec.OptionsDigest,
		Filename:      rec.Filename,
		Chunks:        chunks,
		Embeddings:    embeddings,
	})
	if err != nil {
		logger.Warn("Chunk indexing failed, chunks will not be searchable", "error", err)
		return 0
	}
	return n
}

func summarize(rec *storage.ExtractionRecord, indexed int, cached bool, start time.Time) *ProcessResult {
	return &ProcessResult{
		ExtractionID:     rec.ID,
		FileHash:         rec.FileHash,
		Pages:            rec.Result.Pages,
		Chunks:           len(rec.Result.Chunks),
		ChunksIndexed:    indexed,
		QualityScore:     rec.Result.QualityScore,
		Language:         rec.Result.Language,
		OCRAvailable:     rec.Result.OCRAvailable,
		Method:           rec.Result.Method,
		Warnings:         len(rec.Result.Warnings),
		Cached:           cached,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

// tagJob stamps the job ID on a ProcessingError raised below the job layer
func tagJob(err error, jobID string) error {
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) && pe.JobID == "" {
		pe.JobID = jobID
	}
	return err
}

// UpdateJobStatus updates job status in the database
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	if metadata != nil {
		if quality, ok := metadata["qualityScore"].(float64); ok {
			update.QualityScore = quality
		}
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if extractionID, ok := metadata["extractionId"].(string); ok {
			update.ExtractionID = extractionID
		}
		if method, ok := metadata["method"].(string); ok {
			update.Method = method
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			update.ErrorCode = "PROCESSING_ERROR"
			if code, ok := metadata["error_code"].(string); ok && code != "" {
				update.ErrorCode = code
			}
			update.ErrorMessage = errorMsg
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

// loadFile loads file from buffer or URL
func (p *DocumentProcessor) loadFile(ctx context.Context, logger *logging.Logger, req *ProcessRequest) ([]byte, error) {
	if len(req.FileBuffer) > 0 {
		logger.Debug("Using file buffer", "bytes", len(req.FileBuffer))
		return req.FileBuffer, nil
	}

	if req.FileURL != "" {
		logger.Info("Downloading file", "url", req.FileURL, "expectedSize", req.FileSize)
		fileData, err := p.downloadFileFromURL(ctx, logger, req.JobID, req.FileURL, req.FileSize)
		if err != nil {
			return nil, fmt.Errorf("failed to download file: %w", err)
		}
		logger.Info("File downloaded", "bytes", len(fileData))
		return fileData, nil
	}

	return nil, apperrors.NewEmptyFileError(req.JobID)
}

// downloadFileFromURL downloads a file with exponential backoff. Oversized
// files fail immediately without retrying.
func (p *DocumentProcessor) downloadFileFromURL(ctx context.Context, logger *logging.Logger, jobID string, fileURL string, expectedSize int64) ([]byte, error) {
	const maxRetries = 5

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		data, retry, err := p.fetch(ctx, jobID, fileURL, expectedSize, logger)
		if err == nil {
			return data, nil
		}
		if !retry {
			return nil, err
		}

		lastErr = err
		logger.Warn("Download attempt failed", "attempt", attempt, "maxRetries", maxRetries, "error", err)

		if attempt < maxRetries {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	return nil, apperrors.NewDownloadFailedError(jobID, maxRetries, lastErr)
}

// fetch makes one download attempt; retry is false for errors a retry
// cannot fix
func (p *DocumentProcessor) fetch(ctx context.Context, jobID, fileURL string, expectedSize int64, logger *logging.Logger) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid file URL: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > 0 && expectedSize > 0 && resp.ContentLength != expectedSize {
		logger.Warn("Content-Length mismatch", "expected", expectedSize, "got", resp.ContentLength)
	}

	limit := p.config.MaxFileSize
	if limit > 0 && resp.ContentLength > limit {
		return nil, false, apperrors.NewFileTooLargeError(jobID, resp.ContentLength, limit)
	}
	if limit <= 0 {
		limit = 10 * 1024 * 1024 * 1024
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, false, apperrors.NewFileTooLargeError(jobID, int64(len(data)), limit)
	}
	return data, false, nil
}

// sleepBackoff waits 1s, 2s, 4s ... capped at 32s
func sleepBackoff(ctx context.Context, attempt int) error {
	const (
		initialBackoff = time.Second
		maxBackoff     = 32 * time.Second
	)

	backoff := initialBackoff << (attempt - 1)
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}

	select {
	case <-time.After(backoff):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
	}
}
