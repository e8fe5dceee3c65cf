package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/adverant/nexus/textextract-worker/internal/errors"
	"github.com/adverant/nexus/textextract-worker/internal/logging"
	"github.com/adverant/nexus/textextract-worker/internal/processor"
)

// Job statuses written to PostgreSQL and Redis
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DefaultProcessingTimeout applies when no timeout is configured
const DefaultProcessingTimeout = 5 * time.Minute

// runner executes one job against the processor and records its status.
// Both queue backends share it.
type runner struct {
	processor processor.DocumentProcessorInterface
	timeout   time.Duration
	logger    *logging.Logger
}

func newRunner(proc processor.DocumentProcessorInterface, timeoutMs int64, logger *logging.Logger) *runner {
	timeout := DefaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &runner{processor: proc, timeout: timeout, logger: logger}
}

// run processes the payload under the processing timeout. parent is used
// for status updates so they still land after a timeout.
func (r *runner) run(parent context.Context, payload *JobPayload) (*processor.ProcessResult, error) {
	logger := r.logger.With("job", payload.JobID)
	start := time.Now()

	if err := r.processor.UpdateJobStatus(parent, payload.JobID, StatusProcessing, 0, map[string]interface{}{
		"filename": payload.Filename,
		"mimeType": payload.MimeType,
		"fileSize": payload.FileSize,
		"userId":   payload.UserID,
	}); err != nil {
		logger.Warn("Could not mark job processing", "error", err)
	}

	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	logger.Info("Processing job", "file", payload.Filename, "timeout", r.timeout)
	result, err := r.processor.ProcessDocument(ctx, payload.Request())
	duration := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && apperrors.CodeOf(err) != apperrors.ErrorProcessingTimeout {
			err = apperrors.NewProcessingTimeoutError(payload.JobID, r.timeout, err)
		}
		logger.Error("Job failed", "duration", duration, "error", err)
		r.markFailed(parent, logger, payload.JobID, err, duration)
		return nil, err
	}

	logger.Info("Job completed",
		"duration", duration,
		"extraction", result.ExtractionID,
		"quality", result.QualityScore,
		"cached", result.Cached)

	if err := r.processor.UpdateJobStatus(parent, payload.JobID, StatusCompleted, 100, map[string]interface{}{
		"qualityScore":   result.QualityScore,
		"processingTime": duration.Milliseconds(),
		"extractionId":   result.ExtractionID,
		"method":         result.Method,
		"pages":          result.Pages,
		"chunks":         result.Chunks,
		"chunksIndexed":  result.ChunksIndexed,
		"language":       result.Language,
		"ocrAvailable":   result.OCRAvailable,
		"cached":         result.Cached,
	}); err != nil {
		logger.Warn("Could not mark job completed", "error", err)
	}
	return result, nil
}

func (r *runner) markFailed(ctx context.Context, logger *logging.Logger, jobID string, err error, duration time.Duration) {
	metadata := failureMetadata(err)
	metadata["processingTime"] = duration.Milliseconds()
	if updateErr := r.processor.UpdateJobStatus(ctx, jobID, StatusFailed, 100, metadata); updateErr != nil {
		logger.Warn("Could not mark job failed", "error", updateErr)
	}
}

// failureMetadata describes err for the job record
func failureMetadata(err error) map[string]interface{} {
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) {
		m := pe.ToMap()
		m["error"] = err.Error()
		return m
	}
	return map[string]interface{}{"error": err.Error()}
}

// retryable reports whether another attempt could succeed. Rejected inputs
// and undecodable documents fail the same way every time.
func retryable(err error) bool {
	if apperrors.IsInputRejection(err) {
		return false
	}
	switch apperrors.CodeOf(err) {
	case apperrors.ErrorDecompositionFailed, apperrors.ErrorPipelineFailed:
		return false
	}
	return true
}

func jobKey(queue, suffix string) string {
	return fmt.Sprintf("%s:%s", queue, suffix)
}
