package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the text extraction worker
 *
 * Input rejections fail before any pipeline work and carry a specific code.
 * Everything else is wrapped with fmt.Errorf and %w at the call site.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input rejection
	ErrorEmptyFile         ErrorCode = "EMPTY_FILE"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorFileTooLarge      ErrorCode = "FILE_TOO_LARGE"
	ErrorTooManyPages      ErrorCode = "TOO_MANY_PAGES"

	// Processing errors
	ErrorDecompositionFailed ErrorCode = "DECOMPOSITION_FAILED"
	ErrorPipelineFailed      ErrorCode = "PIPELINE_FAILED"
	ErrorProcessingTimeout   ErrorCode = "PROCESSING_TIMEOUT"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"

	// Network errors
	ErrorDownloadFailed ErrorCode = "DOWNLOAD_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Is matches another *ProcessingError by code so callers can test with
// errors.Is(err, &ProcessingError{Code: ErrorFileTooLarge}).
func (e *ProcessingError) Is(target error) bool {
	t, ok := target.(*ProcessingError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first ProcessingError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsInputRejection reports whether err rejected the input before the pipeline ran
func IsInputRejection(err error) bool {
	switch CodeOf(err) {
	case ErrorEmptyFile, ErrorUnsupportedFormat, ErrorFileTooLarge, ErrorTooManyPages:
		return true
	}
	return false
}

// Factory functions for common errors

func NewEmptyFileError(jobID string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEmptyFile,
		Message:   "Empty file provided",
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

func NewUnsupportedFormatError(jobID string, mimeType string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file format: %s", mimeType),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewFileTooLargeError(jobID string, size, limit int64) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorFileTooLarge,
		Message:   fmt.Sprintf("File too large: %d bytes exceeds limit of %d bytes", size, limit),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"file_size": size,
			"limit":     limit,
		},
	}
}

func NewTooManyPagesError(jobID string, pages, limit int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorTooManyPages,
		Message:   fmt.Sprintf("Too many pages: %d exceeds limit of %d", pages, limit),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page_count": pages,
			"limit":      limit,
		},
	}
}

func NewDecompositionFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDecompositionFailed,
		Message:   "Failed to decompose document into pages",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewPipelineFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorPipelineFailed,
		Message:   "Extraction pipeline failed",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewDownloadFailedError(jobID string, attempts int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDownloadFailed,
		Message:   fmt.Sprintf("Failed to download file after %d attempts", attempts),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"attempts": attempts,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
