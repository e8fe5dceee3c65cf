/**
 * OCR Types - Shared data structures for OCR operations
 *
 * The recognition capability is an interface so the search can run against
 * Tesseract in production and an in-memory fake in tests.
 */

package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/textextract-worker/internal/document"
)

// Token is one recognised word with its engine confidence in [0,100]
type Token struct {
	Text       string
	Confidence float64
}

// Recognizer is the OCR recognition capability
type Recognizer interface {
	// Recognize returns word tokens with per-token confidence
	Recognize(ctx context.Context, image []byte, cfg Config, lang string) ([]Token, error)
	// RecognizePlain returns unscored text
	RecognizePlain(ctx context.Context, image []byte, cfg Config, lang string) (string, error)
}

// PageSegMode mirrors Tesseract's page segmentation modes
type PageSegMode int

const (
	PSMAutoOSD      PageSegMode = 1
	PSMAuto         PageSegMode = 3
	PSMSingleColumn PageSegMode = 4
	PSMSingleBlock  PageSegMode = 6
	PSMSingleWord   PageSegMode = 8
)

// Config is one fixed recognition configuration
type Config struct {
	PageSegMode PageSegMode
	Whitelist   string
}

// String renders the configuration as Tesseract command-line options
func (c Config) String() string {
	s := fmt.Sprintf("--psm %d", c.PageSegMode)
	if c.Whitelist != "" {
		s += " -c tessedit_char_whitelist=" + c.Whitelist
	}
	return s
}

// Whitelist restricts the uniform-block configuration to ASCII alphanumerics
// and common punctuation
const Whitelist = `0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz.,!?;:()[]{}"'`

// Configs is the fixed evaluation order. Ties keep the earlier entry.
var Configs = [5]Config{
	{PageSegMode: PSMSingleBlock, Whitelist: Whitelist},
	{PageSegMode: PSMAuto},
	{PageSegMode: PSMAutoOSD},
	{PageSegMode: PSMSingleColumn},
	{PageSegMode: PSMSingleWord},
}

// PlainConfig is used for the unscored fallback
var PlainConfig = Config{PageSegMode: PSMSingleBlock}

// Labels recorded on attempts that did not come from one of Configs
const (
	ConfigDegraded    = "degraded"
	ConfigUnavailable = "unavailable"
	ConfigError       = "error"
)

// Fixed confidences for the fallback outcomes
const (
	PlainConfidence       = 0.5
	DegradedConfidence    = 0.1
	UnavailableConfidence = 0.0
	ErrorConfidence       = 0.1
)

// TokenThreshold is the engine confidence a token must exceed to count
const TokenThreshold = 30.0

// UnknownLanguage tags chunks whose text did not come from recognition
const UnknownLanguage = "unknown"

// UnavailableText is reported for every image when the engine is absent
const UnavailableText = "[Tesseract OCR not available - install Tesseract OCR engine]"

// Attempt is the outcome of the search for one image
type Attempt struct {
	Text       string
	Confidence float64
	Config     string
	Type       document.ChunkType
	Language   string
	Duration   time.Duration
}

// UnavailableAttempt is the terminal result when the engine is absent
func UnavailableAttempt() Attempt {
	return Attempt{
		Text:       UnavailableText,
		Confidence: UnavailableConfidence,
		Config:     ConfigUnavailable,
		Type:       document.ChunkOCRUnavailable,
		Language:   UnknownLanguage,
	}
}

// ErrorAttempt reports an image that could not be prepared for recognition
func ErrorAttempt(err error) Attempt {
	return Attempt{
		Text:       fmt.Sprintf("[OCR error: %v]", err),
		Confidence: ErrorConfidence,
		Config:     ConfigError,
		Type:       document.ChunkOCRError,
		Language:   UnknownLanguage,
	}
}

// EngineConfig is the process-wide engine state, established once at startup
// and passed by value. Nothing mutates it per request.
type EngineConfig struct {
	BinaryPath     string
	TessdataPrefix string
	Available      bool
	Version        string
	Languages      []string
	// Reason explains why Available is false
	Reason string
}
