/**
 * Extraction Pipeline
 *
 * Runs one document through decomposition, image preprocessing, the OCR
 * configuration search, chunk assembly, quality scoring and language
 * detection. Input rejections come back as errors; anything that goes wrong
 * after validation comes back as an unsuccessful Result.
 */

package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/textextract-worker/internal/document"
	apperrors "github.com/adverant/nexus/textextract-worker/internal/errors"
	"github.com/adverant/nexus/textextract-worker/internal/language"
	"github.com/adverant/nexus/textextract-worker/internal/logging"
	"github.com/adverant/nexus/textextract-worker/internal/ocr"
	"github.com/adverant/nexus/textextract-worker/internal/pdfdoc"
	"github.com/adverant/nexus/textextract-worker/internal/quality"
)

// PageDecomposer splits a PDF into pages of native text and images
type PageDecomposer interface {
	PageCount(ctx context.Context, data []byte) (int, error)
	Decompose(ctx context.Context, data []byte) (*pdfdoc.Decomposition, error)
}

// ImagePreparer turns encoded image bytes into an OCR-ready PNG
type ImagePreparer interface {
	ProcessBytes(data []byte) ([]byte, image.Point, error)
}

// OCRSearcher returns one attempt per image
type OCRSearcher interface {
	Available() bool
	Engine() ocr.EngineConfig
	Search(ctx context.Context, image []byte, page int, lang string) ocr.Attempt
}

// ExtractorConfig bounds what the extractor accepts and how hard it works
type ExtractorConfig struct {
	MaxFileSize      int64
	MaxPages         int
	ImageConcurrency int
}

// Extractor is safe for concurrent use. It holds no per-request state.
type Extractor struct {
	cfg        ExtractorConfig
	decomposer PageDecomposer
	preparer   ImagePreparer
	searcher   OCRSearcher
	scorer     *quality.Scorer
	detector   *language.Detector
	logger     *logging.Logger
}

// NewExtractor wires the pipeline stages together
func NewExtractor(cfg ExtractorConfig, decomposer PageDecomposer, preparer ImagePreparer, searcher OCRSearcher, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewLogger("Extractor")
	}
	if cfg.ImageConcurrency < 1 {
		cfg.ImageConcurrency = 1
	}
	return &Extractor{
		cfg:        cfg,
		decomposer: decomposer,
		preparer:   preparer,
		searcher:   searcher,
		scorer:     quality.NewScorer(),
		detector:   language.NewDetector(nil),
		logger:     logger,
	}
}

// Extract processes one document. A non-nil error is always an input
// rejection (*errors.ProcessingError) with an empty JobID. Failures after
// validation are reported through Result.Success and Result.Error.
func (e *Extractor) Extract(ctx context.Context, doc *document.Document, opts document.Options) (res *document.Result, err error) {
	start := time.Now()

	if err := e.validate(ctx, doc); err != nil {
		return nil, err
	}

	res = &document.Result{
		Method:              document.Method,
		FileHash:            doc.Hash(),
		OCRAvailable:        e.searcher.Available(),
		OCREngineVersion:    e.searcher.Engine().Version,
		ConfidenceThreshold: opts.ConfidenceThreshold,
		Chunks:              []document.Chunk{},
		PageResults:         []document.PageResult{},
		Languages:           []string{},
		ExtractedLanguages:  []string{},
		Warnings:            []string{},
	}
	if !res.OCRAvailable {
		res.Warnings = append(res.Warnings, "Tesseract OCR not available: "+e.searcher.Engine().Reason)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Extraction panicked", "file", doc.Filename, "panic", r)
			e.fail(res, fmt.Errorf("internal error: %v", r))
		}
		res.ProcessingTimeMs = time.Since(start).Milliseconds()
	}()

	pages, warnings, err := e.pages(ctx, doc)
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		e.logger.Error("Decomposition failed", "file", doc.Filename, "error", err)
		e.fail(res, err)
		return res, nil
	}
	res.Pages = len(pages)

	if err := e.assemble(ctx, pages, opts, doc.MediaType == document.MediaImage, res); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.NewProcessingTimeoutError("", time.Since(start), err)
		}
		e.logger.Error("Extraction failed", "file", doc.Filename, "error", err)
		e.fail(res, err)
		return res, nil
	}

	res.Success = true
	e.logger.Info("Extraction complete",
		"file", doc.Filename,
		"pages", res.Pages,
		"chunks", len(res.Chunks),
		"quality", res.QualityScore,
		"language", res.Language)
	return res, nil
}

// OCREngine reports whether images will be recognized and by which version
func (e *Extractor) OCREngine() (bool, string) {
	return e.searcher.Available(), e.searcher.Engine().Version
}

// validate rejects inputs before any work is done
func (e *Extractor) validate(ctx context.Context, doc *document.Document) error {
	if doc.Size() == 0 {
		return apperrors.NewEmptyFileError("")
	}
	if doc.MediaType != document.MediaPDF && doc.MediaType != document.MediaImage {
		return apperrors.NewUnsupportedFormatError("", doc.MimeType)
	}
	if e.cfg.MaxFileSize > 0 && doc.Size() > e.cfg.MaxFileSize {
		return apperrors.NewFileTooLargeError("", doc.Size(), e.cfg.MaxFileSize)
	}
	if doc.MediaType != document.MediaPDF || e.cfg.MaxPages <= 0 {
		return nil
	}

	count, err := e.decomposer.PageCount(ctx, doc.Bytes())
	if err != nil {
		// unreadable page trees surface as decomposition failures
		e.logger.Warn("Page count failed", "file", doc.Filename, "error", err)
		return nil
	}
	if count > e.cfg.MaxPages {
		return apperrors.NewTooManyPagesError("", count, e.cfg.MaxPages)
	}
	return nil
}

// pages decomposes a PDF, or wraps a standalone image as a single page
func (e *Extractor) pages(ctx context.Context, doc *document.Document) ([]document.Page, []string, error) {
	if doc.MediaType == document.MediaImage {
		return []document.Page{imagePage(doc.Bytes())}, nil, nil
	}

	out, err := e.decomposer.Decompose(ctx, doc.Bytes())
	if err != nil {
		return nil, nil, apperrors.NewDecompositionFailedError("", err)
	}
	return out.Pages, out.Warnings, nil
}

// imagePage sizes the page from the image header. An undecodable header
// leaves the size at zero and the OCR stage reports the decode error.
func imagePage(data []byte) document.Page {
	page := document.Page{Number: 1}
	var w, h int
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		w, h = cfg.Width, cfg.Height
	}
	page.Width, page.Height = float64(w), float64(h)
	page.Images = []document.EmbeddedImage{{
		Index:  0,
		Data:   data,
		BBox:   document.BoundingBox{X2: float64(w), Y2: float64(h)},
		Width:  w,
		Height: h,
	}}
	return page
}

// fail turns a partially built result into a failure, keeping warnings and
// page metrics gathered so far
func (e *Extractor) fail(res *document.Result, err error) {
	res.Success = false
	res.Error = err.Error()
	res.Text = ""
	res.Chunks = []document.Chunk{}
}
