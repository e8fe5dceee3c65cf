package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/textextract-worker/internal/document"
	"github.com/adverant/nexus/textextract-worker/internal/logging"
)

// SearchOptions controls how the fixed configurations are evaluated
type SearchOptions struct {
	// Parallel evaluates the configurations concurrently. The winner is the
	// same either way.
	Parallel bool
}

// Searcher runs every configuration against an image and keeps the best
type Searcher struct {
	rec      Recognizer
	engine   EngineConfig
	parallel bool
	logger   *logging.Logger
}

// NewSearcher creates a searcher. A nil recognizer or an unavailable engine
// makes every search return UnavailableAttempt.
func NewSearcher(rec Recognizer, engine EngineConfig, opts SearchOptions, logger *logging.Logger) *Searcher {
	if logger == nil {
		logger = logging.NewLogger("OCRSearch")
	}
	return &Searcher{
		rec:      rec,
		engine:   engine,
		parallel: opts.Parallel,
		logger:   logger,
	}
}

// Available reports whether recognition can run
func (s *Searcher) Available() bool {
	return s.rec != nil && s.engine.Available
}

// Engine returns the engine configuration the searcher was built with
func (s *Searcher) Engine() EngineConfig {
	return s.engine
}

type candidate struct {
	text       string
	confidence float64
	ok         bool
	err        error
}

// Search returns exactly one attempt for a preprocessed image. lang is a
// "+"-joined language set. The highest mean token confidence wins; only a
// strictly greater confidence replaces an earlier configuration.
func (s *Searcher) Search(ctx context.Context, image []byte, page int, lang string) Attempt {
	if !s.Available() {
		return UnavailableAttempt()
	}
	if lang == "" {
		lang = "eng"
	}

	start := time.Now()
	candidates := s.evaluate(ctx, image, lang)

	best := -1
	bestConfidence := 0.0
	for i, c := range candidates {
		if c.err != nil {
			s.logger.Warn("OCR config failed", "page", page, "config", Configs[i].String(), "error", c.err)
			continue
		}
		if c.ok && c.confidence > bestConfidence {
			best = i
			bestConfidence = c.confidence
		}
	}

	if best >= 0 && candidates[best].text != "" {
		return Attempt{
			Text:       candidates[best].text,
			Confidence: candidates[best].confidence,
			Config:     Configs[best].String(),
			Type:       document.ChunkOCRText,
			Language:   lang,
			Duration:   time.Since(start),
		}
	}

	text, err := s.rec.RecognizePlain(ctx, image, PlainConfig, lang)
	if err != nil {
		s.logger.Warn("Basic OCR failed", "page", page, "error", err)
		return Attempt{
			Text:       fmt.Sprintf("[OCR processing failed for image on page %d]", page),
			Confidence: DegradedConfidence,
			Config:     ConfigDegraded,
			Type:       document.ChunkOCRError,
			Language:   UnknownLanguage,
			Duration:   time.Since(start),
		}
	}

	return Attempt{
		Text:       strings.TrimSpace(text),
		Confidence: PlainConfidence,
		Config:     PlainConfig.String(),
		Type:       document.ChunkOCRText,
		Language:   lang,
		Duration:   time.Since(start),
	}
}

// evaluate scores every configuration, results indexed by configuration order
func (s *Searcher) evaluate(ctx context.Context, image []byte, lang string) [len(Configs)]candidate {
	var out [len(Configs)]candidate

	if !s.parallel {
		for i, cfg := range Configs {
			out[i] = s.score(ctx, image, cfg, lang)
		}
		return out
	}

	var g errgroup.Group
	for i, cfg := range Configs {
		i, cfg := i, cfg
		g.Go(func() error {
			out[i] = s.score(ctx, image, cfg, lang)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Searcher) score(ctx context.Context, image []byte, cfg Config, lang string) (c candidate) {
	defer func() {
		if r := recover(); r != nil {
			c = candidate{err: fmt.Errorf("recognizer panic: %v", r)}
		}
	}()

	tokens, err := s.rec.Recognize(ctx, image, cfg, lang)
	if err != nil {
		return candidate{err: err}
	}
	text, confidence, ok := ScoreTokens(tokens)
	return candidate{text: text, confidence: confidence, ok: ok}
}

// ScoreTokens keeps tokens above TokenThreshold, joins them with single
// spaces and returns their mean confidence scaled to [0,1]. ok is false when
// no token survives.
func ScoreTokens(tokens []Token) (string, float64, bool) {
	var kept []string
	sum := 0.0
	for _, t := range tokens {
		if t.Confidence > TokenThreshold {
			kept = append(kept, t.Text)
			sum += t.Confidence
		}
	}
	if len(kept) == 0 {
		return "", 0, false
	}

	confidence := sum / float64(len(kept)) / 100.0
	if confidence > 1 {
		confidence = 1
	}
	return strings.TrimSpace(strings.Join(kept, " ")), confidence, true
}
