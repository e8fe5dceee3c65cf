package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/textextract-worker/internal/document"
	"github.com/adverant/nexus/textextract-worker/internal/ocr"
)

// TextConfidence is reported for every chunk read from the text layer
const TextConfidence = 0.95

// assemble walks pages in order and fills the text, chunks and document
// metrics of res. Chunk order is page order, then text lines before images,
// each in their extraction order.
func (e *Extractor) assemble(ctx context.Context, pages []document.Page, opts document.Options, imageDocument bool, res *document.Result) error {
	lang := opts.LanguageString()
	extracted := map[string]bool{}

	var full strings.Builder
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}

		pr := document.PageResult{
			Number:     page.Number,
			Width:      page.Width,
			Height:     page.Height,
			TextBlocks: len(page.Blocks),
			Images:     len(page.Images),
		}
		if page.Err != nil {
			pr.Error = page.Err.Error()
			res.PageResults = append(res.PageResults, pr)
			continue
		}
		res.PageResults = append(res.PageResults, pr)

		var text strings.Builder
		for _, block := range page.Blocks {
			line := strings.TrimSpace(block.Text)
			if line == "" {
				continue
			}
			if opts.PreserveLayout {
				text.WriteString(block.Text + "\n")
			} else {
				text.WriteString(block.Text + " ")
			}
			res.Chunks = append(res.Chunks, document.Chunk{
				Text:       line,
				Confidence: TextConfidence,
				Page:       page.Number,
				BBox:       block.BBox,
				Type:       document.ChunkText,
			})
		}

		if (opts.ExtractImages || imageDocument) && len(page.Images) > 0 {
			res.HasImages = true

			attempts, err := e.recognizeImages(ctx, page, lang)
			if err != nil {
				return err
			}
			for i, attempt := range attempts {
				img := page.Images[i]
				ocrText := strings.TrimSpace(attempt.Text)
				if ocrText == "" {
					res.Warnings = append(res.Warnings, fmt.Sprintf("Empty OCR result for image %d on page %d", img.Index, page.Number))
					continue
				}
				if opts.PreserveLayout {
					text.WriteString("\n" + ocrText + "\n")
				} else {
					text.WriteString(ocrText + " ")
				}
				res.Chunks = append(res.Chunks, document.Chunk{
					Text:       ocrText,
					Confidence: attempt.Confidence,
					Page:       page.Number,
					BBox:       img.BBox,
					Type:       attempt.Type,
					Language:   attempt.Language,
				})
				if attempt.Language != "" {
					extracted[attempt.Language] = true
				}
			}
		}

		fmt.Fprintf(&full, "\n--- PAGE %d ---\n%s\n", page.Number, text.String())
	}

	res.Text = full.String()
	res.WordCount = len(strings.Fields(res.Text))
	res.CharacterCount = utf8.RuneCountInString(res.Text)
	res.QualityScore = e.scorer.Score(res.Text)
	res.Languages = e.detector.Detect(res.Text)
	res.Language = res.Languages[0]

	res.ExtractedLanguages = make([]string, 0, len(extracted))
	for l := range extracted {
		res.ExtractedLanguages = append(res.ExtractedLanguages, l)
	}
	sort.Strings(res.ExtractedLanguages)
	return nil
}

// recognizeImages runs OCR over every image of a page, at most
// ImageConcurrency at a time. attempts[i] belongs to page.Images[i].
func (e *Extractor) recognizeImages(ctx context.Context, page document.Page, lang string) ([]ocr.Attempt, error) {
	attempts := make([]ocr.Attempt, len(page.Images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ImageConcurrency)
	for i := range page.Images {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			attempts[i] = e.recognize(gctx, page.Number, page.Images[i], lang)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return attempts, nil
}

// recognize never fails; every outcome is an attempt
func (e *Extractor) recognize(ctx context.Context, pageNumber int, img document.EmbeddedImage, lang string) (attempt ocr.Attempt) {
	if !e.searcher.Available() {
		return ocr.UnavailableAttempt()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Image OCR panicked", "page", pageNumber, "image", img.Index, "panic", r)
			attempt = ocr.ErrorAttempt(fmt.Errorf("%v", r))
		}
	}()

	prepared, _, err := e.preparer.ProcessBytes(img.Data)
	if err != nil {
		e.logger.Warn("Image preprocessing failed", "page", pageNumber, "image", img.Index, "error", err)
		return ocr.ErrorAttempt(err)
	}

	attempt = e.searcher.Search(ctx, prepared, pageNumber, lang)
	e.logger.Debug("Image recognised",
		"page", pageNumber,
		"image", img.Index,
		"config", attempt.Config,
		"confidence", attempt.Confidence,
		"duration", attempt.Duration)
	return attempt
}
