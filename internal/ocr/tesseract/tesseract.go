/**
 * Tesseract recognition backend
 *
 * Wraps gosseract. A fresh client is created per call so the configurations
 * of one image can be evaluated concurrently.
 */

package tesseract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/textextract-worker/internal/ocr"
)

// Config holds Tesseract configuration
type Config struct {
	TesseractPath  string
	TessdataPrefix string
}

// Engine implements ocr.Recognizer on top of libtesseract
type Engine struct {
	tessdataPrefix string
	clientFactory  func() *gosseract.Client
}

// NewEngine creates a new Tesseract engine
func NewEngine(cfg Config) *Engine {
	return &Engine{
		tessdataPrefix: cfg.TessdataPrefix,
		clientFactory:  gosseract.NewClient,
	}
}

// Recognize returns word tokens with their confidences
func (e *Engine) Recognize(ctx context.Context, image []byte, cfg ocr.Config, lang string) ([]ocr.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := e.newClient(image, cfg, lang)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed (%s): %w", cfg, err)
	}

	tokens := make([]ocr.Token, 0, len(boxes))
	for _, b := range boxes {
		tokens = append(tokens, ocr.Token{Text: b.Word, Confidence: b.Confidence})
	}
	return tokens, nil
}

// RecognizePlain returns the engine's plain text output
func (e *Engine) RecognizePlain(ctx context.Context, image []byte, cfg ocr.Config, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client, err := e.newClient(image, cfg, lang)
	if err != nil {
		return "", err
	}
	defer client.Close()

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed (%s): %w", cfg, err)
	}
	return text, nil
}

func (e *Engine) newClient(image []byte, cfg ocr.Config, lang string) (*gosseract.Client, error) {
	client := e.clientFactory()

	fail := func(step string, err error) (*gosseract.Client, error) {
		client.Close()
		return nil, fmt.Errorf("failed to %s: %w", step, err)
	}

	if e.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return fail("set tessdata prefix", err)
		}
	}
	if err := client.SetLanguage(lang); err != nil {
		return fail("set language", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		return fail("set page segmentation mode", err)
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			return fail("set whitelist", err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return fail("set image", err)
	}
	return client, nil
}

// Probe inspects the installation once at startup. The engine is available
// when the binary exists and libtesseract reports a version.
func Probe(cfg Config) ocr.EngineConfig {
	engine := ocr.EngineConfig{
		BinaryPath:     cfg.TesseractPath,
		TessdataPrefix: cfg.TessdataPrefix,
	}

	if cfg.TessdataPrefix != "" {
		os.Setenv("TESSDATA_PREFIX", cfg.TessdataPrefix)
	}

	path := cfg.TesseractPath
	if path == "" {
		path = "tesseract"
	}
	if _, err := exec.LookPath(path); err != nil {
		engine.Reason = fmt.Sprintf("tesseract binary not found at %s: %v", path, err)
		return engine
	}

	version, err := libraryVersion()
	if err != nil {
		engine.Reason = err.Error()
		return engine
	}
	engine.Version = version

	if langs, err := gosseract.GetAvailableLanguages(); err == nil {
		sort.Strings(langs)
		engine.Languages = langs
	}

	engine.Available = true
	return engine
}

func libraryVersion() (version string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libtesseract version probe failed: %v", r)
		}
	}()

	version = gosseract.Version()
	if version == "" {
		return "", fmt.Errorf("libtesseract reported no version")
	}
	return version, nil
}
