package ocr

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/textextract-worker/internal/document"
)

// fakeRecognizer answers per page segmentation mode
type fakeRecognizer struct {
	mu        sync.Mutex
	tokens    map[PageSegMode][]Token
	errs      map[PageSegMode]error
	plain     string
	plainErr  error
	calls     []Config
	langsSeen []string
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte, cfg Config, lang string) ([]Token, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cfg)
	f.langsSeen = append(f.langsSeen, lang)
	f.mu.Unlock()
	if err := f.errs[cfg.PageSegMode]; err != nil {
		return nil, err
	}
	return f.tokens[cfg.PageSegMode], nil
}

func (f *fakeRecognizer) RecognizePlain(_ context.Context, _ []byte, _ Config, _ string) (string, error) {
	return f.plain, f.plainErr
}

var available = EngineConfig{Available: true, Version: "5.3.0"}

func newSearcher(rec Recognizer, parallel bool) *Searcher {
	return NewSearcher(rec, available, SearchOptions{Parallel: parallel}, nil)
}

func TestScoreTokens(t *testing.T) {
	text, conf, ok := ScoreTokens([]Token{
		{Text: "Invoice", Confidence: 90},
		{Text: "noise", Confidence: 30},
		{Text: "#100", Confidence: 70},
		{Text: "junk", Confidence: 5},
	})
	require.True(t, ok)
	assert.Equal(t, "Invoice #100", text)
	assert.InDelta(t, 0.8, conf, 1e-9)

	_, _, ok = ScoreTokens([]Token{{Text: "x", Confidence: 30}})
	assert.False(t, ok)

	_, conf, ok = ScoreTokens([]Token{{Text: "x", Confidence: 250}})
	require.True(t, ok)
	assert.Equal(t, 1.0, conf)
}

func TestSearchPicksHighestConfidence(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		rec := &fakeRecognizer{tokens: map[PageSegMode][]Token{
			PSMSingleBlock:  {{Text: "block", Confidence: 60}},
			PSMAuto:         {{Text: "auto", Confidence: 80}},
			PSMAutoOSD:      {{Text: "osd", Confidence: 85}},
			PSMSingleColumn: {{Text: "column", Confidence: 70}},
			PSMSingleWord:   {{Text: "word", Confidence: 40}},
		}}

		got := newSearcher(rec, parallel).Search(context.Background(), []byte("img"), 1, "eng")
		assert.Equal(t, "osd", got.Text)
		assert.InDelta(t, 0.85, got.Confidence, 1e-9)
		assert.Equal(t, "--psm 1", got.Config)
		assert.Equal(t, document.ChunkOCRText, got.Type)
		assert.Equal(t, "eng", got.Language)
		assert.Len(t, rec.calls, 5)
	}
}

func TestSearchTieKeepsEarlierConfig(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		rec := &fakeRecognizer{tokens: map[PageSegMode][]Token{
			PSMAuto:         {{Text: "first", Confidence: 75}},
			PSMSingleColumn: {{Text: "later", Confidence: 75}},
		}}

		got := newSearcher(rec, parallel).Search(context.Background(), nil, 1, "eng")
		assert.Equal(t, "first", got.Text)
		assert.Equal(t, "--psm 3", got.Config)
	}
}

func TestSearchWhitelistConfigString(t *testing.T) {
	rec := &fakeRecognizer{tokens: map[PageSegMode][]Token{
		PSMSingleBlock: {{Text: "only", Confidence: 99}},
	}}

	got := newSearcher(rec, false).Search(context.Background(), nil, 1, "eng")
	assert.Equal(t, "--psm 6 -c tessedit_char_whitelist="+Whitelist, got.Config)
	assert.Equal(t, Whitelist, rec.calls[0].Whitelist)
}

func TestSearchSkipsFailingConfigs(t *testing.T) {
	rec := &fakeRecognizer{
		tokens: map[PageSegMode][]Token{
			PSMSingleWord: {{Text: "survivor", Confidence: 50}},
		},
		errs: map[PageSegMode]error{
			PSMSingleBlock: errors.New("engine crashed"),
			PSMAuto:        errors.New("engine crashed"),
		},
	}

	got := newSearcher(rec, false).Search(context.Background(), nil, 2, "eng")
	assert.Equal(t, "survivor", got.Text)
	assert.Equal(t, "--psm 8", got.Config)
}

func TestSearchPlainFallback(t *testing.T) {
	rec := &fakeRecognizer{
		tokens: map[PageSegMode][]Token{
			PSMAuto: {{Text: "faint", Confidence: 12}},
		},
		plain: "  faint text  \n",
	}

	got := newSearcher(rec, false).Search(context.Background(), nil, 1, "eng")
	assert.Equal(t, "faint text", got.Text)
	assert.Equal(t, PlainConfidence, got.Confidence)
	assert.Equal(t, PlainConfig.String(), got.Config)
	assert.Equal(t, document.ChunkOCRText, got.Type)
}

func TestSearchDegradedWhenPlainFails(t *testing.T) {
	rec := &fakeRecognizer{plainErr: errors.New("no text")}

	got := newSearcher(rec, false).Search(context.Background(), nil, 4, "eng")
	assert.Equal(t, "[OCR processing failed for image on page 4]", got.Text)
	assert.Equal(t, DegradedConfidence, got.Confidence)
	assert.Equal(t, ConfigDegraded, got.Config)
	assert.Equal(t, document.ChunkOCRError, got.Type)
	assert.Equal(t, UnknownLanguage, got.Language)
}

func TestSearchUnavailable(t *testing.T) {
	rec := &fakeRecognizer{}
	s := NewSearcher(rec, EngineConfig{Available: false, Reason: "missing"}, SearchOptions{}, nil)

	got := s.Search(context.Background(), []byte("img"), 1, "eng")
	assert.Equal(t, UnavailableAttempt(), got)
	assert.Empty(t, rec.calls, "recognizer must not be called")

	nilRec := NewSearcher(nil, available, SearchOptions{}, nil)
	assert.False(t, nilRec.Available())
	assert.Equal(t, document.ChunkOCRUnavailable, nilRec.Search(context.Background(), nil, 1, "eng").Type)
}

func TestSearchRecoversPanickingRecognizer(t *testing.T) {
	rec := &panicRecognizer{}
	got := newSearcher(rec, true).Search(context.Background(), nil, 1, "eng")
	assert.Equal(t, "plain", got.Text)
	assert.Equal(t, PlainConfidence, got.Confidence)
}

type panicRecognizer struct{}

func (panicRecognizer) Recognize(context.Context, []byte, Config, string) ([]Token, error) {
	panic("cgo exploded")
}

func (panicRecognizer) RecognizePlain(context.Context, []byte, Config, string) (string, error) {
	return "plain", nil
}

func TestSearchConfidenceAlwaysInRange(t *testing.T) {
	cases := [][]Token{
		nil,
		{{Text: "a", Confidence: 31}},
		{{Text: "a", Confidence: 100}, {Text: "b", Confidence: 100}},
		{{Text: "a", Confidence: 1000}},
	}
	for _, tokens := range cases {
		rec := &fakeRecognizer{tokens: map[PageSegMode][]Token{PSMAuto: tokens}}
		got := newSearcher(rec, false).Search(context.Background(), nil, 1, "eng")
		assert.GreaterOrEqual(t, got.Confidence, 0.0)
		assert.LessOrEqual(t, got.Confidence, 1.0)
	}
}

func TestSearchDefaultsLanguage(t *testing.T) {
	rec := &fakeRecognizer{tokens: map[PageSegMode][]Token{PSMAuto: {{Text: "x", Confidence: 90}}}}
	got := newSearcher(rec, false).Search(context.Background(), nil, 1, "")
	assert.Equal(t, "eng", got.Language)
	assert.Equal(t, "eng", rec.langsSeen[0])
}
