// Package document holds the data model shared by every extraction stage:
// documents, decomposed pages, chunks and the document-level result.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// MediaType is the declared kind of a document
type MediaType string

const (
	MediaPDF   MediaType = "pdf"
	MediaImage MediaType = "image"
)

// Document is an immutable input buffer plus its declared media type
type Document struct {
	Filename  string
	MediaType MediaType
	MimeType  string
	data      []byte
	hash      string
}

// New builds a Document over a private copy of data
func New(filename string, mediaType MediaType, mimeType string, data []byte) *Document {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Document{
		Filename:  filename,
		MediaType: mediaType,
		MimeType:  mimeType,
		data:      buf,
		hash:      ContentHash(buf),
	}
}

// Bytes returns the document content. Callers must not modify it.
func (d *Document) Bytes() []byte { return d.data }

// Size is the content length in bytes
func (d *Document) Size() int64 { return int64(len(d.data)) }

// Hash is the hex SHA-256 digest of the content
func (d *Document) Hash() string { return d.hash }

// ContentHash returns the hex SHA-256 digest of data
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BoundingBox is x1,y1 (top-left) to x2,y2 (bottom-right) in page coordinates
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// TextBlock is native text from the document's text layer
type TextBlock struct {
	BBox BoundingBox
	Text string
}

// EmbeddedImage is an encoded raster image found on a page
type EmbeddedImage struct {
	Index  int
	Data   []byte
	BBox   BoundingBox
	Width  int
	Height int
}

// Page is one decomposed page. Err is set when the page could not be
// decomposed; such a page has no blocks or images.
type Page struct {
	Number int
	Width  float64
	Height float64
	Blocks []TextBlock
	Images []EmbeddedImage
	Err    error
}

// ChunkType tags where a chunk's text came from
type ChunkType string

const (
	ChunkText           ChunkType = "text"
	ChunkOCRText        ChunkType = "ocr_text"
	ChunkOCRUnavailable ChunkType = "ocr_unavailable"
	ChunkOCRError       ChunkType = "ocr_error"
)

// Chunk is one reported unit of extracted text with its provenance
type Chunk struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Page       int         `json:"page"`
	BBox       BoundingBox `json:"bbox"`
	Type       ChunkType   `json:"type"`
	Language   string      `json:"language,omitempty"`
}

// PageResult summarises one page of the result
type PageResult struct {
	Number     int     `json:"page"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	TextBlocks int     `json:"text_blocks"`
	Images     int     `json:"images"`
	Error      string  `json:"error,omitempty"`
}

// Options are the recognised extraction options. ConfidenceThreshold is
// recorded on the result and never filters chunks. ExtractTables is accepted
// for compatibility and has no effect.
type Options struct {
	ExtractImages       bool     `json:"extract_images"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	Languages           []string `json:"languages"`
	PreserveLayout      bool     `json:"preserve_layout"`
	ExtractTables       bool     `json:"extract_tables"`
}

// DefaultOptions returns extract_images=true, threshold 0.7, eng, preserve_layout=true
func DefaultOptions() Options {
	return Options{
		ExtractImages:       true,
		ConfidenceThreshold: 0.7,
		Languages:           []string{"eng"},
		PreserveLayout:      true,
	}
}

// LanguageString joins the requested languages with "+", defaulting to eng
func (o Options) LanguageString() string {
	var langs []string
	for _, l := range o.Languages {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		return "eng"
	}
	return strings.Join(langs, "+")
}

// OptionOverrides carries per-request options; nil fields keep the base value
type OptionOverrides struct {
	ExtractImages       *bool        `json:"extract_images,omitempty"`
	ConfidenceThreshold *float64     `json:"confidence_threshold,omitempty"`
	Languages           LanguageList `json:"languages,omitempty"`
	PreserveLayout      *bool        `json:"preserve_layout,omitempty"`
	ExtractTables       *bool        `json:"extract_tables,omitempty"`
}

// Apply returns base with the set overrides applied. A nil receiver returns base.
func (o *OptionOverrides) Apply(base Options) Options {
	out := base
	out.Languages = append([]string(nil), base.Languages...)
	if o == nil {
		return out
	}
	if o.ExtractImages != nil {
		out.ExtractImages = *o.ExtractImages
	}
	if o.ConfidenceThreshold != nil {
		out.ConfidenceThreshold = *o.ConfidenceThreshold
	}
	if len(o.Languages) > 0 {
		out.Languages = append([]string(nil), o.Languages...)
	}
	if o.PreserveLayout != nil {
		out.PreserveLayout = *o.PreserveLayout
	}
	if o.ExtractTables != nil {
		out.ExtractTables = *o.ExtractTables
	}
	return out
}

// LanguageList accepts a JSON array or a "+" or "," separated string
type LanguageList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *LanguageList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("languages must be a string or an array of strings")
	}
	*l = strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' })
	return nil
}

// Digest identifies the options that influence the output, so results can
// be reused for identical content and options. Language order matters to the
// engine and is kept.
func (o Options) Digest() string {
	key := fmt.Sprintf("images=%t;layout=%t;threshold=%.4f;langs=%s",
		o.ExtractImages, o.PreserveLayout, o.ConfidenceThreshold, o.LanguageString())
	return ContentHash([]byte(key))[:16]
}

// Result is the document-level extraction result
type Result struct {
	Success             bool         `json:"success"`
	Text                string       `json:"text"`
	Chunks              []Chunk      `json:"chunks"`
	Pages               int          `json:"pages"`
	PageResults         []PageResult `json:"page_results"`
	ProcessingTimeMs    int64        `json:"processing_time_ms"`
	Method              string       `json:"method"`
	QualityScore        float64      `json:"quality_score"`
	WordCount           int          `json:"word_count"`
	CharacterCount      int          `json:"character_count"`
	HasTables           bool         `json:"has_tables"`
	HasImages           bool         `json:"has_images"`
	Language            string       `json:"language"`
	Languages           []string     `json:"languages"`
	ExtractedLanguages  []string     `json:"extracted_languages"`
	FileHash            string       `json:"file_hash"`
	OCRAvailable        bool         `json:"ocr_available"`
	OCREngineVersion    string       `json:"ocr_engine_version,omitempty"`
	ConfidenceThreshold float64      `json:"confidence_threshold"`
	Error               string       `json:"error,omitempty"`
	Warnings            []string     `json:"warnings"`
}

// Method names the extraction method reported on every result
const Method = "comprehensive-tesseract-ocr"
