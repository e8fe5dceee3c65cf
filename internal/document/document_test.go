package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCopiesAndHashes(t *testing.T) {
	data := []byte("%PDF-1.4 body")
	doc := New("a.pdf", MediaPDF, "application/pdf", data)
	data[0] = 'X'

	assert.Equal(t, byte('%'), doc.Bytes()[0], "document must own its buffer")
	assert.Equal(t, int64(13), doc.Size())
	assert.Equal(t, ContentHash([]byte("%PDF-1.4 body")), doc.Hash())
	assert.Len(t, doc.Hash(), 64)
}

func TestLanguageString(t *testing.T) {
	tests := []struct {
		langs []string
		want  string
	}{
		{nil, "eng"},
		{[]string{"", "  "}, "eng"},
		{[]string{"eng"}, "eng"},
		{[]string{"eng", " hin ", "spa"}, "eng+hin+spa"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Options{Languages: tt.langs}.LanguageString())
	}
}

func TestOptionsDigest(t *testing.T) {
	base := DefaultOptions()
	assert.Equal(t, base.Digest(), DefaultOptions().Digest())

	noImages := base
	noImages.ExtractImages = false
	assert.NotEqual(t, base.Digest(), noImages.Digest())

	tables := base
	tables.ExtractTables = true
	assert.Equal(t, base.Digest(), tables.Digest(), "extract_tables has no effect on output")

	spaced := base
	spaced.Languages = []string{" eng "}
	assert.Equal(t, base.Digest(), spaced.Digest())
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"pdf", []byte("%PDF-1.7"), "application/pdf"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"gif", []byte("GIF89a.."), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"tiff", []byte{0x49, 0x49, 0x2A, 0x00}, "image/tiff"},
		{"bmp", []byte("BM\x00\x00"), "image/bmp"},
		{"text", []byte("hello world"), ""},
		{"short", []byte("%P"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMimeType(tt.data))
		})
	}
}

func TestResolveMediaType(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

	tests := []struct {
		name     string
		declared string
		data     []byte
		media    MediaType
		mime     string
		ok       bool
	}{
		{"pdf tag", "pdf", nil, MediaPDF, "application/pdf", true},
		{"pdf mime with params", "Application/PDF; charset=binary", nil, MediaPDF, "application/pdf", true},
		{"image tag detected", "image", png, MediaImage, "image/png", true},
		{"image tag unknown bytes", "image", []byte("????"), MediaImage, "image/*", true},
		{"image mime", "image/jpeg", nil, MediaImage, "image/jpeg", true},
		{"octet stream corrected", "application/octet-stream", png, MediaImage, "image/png", true},
		{"empty corrected", "", []byte("%PDF-1.4"), MediaPDF, "application/pdf", true},
		{"word document", "application/msword", []byte("????"), "", "application/msword", false},
		{"unknown octet stream", "application/octet-stream", []byte("????"), "", "application/octet-stream", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media, mime, ok := ResolveMediaType(tt.declared, tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.media, media)
			assert.Equal(t, tt.mime, mime)
		})
	}
}

func TestOptionOverridesApply(t *testing.T) {
	base := DefaultOptions()

	var none *OptionOverrides
	assert.Equal(t, base, none.Apply(base))

	off := false
	threshold := 0.5
	got := (&OptionOverrides{
		ExtractImages:       &off,
		ConfidenceThreshold: &threshold,
		Languages:           LanguageList{"spa"},
	}).Apply(base)

	assert.False(t, got.ExtractImages)
	assert.Equal(t, 0.5, got.ConfidenceThreshold)
	assert.Equal(t, []string{"spa"}, got.Languages)
	assert.True(t, got.PreserveLayout, "unset fields keep the base value")
	assert.Equal(t, []string{"eng"}, base.Languages)
}

func TestLanguageListUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want LanguageList
	}{
		{`["eng","hin"]`, LanguageList{"eng", "hin"}},
		{`"eng+spa"`, LanguageList{"eng", "spa"}},
		{`"eng,hin"`, LanguageList{"eng", "hin"}},
	}
	for _, tt := range tests {
		var o OptionOverrides
		require.NoError(t, json.Unmarshal([]byte(`{"languages":`+tt.in+`}`), &o))
		assert.Equal(t, tt.want, o.Languages)
	}

	var o OptionOverrides
	assert.Error(t, json.Unmarshal([]byte(`{"languages":42}`), &o))
}
