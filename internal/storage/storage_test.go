package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/textextract-worker/internal/document"
)

func TestSanitizeConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.9632000000000001, 0.9632},
		{0.95, 0.95},
		{-0.2, 0},
		{1.7, 1},
		{0.12345, 0.1235},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeConfidence(tt.in), "input %v", tt.in)
	}
}

func TestSanitizeJSONForPostgres(t *testing.T) {
	raw, err := json.Marshal(map[string]string{"text": "a\x00b\x01c\nd"})
	require.NoError(t, err)

	clean := sanitizeJSONForPostgres(raw)

	var out map[string]string
	require.NoError(t, json.Unmarshal(clean, &out))
	assert.Equal(t, "ab c\nd", out["text"])
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "textextract:result:abc:def", cacheKey("abc", "def"))
	assert.NotEqual(t, cacheKey("abc", "d1"), cacheKey("abc", "d2"))
}

func TestChunkPointIDIsStable(t *testing.T) {
	a := chunkPointID("hash", "digest", 0)
	assert.Equal(t, a, chunkPointID("hash", "digest", 0))
	assert.NotEqual(t, a, chunkPointID("hash", "digest", 1))
	assert.NotEqual(t, a, chunkPointID("other", "digest", 0))
	assert.NotEqual(t, a, chunkPointID("hash", "digest-2", 0))
	assert.Len(t, a, 36)
}

func TestBuildChunkPointsSeparatesOptionDigests(t *testing.T) {
	newInput := func(extractionID, digest string) *ChunkIndexInput {
		return &ChunkIndexInput{
			ExtractionID:  extractionID,
			FileHash:      "hash",
			OptionsDigest: digest,
			Chunks: []document.Chunk{
				{Text: "one", Page: 1, Type: document.ChunkText},
				{Text: "two", Page: 1, Type: document.ChunkText},
			},
			Embeddings: [][]float32{vector(0.1), vector(0.2)},
		}
	}

	withImages, err := buildChunkPoints(newInput("ext-a", "digest-a"))
	require.NoError(t, err)
	withoutImages, err := buildChunkPoints(newInput("ext-b", "digest-b"))
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, p := range withImages {
		ids[p.ID] = true
	}
	for _, p := range withoutImages {
		assert.False(t, ids[p.ID], "point %s shared between extractions", p.ID)
	}
	assert.Equal(t, "digest-b", withoutImages[0].Metadata["options_digest"])
}

func vector(v float32) []float32 {
	out := make([]float32, EmbeddingDimensions)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBuildChunkPoints(t *testing.T) {
	input := &ChunkIndexInput{
		ExtractionID:  "ext-1",
		JobID:         "job-1",
		FileHash:      "hash",
		OptionsDigest: "digest",
		Filename:      "invoice.pdf",
		Chunks: []document.Chunk{
			{Text: "Invoice #100", Confidence: 0.95, Page: 1, Type: document.ChunkText},
			{Text: "Stamp", Confidence: 0.8, Page: 2, Type: document.ChunkOCRText, Language: "eng"},
		},
		Embeddings: [][]float32{vector(0.1), vector(0.2)},
	}

	points, err := buildChunkPoints(input)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, chunkPointID("hash", "digest", 1), points[1].ID)
	assert.Equal(t, "Stamp", points[1].Metadata["text"])
	assert.Equal(t, 2, points[1].Metadata["page"])
	assert.Equal(t, "ocr_text", points[1].Metadata["type"])
	assert.Equal(t, "ext-1", points[0].Metadata["extraction_id"])

	ps, err := toPointStruct(points[0])
	require.NoError(t, err)
	assert.Equal(t, int64(0), ps.Payload["chunk_index"].GetIntegerValue())
	assert.Equal(t, "invoice.pdf", ps.Payload["filename"].GetStringValue())
	assert.Equal(t, 0.95, ps.Payload["confidence"].GetDoubleValue())
}

func TestBuildChunkPointsRejectsMismatch(t *testing.T) {
	_, err := buildChunkPoints(&ChunkIndexInput{
		FileHash:   "hash",
		Chunks:     []document.Chunk{{Text: "a"}},
		Embeddings: nil,
	})
	assert.Error(t, err)

	_, err = buildChunkPoints(&ChunkIndexInput{})
	assert.Error(t, err)
}

func TestToPointStructChecksDimensions(t *testing.T) {
	_, err := toPointStruct(&VectorPoint{Vector: []float32{1, 2, 3}})
	assert.Error(t, err)

	ps, err := toPointStruct(&VectorPoint{Vector: vector(1)})
	require.NoError(t, err)
	assert.NotEmpty(t, ps.Id.GetUuid())
}

func TestToPayloadFallsBackToString(t *testing.T) {
	payload := toPayload(map[string]interface{}{
		"flag":  true,
		"other": []string{"a"},
	})
	assert.True(t, payload["flag"].GetBoolValue())
	assert.Equal(t, "[a]", payload["other"].GetStringValue())
}

func TestCacheEntryRoundTripKeepsIdentity(t *testing.T) {
	rec := &ExtractionRecord{
		ID:            "id-1",
		JobID:         "job-1",
		FileHash:      "hash",
		OptionsDigest: "digest",
		Filename:      "scan.png",
		Result:        &document.Result{Success: true, Pages: 1},
		ChunksIndexed: 3,
	}

	got := newCacheEntry(rec).record("hash", "digest")
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Filename, got.Filename)
	assert.Equal(t, "digest", got.OptionsDigest)
	assert.Same(t, rec.Result, got.Result)
	assert.Equal(t, rec.ChunksIndexed, got.ChunksIndexed)
}
