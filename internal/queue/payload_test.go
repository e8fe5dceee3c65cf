package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobPayloadFileBuffer(t *testing.T) {
	tests := []struct {
		name    string
		buffer  string
		want    []byte
		wantErr bool
	}{
		{"absent", ``, nil, false},
		{"base64", `,"fileBuffer":"JVBERi0="`, []byte("%PDF-"), false},
		{"node buffer", `,"fileBuffer":{"type":"Buffer","data":[37,80,68,70]}`, []byte("%PDF"), false},
		{"byte out of range", `,"fileBuffer":{"type":"Buffer","data":[37,256]}`, nil, true},
		{"wrong buffer type", `,"fileBuffer":{"type":"Blob","data":[1]}`, nil, true},
		{"missing data", `,"fileBuffer":{"type":"Buffer"}`, nil, true},
		{"bad base64", `,"fileBuffer":"***"`, nil, true},
		{"number", `,"fileBuffer":12`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p JobPayload
			err := json.Unmarshal([]byte(`{"jobId":"j1","filename":"a.pdf"`+tt.buffer+`}`), &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "j1", p.JobID)
			assert.Equal(t, tt.want, p.FileBuffer)
		})
	}
}

func TestJobPayloadOptions(t *testing.T) {
	var p JobPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"jobId": "j2",
		"options": {"extract_images": false, "languages": ["eng", "spa"], "confidence_threshold": 0.4}
	}`), &p))

	require.NotNil(t, p.Options)
	require.NotNil(t, p.Options.ExtractImages)
	assert.False(t, *p.Options.ExtractImages)
	assert.Nil(t, p.Options.PreserveLayout)
	assert.Equal(t, []string{"eng", "spa"}, []string(p.Options.Languages))

	req := p.Request()
	assert.Equal(t, "j2", req.JobID)
	assert.Same(t, p.Options, req.Options)
}

func TestJobPayloadSurvivesRequeue(t *testing.T) {
	in := RedisJobData{
		ID:         "j3",
		Attempts:   1,
		MaxRetries: 3,
		Payload: JobPayload{
			JobID:      "j3",
			Filename:   "scan.tiff",
			FileBuffer: []byte{0x49, 0x49, 0x2A, 0x00, 0xFF},
			Metadata:   map[string]interface{}{"source": "upload"},
		},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out RedisJobData
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Payload.FileBuffer, out.Payload.FileBuffer)
	assert.Equal(t, "upload", out.Payload.Metadata["source"])
	assert.Equal(t, 1, out.Attempts)
}

func TestJobPayloadMarshalOmitsEmptyBuffer(t *testing.T) {
	data, err := json.Marshal(JobPayload{JobID: "j4", FileURL: "http://files/a.pdf"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "fileBuffer")
	assert.Contains(t, string(data), `"fileUrl":"http://files/a.pdf"`)
}
