package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/adverant/nexus/textextract-worker/internal/document"
	"github.com/adverant/nexus/textextract-worker/internal/processor"
)

// JobPayload is the job data shared by both queue backends
type JobPayload struct {
	JobID      string                    `json:"jobId"`
	UserID     string                    `json:"userId"`
	Filename   string                    `json:"filename"`
	MimeType   string                    `json:"mimeType,omitempty"`
	FileSize   int64                     `json:"fileSize,omitempty"`
	FileURL    string                    `json:"fileUrl,omitempty"`
	FileBuffer []byte                    `json:"-"`
	Options    *document.OptionOverrides `json:"options,omitempty"`
	Metadata   map[string]interface{}    `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts fileBuffer as a base64 string or as a serialized
// Node.js Buffer ({"type":"Buffer","data":[...]})
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	buf, err := decodeFileBuffer(aux.FileBuffer)
	if err != nil {
		return err
	}
	p.FileBuffer = buf
	return nil
}

// MarshalJSON writes fileBuffer as base64 so payloads survive a requeue
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	return json.Marshal(&struct {
		FileBuffer string `json:"fileBuffer,omitempty"`
		Alias
	}{
		FileBuffer: base64.StdEncoding.EncodeToString(p.FileBuffer),
		Alias:      Alias(p),
	})
}

func decodeFileBuffer(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil

	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		return decoded, nil

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return nil, fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("Buffer object missing 'data' array")
		}
		out := make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return nil, fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			out[i] = byte(byteVal)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}
}

// Request converts the payload for the processor
func (p *JobPayload) Request() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:      p.JobID,
		UserID:     p.UserID,
		Filename:   p.Filename,
		MimeType:   p.MimeType,
		FileSize:   p.FileSize,
		FileURL:    p.FileURL,
		FileBuffer: p.FileBuffer,
		Metadata:   p.Metadata,
		Options:    p.Options,
	}
}
