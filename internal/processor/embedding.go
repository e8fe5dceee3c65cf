/**
 * Embedding Client for the TextExtract Worker
 *
 * Generates VoyageAI voyage-3 embeddings (1024 dimensions) for extracted
 * chunks so they can be indexed in the vector store.
 */

package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/textextract-worker/internal/logging"
)

const (
	voyageEndpoint   = "https://api.voyageai.com/v1/embeddings"
	voyageModel      = "voyage-3"
	voyageDimensions = 1024
	voyageBatchSize  = 100
	voyageMaxChars   = 16000
)

// EmbeddingClient handles VoyageAI embedding generation
type EmbeddingClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
}

// VoyageEmbeddingRequest is a batch request; a single text is a batch of one
type VoyageEmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// VoyageEmbeddingResponse represents the response from VoyageAI API
type VoyageEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewEmbeddingClient creates a new embedding client
func NewEmbeddingClient(apiKey string, logger *logging.Logger) (*EmbeddingClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("VoyageAI API key is required")
	}
	if logger == nil {
		logger = logging.NewLogger("Embedding")
	}

	return &EmbeddingClient{
		apiKey:  apiKey,
		baseURL: voyageEndpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// GenerateEmbedding generates a 1024-dimensional embedding for one text
func (e *EmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	embeddings, err := e.generateBatchInternal(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// GenerateEmbeddingBatch embeds texts in batches of 100. A failed batch is
// retried one text at a time. embeddings[i] belongs to texts[i].
func (e *EmbeddingClient) GenerateEmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += voyageBatchSize {
		end := i + voyageBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		embeddings, err := e.generateBatchInternal(ctx, batch)
		if err == nil {
			all = append(all, embeddings...)
			continue
		}

		e.logger.Warn("Batch embedding failed, falling back to single texts",
			"from", i, "to", end-1, "error", err)
		for j, text := range batch {
			embedding, err := e.GenerateEmbedding(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("failed to generate embedding for text %d (fallback): %w", i+j, err)
			}
			all = append(all, embedding)
		}
	}

	e.logger.Debug("Batch embedding complete", "count", len(all))
	return all, nil
}

// generateBatchInternal makes one API call
func (e *EmbeddingClient) generateBatchInternal(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, text := range texts {
		if len(text) > voyageMaxChars {
			text = text[:voyageMaxChars]
		}
		input[i] = text
	}

	jsonData, err := json.Marshal(VoyageEmbeddingRequest{Input: input, Model: voyageModel})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	startTime := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("VoyageAI API returned status %d: %s", resp.StatusCode, string(body))
	}

	var voyageResp VoyageEmbeddingResponse
	if err := json.Unmarshal(body, &voyageResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(voyageResp.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(voyageResp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range voyageResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		if len(data.Embedding) != voyageDimensions {
			return nil, fmt.Errorf("unexpected embedding dimensions for text %d: got %d, expected %d", data.Index, len(data.Embedding), voyageDimensions)
		}
		embeddings[data.Index] = data.Embedding
	}

	e.logger.Debug("VoyageAI embeddings generated",
		"texts", len(texts),
		"tokens", voyageResp.Usage.TotalTokens,
		"duration", time.Since(startTime))

	return embeddings, nil
}
