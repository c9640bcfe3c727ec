package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	scoringDefaultModel      = "embedding-3"
	scoringDefaultDimensions = 2048
	// EmbedBatchSize is the maximum number of texts per embedding request.
	EmbedBatchSize = 64
)

// EmbeddingConfig holds configuration for the embedding client.
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string // OpenAI-compatible endpoint (e.g. Zhipu paas/v4)
	Model      string
	Dimensions int
	MaxRetries int
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// EmbeddingClient implements ScoringService using an OpenAI-compatible
// embeddings API via the official OpenAI SDK.
type EmbeddingClient struct {
	model      string
	dimensions int
	client     openai.Client
}

// NewEmbeddingClient creates a new embedding client.
func NewEmbeddingClient(cfg EmbeddingConfig) *EmbeddingClient {
	if cfg.Model == "" {
		cfg.Model = scoringDefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = scoringDefaultDimensions
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &EmbeddingClient{
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     openai.NewClient(opts...),
	}
}

// Dimensions returns the configured vector dimensionality.
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

// Embed returns one vector per input text, in input order.
// Callers are responsible for batching; requests larger than
// EmbedBatchSize are rejected by the upstream API.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}
	if len(texts) > EmbedBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum %d", len(texts), EmbedBatchSize)
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Dimensions: openai.Int(int64(c.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	// The API may return embeddings out of order; place by index.
	vectors := make([][]float64, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", idx)
		}
		vectors[idx] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}

	return vectors, nil
}

// Verify interface compliance
var _ ScoringService = (*EmbeddingClient)(nil)
