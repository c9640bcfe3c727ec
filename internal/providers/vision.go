package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const visionDefaultModel = "glm-4.6v-flash"

// VisionConfig holds configuration for the vision judge client.
type VisionConfig struct {
	APIKey     string
	BaseURL    string // OpenAI-compatible endpoint
	Model      string
	MaxRetries int
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// VisionClient implements VisionService using an OpenAI-compatible chat
// completions API with image inputs.
type VisionClient struct {
	model  string
	client openai.Client
}

// NewVisionClient creates a new vision judge client.
func NewVisionClient(cfg VisionConfig) *VisionClient {
	if cfg.Model == "" {
		cfg.Model = visionDefaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
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

	return &VisionClient{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}
}

// visionPrompt builds the judge instructions for one comparison.
func visionPrompt(contextText string) string {
	return fmt.Sprintf(`Task: acting as a strict product sourcing expert, decide whether the
search-result collage (second image) precisely matches the reference product
(first image).

Reference description: %s

Strict criteria:
1. Exact category anchoring: results must be the same core product category
   as the reference. Lookalikes from a different category are NO.
2. Reject accessories and complements: the subject of each result must be the
   product itself, not its accessories, storage, or tooling.
3. Reject shape-only matches: similar shape but different function is NO.

Steps:
1. Count: how many collage cells clearly show the same kind of main product
   (similar count).
2. Score: overall match confidence between collage and reference, 0.0-1.0.
   If the collage contains mostly unrelated items the score must be below 0.5.
3. Decide: return YES only when (similar count / total cells) > 50%% AND
   confidence > 0.6. Otherwise return NO.

Return strictly the following JSON (no markdown code fences):
{
    "decision": "YES" or "NO",
    "score": float between 0.0 and 1.0,
    "reason": "short justification: what the results mostly are, how many match",
    "similar_count": integer count of matching cells
}`, contextText)
}

// Analyze judges whether the products in gridImage match the reference
// product. A reply that cannot be parsed into the expected structure
// degrades to a low-confidence heuristic decision; an API failure degrades
// to a conservative negative verdict. Analyze itself never returns a nil
// result alongside a nil error.
func (c *VisionClient) Analyze(ctx context.Context, refImage, gridImage []byte, contextText string) (*VisionResult, error) {
	refURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(refImage)
	gridURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(gridImage)

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: refURL}),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: gridURL}),
		openai.TextContentPart(visionPrompt(contextText)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
		Temperature: openai.Float(0.1),
		TopP:        openai.Float(0.7),
		MaxTokens:   openai.Int(1024),
	})
	if err != nil {
		// Conservative negative verdict on transport failure so a single
		// flaky call cannot keep a keyword alive.
		return &VisionResult{
			Decision:   false,
			Score:      0,
			Reason:     fmt.Sprintf("vision API error: %v", err),
			MatchCount: 0,
		}, fmt.Errorf("vision request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return &VisionResult{Reason: "empty vision response"}, fmt.Errorf("no choices in vision response")
	}

	return ParseVisionReply(resp.Choices[0].Message.Content), nil
}

// Verify interface compliance
var _ VisionService = (*VisionClient)(nil)
