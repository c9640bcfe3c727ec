// Package providers contains clients for the external services the triage
// engine depends on: text embedding (scoring), the vision judge, and the
// image search provider.
package providers

import "context"

// ScoringService computes embedding vectors for texts.
// Implementations must be safe for concurrent use.
type ScoringService interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VisionResult is the structured verdict from the vision judge.
type VisionResult struct {
	// Decision is true when the grid matches the reference product.
	Decision bool `json:"decision"`
	// Score is the judge's confidence in [0, 1].
	Score float64 `json:"score"`
	// Reason is a short free-text justification.
	Reason string `json:"reason"`
	// MatchCount is how many grid cells the judge counted as matching.
	MatchCount int `json:"match_count"`
}

// VisionService compares a composite grid image against a reference image.
type VisionService interface {
	// Analyze judges whether the products in gridImage match the reference
	// product shown in refImage and described by contextText. Both images
	// are JPEG or PNG bytes.
	Analyze(ctx context.Context, refImage, gridImage []byte, contextText string) (*VisionResult, error)
}

// SearchProvider returns candidate product image URLs for a keyword.
type SearchProvider interface {
	Search(ctx context.Context, keyword string, maxResults int) ([]string, error)
}
