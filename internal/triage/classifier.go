package triage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/keywordlens/keywordlens/internal/providers"
)

// ClassifierConfig holds classification settings.
type ClassifierConfig struct {
	Scoring providers.ScoringService
	// HighThreshold is the manual-review cutoff (inclusive).
	HighThreshold float64
	// LowThreshold is the gray-band floor (inclusive).
	LowThreshold float64
	// BatchSize caps keywords per embedding request.
	BatchSize int
	Logger    *slog.Logger
}

// Classifier scores keywords against a product description and partitions
// them into tiers.
type Classifier struct {
	scoring   providers.ScoringService
	high      float64
	low       float64
	batchSize int
	logger    *slog.Logger
}

// Result is the outcome of one classification run. The tier slices are
// each sorted by score, descending.
type Result struct {
	Manual  []Item
	Gray    []Item
	Dropped []Item
	// Deduped counts input keywords removed as duplicates or blanks.
	Deduped int
}

// NewClassifier creates a Classifier.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.HighThreshold == 0 {
		cfg.HighThreshold = 0.6
	}
	if cfg.LowThreshold == 0 {
		cfg.LowThreshold = 0.45
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = providers.EmbedBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		scoring:   cfg.Scoring,
		high:      cfg.HighThreshold,
		low:       cfg.LowThreshold,
		batchSize: cfg.BatchSize,
		logger:    logger.With("component", "classifier"),
	}
}

// Classify embeds the description and all keywords, scores each keyword by
// cosine similarity, and partitions them into tiers.
//
// A failed keyword batch is not fatal: its keywords score 0.0 and land in
// the dropped tier. A failed description embedding aborts the run, since
// every score depends on it. progress, if non-nil, receives values in
// [0, 1]; the description embedding accounts for the first tenth.
func (c *Classifier) Classify(ctx context.Context, description string, keywords []string, progress func(float64)) (*Result, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("product description is empty")
	}

	unique := dedupe(keywords)
	if len(unique) == 0 {
		return nil, fmt.Errorf("no keywords to classify")
	}
	deduped := len(keywords) - len(unique)

	descVecs, err := c.scoring.Embed(ctx, []string{description})
	if err != nil {
		return nil, fmt.Errorf("failed to embed product description: %w", err)
	}
	if len(descVecs) != 1 || len(descVecs[0]) == 0 {
		return nil, fmt.Errorf("scoring service returned no description vector")
	}
	descVec := descVecs[0]
	progress(0.1)

	scores := make([]float64, len(unique))
	for start := 0; start < len(unique); start += c.batchSize {
		end := min(start+c.batchSize, len(unique))
		batch := unique[start:end]

		vecs, err := c.scoring.Embed(ctx, batch)
		if err != nil {
			// Scores default to 0.0 for the whole batch.
			c.logger.Warn("keyword batch embedding failed",
				"batch_start", start, "batch_size", len(batch), "error", err)
		} else {
			for i, v := range vecs {
				scores[start+i] = cosineSimilarity(descVec, v)
			}
		}
		progress(0.1 + 0.9*float64(end)/float64(len(unique)))
	}

	items := make([]Item, len(unique))
	for i, kw := range unique {
		items[i] = Item{Keyword: kw, Score: scores[i]}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})

	result := &Result{Deduped: deduped}
	for _, it := range items {
		switch {
		case it.Score > c.high:
			it.Tier = TierManual
			it.Status = StatusPending
			result.Manual = append(result.Manual, it)
		case it.Score >= c.low:
			it.Tier = TierGray
			it.Status = StatusAuto
			result.Gray = append(result.Gray, it)
		default:
			it.Tier = TierDropped
			it.Status = StatusDeleted
			result.Dropped = append(result.Dropped, it)
		}
	}

	c.logger.Info("keywords classified",
		"total", len(unique), "deduped", deduped,
		"manual", len(result.Manual), "gray", len(result.Gray), "dropped", len(result.Dropped))

	return result, nil
}

// dedupe trims whitespace and removes blanks and exact duplicates,
// preserving first-seen order.
func dedupe(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// or 0 when either is degenerate.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
