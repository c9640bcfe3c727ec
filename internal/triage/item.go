// Package triage implements keyword classification and the review queues.
// Keywords are scored against the product description by embedding
// similarity, partitioned into tiers, and then routed through manual review
// and automated verification.
package triage

// Status is the review state of a keyword.
type Status string

const (
	// StatusPending means the keyword awaits a manual decision.
	StatusPending Status = "pending"
	// StatusKept means a reviewer kept the keyword.
	StatusKept Status = "kept"
	// StatusDeleted means a reviewer dropped the keyword.
	StatusDeleted Status = "deleted"
	// StatusUndecided means a reviewer deferred the keyword.
	StatusUndecided Status = "undecided"
	// StatusAuto is the initial state of gray-tier keywords, queued for
	// automated verification.
	StatusAuto Status = "auto"
	// StatusVerifiedKeep is an automated keep verdict.
	StatusVerifiedKeep Status = "verified_keep"
	// StatusVerifiedDrop is an automated drop verdict.
	StatusVerifiedDrop Status = "verified_drop"
)

// Tier is the similarity band a keyword was classified into. A keyword's
// tier never changes after classification; statuses do.
type Tier string

const (
	// TierManual holds high-similarity keywords sent to manual review.
	TierManual Tier = "manual"
	// TierGray holds mid-similarity keywords.
	TierGray Tier = "gray"
	// TierDropped holds low-similarity keywords.
	TierDropped Tier = "dropped"
)

// Item is one classified keyword.
type Item struct {
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
	Status  Status  `json:"status"`
	Tier    Tier    `json:"tier"`

	// Reason is set by the vision judge or an operator note.
	Reason string `json:"reason,omitempty"`
	// VisionScore is the judge's confidence, set after verification.
	VisionScore *float64 `json:"vision_score,omitempty"`
	// SimilarCount is the judge's matching-cell count, set after
	// verification.
	SimilarCount *int `json:"similar_count,omitempty"`
}
