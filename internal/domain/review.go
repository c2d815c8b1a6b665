package domain

import (
	"fmt"
	"time"
)

// ReviewState represents where an asset sits in the human-review workflow
type ReviewState string

const (
	ReviewStateExtracted      ReviewState = "extracted"
	ReviewStateUnderReview    ReviewState = "under_review"
	ReviewStateApproved       ReviewState = "approved"
	ReviewStateEditRequested  ReviewState = "edit_requested"
	ReviewStateRerunRequested ReviewState = "rerun_requested"
)

// ReviewDecision represents a human decision on extracted content
type ReviewDecision string

const (
	ReviewDecisionApprove ReviewDecision = "approve"
	ReviewDecisionEdit    ReviewDecision = "edit"
	ReviewDecisionRerun   ReviewDecision = "rerun"
)

// ReviewInstance is the persisted state of the review gateway for one asset.
// It is a suspended state machine: no worker blocks while a decision is
// outstanding; the instance is resumed by an external decision call.
type ReviewInstance struct {
	ID        string
	AssetID   string
	State     ReviewState
	CreatedAt time.Time
	UpdatedAt time.Time
	DecidedAt *time.Time
}

// ExtractionParams carries caller-tunable extraction settings for a rerun
type ExtractionParams struct {
	ConfidenceFloor  float64  `json:"confidence_floor"`
	BoundaryPatterns []string `json:"boundary_patterns,omitempty"`
	MinChunkChars    int      `json:"min_chunk_chars,omitempty"`
	MaxChunkTokens   int      `json:"max_chunk_tokens,omitempty"`
}

// ChunkEdit is one caller-supplied edit applied during an edit decision
type ChunkEdit struct {
	ChunkID string    `json:"chunk_id"`
	Content string    `json:"content"`
	Type    ChunkType `json:"type,omitempty"`
}

// NewReviewInstance creates a ReviewInstance in the extracted state
func NewReviewInstance(id, assetID string, now time.Time) *ReviewInstance {
	return &ReviewInstance{
		ID:        id,
		AssetID:   assetID,
		State:     ReviewStateExtracted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateReviewInstance validates a ReviewInstance
func ValidateReviewInstance(r *ReviewInstance) error {
	if r == nil {
		return fmt.Errorf("review instance cannot be nil")
	}

	if r.ID == "" {
		return fmt.Errorf("review instance ID is required")
	}

	if r.AssetID == "" {
		return fmt.Errorf("review instance AssetID is required")
	}

	if !isValidReviewState(r.State) {
		return fmt.Errorf("review instance State is invalid: %s", r.State)
	}

	return nil
}

// CanTransitionReview reports whether the review state machine permits the
// transition: extracted -> under_review; under_review -> {approved,
// edit_requested, rerun_requested}; edit_requested/rerun_requested -> under_review.
func CanTransitionReview(from, to ReviewState) bool {
	switch from {
	case ReviewStateExtracted:
		return to == ReviewStateUnderReview
	case ReviewStateUnderReview:
		return to == ReviewStateApproved || to == ReviewStateEditRequested || to == ReviewStateRerunRequested
	case ReviewStateEditRequested, ReviewStateRerunRequested:
		return to == ReviewStateUnderReview
	}
	return false
}

// IsValidReviewDecision checks if a ReviewDecision is valid
func IsValidReviewDecision(d ReviewDecision) bool {
	switch d {
	case ReviewDecisionApprove, ReviewDecisionEdit, ReviewDecisionRerun:
		return true
	}
	return false
}

func isValidReviewState(s ReviewState) bool {
	switch s {
	case ReviewStateExtracted, ReviewStateUnderReview, ReviewStateApproved,
		ReviewStateEditRequested, ReviewStateRerunRequested:
		return true
	}
	return false
}
