package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RelationshipType represents the kind of edge between two assets
type RelationshipType string

const (
	RelationshipTypeReferences RelationshipType = "references"
	RelationshipTypeDependsOn  RelationshipType = "depends_on"
	RelationshipTypeSupersedes RelationshipType = "supersedes"
	RelationshipTypeSimilarTo  RelationshipType = "similar_to"
	RelationshipTypePartOf     RelationshipType = "part_of"
)

// KnowledgeRelationship is a typed edge between two assets, optionally
// anchored to specific chunks. Chunk anchors are soft references: deleting a
// chunk nulls the anchor without destroying the relationship row.
type KnowledgeRelationship struct {
	ID            string
	SourceAssetID string
	TargetAssetID string
	SourceChunkID *string
	TargetChunkID *string
	Type          RelationshipType
	Confidence    float64
	GraphPointer  string // empty until the graph store write succeeds
	Metadata      map[string]string
	Tombstoned    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RelationshipProposal is a candidate edge produced by extraction before it
// is persisted. SourceChunkSequence anchors the proposal to a chunk of the
// source asset by its sequence number; a negative value means no anchor.
type RelationshipProposal struct {
	TargetAssetID       string           `json:"target_asset_id"`
	Type                RelationshipType `json:"relationship_type"`
	Confidence          float64          `json:"confidence"`
	SourceChunkSequence int              `json:"source_chunk_sequence"`
}

// UnmarshalJSON defaults SourceChunkSequence to -1 so a proposal that omits
// the field stays unanchored instead of anchoring to sequence 0.
func (p *RelationshipProposal) UnmarshalJSON(data []byte) error {
	type alias RelationshipProposal
	out := alias{SourceChunkSequence: -1}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*p = RelationshipProposal(out)
	return nil
}

// ExtractionCandidate is a potential relationship target presented to the
// extraction model.
type ExtractionCandidate struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	DocType string `json:"doc_type"`
	Summary string `json:"summary"`
}

// ExtractionInput carries the source asset content and the candidate targets
// for one extraction call.
type ExtractionInput struct {
	SourceTitle   string
	SourceSummary string
	Chunks        []string
	Candidates    []ExtractionCandidate
}

// ValidateRelationship validates a KnowledgeRelationship instance
func ValidateRelationship(r *KnowledgeRelationship) error {
	if r == nil {
		return fmt.Errorf("relationship cannot be nil")
	}

	if r.ID == "" {
		return fmt.Errorf("relationship ID is required")
	}

	if r.SourceAssetID == "" {
		return fmt.Errorf("relationship SourceAssetID is required")
	}

	if r.TargetAssetID == "" {
		return fmt.Errorf("relationship TargetAssetID is required")
	}

	if r.SourceAssetID == r.TargetAssetID {
		return fmt.Errorf("relationship cannot link an asset to itself")
	}

	if !isValidRelationshipType(r.Type) {
		return fmt.Errorf("relationship Type is invalid: %s", r.Type)
	}

	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("relationship Confidence must be in [0,1], got %f", r.Confidence)
	}

	return nil
}

func isValidRelationshipType(t RelationshipType) bool {
	switch t {
	case RelationshipTypeReferences, RelationshipTypeDependsOn, RelationshipTypeSupersedes,
		RelationshipTypeSimilarTo, RelationshipTypePartOf:
		return true
	}
	return false
}
