package domain

import (
	"fmt"
	"time"
)

// AssetStatus represents the processing status of a knowledge asset
type AssetStatus string

const (
	AssetStatusProcessing AssetStatus = "processing"
	AssetStatusActive     AssetStatus = "active"
	AssetStatusFailed     AssetStatus = "failed"
	AssetStatusArchived   AssetStatus = "archived"
)

// Traceability represents the link between an asset and its source document
type Traceability string

const (
	TraceabilityLinked   Traceability = "linked"
	TraceabilityOrphaned Traceability = "orphaned"
	TraceabilityArchived Traceability = "archived"
)

// ProcessingStats is a server-recomputed aggregate over an asset's derived
// content. It is never accepted from callers; UpdateProcessingStats rebuilds
// it from the current chunk and relationship rows.
type ProcessingStats struct {
	ChunkCount         int
	EmbeddedChunkCount int
	RelationshipCount  int
	TokenCount         int
	ComputedAt         time.Time
}

// KnowledgeAsset represents one extracted document-level unit
type KnowledgeAsset struct {
	ID             string
	SourceRef      string // reference into the intake collaborator; empty once orphaned
	ProjectID      string
	Title          string
	DocType        string
	Summary        string
	Metadata       map[string]string
	Stats          ProcessingStats
	Status         AssetStatus
	Traceability   Traceability
	OrphanedAt     *time.Time
	OrphanedReason string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewKnowledgeAsset creates a new KnowledgeAsset at intake: processing/linked.
func NewKnowledgeAsset(id, sourceRef, projectID, title, docType string, now time.Time) *KnowledgeAsset {
	return &KnowledgeAsset{
		ID:           id,
		SourceRef:    sourceRef,
		ProjectID:    projectID,
		Title:        title,
		DocType:      docType,
		Metadata:     map[string]string{},
		Status:       AssetStatusProcessing,
		Traceability: TraceabilityLinked,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// LinkedSourceRef pairs an asset with its current source reference for the
// orphan sweep.
type LinkedSourceRef struct {
	AssetID   string
	SourceRef string
}

// ValidateAsset validates a KnowledgeAsset instance
func ValidateAsset(a *KnowledgeAsset) error {
	if a == nil {
		return fmt.Errorf("asset cannot be nil")
	}

	if a.ID == "" {
		return fmt.Errorf("asset ID is required")
	}

	if a.ProjectID == "" {
		return fmt.Errorf("asset ProjectID is required")
	}

	if a.Title == "" {
		return fmt.Errorf("asset Title is required")
	}

	if !isValidAssetStatus(a.Status) {
		return fmt.Errorf("asset Status is invalid: %s", a.Status)
	}

	if !isValidTraceability(a.Traceability) {
		return fmt.Errorf("asset Traceability is invalid: %s", a.Traceability)
	}

	// traceability=orphaned iff the source reference is absent and orphaned_at is set
	if a.Traceability == TraceabilityOrphaned {
		if a.SourceRef != "" {
			return fmt.Errorf("orphaned asset cannot retain a source reference")
		}
		if a.OrphanedAt == nil {
			return fmt.Errorf("orphaned asset must record OrphanedAt")
		}
	} else if a.OrphanedAt != nil && a.Traceability == TraceabilityLinked {
		return fmt.Errorf("linked asset cannot carry an OrphanedAt timestamp")
	}

	return nil
}

// CanTransitionStatus reports whether the asset status state machine permits
// the transition: processing -> {active, failed}; active/failed -> archived;
// failed -> processing reopens the asset for a retry.
func CanTransitionStatus(from, to AssetStatus) bool {
	switch from {
	case AssetStatusProcessing:
		return to == AssetStatusActive || to == AssetStatusFailed
	case AssetStatusActive:
		return to == AssetStatusArchived
	case AssetStatusFailed:
		return to == AssetStatusArchived || to == AssetStatusProcessing
	}
	return false
}

// CanTransitionTraceability reports whether the traceability transition is
// permitted: linked -> orphaned (one-way), linked/orphaned -> archived.
func CanTransitionTraceability(from, to Traceability) bool {
	switch from {
	case TraceabilityLinked:
		return to == TraceabilityOrphaned || to == TraceabilityArchived
	case TraceabilityOrphaned:
		return to == TraceabilityArchived
	}
	return false
}

func isValidAssetStatus(s AssetStatus) bool {
	switch s {
	case AssetStatusProcessing, AssetStatusActive, AssetStatusFailed, AssetStatusArchived:
		return true
	}
	return false
}

func isValidTraceability(t Traceability) bool {
	switch t {
	case TraceabilityLinked, TraceabilityOrphaned, TraceabilityArchived:
		return true
	}
	return false
}
