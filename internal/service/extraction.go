package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/telemetry"
)

type RelationshipRepositoryInterface interface {
	Upsert(ctx context.Context, rel *domain.KnowledgeRelationship) (string, error)
	GetByID(ctx context.Context, id string) (*domain.KnowledgeRelationship, error)
	ListByAsset(ctx context.Context, assetID string) ([]*domain.KnowledgeRelationship, error)
	StampGraphPointer(ctx context.Context, id, pointer string, now time.Time) error
	TombstoneBySourceAsset(ctx context.Context, assetID string, now time.Time) ([]string, error)
	ListUnstamped(ctx context.Context) ([]*domain.KnowledgeRelationship, error)
	ListStampedPointers(ctx context.Context) ([]string, error)
}

// DefaultConfidenceFloor is applied when a run does not carry its own floor.
const DefaultConfidenceFloor = 0.5

// candidateLimit caps how many sibling assets are offered to the model per
// extraction call.
const candidateLimit = 100

// ExtractionService runs the relationship-extraction stage: it asks the model
// for proposed edges, filters them by confidence, and lands survivors in the
// relational and graph stores.
type ExtractionService struct {
	assetRepo AssetRepositoryInterface
	chunkRepo ChunkRepositoryInterface
	relRepo   RelationshipRepositoryInterface
	graph     GraphStore
	extractor ExtractionClient
	uuidGen   UUIDGenerator
}

func NewExtractionService(
	assetRepo AssetRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	relRepo RelationshipRepositoryInterface,
	graph GraphStore,
	extractor ExtractionClient,
) *ExtractionService {
	return &ExtractionService{
		assetRepo: assetRepo,
		chunkRepo: chunkRepo,
		relRepo:   relRepo,
		graph:     graph,
		extractor: extractor,
		uuidGen:   &DefaultUUIDGenerator{},
	}
}

// ExtractRelationships proposes and persists edges from the asset to other
// assets in the same project. Proposals below the confidence floor are
// discarded before any write. Each surviving edge follows the
// write-secondary-then-stamp protocol against the graph store. Returns the
// number of edges persisted.
func (s *ExtractionService) ExtractRelationships(ctx context.Context, assetID string, confidenceFloor float64) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "ExtractionService.ExtractRelationships", telemetry.SpanAttributes{
		AssetID:   assetID,
		Operation: "extract_relationships",
	})
	defer span.End()

	if confidenceFloor < 0 || confidenceFloor > 1 {
		return 0, domain.ErrInvalidConfidence
	}
	if confidenceFloor == 0 {
		confidenceFloor = DefaultConfidenceFloor
	}

	asset, err := s.assetRepo.GetByID(ctx, assetID)
	if err != nil {
		return 0, err
	}

	chunks, err := s.chunkRepo.ListByAsset(ctx, assetID)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	siblings, err := s.assetRepo.ListByProjectWithCursor(ctx, asset.ProjectID, nil, candidateLimit)
	if err != nil {
		return 0, err
	}

	candidates := make([]domain.ExtractionCandidate, 0, len(siblings))
	candidateIDs := make(map[string]bool, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID == assetID || sibling.Status == domain.AssetStatusArchived {
			continue
		}
		candidates = append(candidates, domain.ExtractionCandidate{
			ID:      sibling.ID,
			Title:   sibling.Title,
			DocType: sibling.DocType,
			Summary: sibling.Summary,
		})
		candidateIDs[sibling.ID] = true
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	input := domain.ExtractionInput{
		SourceTitle:   asset.Title,
		SourceSummary: asset.Summary,
		Chunks:        make([]string, len(chunks)),
		Candidates:    candidates,
	}
	for i, chunk := range chunks {
		input.Chunks[i] = chunk.Content
	}

	var proposals []domain.RelationshipProposal
	err = retryExternal(ctx, func() error {
		var exErr error
		proposals, exErr = s.extractor.ExtractRelationships(ctx, input)
		return exErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to extract relationships: %w", err)
	}

	persisted := 0
	for _, proposal := range proposals {
		if proposal.Confidence < confidenceFloor {
			continue
		}
		if !candidateIDs[proposal.TargetAssetID] {
			continue
		}

		now := time.Now().UTC()
		rel := &domain.KnowledgeRelationship{
			ID:            s.uuidGen.NewString(),
			SourceAssetID: assetID,
			TargetAssetID: proposal.TargetAssetID,
			Type:          proposal.Type,
			Confidence:    proposal.Confidence,
			Metadata:      map[string]string{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if anchor := anchorChunkID(chunks, proposal.SourceChunkSequence); anchor != "" {
			rel.SourceChunkID = &anchor
		}
		if err := domain.ValidateRelationship(rel); err != nil {
			continue
		}

		// the upsert may land on an existing live row for the same tuple; the
		// returned id is the row that actually holds the edge
		rowID, err := s.relRepo.Upsert(ctx, rel)
		if err != nil {
			return persisted, err
		}

		pointer := domain.GraphPointerFor(assetID, proposal.TargetAssetID, proposal.Type)
		err = retryExternal(ctx, func() error {
			return s.graph.UpsertEdge(ctx, pointer, assetID, proposal.TargetAssetID, string(proposal.Type), proposal.Confidence)
		})
		if err != nil {
			return persisted, domain.NewDomainErrorWithCause(domain.ErrCodeExternalStore, "graph store write failed", err)
		}
		if err := s.relRepo.StampGraphPointer(ctx, rowID, pointer, time.Now().UTC()); err != nil {
			return persisted, err
		}
		persisted++
	}
	return persisted, nil
}

func anchorChunkID(chunks []*domain.KnowledgeChunk, sequence int) string {
	if sequence < 0 {
		return ""
	}
	for _, chunk := range chunks {
		if chunk.SequenceNumber == sequence {
			return chunk.ID
		}
	}
	return ""
}
