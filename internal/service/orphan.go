package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lodestone-ai/lodestone/internal/domain"
)

// OrphanService manages asset traceability when source documents disappear.
// Orphaning never touches derived content: chunks, relationships, and
// secondary-store entries all survive.
type OrphanService struct {
	assetRepo AssetRepositoryInterface
	intake    IntakeClient
}

func NewOrphanService(assetRepo AssetRepositoryInterface, intake IntakeClient) *OrphanService {
	return &OrphanService{assetRepo: assetRepo, intake: intake}
}

// HandleSourceDeleted reacts to a source-deletion notification: every linked
// asset derived from that source flips to orphaned in one pass. Returns the
// number of assets orphaned; zero is fine, the notification may concern a
// source nothing was derived from.
func (s *OrphanService) HandleSourceDeleted(ctx context.Context, sourceRef string) (int64, error) {
	if sourceRef == "" {
		return 0, domain.NewDomainError(domain.ErrCodeValidation, "source_ref is required")
	}
	count, err := s.assetRepo.MarkOrphanedBySource(ctx, sourceRef, "Source file deleted", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to orphan assets for source: %w", err)
	}
	return count, nil
}

// SweepOrphans re-checks every linked asset's source against the intake store
// and orphans those whose source vanished without a notification. Returns the
// number of assets orphaned.
func (s *OrphanService) SweepOrphans(ctx context.Context) (int, error) {
	if s.intake == nil {
		return 0, nil
	}

	refs, err := s.assetRepo.ListLinkedSourceRefs(ctx)
	if err != nil {
		return 0, err
	}

	orphaned := 0
	for _, ref := range refs {
		exists, err := s.intake.Exists(ctx, ref.SourceRef)
		if err != nil {
			// an unreachable intake store must not orphan anything
			log.Printf("orphan sweep: existence check failed for %s: %v", ref.SourceRef, err)
			continue
		}
		if exists {
			continue
		}
		if err := s.assetRepo.MarkOrphaned(ctx, ref.AssetID, "source document missing", time.Now().UTC()); err != nil {
			log.Printf("orphan sweep: failed to orphan asset %s: %v", ref.AssetID, err)
			continue
		}
		orphaned++
	}
	return orphaned, nil
}
