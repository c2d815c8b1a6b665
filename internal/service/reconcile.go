package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/lodestone-ai/lodestone/internal/domain"
)

// ReconcileService restores eventual consistency between the relational store
// and the secondary stores. It handles both failure shapes of the
// write-secondary-then-stamp protocol: secondary entries whose row lost (or
// never got) its stamp, and rows whose secondary write succeeded but whose
// stamp was lost.
type ReconcileService struct {
	chunkRepo ChunkRepositoryInterface
	relRepo   RelationshipRepositoryInterface
	jobRepo   JobRepositoryInterface
	vectors   VectorStore
	graph     GraphStore
	uuidGen   UUIDGenerator
}

func NewReconcileService(
	chunkRepo ChunkRepositoryInterface,
	relRepo RelationshipRepositoryInterface,
	jobRepo JobRepositoryInterface,
	vectors VectorStore,
	graph GraphStore,
) *ReconcileService {
	return &ReconcileService{
		chunkRepo: chunkRepo,
		relRepo:   relRepo,
		jobRepo:   jobRepo,
		vectors:   vectors,
		graph:     graph,
		uuidGen:   &DefaultUUIDGenerator{},
	}
}

type ReconcileReport struct {
	OrphanedVectorsDeleted int
	OrphanedEdgesDeleted   int
	EmbedJobsEnqueued      int
	EdgesRestamped         int
}

// Reconcile runs all four repair passes and reports what it touched.
func (s *ReconcileService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	n, err := s.deleteOrphanedVectors(ctx)
	if err != nil {
		return report, err
	}
	report.OrphanedVectorsDeleted = n

	n, err = s.deleteOrphanedEdges(ctx)
	if err != nil {
		return report, err
	}
	report.OrphanedEdgesDeleted = n

	n, err = s.requeueLostEmbeds(ctx)
	if err != nil {
		return report, err
	}
	report.EmbedJobsEnqueued = n

	n, err = s.restampEdges(ctx)
	if err != nil {
		return report, err
	}
	report.EdgesRestamped = n

	return report, nil
}

// deleteOrphanedVectors removes vector entries no live chunk row points to.
func (s *ReconcileService) deleteOrphanedVectors(ctx context.Context) (int, error) {
	stamped, err := s.chunkRepo.ListStampedPointers(ctx)
	if err != nil {
		return 0, err
	}
	stored, err := s.vectors.ListPointers(ctx)
	if err != nil {
		return 0, err
	}

	live := make(map[string]bool, len(stamped))
	for _, pointer := range stamped {
		live[pointer] = true
	}

	deleted := 0
	for _, pointer := range stored {
		if live[pointer] {
			continue
		}
		if err := s.vectors.Delete(ctx, pointer); err != nil {
			log.Printf("reconcile: failed to delete orphaned vector %s: %v", pointer, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// deleteOrphanedEdges removes graph entries no live relationship row points to.
func (s *ReconcileService) deleteOrphanedEdges(ctx context.Context) (int, error) {
	stamped, err := s.relRepo.ListStampedPointers(ctx)
	if err != nil {
		return 0, err
	}
	stored, err := s.graph.ListPointers(ctx)
	if err != nil {
		return 0, err
	}

	live := make(map[string]bool, len(stamped))
	for _, pointer := range stamped {
		live[pointer] = true
	}

	deleted := 0
	for _, pointer := range stored {
		if live[pointer] {
			continue
		}
		if err := s.graph.DeleteEdge(ctx, pointer); err != nil {
			log.Printf("reconcile: failed to delete orphaned edge %s: %v", pointer, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// requeueLostEmbeds re-enqueues embedding for assets whose latest embed job
// completed but which still carry unstamped chunks. The stamp was lost, so
// the work is replayed; the idempotent upsert makes the replay safe.
func (s *ReconcileService) requeueLostEmbeds(ctx context.Context) (int, error) {
	assetIDs, err := s.jobRepo.ListAssetsWithCompletedLatest(ctx, domain.JobTypeEmbed)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, assetID := range assetIDs {
		unembedded, err := s.chunkRepo.ListUnembedded(ctx, assetID)
		if err != nil {
			return enqueued, err
		}
		if len(unembedded) == 0 {
			continue
		}

		job := domain.NewProcessingJob(s.uuidGen.NewString(), assetID, domain.JobTypeEmbed, nil, time.Now().UTC())
		if err := s.jobRepo.Create(ctx, job); err != nil {
			if errors.Is(err, domain.ErrDuplicateJob) {
				continue
			}
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

// restampEdges replays the graph write for live relationship rows with no
// pointer. The row carries the full edge tuple, so no extraction is needed.
func (s *ReconcileService) restampEdges(ctx context.Context) (int, error) {
	unstamped, err := s.relRepo.ListUnstamped(ctx)
	if err != nil {
		return 0, err
	}

	restamped := 0
	for _, rel := range unstamped {
		pointer := domain.GraphPointerFor(rel.SourceAssetID, rel.TargetAssetID, rel.Type)
		if err := s.graph.UpsertEdge(ctx, pointer, rel.SourceAssetID, rel.TargetAssetID, string(rel.Type), rel.Confidence); err != nil {
			log.Printf("reconcile: failed to rewrite edge %s: %v", rel.ID, err)
			continue
		}
		if err := s.relRepo.StampGraphPointer(ctx, rel.ID, pointer, time.Now().UTC()); err != nil {
			log.Printf("reconcile: failed to stamp edge %s: %v", rel.ID, err)
			continue
		}
		restamped++
	}
	return restamped, nil
}
