package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/internal/domain"
)

func newReconcileService() (*ReconcileService, *MockChunkRepository, *MockRelationshipRepository, *MockJobRepository, *MockVectorStore, *MockGraphStore) {
	chunkRepo := new(MockChunkRepository)
	relRepo := new(MockRelationshipRepository)
	jobRepo := new(MockJobRepository)
	vectors := new(MockVectorStore)
	graph := new(MockGraphStore)
	svc := NewReconcileService(chunkRepo, relRepo, jobRepo, vectors, graph)
	return svc, chunkRepo, relRepo, jobRepo, vectors, graph
}

func TestReconcile_DeletesOrphanedSecondaryEntries(t *testing.T) {
	svc, chunkRepo, relRepo, jobRepo, vectors, graph := newReconcileService()

	// one stored vector and one stored edge have no stamped row behind them
	chunkRepo.On("ListStampedPointers", mock.Anything).Return([]string{"chunk:a:model"}, nil)
	vectors.On("ListPointers", mock.Anything).Return([]string{"chunk:a:model", "chunk:gone:model"}, nil)
	vectors.On("Delete", mock.Anything, "chunk:gone:model").Return(nil)

	relRepo.On("ListStampedPointers", mock.Anything).Return([]string{"edge:live"}, nil)
	graph.On("ListPointers", mock.Anything).Return([]string{"edge:live", "edge:gone"}, nil)
	graph.On("DeleteEdge", mock.Anything, "edge:gone").Return(nil)

	jobRepo.On("ListAssetsWithCompletedLatest", mock.Anything, domain.JobTypeEmbed).Return([]string{}, nil)
	relRepo.On("ListUnstamped", mock.Anything).Return([]*domain.KnowledgeRelationship{}, nil)

	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrphanedVectorsDeleted)
	assert.Equal(t, 1, report.OrphanedEdgesDeleted)
	vectors.AssertExpectations(t)
	graph.AssertExpectations(t)
}

func TestReconcile_RequeuesLostEmbeds(t *testing.T) {
	svc, chunkRepo, relRepo, jobRepo, vectors, graph := newReconcileService()

	chunkRepo.On("ListStampedPointers", mock.Anything).Return([]string{}, nil)
	vectors.On("ListPointers", mock.Anything).Return([]string{}, nil)
	relRepo.On("ListStampedPointers", mock.Anything).Return([]string{}, nil)
	graph.On("ListPointers", mock.Anything).Return([]string{}, nil)
	relRepo.On("ListUnstamped", mock.Anything).Return([]*domain.KnowledgeRelationship{}, nil)

	// asset-1's embed job completed but a chunk was never stamped
	jobRepo.On("ListAssetsWithCompletedLatest", mock.Anything, domain.JobTypeEmbed).Return([]string{"asset-1", "asset-2"}, nil)
	chunkRepo.On("ListUnembedded", mock.Anything, "asset-1").Return([]*domain.KnowledgeChunk{{ID: "chunk-1"}}, nil)
	chunkRepo.On("ListUnembedded", mock.Anything, "asset-2").Return([]*domain.KnowledgeChunk{}, nil)
	jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.ProcessingJob) bool {
		return j.AssetID == "asset-1" && j.Type == domain.JobTypeEmbed
	})).Return(nil)

	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.EmbedJobsEnqueued)
	jobRepo.AssertExpectations(t)
}

func TestReconcile_RestampsEdgesFromRowData(t *testing.T) {
	svc, chunkRepo, relRepo, jobRepo, vectors, graph := newReconcileService()

	chunkRepo.On("ListStampedPointers", mock.Anything).Return([]string{}, nil)
	vectors.On("ListPointers", mock.Anything).Return([]string{}, nil)
	relRepo.On("ListStampedPointers", mock.Anything).Return([]string{}, nil)
	graph.On("ListPointers", mock.Anything).Return([]string{}, nil)
	jobRepo.On("ListAssetsWithCompletedLatest", mock.Anything, domain.JobTypeEmbed).Return([]string{}, nil)

	rel := &domain.KnowledgeRelationship{
		ID:            "row-1",
		SourceAssetID: "asset-1",
		TargetAssetID: "asset-2",
		Type:          domain.RelationshipTypeDependsOn,
		Confidence:    0.8,
	}
	pointer := domain.GraphPointerFor("asset-1", "asset-2", domain.RelationshipTypeDependsOn)
	relRepo.On("ListUnstamped", mock.Anything).Return([]*domain.KnowledgeRelationship{rel}, nil)
	graph.On("UpsertEdge", mock.Anything, pointer, "asset-1", "asset-2", string(domain.RelationshipTypeDependsOn), 0.8).Return(nil)
	relRepo.On("StampGraphPointer", mock.Anything, "row-1", pointer, mock.Anything).Return(nil)

	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.EdgesRestamped)
	graph.AssertExpectations(t)
	relRepo.AssertExpectations(t)
}

func TestReconcile_DuplicateEmbedJobIsSkipped(t *testing.T) {
	svc, chunkRepo, relRepo, jobRepo, vectors, graph := newReconcileService()

	chunkRepo.On("ListStampedPointers", mock.Anything).Return([]string{}, nil)
	vectors.On("ListPointers", mock.Anything).Return([]string{}, nil)
	relRepo.On("ListStampedPointers", mock.Anything).Return([]string{}, nil)
	graph.On("ListPointers", mock.Anything).Return([]string{}, nil)
	relRepo.On("ListUnstamped", mock.Anything).Return([]*domain.KnowledgeRelationship{}, nil)

	jobRepo.On("ListAssetsWithCompletedLatest", mock.Anything, domain.JobTypeEmbed).Return([]string{"asset-1"}, nil)
	chunkRepo.On("ListUnembedded", mock.Anything, "asset-1").Return([]*domain.KnowledgeChunk{{ID: "chunk-1"}}, nil)
	jobRepo.On("Create", mock.Anything, mock.Anything).Return(domain.ErrDuplicateJob)

	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.EmbedJobsEnqueued)
}
