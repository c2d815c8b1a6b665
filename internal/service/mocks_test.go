package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/pagination"
)

// MockUUIDGenerator is a mock implementation of UUIDGenerator
type MockUUIDGenerator struct {
	mock.Mock
}

func (m *MockUUIDGenerator) NewString() string {
	args := m.Called()
	return args.String(0)
}

// MockAssetRepository is a mock implementation of AssetRepositoryInterface
type MockAssetRepository struct {
	mock.Mock
}

func (m *MockAssetRepository) Create(ctx context.Context, a *domain.KnowledgeAsset) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAssetRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeAsset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeAsset), args.Error(1)
}

func (m *MockAssetRepository) ListByProjectWithCursor(ctx context.Context, projectID string, cursor *pagination.Cursor, limit int) ([]*domain.KnowledgeAsset, error) {
	args := m.Called(ctx, projectID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeAsset), args.Error(1)
}

func (m *MockAssetRepository) UpdateStatus(ctx context.Context, id string, from, to domain.AssetStatus, now time.Time) error {
	args := m.Called(ctx, id, from, to, now)
	return args.Error(0)
}

func (m *MockAssetRepository) UpdateSummary(ctx context.Context, id, summary string, now time.Time) error {
	args := m.Called(ctx, id, summary, now)
	return args.Error(0)
}

func (m *MockAssetRepository) SetMetadataKey(ctx context.Context, id, key, value string, now time.Time) error {
	args := m.Called(ctx, id, key, value, now)
	return args.Error(0)
}

func (m *MockAssetRepository) MarkOrphanedBySource(ctx context.Context, sourceRef, reason string, now time.Time) (int64, error) {
	args := m.Called(ctx, sourceRef, reason, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssetRepository) MarkOrphaned(ctx context.Context, id, reason string, now time.Time) error {
	args := m.Called(ctx, id, reason, now)
	return args.Error(0)
}

func (m *MockAssetRepository) ArchiveTraceability(ctx context.Context, id string, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockAssetRepository) ListLinkedSourceRefs(ctx context.Context) ([]domain.LinkedSourceRef, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LinkedSourceRef), args.Error(1)
}

func (m *MockAssetRepository) RecomputeStats(ctx context.Context, id string, now time.Time) (*domain.ProcessingStats, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingStats), args.Error(1)
}

// MockChunkRepository is a mock implementation of ChunkRepositoryInterface
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) InsertBatch(ctx context.Context, chunks []*domain.KnowledgeChunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeChunk, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeChunk), args.Error(1)
}

func (m *MockChunkRepository) ListByAsset(ctx context.Context, assetID string) ([]*domain.KnowledgeChunk, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeChunk), args.Error(1)
}

func (m *MockChunkRepository) ListUnembedded(ctx context.Context, assetID string) ([]*domain.KnowledgeChunk, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeChunk), args.Error(1)
}

func (m *MockChunkRepository) StampVectorPointer(ctx context.Context, id, pointer, embeddingModel string, now time.Time) error {
	args := m.Called(ctx, id, pointer, embeddingModel, now)
	return args.Error(0)
}

func (m *MockChunkRepository) UpdateContent(ctx context.Context, id string, chunkType domain.ChunkType, content string, tokenCount int, contentHash string, now time.Time) error {
	args := m.Called(ctx, id, chunkType, content, tokenCount, contentHash, now)
	return args.Error(0)
}

func (m *MockChunkRepository) TombstoneByAsset(ctx context.Context, assetID string, now time.Time) ([]string, error) {
	args := m.Called(ctx, assetID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockChunkRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockChunkRepository) ListStampedPointers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockRelationshipRepository is a mock implementation of RelationshipRepositoryInterface
type MockRelationshipRepository struct {
	mock.Mock
}

func (m *MockRelationshipRepository) Upsert(ctx context.Context, rel *domain.KnowledgeRelationship) (string, error) {
	args := m.Called(ctx, rel)
	return args.String(0), args.Error(1)
}

func (m *MockRelationshipRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeRelationship, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeRelationship), args.Error(1)
}

func (m *MockRelationshipRepository) ListByAsset(ctx context.Context, assetID string) ([]*domain.KnowledgeRelationship, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeRelationship), args.Error(1)
}

func (m *MockRelationshipRepository) StampGraphPointer(ctx context.Context, id, pointer string, now time.Time) error {
	args := m.Called(ctx, id, pointer, now)
	return args.Error(0)
}

func (m *MockRelationshipRepository) TombstoneBySourceAsset(ctx context.Context, assetID string, now time.Time) ([]string, error) {
	args := m.Called(ctx, assetID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRelationshipRepository) ListUnstamped(ctx context.Context) ([]*domain.KnowledgeRelationship, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeRelationship), args.Error(1)
}

func (m *MockRelationshipRepository) ListStampedPointers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockJobRepository is a mock implementation of JobRepositoryInterface
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.ProcessingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingJob), args.Error(1)
}

func (m *MockJobRepository) GetLatestByAssetAndType(ctx context.Context, assetID string, jobType domain.JobType) (*domain.ProcessingJob, error) {
	args := m.Called(ctx, assetID, jobType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingJob), args.Error(1)
}

func (m *MockJobRepository) ListByAsset(ctx context.Context, assetID string) ([]*domain.ProcessingJob, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ProcessingJob), args.Error(1)
}

func (m *MockJobRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) ClaimPending(ctx context.Context, limit int, now time.Time) ([]*domain.ProcessingJob, error) {
	args := m.Called(ctx, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ProcessingJob), args.Error(1)
}

func (m *MockJobRepository) ReportProgress(ctx context.Context, id string, percent int) error {
	args := m.Called(ctx, id, percent)
	return args.Error(0)
}

func (m *MockJobRepository) Complete(ctx context.Context, id string, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockJobRepository) Fail(ctx context.Context, id, errMsg string, now time.Time) error {
	args := m.Called(ctx, id, errMsg, now)
	return args.Error(0)
}

func (m *MockJobRepository) FailStaleRunning(ctx context.Context, timeout time.Duration, now time.Time) (int64, error) {
	args := m.Called(ctx, timeout, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobRepository) CountPendingByType(ctx context.Context) (map[domain.JobType]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.JobType]int), args.Error(1)
}

func (m *MockJobRepository) ListAssetsWithCompletedLatest(ctx context.Context, jobType domain.JobType) ([]string, error) {
	args := m.Called(ctx, jobType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockReviewRepository is a mock implementation of ReviewRepositoryInterface
type MockReviewRepository struct {
	mock.Mock
}

func (m *MockReviewRepository) Create(ctx context.Context, instance *domain.ReviewInstance) error {
	args := m.Called(ctx, instance)
	return args.Error(0)
}

func (m *MockReviewRepository) GetByAsset(ctx context.Context, assetID string) (*domain.ReviewInstance, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReviewInstance), args.Error(1)
}

func (m *MockReviewRepository) TransitionState(ctx context.Context, id string, from, to domain.ReviewState, now time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, now)
	return args.Bool(0), args.Error(1)
}

// MockVectorStore is a mock implementation of VectorStore
type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) Upsert(ctx context.Context, pointer string, embedding []float32, payload map[string]string) error {
	args := m.Called(ctx, pointer, embedding, payload)
	return args.Error(0)
}

func (m *MockVectorStore) Delete(ctx context.Context, pointer string) error {
	args := m.Called(ctx, pointer)
	return args.Error(0)
}

func (m *MockVectorStore) ListPointers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockGraphStore is a mock implementation of GraphStore
type MockGraphStore struct {
	mock.Mock
}

func (m *MockGraphStore) UpsertEdge(ctx context.Context, pointer, sourceAssetID, targetAssetID, relType string, confidence float64) error {
	args := m.Called(ctx, pointer, sourceAssetID, targetAssetID, relType, confidence)
	return args.Error(0)
}

func (m *MockGraphStore) DeleteEdge(ctx context.Context, pointer string) error {
	args := m.Called(ctx, pointer)
	return args.Error(0)
}

func (m *MockGraphStore) ListPointers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbeddingClient) EmbeddingModel() string {
	args := m.Called()
	return args.String(0)
}

// MockExtractionClient is a mock implementation of ExtractionClient
type MockExtractionClient struct {
	mock.Mock
}

func (m *MockExtractionClient) ExtractRelationships(ctx context.Context, input domain.ExtractionInput) ([]domain.RelationshipProposal, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RelationshipProposal), args.Error(1)
}

// MockIntakeClient is a mock implementation of IntakeClient
type MockIntakeClient struct {
	mock.Mock
}

func (m *MockIntakeClient) Exists(ctx context.Context, sourceRef string) (bool, error) {
	args := m.Called(ctx, sourceRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockIntakeClient) Fetch(ctx context.Context, sourceRef string) (string, error) {
	args := m.Called(ctx, sourceRef)
	return args.String(0), args.Error(1)
}
