package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/internal/domain"
)

func newAssetService() (*AssetService, *MockAssetRepository, *MockChunkRepository, *MockRelationshipRepository, *MockJobRepository) {
	assetRepo := new(MockAssetRepository)
	chunkRepo := new(MockChunkRepository)
	relRepo := new(MockRelationshipRepository)
	jobRepo := new(MockJobRepository)
	svc := NewAssetService(assetRepo, chunkRepo, relRepo, jobRepo)
	return svc, assetRepo, chunkRepo, relRepo, jobRepo
}

func TestRegisterAsset_CreatesAssetAndPipelineJob(t *testing.T) {
	svc, assetRepo, _, _, jobRepo := newAssetService()

	uuidGen := new(MockUUIDGenerator)
	uuidGen.On("NewString").Return("asset-1").Once()
	uuidGen.On("NewString").Return("job-1").Once()
	svc.uuidGen = uuidGen

	assetRepo.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.KnowledgeAsset) bool {
		return a.ID == "asset-1" &&
			a.Status == domain.AssetStatusProcessing &&
			a.Traceability == domain.TraceabilityLinked
	})).Return(nil)
	jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.ProcessingJob) bool {
		return j.AssetID == "asset-1" &&
			j.Type == domain.JobTypeFullProcess &&
			j.Status == domain.JobStatusPending
	})).Return(nil)

	result, err := svc.RegisterAsset(context.Background(), RegisterAssetInput{
		SourceRef: "s3://bucket/doc.md",
		ProjectID: "proj-1",
		Title:     "Doc",
		DocType:   "markdown",
	})
	require.NoError(t, err)

	assert.Equal(t, "asset-1", result.Asset.ID)
	assert.Equal(t, "job-1", result.Job.ID)
	assetRepo.AssertExpectations(t)
	jobRepo.AssertExpectations(t)
}

func TestRegisterAsset_RequiresSourceRef(t *testing.T) {
	svc, assetRepo, _, _, _ := newAssetService()

	_, err := svc.RegisterAsset(context.Background(), RegisterAssetInput{
		ProjectID: "proj-1",
		Title:     "Doc",
	})

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
	assetRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestArchiveAsset_TransitionsStatusAndTraceability(t *testing.T) {
	svc, assetRepo, _, _, _ := newAssetService()

	active := &domain.KnowledgeAsset{
		ID:           "asset-1",
		Status:       domain.AssetStatusActive,
		Traceability: domain.TraceabilityLinked,
	}
	archived := &domain.KnowledgeAsset{
		ID:           "asset-1",
		Status:       domain.AssetStatusArchived,
		Traceability: domain.TraceabilityArchived,
	}

	assetRepo.On("GetByID", mock.Anything, "asset-1").Return(active, nil).Once()
	assetRepo.On("UpdateStatus", mock.Anything, "asset-1", domain.AssetStatusActive, domain.AssetStatusArchived, mock.Anything).Return(nil)
	assetRepo.On("ArchiveTraceability", mock.Anything, "asset-1", mock.Anything).Return(nil)
	assetRepo.On("GetByID", mock.Anything, "asset-1").Return(archived, nil).Once()

	result, err := svc.ArchiveAsset(context.Background(), "asset-1")
	require.NoError(t, err)

	assert.Equal(t, domain.AssetStatusArchived, result.Status)
	assert.Equal(t, domain.TraceabilityArchived, result.Traceability)
	assetRepo.AssertExpectations(t)
}

func TestArchiveAsset_AlreadyArchived(t *testing.T) {
	svc, assetRepo, _, _, _ := newAssetService()

	assetRepo.On("GetByID", mock.Anything, "asset-1").Return(&domain.KnowledgeAsset{
		ID:     "asset-1",
		Status: domain.AssetStatusArchived,
	}, nil)

	_, err := svc.ArchiveAsset(context.Background(), "asset-1")

	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
	assetRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryProcessing_ReopensFailedAsset(t *testing.T) {
	svc, assetRepo, _, _, jobRepo := newAssetService()

	assetRepo.On("GetByID", mock.Anything, "asset-1").Return(&domain.KnowledgeAsset{
		ID:     "asset-1",
		Status: domain.AssetStatusFailed,
	}, nil)
	assetRepo.On("UpdateStatus", mock.Anything, "asset-1", domain.AssetStatusFailed, domain.AssetStatusProcessing, mock.Anything).Return(nil)
	jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.ProcessingJob) bool {
		return j.AssetID == "asset-1" && j.Type == domain.JobTypeFullProcess
	})).Return(nil)

	job, err := svc.RetryProcessing(context.Background(), "asset-1")
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusPending, job.Status)
	assetRepo.AssertExpectations(t)
	jobRepo.AssertExpectations(t)
}

func TestRetryProcessing_RejectsNonFailedAsset(t *testing.T) {
	svc, assetRepo, _, _, jobRepo := newAssetService()

	assetRepo.On("GetByID", mock.Anything, "asset-1").Return(&domain.KnowledgeAsset{
		ID:     "asset-1",
		Status: domain.AssetStatusActive,
	}, nil)

	_, err := svc.RetryProcessing(context.Background(), "asset-1")

	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
	jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestMarkFailed_RecordsReason(t *testing.T) {
	svc, assetRepo, _, _, _ := newAssetService()

	assetRepo.On("UpdateStatus", mock.Anything, "asset-1", domain.AssetStatusProcessing, domain.AssetStatusFailed, mock.Anything).Return(nil)
	assetRepo.On("SetMetadataKey", mock.Anything, "asset-1", "failure_reason", "model unavailable", mock.Anything).Return(nil)

	err := svc.MarkFailed(context.Background(), "asset-1", "model unavailable")
	require.NoError(t, err)
	assetRepo.AssertExpectations(t)
}

func TestListAssets_RequiresProjectID(t *testing.T) {
	svc, _, _, _, _ := newAssetService()

	_, err := svc.ListAssets(context.Background(), "", "", 20)
	assert.Error(t, err)
}

func TestListAssets_Paginates(t *testing.T) {
	svc, assetRepo, _, _, _ := newAssetService()

	now := time.Now().UTC()
	assets := []*domain.KnowledgeAsset{
		{ID: "a", ProjectID: "proj-1", UpdatedAt: now},
		{ID: "b", ProjectID: "proj-1", UpdatedAt: now},
	}
	assetRepo.On("ListByProjectWithCursor", mock.Anything, "proj-1", mock.Anything, 2).Return(assets, nil)

	page, err := svc.ListAssets(context.Background(), "proj-1", "", 2)
	require.NoError(t, err)

	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.Cursor)
}

func TestGetLatestJob_ChecksAssetExists(t *testing.T) {
	svc, assetRepo, _, _, jobRepo := newAssetService()

	assetRepo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrAssetNotFound)

	_, err := svc.GetLatestJob(context.Background(), "missing", domain.JobTypeEmbed)

	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
	jobRepo.AssertNotCalled(t, "GetLatestByAssetAndType", mock.Anything, mock.Anything, mock.Anything)
}
