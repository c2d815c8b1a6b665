package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/internal/domain"
)

func TestHandleSourceDeleted_OrphansLinkedAssets(t *testing.T) {
	assetRepo := new(MockAssetRepository)
	svc := NewOrphanService(assetRepo, nil)

	assetRepo.On("MarkOrphanedBySource", mock.Anything, "s3://bucket/doc.md", "Source file deleted", mock.Anything).Return(int64(2), nil)

	count, err := svc.HandleSourceDeleted(context.Background(), "s3://bucket/doc.md")
	require.NoError(t, err)

	assert.Equal(t, int64(2), count)
	assetRepo.AssertExpectations(t)
}

func TestHandleSourceDeleted_RequiresSourceRef(t *testing.T) {
	assetRepo := new(MockAssetRepository)
	svc := NewOrphanService(assetRepo, nil)

	_, err := svc.HandleSourceDeleted(context.Background(), "")

	assert.Error(t, err)
	assetRepo.AssertNotCalled(t, "MarkOrphanedBySource", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepOrphans_OrphansMissingSources(t *testing.T) {
	assetRepo := new(MockAssetRepository)
	intake := new(MockIntakeClient)
	svc := NewOrphanService(assetRepo, intake)

	assetRepo.On("ListLinkedSourceRefs", mock.Anything).Return([]domain.LinkedSourceRef{
		{AssetID: "asset-1", SourceRef: "s3://bucket/a.md"},
		{AssetID: "asset-2", SourceRef: "s3://bucket/b.md"},
	}, nil)
	intake.On("Exists", mock.Anything, "s3://bucket/a.md").Return(true, nil)
	intake.On("Exists", mock.Anything, "s3://bucket/b.md").Return(false, nil)
	assetRepo.On("MarkOrphaned", mock.Anything, "asset-2", "source document missing", mock.Anything).Return(nil)

	count, err := svc.SweepOrphans(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	assetRepo.AssertExpectations(t)
}

func TestSweepOrphans_UnreachableStoreOrphansNothing(t *testing.T) {
	assetRepo := new(MockAssetRepository)
	intake := new(MockIntakeClient)
	svc := NewOrphanService(assetRepo, intake)

	assetRepo.On("ListLinkedSourceRefs", mock.Anything).Return([]domain.LinkedSourceRef{
		{AssetID: "asset-1", SourceRef: "s3://bucket/a.md"},
	}, nil)
	intake.On("Exists", mock.Anything, "s3://bucket/a.md").Return(false, errors.New("connection refused"))

	count, err := svc.SweepOrphans(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, count)
	assetRepo.AssertNotCalled(t, "MarkOrphaned", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepOrphans_NoIntakeClientSkips(t *testing.T) {
	assetRepo := new(MockAssetRepository)
	svc := NewOrphanService(assetRepo, nil)

	count, err := svc.SweepOrphans(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, count)
	assetRepo.AssertNotCalled(t, "ListLinkedSourceRefs", mock.Anything)
}
