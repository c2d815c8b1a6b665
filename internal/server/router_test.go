package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/internal/api/handlers"
	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/pagination"
	"github.com/lodestone-ai/lodestone/internal/service"
)

type MockAssetService struct {
	mock.Mock
}

func (m *MockAssetService) RegisterAsset(ctx context.Context, input service.RegisterAssetInput) (*service.RegisterAssetResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RegisterAssetResult), args.Error(1)
}

func (m *MockAssetService) GetAssetDetail(ctx context.Context, id string) (*service.AssetDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AssetDetail), args.Error(1)
}

func (m *MockAssetService) ListAssets(ctx context.Context, projectID, cursor string, limit int) (*pagination.PageResult[*domain.KnowledgeAsset], error) {
	args := m.Called(ctx, projectID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.KnowledgeAsset]), args.Error(1)
}

func (m *MockAssetService) ArchiveAsset(ctx context.Context, id string) (*domain.KnowledgeAsset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeAsset), args.Error(1)
}

func (m *MockAssetService) RetryProcessing(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingJob), args.Error(1)
}

func (m *MockAssetService) GetLatestJob(ctx context.Context, assetID string, jobType domain.JobType) (*domain.ProcessingJob, error) {
	args := m.Called(ctx, assetID, jobType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingJob), args.Error(1)
}

func (m *MockAssetService) ListJobs(ctx context.Context, assetID string) ([]*domain.ProcessingJob, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ProcessingJob), args.Error(1)
}

func (m *MockAssetService) QueueStats(ctx context.Context) (map[domain.JobType]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.JobType]int), args.Error(1)
}

type MockReviewService struct {
	mock.Mock
}

func (m *MockReviewService) GetReview(ctx context.Context, assetID string) (*domain.ReviewInstance, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReviewInstance), args.Error(1)
}

func (m *MockReviewService) Decide(ctx context.Context, assetID string, decision domain.ReviewDecision, input service.DecisionInput) (*service.DecisionResult, error) {
	args := m.Called(ctx, assetID, decision, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DecisionResult), args.Error(1)
}

type MockOrphanService struct {
	mock.Mock
}

func (m *MockOrphanService) HandleSourceDeleted(ctx context.Context, sourceRef string) (int64, error) {
	args := m.Called(ctx, sourceRef)
	return args.Get(0).(int64), args.Error(1)
}

func setupRouter() (http.Handler, *MockAssetService, *MockReviewService, *MockOrphanService) {
	assetSvc := new(MockAssetService)
	reviewSvc := new(MockReviewService)
	orphanSvc := new(MockOrphanService)

	cfg := RouterConfig{
		AssetHandler:  handlers.NewAssetHandler(assetSvc),
		ReviewHandler: handlers.NewReviewHandler(reviewSvc),
		SourceHandler: handlers.NewSourceHandler(orphanSvc),
	}

	return NewRouter(cfg), assetSvc, reviewSvc, orphanSvc
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_RegisterAsset_MissingFields(t *testing.T) {
	router, assetSvc, _, _ := setupRouter()

	body := strings.NewReader(`{"source_ref": "s3://bucket/doc.md"}`)
	req := httptest.NewRequest(http.MethodPost, "/assets", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assetSvc.AssertNotCalled(t, "RegisterAsset", mock.Anything, mock.Anything)
}

func TestRouter_GetAsset(t *testing.T) {
	router, assetSvc, _, _ := setupRouter()

	now := time.Now().UTC()
	detail := &service.AssetDetail{
		Asset: &domain.KnowledgeAsset{
			ID:           "asset-1",
			SourceRef:    "s3://bucket/doc.md",
			ProjectID:    "proj-1",
			Title:        "Doc",
			Status:       domain.AssetStatusActive,
			Traceability: domain.TraceabilityLinked,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
	assetSvc.On("GetAssetDetail", mock.Anything, "asset-1").Return(detail, nil)

	req := httptest.NewRequest(http.MethodGet, "/assets/asset-1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assetSvc.AssertExpectations(t)
}

func TestRouter_GetAsset_NotFound(t *testing.T) {
	router, assetSvc, _, _ := setupRouter()

	assetSvc.On("GetAssetDetail", mock.Anything, "missing").Return(nil, domain.ErrAssetNotFound)

	req := httptest.NewRequest(http.MethodGet, "/assets/missing", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ListAssets_RequiresProject(t *testing.T) {
	router, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/assets", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ReviewDecide_InvalidDecision(t *testing.T) {
	router, _, reviewSvc, _ := setupRouter()

	body := strings.NewReader(`{"decision": "maybe"}`)
	req := httptest.NewRequest(http.MethodPost, "/assets/asset-1/review", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	reviewSvc.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_SourceDeleted(t *testing.T) {
	router, _, _, orphanSvc := setupRouter()

	orphanSvc.On("HandleSourceDeleted", mock.Anything, "s3://bucket/doc.md").Return(int64(2), nil)

	body := strings.NewReader(`{"source_ref": "s3://bucket/doc.md"}`)
	req := httptest.NewRequest(http.MethodPost, "/sources/deleted", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["orphaned"])
	orphanSvc.AssertExpectations(t)
}

func TestRouter_QueueStats(t *testing.T) {
	router, assetSvc, _, _ := setupRouter()

	assetSvc.On("QueueStats", mock.Anything).Return(map[domain.JobType]int{
		domain.JobTypeEmbed: 3,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/stats", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	pending := data["pending"].(map[string]interface{})
	assert.Equal(t, float64(3), pending["embed"])
}
