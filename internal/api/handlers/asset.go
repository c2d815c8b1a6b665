package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lodestone-ai/lodestone/internal/api"
	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/pagination"
	"github.com/lodestone-ai/lodestone/internal/service"
)

const timeFormat = "2006-01-02T15:04:05Z"

type AssetService interface {
	RegisterAsset(ctx context.Context, input service.RegisterAssetInput) (*service.RegisterAssetResult, error)
	GetAssetDetail(ctx context.Context, id string) (*service.AssetDetail, error)
	ListAssets(ctx context.Context, projectID, cursor string, limit int) (*pagination.PageResult[*domain.KnowledgeAsset], error)
	ArchiveAsset(ctx context.Context, id string) (*domain.KnowledgeAsset, error)
	RetryProcessing(ctx context.Context, id string) (*domain.ProcessingJob, error)
	GetLatestJob(ctx context.Context, assetID string, jobType domain.JobType) (*domain.ProcessingJob, error)
	ListJobs(ctx context.Context, assetID string) ([]*domain.ProcessingJob, error)
	QueueStats(ctx context.Context) (map[domain.JobType]int, error)
}

type AssetHandler struct {
	svc AssetService
}

func NewAssetHandler(svc AssetService) *AssetHandler {
	return &AssetHandler{svc: svc}
}

type RegisterAssetRequest struct {
	SourceRef string            `json:"source_ref"`
	ProjectID string            `json:"project_id"`
	Title     string            `json:"title"`
	DocType   string            `json:"doc_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type AssetResponse struct {
	ID             string            `json:"id"`
	SourceRef      string            `json:"source_ref,omitempty"`
	ProjectID      string            `json:"project_id"`
	Title          string            `json:"title"`
	DocType        string            `json:"doc_type"`
	Summary        string            `json:"summary,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Status         string            `json:"status"`
	Traceability   string            `json:"traceability"`
	OrphanedAt     string            `json:"orphaned_at,omitempty"`
	OrphanedReason string            `json:"orphaned_reason,omitempty"`
	Stats          StatsResponse     `json:"stats"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

type StatsResponse struct {
	ChunkCount         int    `json:"chunk_count"`
	EmbeddedChunkCount int    `json:"embedded_chunk_count"`
	RelationshipCount  int    `json:"relationship_count"`
	TokenCount         int    `json:"token_count"`
	ComputedAt         string `json:"computed_at,omitempty"`
}

type ChunkResponse struct {
	ID             string `json:"id"`
	SequenceNumber int    `json:"sequence_number"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	TokenCount     int    `json:"token_count"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	Embedded       bool   `json:"embedded"`
}

type RelationshipResponse struct {
	ID            string  `json:"id"`
	SourceAssetID string  `json:"source_asset_id"`
	TargetAssetID string  `json:"target_asset_id"`
	SourceChunkID *string `json:"source_chunk_id,omitempty"`
	TargetChunkID *string `json:"target_chunk_id,omitempty"`
	Type          string  `json:"type"`
	Confidence    float64 `json:"confidence"`
	Synced        bool    `json:"synced"`
}

type AssetDetailResponse struct {
	Asset         *AssetResponse         `json:"asset"`
	Chunks        []ChunkResponse        `json:"chunks"`
	Relationships []RelationshipResponse `json:"relationships"`
}

type JobResponse struct {
	ID         string            `json:"id"`
	AssetID    string            `json:"asset_id"`
	Type       string            `json:"type"`
	Status     string            `json:"status"`
	Progress   int               `json:"progress"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  string            `json:"created_at"`
	StartedAt  string            `json:"started_at,omitempty"`
	FinishedAt string            `json:"finished_at,omitempty"`
}

func assetToResponse(a *domain.KnowledgeAsset) *AssetResponse {
	resp := &AssetResponse{
		ID:             a.ID,
		SourceRef:      a.SourceRef,
		ProjectID:      a.ProjectID,
		Title:          a.Title,
		DocType:        a.DocType,
		Summary:        a.Summary,
		Metadata:       a.Metadata,
		Status:         string(a.Status),
		Traceability:   string(a.Traceability),
		OrphanedReason: a.OrphanedReason,
		Stats: StatsResponse{
			ChunkCount:         a.Stats.ChunkCount,
			EmbeddedChunkCount: a.Stats.EmbeddedChunkCount,
			RelationshipCount:  a.Stats.RelationshipCount,
			TokenCount:         a.Stats.TokenCount,
		},
		CreatedAt: a.CreatedAt.Format(timeFormat),
		UpdatedAt: a.UpdatedAt.Format(timeFormat),
	}
	if a.OrphanedAt != nil {
		resp.OrphanedAt = a.OrphanedAt.Format(timeFormat)
	}
	if !a.Stats.ComputedAt.IsZero() {
		resp.Stats.ComputedAt = a.Stats.ComputedAt.Format(timeFormat)
	}
	return resp
}

func chunkToResponse(c *domain.KnowledgeChunk) ChunkResponse {
	return ChunkResponse{
		ID:             c.ID,
		SequenceNumber: c.SequenceNumber,
		Type:           string(c.Type),
		Content:        c.Content,
		TokenCount:     c.TokenCount,
		EmbeddingModel: c.EmbeddingModel,
		Embedded:       c.VectorPointer != "",
	}
}

func relationshipToResponse(rel *domain.KnowledgeRelationship) RelationshipResponse {
	return RelationshipResponse{
		ID:            rel.ID,
		SourceAssetID: rel.SourceAssetID,
		TargetAssetID: rel.TargetAssetID,
		SourceChunkID: rel.SourceChunkID,
		TargetChunkID: rel.TargetChunkID,
		Type:          string(rel.Type),
		Confidence:    rel.Confidence,
		Synced:        rel.GraphPointer != "",
	}
}

func jobToResponse(j *domain.ProcessingJob) *JobResponse {
	resp := &JobResponse{
		ID:        j.ID,
		AssetID:   j.AssetID,
		Type:      string(j.Type),
		Status:    string(j.Status),
		Progress:  j.Progress,
		Error:     j.Error,
		Metadata:  j.Metadata,
		CreatedAt: j.CreatedAt.Format(timeFormat),
	}
	if j.StartedAt != nil {
		resp.StartedAt = j.StartedAt.Format(timeFormat)
	}
	if j.FinishedAt != nil {
		resp.FinishedAt = j.FinishedAt.Format(timeFormat)
	}
	return resp
}

func (h *AssetHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SourceRef == "" {
		api.Error(w, http.StatusBadRequest, "source_ref is required")
		return
	}
	if req.ProjectID == "" {
		api.Error(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	result, err := h.svc.RegisterAsset(r.Context(), service.RegisterAssetInput{
		SourceRef: req.SourceRef,
		ProjectID: req.ProjectID,
		Title:     req.Title,
		DocType:   req.DocType,
		Metadata:  req.Metadata,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, map[string]interface{}{
		"asset": assetToResponse(result.Asset),
		"job":   jobToResponse(result.Job),
	})
}

func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	detail, err := h.svc.GetAssetDetail(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := &AssetDetailResponse{
		Asset:         assetToResponse(detail.Asset),
		Chunks:        make([]ChunkResponse, 0, len(detail.Chunks)),
		Relationships: make([]RelationshipResponse, 0, len(detail.Relationships)),
	}
	for _, c := range detail.Chunks {
		resp.Chunks = append(resp.Chunks, chunkToResponse(c))
	}
	for _, rel := range detail.Relationships {
		resp.Relationships = append(resp.Relationships, relationshipToResponse(rel))
	}

	api.Success(w, http.StatusOK, resp)
}

type ListAssetsResponse struct {
	Assets  []*AssetResponse `json:"assets"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		api.Error(w, http.StatusBadRequest, "project_id is required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			api.Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	page, err := h.svc.ListAssets(r.Context(), projectID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := &ListAssetsResponse{
		Assets:  make([]*AssetResponse, 0, len(page.Items)),
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	}
	for _, a := range page.Items {
		resp.Assets = append(resp.Assets, assetToResponse(a))
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *AssetHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	asset, err := h.svc.ArchiveAsset(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, assetToResponse(asset))
}

func (h *AssetHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	job, err := h.svc.RetryProcessing(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, jobToResponse(job))
}

func (h *AssetHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	jobs, err := h.svc.ListJobs(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, jobToResponse(j))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *AssetHandler) GetLatestJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	jobType := domain.JobType(chi.URLParam(r, "type"))
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	switch jobType {
	case domain.JobTypeChunk, domain.JobTypeEmbed, domain.JobTypeExtractRelationships, domain.JobTypeFullProcess:
	default:
		api.Error(w, http.StatusBadRequest, "invalid job type")
		return
	}

	job, err := h.svc.GetLatestJob(r.Context(), id, jobType)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, jobToResponse(job))
}

func (h *AssetHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.QueueStats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make(map[string]int, len(counts))
	for jobType, count := range counts {
		resp[string(jobType)] = count
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"pending": resp})
}
