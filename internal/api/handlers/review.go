package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lodestone-ai/lodestone/internal/api"
	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/service"
)

type ReviewService interface {
	GetReview(ctx context.Context, assetID string) (*domain.ReviewInstance, error)
	Decide(ctx context.Context, assetID string, decision domain.ReviewDecision, input service.DecisionInput) (*service.DecisionResult, error)
}

type ReviewHandler struct {
	svc ReviewService
}

func NewReviewHandler(svc ReviewService) *ReviewHandler {
	return &ReviewHandler{svc: svc}
}

type DecisionRequest struct {
	Decision string                   `json:"decision"`
	Edits    []domain.ChunkEdit       `json:"edits,omitempty"`
	Params   *domain.ExtractionParams `json:"params,omitempty"`
}

type ReviewResponse struct {
	ID        string `json:"id"`
	AssetID   string `json:"asset_id"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	DecidedAt string `json:"decided_at,omitempty"`
}

func reviewToResponse(instance *domain.ReviewInstance) *ReviewResponse {
	resp := &ReviewResponse{
		ID:        instance.ID,
		AssetID:   instance.AssetID,
		State:     string(instance.State),
		CreatedAt: instance.CreatedAt.Format(timeFormat),
		UpdatedAt: instance.UpdatedAt.Format(timeFormat),
	}
	if instance.DecidedAt != nil {
		resp.DecidedAt = instance.DecidedAt.Format(timeFormat)
	}
	return resp
}

func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	if assetID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	instance, err := h.svc.GetReview(r.Context(), assetID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, reviewToResponse(instance))
}

func (h *ReviewHandler) Decide(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	if assetID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision := domain.ReviewDecision(req.Decision)
	if !domain.IsValidReviewDecision(decision) {
		api.Error(w, http.StatusBadRequest, "decision must be approve, edit, or rerun")
		return
	}

	result, err := h.svc.Decide(r.Context(), assetID, decision, service.DecisionInput{
		Edits:  req.Edits,
		Params: req.Params,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := map[string]interface{}{"review": reviewToResponse(result.Instance)}
	if result.Stats != nil {
		resp["stats"] = StatsResponse{
			ChunkCount:         result.Stats.ChunkCount,
			EmbeddedChunkCount: result.Stats.EmbeddedChunkCount,
			RelationshipCount:  result.Stats.RelationshipCount,
			TokenCount:         result.Stats.TokenCount,
			ComputedAt:         result.Stats.ComputedAt.Format(timeFormat),
		}
	}
	if result.Job != nil {
		resp["job"] = jobToResponse(result.Job)
	}

	api.Success(w, http.StatusOK, resp)
}
