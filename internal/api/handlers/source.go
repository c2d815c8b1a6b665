package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lodestone-ai/lodestone/internal/api"
)

type OrphanService interface {
	HandleSourceDeleted(ctx context.Context, sourceRef string) (int64, error)
}

type SourceHandler struct {
	svc OrphanService
}

func NewSourceHandler(svc OrphanService) *SourceHandler {
	return &SourceHandler{svc: svc}
}

type SourceDeletedRequest struct {
	SourceRef string `json:"source_ref"`
}

// Deleted handles the source-deletion notification from the intake
// collaborator. Idempotent: repeating the notification orphans nothing new.
func (h *SourceHandler) Deleted(w http.ResponseWriter, r *http.Request) {
	var req SourceDeletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceRef == "" {
		api.Error(w, http.StatusBadRequest, "source_ref is required")
		return
	}

	count, err := h.svc.HandleSourceDeleted(r.Context(), req.SourceRef)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int64{"orphaned": count})
}
