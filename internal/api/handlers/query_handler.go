package handlers

import (
	"autorag-api/internal/models"
	"autorag-api/internal/services"
	"net/http"
)

type QueryHandler struct {
	gate           services.QueryGate
	allowAnonymous bool
}

func NewQueryHandler(gate services.QueryGate, allowAnonymous bool) *QueryHandler {
	return &QueryHandler{
		gate:           gate,
		allowAnonymous: allowAnonymous,
	}
}

// Query godoc
// @Summary Answer an agronomy question
// @Description Runs a metered, tier-aware retrieval-augmented query
// @Accept json
// @Produce json
// @Success 200 {object} models.QueryResponse
// @Failure 402 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /query [post]
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID, err := resolveUserID(r, req.UserID, h.allowAnonymous)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.gate.HandleQuery(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}
