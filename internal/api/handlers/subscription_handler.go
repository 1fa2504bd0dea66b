package handlers

import (
	"autorag-api/internal/models"
	apperrors "autorag-api/internal/pkg/errors"
	"autorag-api/internal/services"
	"net/http"
)

type SubscriptionHandler struct {
	subscriptionService services.SubscriptionService
	allowAnonymous      bool
}

func NewSubscriptionHandler(subscriptionService services.SubscriptionService, allowAnonymous bool) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		allowAnonymous:      allowAnonymous,
	}
}

// Status returns the caller's tier, quota and hourly usage.
func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, err := resolveUserID(r, r.URL.Query().Get("userId"), h.allowAnonymous)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.subscriptionService.Status(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// Create subscribes the caller to a tier or changes the current tier.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSubscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, apperrors.InvalidInput(err))
		return
	}

	userID, err := resolveUserID(r, req.UserID, false)
	if err != nil {
		writeError(w, err)
		return
	}

	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		writeError(w, apperrors.InvalidInput(err))
		return
	}

	sub, err := h.subscriptionService.Create(r.Context(), userID, tier)
	if err != nil {
		writeError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, sub)
}
