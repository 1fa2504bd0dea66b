package handlers

import (
	"autorag-api/internal/models"
	apperrors "autorag-api/internal/pkg/errors"
	"autorag-api/internal/services"
	"net/http"
)

type PricingHandler struct {
	pricingService services.PricingService
}

func NewPricingHandler(pricingService services.PricingService) *PricingHandler {
	return &PricingHandler{pricingService: pricingService}
}

func (h *PricingHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"tiers": h.pricingService.Tiers(),
	})
}

func (h *PricingHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req models.PricingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, apperrors.InvalidInput(err))
		return
	}

	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		writeError(w, apperrors.InvalidInput(err))
		return
	}

	respondWithJSON(w, http.StatusOK, h.pricingService.Estimate(tier, req.ResponseDetailLevel, req.QueriesPerMonth))
}
