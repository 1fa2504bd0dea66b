package handlers

import (
	"autorag-api/internal/config"
	"autorag-api/internal/services"
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPricingHandler() *PricingHandler {
	return NewPricingHandler(services.NewPricingService(&config.RateLimitConfig{}))
}

func TestPricingListTiers(t *testing.T) {
	rec := httptest.NewRecorder()
	newPricingHandler().ListTiers(rec, httptest.NewRequest(http.MethodGet, "/pricing", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	tiers, ok := body["tiers"].([]interface{})
	require.True(t, ok)
	assert.Len(t, tiers, 4)
}

func TestPricingCalculate(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/pricing/calculate",
		bytes.NewBufferString(`{"tier":"enterprise","responseDetailLevel":5,"queriesPerMonth":2000}`))
	newPricingHandler().Calculate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.InDelta(t, 0.1, body["costPerQuery"], 1e-9)
	assert.InDelta(t, 399.0, body["estimatedTotal"], 1e-9)
}

func TestPricingCalculateRejectsUnknownTier(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/pricing/calculate", bytes.NewBufferString(`{"tier":"gold"}`))
	newPricingHandler().Calculate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
