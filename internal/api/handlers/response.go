package handlers

import (
	"autorag-api/internal/logger"
	"autorag-api/internal/models"
	apperrors "autorag-api/internal/pkg/errors"
	"autorag-api/internal/services"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	AnonymousUserID     = "anonymous"
	storeRetryAfterHint = "60"
	maxRequestBodyBytes = 1 << 20
)

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

// writeError maps service errors onto the status codes clients rely on.
func writeError(w http.ResponseWriter, err error) {
	var rateLimited *apperrors.RateLimitedError
	var quotaExceeded *apperrors.QuotaExceededError

	switch {
	case errors.As(err, &rateLimited):
		retryAfter := strconv.Itoa(rateLimited.RetryAfter)
		w.Header().Set("Retry-After", retryAfter)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rateLimited.Limit))
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(rateLimited.ResetIn))
		respondWithJSON(w, http.StatusTooManyRequests, models.ErrorResponse{
			Error:      "Rate limit exceeded. Please upgrade your subscription for higher limits.",
			RetryAfter: retryAfter,
		})
	case errors.As(err, &quotaExceeded):
		cost := quotaExceeded.Cost
		respondWithJSON(w, http.StatusPaymentRequired, models.ErrorResponse{
			Error:           "Monthly query quota exceeded",
			Cost:            &cost,
			UpgradeRequired: true,
		})
	case errors.Is(err, apperrors.ErrNotSubscribed):
		respondWithJSON(w, http.StatusForbidden, models.ErrorResponse{
			Error:                "Subscription required",
			SubscriptionRequired: true,
		})
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		w.Header().Set("Retry-After", storeRetryAfterHint)
		respondWithJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{
			Error:      "Usage store temporarily unavailable",
			RetryAfter: storeRetryAfterHint,
		})
	case errors.Is(err, apperrors.ErrInvalidInput):
		respondWithJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: err.Error(),
			Code:  apperrors.CodeOf(err),
		})
	case errors.Is(err, apperrors.ErrNotFound):
		respondWithJSON(w, http.StatusNotFound, models.ErrorResponse{
			Error: "Not found",
			Code:  apperrors.CodeNotFound,
		})
	case errors.Is(err, apperrors.ErrUnauthenticated), errors.Is(err, apperrors.ErrInvalidToken):
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
	default:
		logger.Logger.WithFields(logrus.Fields{"error": err}).Error("Unhandled error")
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// resolveUserID prefers the identity middleware's verdict, then the body.
// Without either the caller is rejected unless anonymous access is on. When
// tokens are verified the middleware always sets the id, so the body id is
// only reached when no verifier is configured.
func resolveUserID(r *http.Request, bodyUserID string, allowAnonymous bool) (string, error) {
	if userID, ok := services.UserIDFromContext(r.Context()); ok {
		return userID, nil
	}
	if userID := strings.TrimSpace(bodyUserID); userID != "" {
		return userID, nil
	}
	if allowAnonymous {
		return AnonymousUserID, nil
	}
	return "", apperrors.ErrUnauthenticated
}

// NotFound answers unmatched routes with the same JSON error shape as the
// handlers.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, apperrors.ErrNotFound)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidInput(errors.New("invalid request body"))
	}
	return nil
}
