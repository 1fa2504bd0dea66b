package handlers

import (
	apperrors "autorag-api/internal/pkg/errors"
	"autorag-api/internal/services"
	"errors"
	"net/http"
	"time"
)

type UsageHandler struct {
	usageService services.UsageService
}

func NewUsageHandler(usageService services.UsageService) *UsageHandler {
	return &UsageHandler{usageService: usageService}
}

// GetUsage reads back the caller's analytics events. from and to are
// RFC 3339 timestamps; both are optional.
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, err := resolveUserID(r, "", false)
	if err != nil {
		writeError(w, err)
		return
	}

	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := h.usageService.GetUsage(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput(errors.New(name + " must be an RFC 3339 timestamp"))
	}
	return t, nil
}
