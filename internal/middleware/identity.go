package middleware

import (
	"autorag-api/internal/logger"
	apperrors "autorag-api/internal/pkg/errors"
	"autorag-api/internal/services"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

const UserIDHeader = "X-User-Id"

// IdentityMiddleware puts the caller's user id on the request context.
// With a verifier configured every request must carry a valid bearer token
// and client-asserted ids are ignored. Without one the X-User-Id header is
// trusted, and requests with neither pass through so handlers can fall back
// to an id in the body.
func IdentityMiddleware(identityService services.IdentityService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if identityService != nil {
				userID, err := verifyBearer(identityService, r)
				if err != nil {
					logger.Logger.WithFields(logrus.Fields{
						"path":  r.URL.Path,
						"error": err,
					}).Warn("Rejected request without a valid bearer token")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
					return
				}
				ctx = services.WithUserID(ctx, userID)
			} else if userID := strings.TrimSpace(r.Header.Get(UserIDHeader)); userID != "" {
				ctx = services.WithUserID(ctx, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verifyBearer(identityService services.IdentityService, r *http.Request) (string, error) {
	tokenString := extractTokenFromHeader(r)
	if tokenString == "" {
		return "", apperrors.ErrUnauthenticated
	}
	return identityService.VerifyToken(tokenString)
}

func extractTokenFromHeader(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
