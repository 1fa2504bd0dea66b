package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is anything whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthCheckResponse struct {
	Status           string            `json:"status"`
	ExternalServices map[string]string `json:"external_services"`
}

// HealthCheckHandler reports the status of every dependency. The KV store
// is required; the rest are informational.
func HealthCheckHandler(kv Pinger, optional map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		response := HealthCheckResponse{
			Status:           "API is running",
			ExternalServices: make(map[string]string),
		}

		code := http.StatusOK
		if err := kv.Ping(ctx); err != nil {
			response.ExternalServices["kv_store"] = "Unavailable"
			code = http.StatusServiceUnavailable
		} else {
			response.ExternalServices["kv_store"] = "Available"
		}

		for name, p := range optional {
			response.ExternalServices[name] = checkExternalService(ctx, p)
		}

		respondWithJSON(w, code, response)
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func checkExternalService(ctx context.Context, p Pinger) string {
	if err := p.Ping(ctx); err != nil {
		return "Unavailable"
	}
	return "Available"
}
