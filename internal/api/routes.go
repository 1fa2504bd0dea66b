package api

import (
	"autorag-api/internal/api/handlers"
	"autorag-api/internal/middleware"
	"net/http"

	"github.com/gorilla/mux"
)

type Handlers struct {
	Query        *handlers.QueryHandler
	Subscription *handlers.SubscriptionHandler
	Pricing      *handlers.PricingHandler
	// Usage is nil when the analytics sink cannot be read back.
	Usage  *handlers.UsageHandler
	Health http.HandlerFunc
}

func SetupRoutes(h Handlers, identity mux.MiddlewareFunc) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	router.Use(middleware.RecoverMiddleware)
	router.Use(middleware.LoggingMiddleware)

	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/pricing", h.Pricing.ListTiers).Methods("GET")
	router.HandleFunc("/pricing/calculate", h.Pricing.Calculate).Methods("POST")

	metered := router.NewRoute().Subrouter()
	metered.Use(identity)
	metered.HandleFunc("/query", h.Query.Query).Methods("POST")
	metered.HandleFunc("/subscription/status", h.Subscription.Status).Methods("GET")
	metered.HandleFunc("/subscription", h.Subscription.Create).Methods("POST")
	if h.Usage != nil {
		metered.HandleFunc("/usage", h.Usage.GetUsage).Methods("GET")
	}

	return router
}
