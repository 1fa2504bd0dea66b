package main

import (
	"autorag-api/internal/api"
	"autorag-api/internal/api/controllers"
	"autorag-api/internal/api/handlers"
	"autorag-api/internal/config"
	"autorag-api/internal/database"
	"autorag-api/internal/logger"
	"autorag-api/internal/middleware"
	"autorag-api/internal/repository"
	"autorag-api/internal/services"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Logger.Warnf("Error loading .env file: %v", err)
	}

	cfg := config.Load()
	if err := logger.Configure(cfg.Server.LogLevel, cfg.Server.LogFile); err != nil {
		logger.Logger.Fatalf("Failed to configure logger: %v", err)
	}

	redisClient, err := services.NewRedisClient(cfg.Cache)
	if err != nil {
		logger.Logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	kvStore := services.NewRedisKVStore(redisClient)

	// Initialize repositories
	subscriptionRepo := repository.NewSubscriptionRepository(redisClient)
	rateLimitRepo := repository.NewRateLimitRepository(redisClient)

	var db *gorm.DB
	var usageRepo repository.UsageEventRepository
	if cfg.Analytics.Sink == "postgres" {
		db, err = database.InitDB(cfg.Analytics.DatabaseURL)
		if err != nil {
			logger.Logger.Fatalf("Failed to connect to database: %v", err)
		}
		usageRepo = repository.NewUsageEventRepository(db)
	}

	analyticsSink, err := services.NewAnalyticsSink(cfg.Analytics, usageRepo)
	if err != nil {
		logger.Logger.Fatalf("Failed to initialise analytics sink: %v", err)
	}
	defer analyticsSink.Close()

	aiClient, err := services.NewGeminiAIClient(context.Background(), cfg.AI)
	if err != nil {
		logger.Logger.Fatalf("Failed to initialise AI client: %v", err)
	}
	vectorSearch, err := services.NewElasticVectorSearch(cfg.Search)
	if err != nil {
		logger.Logger.Fatalf("Failed to initialise vector search: %v", err)
	}

	// Initialize services
	subscriptionService := services.NewSubscriptionService(subscriptionRepo, rateLimitRepo, cfg.RateLimit, time.Now)
	rateLimitService := services.NewRateLimitService(rateLimitRepo, cfg.RateLimit)
	queryService := services.NewQueryService(
		subscriptionService,
		rateLimitService,
		aiClient,
		vectorSearch,
		aiClient,
		analyticsSink,
		services.WithModels(cfg.AI.Models),
		services.WithMarketService(services.NewMarketService(kvStore)),
		services.WithWeatherService(services.NewWeatherService(cfg.Weather)),
		services.WithBackgroundTimeout(cfg.Server.BackgroundTimeout),
	)

	var identityService services.IdentityService
	if cfg.Server.JWTSecret != "" {
		identityService = services.NewIdentityService(cfg.Server.JWTSecret)
		if cfg.Server.AllowAnonymous {
			logger.Logger.Warn("ALLOW_ANONYMOUS ignored, JWT_SECRET requires a bearer token on every metered request")
		}
	} else {
		logger.Logger.Warn("JWT_SECRET not set, trusting X-User-Id and body user ids")
		if cfg.Server.AllowAnonymous {
			logger.Logger.Warn("Anonymous queries enabled, unidentified callers share one quota")
		}
	}

	// Initialize handlers
	h := api.Handlers{
		Query:        handlers.NewQueryHandler(queryService, cfg.Server.AllowAnonymous),
		Subscription: handlers.NewSubscriptionHandler(subscriptionService, cfg.Server.AllowAnonymous),
		Pricing:      handlers.NewPricingHandler(services.NewPricingService(cfg.RateLimit)),
		Health:       controllers.HealthCheckHandler(kvStore, optionalPingers(db)),
	}
	if usageRepo != nil {
		h.Usage = handlers.NewUsageHandler(services.NewUsageService(usageRepo))
	}

	router := api.SetupRoutes(h, middleware.IdentityMiddleware(identityService))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			middleware.UserIDHeader,
			middleware.RequestIDHeader,
		},
		ExposedHeaders: []string{
			"Retry-After",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			middleware.RequestIDHeader,
		},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})

	// Create server with timeouts
	srv := &http.Server{
		Handler:      corsMiddleware.Handler(router),
		Addr:         ":" + cfg.Server.Port,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	go func() {
		logger.LogEvent(logrus.InfoLevel, "Server starting", logrus.Fields{
			"port":           cfg.Server.Port,
			"analytics_sink": cfg.Analytics.Sink,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Errorf("Graceful shutdown failed: %v", err)
	}

	// Let in-flight usage writes land before the stores close.
	queryService.Wait()
	logger.Logger.Info("Server stopped")
}

func optionalPingers(db *gorm.DB) map[string]controllers.Pinger {
	pingers := map[string]controllers.Pinger{}
	if db != nil {
		pingers["database"] = controllers.PingFunc(func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}
	return pingers
}
