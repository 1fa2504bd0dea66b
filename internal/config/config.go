package config

import (
	"autorag-api/internal/models"
	"os"
	"strconv"
	"strings"
	"time"
)

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	JWTSecret      string
	AllowAnonymous bool
	LogLevel       string
	LogFile        string
	// BackgroundTimeout bounds fire-and-forget usage writes.
	BackgroundTimeout time.Duration
}

type AIConfig struct {
	APIKey         string
	EmbeddingModel string
	Models         map[models.Tier]string
}

type SearchConfig struct {
	Addresses   []string
	APIKey      string
	Index       string
	VectorField string
}

type AnalyticsConfig struct {
	// Sink is one of postgres, kafka, clickhouse or none.
	Sink          string
	DatabaseURL   string
	KafkaBrokers  []string
	KafkaTopic    string
	ClickHouseDSN string
}

type WeatherConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Config struct {
	Server    ServerConfig
	Cache     *CacheConfig
	RateLimit *RateLimitConfig
	AI        AIConfig
	Search    SearchConfig
	Analytics AnalyticsConfig
	Weather   WeatherConfig
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnv("PORT", "5050"),
			AllowedOrigins:    getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			JWTSecret:         getEnv("JWT_SECRET", ""),
			AllowAnonymous:    getEnvBool("ALLOW_ANONYMOUS", false),
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			LogFile:           getEnv("LOG_FILE", ""),
			BackgroundTimeout: time.Duration(getEnvInt("BACKGROUND_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Cache:     NewCacheConfig(),
		RateLimit: NewRateLimitConfig(),
		AI: AIConfig{
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
			Models: map[models.Tier]string{
				models.TierBasic:       getEnv("MODEL_BASIC", "gemini-2.0-flash-lite"),
				models.TierPremium:     getEnv("MODEL_PREMIUM", "gemini-2.0-flash"),
				models.TierEnterprise:  getEnv("MODEL_ENTERPRISE", "gemini-2.5-pro"),
				models.TierSpecialized: getEnv("MODEL_SPECIALIZED", "gemini-2.5-flash"),
			},
		},
		Search: SearchConfig{
			Addresses:   getEnvList("ELASTICSEARCH_ADDRESSES", []string{"http://localhost:9200"}),
			APIKey:      getEnv("ELASTICSEARCH_API_KEY", ""),
			Index:       getEnv("ELASTICSEARCH_INDEX", "agri-knowledge"),
			VectorField: getEnv("ELASTICSEARCH_VECTOR_FIELD", "embedding"),
		},
		Analytics: AnalyticsConfig{
			Sink:          strings.ToLower(getEnv("ANALYTICS_SINK", "postgres")),
			DatabaseURL:   getEnv("DATABASE_URL", ""),
			KafkaBrokers:  getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaTopic:    getEnv("KAFKA_TOPIC", "autorag.usage"),
			ClickHouseDSN: getEnv("CLICKHOUSE_DSN", "clickhouse://localhost:9000/default"),
		},
		Weather: WeatherConfig{
			APIKey:  getEnv("OPENWEATHER_API_KEY", ""),
			BaseURL: getEnv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
			Timeout: 5 * time.Second,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
