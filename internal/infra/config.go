package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	StoragePath      string
	ConverterBaseURL string
	EngineBaseURL    string
	EngineTimeout    time.Duration
	PipelineTimeout  time.Duration

	// EnhancerProvider selects the refinement backend: gemini or openai.
	// Credentials left empty here may still be supplied through the
	// integration token store.
	EnhancerProvider string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	OpenAIOrg        string

	MaxUploadBytes   int64
	KeepaliveEvery   time.Duration
	SubscriberBuffer int
	CORSOrigins      []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StoragePath:      getEnv("STORAGE_PATH", "./data/uploads"),
		ConverterBaseURL: getEnv("CONVERTER_BASE_URL", "http://localhost:8090"),
		EngineBaseURL:    getEnv("ENGINE_BASE_URL", "http://localhost:8000"),
		EngineTimeout:    time.Second * time.Duration(getEnvInt("ENGINE_TIMEOUT_SECONDS", 300)),
		PipelineTimeout:  time.Minute * time.Duration(getEnvInt("PIPELINE_TIMEOUT_MINUTES", 30)),
		EnhancerProvider: getEnv("ENHANCER_PROVIDER", "gemini"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      os.Getenv("GEMINI_MODEL"),
		GeminiBaseURL:    os.Getenv("GEMINI_BASE_URL"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		OpenAIOrg:        os.Getenv("OPENAI_ORG"),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_MB", 64)) << 20,
		KeepaliveEvery:   time.Second * time.Duration(getEnvInt("STREAM_KEEPALIVE_SECONDS", 15)),
		SubscriberBuffer: getEnvInt("STREAM_SUBSCRIBER_BUFFER", 16),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "*")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
