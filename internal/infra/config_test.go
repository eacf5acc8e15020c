package infra

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig succeeded without DATABASE_URL")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "")
	t.Setenv("ENGINE_BASE_URL", "")
	t.Setenv("STREAM_KEEPALIVE_SECONDS", "")
	t.Setenv("MAX_UPLOAD_MB", "")
	t.Setenv("ENHANCER_PROVIDER", "")
	t.Setenv("PIPELINE_TIMEOUT_MINUTES", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.EngineBaseURL != "http://localhost:8000" {
		t.Fatalf("EngineBaseURL = %q", cfg.EngineBaseURL)
	}
	if cfg.KeepaliveEvery != 15*time.Second {
		t.Fatalf("KeepaliveEvery = %v, want 15s", cfg.KeepaliveEvery)
	}
	if cfg.MaxUploadBytes != 64<<20 {
		t.Fatalf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 64<<20)
	}
	if cfg.HTTPWriteTimeout != 0 {
		t.Fatalf("HTTPWriteTimeout = %v, want 0 for streaming", cfg.HTTPWriteTimeout)
	}
	if cfg.EnhancerProvider != "gemini" {
		t.Fatalf("EnhancerProvider = %q, want gemini", cfg.EnhancerProvider)
	}
	if cfg.PipelineTimeout != 30*time.Minute {
		t.Fatalf("PipelineTimeout = %v, want 30m", cfg.PipelineTimeout)
	}
}

func TestLoadConfigEnhancerProvider(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("ENHANCER_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_ORG", "org-qc")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.EnhancerProvider != "openai" {
		t.Fatalf("EnhancerProvider = %q, want openai", cfg.EnhancerProvider)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("OpenAIAPIKey = %q", cfg.OpenAIAPIKey)
	}
	if cfg.OpenAIOrg != "org-qc" {
		t.Fatalf("OpenAIOrg = %q", cfg.OpenAIOrg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("ENGINE_BASE_URL", "http://qc-engine.internal:9000")
	t.Setenv("ENGINE_TIMEOUT_SECONDS", "45")
	t.Setenv("STREAM_SUBSCRIBER_BUFFER", "4")
	t.Setenv("MAX_UPLOAD_MB", "8")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.EngineBaseURL != "http://qc-engine.internal:9000" {
		t.Fatalf("EngineBaseURL = %q", cfg.EngineBaseURL)
	}
	if cfg.EngineTimeout != 45*time.Second {
		t.Fatalf("EngineTimeout = %v, want 45s", cfg.EngineTimeout)
	}
	if cfg.SubscriberBuffer != 4 {
		t.Fatalf("SubscriberBuffer = %d, want 4", cfg.SubscriberBuffer)
	}
	if cfg.MaxUploadBytes != 8<<20 {
		t.Fatalf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 8<<20)
	}
}
