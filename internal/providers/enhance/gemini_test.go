package enhance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func newTestGemini(t *testing.T, key string, rt roundTripFunc) *Gemini {
	t.Helper()
	client, err := NewGemini(GeminiOptions{
		APIKey:     key,
		BaseURL:    "http://enhancer.test/v1beta",
		Model:      "test-model",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("NewGemini returned error: %v", err)
	}
	return client
}

func TestGeminiRefineParsesPositionalRefinements(t *testing.T) {
	var captured geminiGenerateContentRequest
	client := newTestGemini(t, "test-key", func(r *http.Request) (*http.Response, error) {
		if !strings.Contains(r.URL.Path, "/models/test-model:generateContent") {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Fatalf("key = %q", r.URL.Query().Get("key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		return jsonResponse(http.StatusOK, `{
			"candidates": [{"content": {"parts": [{"text": "[{\"description\": \"Pantone 186C drifted toward orange\", \"severity_suggestion\": \"critical\"}, {\"description\": \"\", \"severity_suggestion\": \"\"}]"}]}}]
		}`), nil
	})

	refinements, err := client.Refine(context.Background(), RefineRequest{
		MasterImage: "bWFzdGVy",
		SampleImage: "c2FtcGxl",
		Findings:    sampleFindings(),
	})
	if err != nil {
		t.Fatalf("Refine returned error: %v", err)
	}

	if len(refinements) != 2 {
		t.Fatalf("refinements = %d, want 2", len(refinements))
	}
	if refinements[0].Description != "Pantone 186C drifted toward orange" {
		t.Fatalf("Description = %q", refinements[0].Description)
	}
	if refinements[0].SeveritySuggestion != "critical" {
		t.Fatalf("SeveritySuggestion = %q", refinements[0].SeveritySuggestion)
	}
	if refinements[1].Description != "" || refinements[1].SeveritySuggestion != "" {
		t.Fatalf("refinements[1] = %+v, want empty keeps", refinements[1])
	}

	if len(captured.Contents) != 1 {
		t.Fatalf("contents = %d", len(captured.Contents))
	}
	parts := captured.Contents[0].Parts
	if len(parts) != 3 {
		t.Fatalf("parts = %d, want prompt + two images", len(parts))
	}
	if !strings.Contains(parts[0].Text, "Color shift") {
		t.Fatalf("prompt missing digest: %q", parts[0].Text)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.Data != "bWFzdGVy" {
		t.Fatalf("master inline part = %+v", parts[1])
	}
	if captured.GenerationConfig == nil || captured.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("generation config = %+v", captured.GenerationConfig)
	}
}

func TestGeminiRefineRequiresAPIKey(t *testing.T) {
	client := newTestGemini(t, "", func(r *http.Request) (*http.Response, error) {
		t.Fatal("request should not be sent")
		return nil, nil
	})

	if client.Enabled() {
		t.Fatal("Enabled() = true without key")
	}
	if _, err := client.Refine(context.Background(), RefineRequest{Findings: sampleFindings()}); err == nil {
		t.Fatal("Refine succeeded without key")
	}
}

func TestGeminiRefineSurfacesModelError(t *testing.T) {
	client := newTestGemini(t, "test-key", func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{"error": {"code": 429, "message": "quota exhausted"}}`), nil
	})

	_, err := client.Refine(context.Background(), RefineRequest{Findings: sampleFindings()})
	if err == nil {
		t.Fatal("Refine succeeded on model error")
	}
	if !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("err = %v", err)
	}
}

func TestGeminiRefineRejectsMalformedModelOutput(t *testing.T) {
	client := newTestGemini(t, "test-key", func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"candidates": [{"content": {"parts": [{"text": "sure, here are the refinements"}]}}]}`), nil
	})

	if _, err := client.Refine(context.Background(), RefineRequest{Findings: sampleFindings()}); err == nil {
		t.Fatal("Refine accepted non-JSON model output")
	}
}

func TestGeminiRefineNoFindingsIsNoop(t *testing.T) {
	client := newTestGemini(t, "test-key", func(r *http.Request) (*http.Response, error) {
		t.Fatal("request should not be sent")
		return nil, nil
	})

	refinements, err := client.Refine(context.Background(), RefineRequest{})
	if err != nil {
		t.Fatalf("Refine returned error: %v", err)
	}
	if refinements != nil {
		t.Fatalf("refinements = %+v, want nil", refinements)
	}
}

func TestGeminiRefineAcceptsFencedOutput(t *testing.T) {
	fenced := "```json\n[{\"description\": \"Logo misregistered\", \"severity_suggestion\": \"important\"}]\n```"
	body, err := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": fenced}}}},
		},
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	client := newTestGemini(t, "test-key", func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, string(body)), nil
	})

	refinements, err := client.Refine(context.Background(), RefineRequest{Findings: sampleFindings()[:1]})
	if err != nil {
		t.Fatalf("Refine returned error: %v", err)
	}
	if len(refinements) != 1 || refinements[0].Description != "Logo misregistered" {
		t.Fatalf("refinements = %+v", refinements)
	}
}
