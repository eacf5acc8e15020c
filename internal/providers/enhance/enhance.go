// Package enhance asks a generative model to refine engine findings:
// sharpen the descriptions and second-guess the suggested severities. The
// refiner is strictly optional; callers treat every failure as "keep the
// engine's wording".
package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"printproof/internal/infra"
)

// Supported refinement backends.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// FindingDigest is the compact finding view sent to the model, in finding
// order.
type FindingDigest struct {
	Index              int     `json:"index"`
	Page               int     `json:"page"`
	Type               string  `json:"type"`
	SeveritySuggestion string  `json:"severity_suggestion"`
	Description        string  `json:"description"`
	PixelDiffPercent   float64 `json:"pixel_diff_percent"`
	ColorDeltaE        float64 `json:"color_delta_e"`
}

// RefineRequest carries the first compared page pair plus the ordered digest.
type RefineRequest struct {
	MasterImage string
	SampleImage string
	Findings    []FindingDigest
}

// Refinement is the model's suggestion for the finding at the same position.
// Empty fields mean the engine's wording stands.
type Refinement struct {
	Description        string `json:"description"`
	SeveritySuggestion string `json:"severity_suggestion"`
}

// Refiner is the provider-independent refinement contract.
type Refiner interface {
	Enabled() bool
	Name() string
	Refine(ctx context.Context, req RefineRequest) ([]Refinement, error)
}

// Disabled is the refiner used when no backend has credentials. It reports
// itself disabled and refuses to refine.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }
func (Disabled) Name() string  { return "disabled" }
func (Disabled) Refine(context.Context, RefineRequest) ([]Refinement, error) {
	return nil, errors.New("enhance: refiner disabled")
}

// Config selects and configures the refinement backend.
type Config struct {
	Provider string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAIOrg     string

	HTTPClient *http.Client
	Logger     *infra.Logger
}

// New builds the refiner for the configured provider. A known provider
// without an API key yields the disabled refiner so the pipeline skips the
// enhance stage instead of failing jobs.
func New(cfg Config) (Refiner, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		provider = ProviderGemini
	}
	switch provider {
	case ProviderGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return Disabled{}, nil
		}
		return NewGemini(GeminiOptions{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			BaseURL:    cfg.GeminiBaseURL,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
		})
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return Disabled{}, nil
		}
		return NewOpenAI(OpenAIOptions{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   cfg.HTTPClient,
			Logger:       cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("enhance: unsupported provider %q", cfg.Provider)
	}
}

const severityInstruction = `Allowed severities: critical, important, minor, ignore. Use an empty string to keep the original value.`

// buildRefinePrompt assembles the instruction block both backends share.
// The response shape sentence differs per backend because their structured
// output modes constrain what the model may return.
func buildRefinePrompt(digest []byte, responseShape string) string {
	var b strings.Builder
	b.WriteString("You are a print quality control assistant. The two attached images are the master artwork and the printed sample for the first compared page.\n")
	b.WriteString("Below is a JSON array of differences detected between them. For each entry, improve the description (short, concrete, reviewer-facing) and, when the evidence supports it, adjust the suggested severity.\n")
	b.WriteString(responseShape)
	b.WriteString(" ")
	b.WriteString(severityInstruction)
	b.WriteString("\n\nFindings:\n")
	b.Write(digest)
	return b.String()
}

// parseRefinements decodes model output into positional refinements. It
// tolerates code fences and prose around the payload, and accepts either a
// bare array or an object wrapping it under "refinements".
func parseRefinements(raw string) ([]Refinement, error) {
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return nil, errors.New("empty model output")
	}
	if strings.HasPrefix(cleaned, "{") {
		var wrapped struct {
			Refinements []Refinement `json:"refinements"`
		}
		if err := json.Unmarshal([]byte(cleaned), &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Refinements, nil
	}
	var out []Refinement
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
