package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"printproof/internal/infra"
)

// OpenAIOptions controls how the OpenAI refiner is configured.
type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// OpenAI refines findings through the chat completions API with both page
// images attached as data URLs.
type OpenAI struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	httpClient   *http.Client
	logger       *infra.Logger
}

const openAIDefaultTimeout = 60 * time.Second

const defaultOpenAIModel = "gpt-4o-mini"

// json_object mode requires an object at the top level, so the OpenAI
// backend asks for the array wrapped under "refinements".
const openAIResponseShape = `Respond with a JSON object {"refinements": [...]} where the array has the same length and order as the input, each element an object with optional "description" and "severity_suggestion" fields.`

// Only vision-capable models make sense here; anything unknown falls back to
// the default instead of failing the request at the API.
var openAIModelCanonical = map[string]string{
	"gpt-4o":       "gpt-4o",
	"gpt-4o-mini":  "gpt-4o-mini",
	"gpt-4.1":      "gpt-4.1",
	"gpt-4.1-mini": "gpt-4.1-mini",
}

var openAIModelAliases = map[string]string{
	"gpt4o":                  "gpt-4o",
	"gpt-4o-2024-08-06":      "gpt-4o",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt41":                  "gpt-4.1",
	"gpt41-mini":             "gpt-4.1-mini",
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message,omitempty"`
		Type    string `json:"type,omitempty"`
	} `json:"error"`
}

// NewOpenAI constructs an OpenAI refiner with sane defaults. Unknown model
// names are normalized to a vision-capable default and logged.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	requested := strings.TrimSpace(opts.Model)
	model, reason := normalizeOpenAIModel(requested)
	if reason != "" {
		logger.Warn().
			Str("requested", coalesce(requested, defaultOpenAIModel)).
			Str("resolved", model).
			Str("reason", reason).
			Msg("enhance: openai model normalized")
	}

	return &OpenAI{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		httpClient:   client,
		logger:       logger,
	}, nil
}

// Enabled reports whether the refiner has credentials to call the model.
func (o *OpenAI) Enabled() bool {
	return o != nil && o.apiKey != ""
}

// Name identifies the backend.
func (o *OpenAI) Name() string {
	return ProviderOpenAI
}

// Model returns the resolved model identifier.
func (o *OpenAI) Model() string {
	return o.model
}

// Refine sends the finding digest plus both first-page images to the model
// and returns positional refinements.
func (o *OpenAI) Refine(ctx context.Context, req RefineRequest) ([]Refinement, error) {
	if !o.Enabled() {
		return nil, fmt.Errorf("enhance: no API key configured")
	}
	if len(req.Findings) == 0 {
		return nil, nil
	}

	digest, err := json.Marshal(req.Findings)
	if err != nil {
		return nil, fmt.Errorf("enhance: marshal digest: %w", err)
	}

	parts := []openAIContentPart{{Type: "text", Text: buildRefinePrompt(digest, openAIResponseShape)}}
	if req.MasterImage != "" {
		parts = append(parts, openAIContentPart{Type: "image_url", ImageURL: &openAIImageURL{URL: "data:image/png;base64," + req.MasterImage}})
	}
	if req.SampleImage != "" {
		parts = append(parts, openAIContentPart{Type: "image_url", ImageURL: &openAIImageURL{URL: "data:image/png;base64," + req.SampleImage}})
	}

	payload := openAIChatRequest{
		Model:          o.model,
		Temperature:    0.2,
		ResponseFormat: &openAIFormat{Type: "json_object"},
		Messages: []openAIMessage{
			{Role: "system", Content: "You are a print quality control assistant that only responds with valid JSON."},
			{Role: "user", Content: parts},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("enhance: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, fmt.Errorf("enhance: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoke enhancer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr openAIErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("enhancer status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("enhancer status %d", resp.StatusCode)
	}

	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode enhancer response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("enhance: empty model response")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.New("enhance: empty model response")
	}

	refinements, err := parseRefinements(text)
	if err != nil {
		return nil, fmt.Errorf("enhance: parse refinements: %w", err)
	}

	o.logger.Debug().
		Str("model", o.model).
		Int("findings", len(req.Findings)).
		Int("refinements", len(refinements)).
		Msg("enhance: findings refined")

	return refinements, nil
}

var _ Refiner = (*OpenAI)(nil)

// normalizeOpenAIModel resolves the requested model to a canonical name and
// reports why it changed, if it did.
func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultOpenAIModel, "defaulted"
}
