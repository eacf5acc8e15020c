package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"printproof/internal/infra"
)

// GeminiOptions controls how the Gemini refiner is configured.
type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Gemini refines findings through the generateContent API with both page
// images attached inline.
type Gemini struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

const geminiResponseShape = `Respond with a JSON array of the same length and order, each element an object with optional "description" and "severity_suggestion" fields.`

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewGemini constructs a Gemini refiner with sane defaults. Callers may
// provide a nil HTTP client; a reusable one with sensible timeouts will be
// created.
func NewGemini(opts GeminiOptions) (*Gemini, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Gemini{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Enabled reports whether the refiner has credentials to call the model.
func (g *Gemini) Enabled() bool {
	return g != nil && g.apiKey != ""
}

// Name identifies the backend.
func (g *Gemini) Name() string {
	return ProviderGemini
}

// Model returns the configured model identifier.
func (g *Gemini) Model() string {
	return g.model
}

// Refine sends the finding digest plus both first-page images to the model
// and returns positional refinements. The returned slice may be shorter than
// the input; positions beyond it keep the engine's wording.
func (g *Gemini) Refine(ctx context.Context, req RefineRequest) ([]Refinement, error) {
	if !g.Enabled() {
		return nil, fmt.Errorf("enhance: no API key configured")
	}
	if len(req.Findings) == 0 {
		return nil, nil
	}

	digest, err := json.Marshal(req.Findings)
	if err != nil {
		return nil, fmt.Errorf("enhance: marshal digest: %w", err)
	}

	parts := []geminiPart{{Text: buildRefinePrompt(digest, geminiResponseShape)}}
	if req.MasterImage != "" {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: "image/png", Data: req.MasterImage}})
	}
	if req.SampleImage != "" {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: "image/png", Data: req.SampleImage}})
	}

	payload := geminiGenerateContentRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{ResponseMimeType: "application/json"},
	}

	var response geminiGenerateContentResponse
	if err := g.invoke(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(g.model)), payload, &response); err != nil {
		return nil, err
	}

	text := firstText(response)
	if text == "" {
		return nil, fmt.Errorf("enhance: empty model response")
	}

	refinements, err := parseRefinements(text)
	if err != nil {
		return nil, fmt.Errorf("enhance: parse refinements: %w", err)
	}

	g.logger.Debug().
		Str("model", g.model).
		Int("findings", len(req.Findings)).
		Int("refinements", len(refinements)).
		Msg("enhance: findings refined")

	return refinements, nil
}

func (g *Gemini) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(g.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if g.apiKey != "" {
		q.Set("key", g.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke enhancer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("enhancer status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("enhancer status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("enhancer status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode enhancer response: %w", err)
	}
	return nil
}

func firstText(response geminiGenerateContentResponse) string {
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

var _ Refiner = (*Gemini)(nil)
