package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"printproof/internal/domain"
	"printproof/internal/infra"
)

// Options controls how the comparison engine client is configured.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
	Timeout    time.Duration
}

// Client is a thin facade over the external computer-vision comparison
// engine. It speaks the engine's JSON wire format and leaves mapping to
// domain types to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// CompareRequest is the payload for one page comparison. Images travel as
// base64-encoded bytes; zones are normalized to the page dimensions.
type CompareRequest struct {
	MasterImage      string        `json:"master_image"`
	SampleImage      string        `json:"sample_image"`
	Tolerance        int           `json:"tolerance"`
	Accuracy         int           `json:"accuracy"`
	Zones            []CompareZone `json:"zones"`
	Page             int           `json:"page"`
	CheckSpelling    bool          `json:"check_spelling"`
	SpellingLanguage string        `json:"spelling_language,omitempty"`
}

// CompareZone is a normalized rectangle restricting the comparison.
type CompareZone struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Difference is one detected deviation as reported by the engine. Spelling
// issues arrive in the same list with type "spelling".
type Difference struct {
	BBox               CompareZone `json:"bbox"`
	Type               string      `json:"type"`
	SeveritySuggestion string      `json:"severity_suggestion"`
	PixelDiffPercent   float64     `json:"pixel_diff_percent"`
	ColorDeltaE        float64     `json:"color_delta_e"`
	Description        string      `json:"description"`
	MasterCrop         string      `json:"master_crop"`
	SampleCrop         string      `json:"sample_crop"`
}

// CompareResponse is the engine's result for one page.
type CompareResponse struct {
	Differences   []Difference          `json:"differences"`
	OverallSSIM   float64               `json:"overall_ssim"`
	DiffImage     string                `json:"diff_image"`
	Heatmap       string                `json:"heatmap"`
	MasterPalette []domain.PaletteColor `json:"master_palette"`
	SamplePalette []domain.PaletteColor `json:"sample_palette"`
	Page          int                   `json:"page"`
}

// ReportFinding is one row of the PDF report payload.
type ReportFinding struct {
	Index            int     `json:"index"`
	Type             string  `json:"type"`
	Severity         string  `json:"severity"`
	Description      string  `json:"description"`
	Page             int     `json:"page"`
	PixelDiffPercent float64 `json:"pixel_diff_percent"`
	ColorDeltaE      float64 `json:"color_delta_e"`
	Comment          string  `json:"comment"`
	MasterCrop       string  `json:"master_crop"`
	SampleCrop       string  `json:"sample_crop"`
}

// ReportRequest asks the engine to render an inspection report PDF.
type ReportRequest struct {
	ProductName     string          `json:"product_name"`
	ProductID       string          `json:"product_id"`
	Description     string          `json:"description"`
	Date            string          `json:"date"`
	Verdict         string          `json:"verdict"`
	OverallSSIM     float64         `json:"overall_ssim"`
	TotalFindings   int             `json:"total_findings"`
	CriticalCount   int             `json:"critical_count"`
	ImportantCount  int             `json:"important_count"`
	MinorCount      int             `json:"minor_count"`
	IgnoredCount    int             `json:"ignored_count"`
	Summary         string          `json:"summary"`
	Findings        []ReportFinding `json:"findings"`
	MasterThumbnail string          `json:"master_thumbnail,omitempty"`
	SampleThumbnail string          `json:"sample_thumbnail,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// engineErrorResponse is the engine's error envelope. Detail is a string for
// application errors and a structured list for validation errors.
type engineErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// NewClient constructs an engine client with sane defaults. Callers may pass
// a nil HTTP client; one with the configured timeout is created. Comparisons
// are slow on large pages, so the default timeout is generous.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Health probes the engine. Any transport failure or non-ok status maps to
// domain.ErrEngineUnavailable so the pipeline can fail the stage uniformly.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", domain.ErrEngineUnavailable, resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("%w: decode health: %v", domain.ErrEngineUnavailable, err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("%w: reported status %q", domain.ErrEngineUnavailable, health.Status)
	}
	return nil
}

// Compare submits one page pair for inspection.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (*CompareResponse, error) {
	if req.Zones == nil {
		req.Zones = []CompareZone{}
	}

	var resp CompareResponse
	if err := c.invoke(ctx, "/compare", req, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("page", req.Page).
		Int("differences", len(resp.Differences)).
		Float64("ssim", resp.OverallSSIM).
		Msg("engine: page compared")

	return &resp, nil
}

// GenerateReport renders the inspection report and returns the PDF bytes.
func (c *Client) GenerateReport(ctx context.Context, req ReportRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal report request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-report", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create report request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoke engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeError(resp)
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return pdf, nil
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	var apiErr engineErrorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && len(apiErr.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(apiErr.Detail, &detail); err == nil && detail != "" {
			return fmt.Errorf("engine status %d: %s", resp.StatusCode, detail)
		}
		return fmt.Errorf("engine status %d: %s", resp.StatusCode, strings.TrimSpace(string(apiErr.Detail)))
	}
	if len(data) > 0 {
		return fmt.Errorf("engine status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return fmt.Errorf("engine status %d", resp.StatusCode)
}
