package convert

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

	"printproof/internal/infra"
)

// DefaultDPI is the rasterization density used when a request does not set one.
const DefaultDPI = 150

// Options controls how the conversion client is configured.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the page-conversion service, which rasterizes an uploaded
// document from shared storage into per-page images and writes them back to
// the same storage.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// Request identifies the stored document to rasterize.
type Request struct {
	Key    string `json:"key"`
	Format string `json:"format"`
	DPI    int    `json:"dpi"`
}

// Result lists the rendered page image keys in page order.
type Result struct {
	Pages     []string `json:"pages"`
	PageCount int      `json:"page_count"`
}

type converterErrorResponse struct {
	Detail string `json:"detail"`
}

// NewClient constructs a conversion client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8090"
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

// Convert rasterizes the stored document and returns the rendered page keys.
func (c *Client) Convert(ctx context.Context, req Request) (*Result, error) {
	if req.Key == "" {
		return nil, fmt.Errorf("convert: key is required")
	}
	if req.DPI <= 0 {
		req.DPI = DefaultDPI
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal convert request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create convert request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoke converter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr converterErrorResponse
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Detail != "" {
			return nil, fmt.Errorf("converter status %d: %s", resp.StatusCode, apiErr.Detail)
		}
		if len(data) > 0 {
			return nil, fmt.Errorf("converter status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return nil, fmt.Errorf("converter status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode convert response: %w", err)
	}
	if result.PageCount <= 0 || len(result.Pages) == 0 {
		return nil, fmt.Errorf("converter returned no pages for %q", req.Key)
	}

	c.logger.Debug().
		Str("key", req.Key).
		Int("pages", result.PageCount).
		Msg("convert: document rasterized")

	return &result, nil
}
