// Package observer follows print inspection jobs from outside the service.
// It consumes the live progress stream, survives dropped connections with
// backoff, and falls back to polling the job record when the stream stays
// down.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Job statuses as exposed by the API.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusInspected  = "inspected"
	StatusError      = "error"
)

// Client is a minimal HTTP API client for following jobs.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds plain fetches. The event stream is long-lived and is
	// bounded by the caller's context instead.
	Timeout time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Job is the subset of the job record the observer needs.
type Job struct {
	ID           string    `json:"id"`
	ProductName  string    `json:"product_name"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message"`
	Analysis     *Analysis `json:"analysis"`
}

// Analysis carries the summary attached to finished jobs.
type Analysis struct {
	Summary       string  `json:"summary"`
	Verdict       string  `json:"verdict"`
	OverallSSIM   float64 `json:"overall_ssim"`
	TotalFindings int     `json:"total_findings"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Job fetches the current job record.
func (c *Client) Job(ctx context.Context, jobID string) (Job, error) {
	var out Job
	err := c.get(ctx, "api/jobs/"+url.PathEscape(jobID), &out)
	return out, err
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/"+strings.TrimLeft(endpoint, "/"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
