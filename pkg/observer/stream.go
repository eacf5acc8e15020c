package observer

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Event kinds carried on a job's progress stream.
const (
	EventProgress = "progress"
	EventDone     = "done"
	EventError    = "error"
)

// Event is one entry from a job's progress stream.
type Event struct {
	Kind    string `json:"-"`
	Stage   int    `json:"stage"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Status  string `json:"status"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// Result is the terminal outcome of a followed job.
type Result struct {
	Status       string
	ErrorMessage string
}

// stream opens the live event feed and invokes onEvent for every decoded
// event until the connection drops or a terminal event arrives. It returns
// the terminal result when one was seen, and whether any event arrived on
// this connection at all.
func (c *Client) stream(ctx context.Context, jobID string, onEvent func(Event)) (*Result, bool, error) {
	endpoint := c.base() + "/api/jobs/" + url.PathEscape(jobID) + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, false, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var (
		received bool
		name     string
		data     []string
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Blank line flushes the pending event.
			if name == "" && len(data) == 0 {
				continue
			}
			ev, ok := decodeEvent(name, strings.Join(data, "\n"))
			name, data = "", nil
			if !ok {
				continue
			}
			received = true
			onEvent(ev)
			if ev.Terminal() {
				return resultFrom(ev), true, nil
			}
		case strings.HasPrefix(line, ":"):
			// Keep-alive comment.
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return nil, received, scanner.Err()
}

func decodeEvent(name, data string) (Event, bool) {
	if name == "" {
		return Event{}, false
	}
	ev := Event{Kind: name}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return Event{}, false
		}
	}
	return ev, true
}

func resultFrom(ev Event) *Result {
	if ev.Kind == EventError {
		return &Result{Status: StatusError, ErrorMessage: ev.Message}
	}
	return &Result{Status: StatusInspected}
}
