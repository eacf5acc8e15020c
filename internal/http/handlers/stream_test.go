package handlers_test

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"printproof/internal/domain"
)

// readSSE collects "event:" and "data:" lines until the server closes the
// stream or the deadline passes.
func readSSE(t *testing.T, body io.Reader) []string {
	t.Helper()
	var lines []string
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") || strings.HasPrefix(line, "data:") {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestStreamReplaysStoredOutcome(t *testing.T) {
	repo := &fakeRepo{
		t: t,
		getByID: func(ctx context.Context, id string) (*domain.Job, error) {
			return &domain.Job{ID: id, Status: domain.JobStatusInspected}, nil
		},
	}
	srv := newTestServer(t, newTestApp(t, repo))

	resp, err := http.Get(srv.URL + "/api/jobs/j1/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	lines := readSSE(t, resp.Body)
	if len(lines) != 2 {
		t.Fatalf("lines = %v, want one event", lines)
	}
	if lines[0] != "event: done" {
		t.Errorf("event line = %q", lines[0])
	}
	if !strings.Contains(lines[1], `"status":"inspected"`) || !strings.Contains(lines[1], `"percent":100`) {
		t.Errorf("data line = %q", lines[1])
	}
}

func TestStreamReplaysStoredFailure(t *testing.T) {
	repo := &fakeRepo{
		t: t,
		getByID: func(ctx context.Context, id string) (*domain.Job, error) {
			return &domain.Job{ID: id, Status: domain.JobStatusError, ErrorMessage: "converter timed out"}, nil
		},
	}
	srv := newTestServer(t, newTestApp(t, repo))

	resp, err := http.Get(srv.URL + "/api/jobs/j1/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	lines := readSSE(t, resp.Body)
	if len(lines) != 2 || lines[0] != "event: error" {
		t.Fatalf("lines = %v, want one error event", lines)
	}
	if !strings.Contains(lines[1], "converter timed out") {
		t.Errorf("data line = %q", lines[1])
	}
}

func TestStreamDeliversLiveEvents(t *testing.T) {
	repo := &fakeRepo{
		t: t,
		getByID: func(ctx context.Context, id string) (*domain.Job, error) {
			return &domain.Job{ID: id, Status: domain.JobStatusProcessing}, nil
		},
	}
	app := newTestApp(t, repo)
	srv := newTestServer(t, app)

	resp, err := http.Get(srv.URL + "/api/jobs/j1/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	// Headers are flushed after the handler subscribes, so publishing now
	// cannot race the subscription.
	app.Hub.Publish("j1", domain.NewProgress(domain.StageComparePages, "comparing page 1/2", 40))
	app.Hub.Publish("j1", domain.NewDone())

	done := make(chan []string, 1)
	go func() { done <- readSSE(t, resp.Body) }()

	var lines []string
	select {
	case lines = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after the terminal event")
	}

	if len(lines) != 4 {
		t.Fatalf("lines = %v, want two events", lines)
	}
	if lines[0] != "event: progress" || !strings.Contains(lines[1], "comparing page 1/2") {
		t.Errorf("first event = %q %q", lines[0], lines[1])
	}
	if lines[2] != "event: done" {
		t.Errorf("second event = %q", lines[2])
	}
}

func TestStreamUnknownJob(t *testing.T) {
	repo := &fakeRepo{
		t: t,
		getByID: func(ctx context.Context, id string) (*domain.Job, error) {
			return nil, domain.ErrNotFound
		},
	}
	srv := newTestServer(t, newTestApp(t, repo))

	resp, err := http.Get(srv.URL + "/api/jobs/missing/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
