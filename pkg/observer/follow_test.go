package observer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func sseHandler(t *testing.T, fn func(w io.Writer, flush func())) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		fl, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fn(w, fl.Flush)
	}
}

func TestFollowDeliversEventsUntilDone(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.URL.Path; got != "/api/jobs/job-1/events" {
			t.Errorf("path = %q, want /api/jobs/job-1/events", got)
		}
		sseHandler(t, func(w io.Writer, flush func()) {
			io.WriteString(w, ": keep-alive\n\n")
			io.WriteString(w, "event: progress\ndata: {\"stage\":1,\"message\":\"converting master\",\"percent\":5}\n\n")
			flush()
			io.WriteString(w, "event: progress\ndata: {\"stage\":4,\"message\":\"comparing page 1/2\",\"percent\":42}\n\n")
			flush()
			io.WriteString(w, "event: done\ndata: {\"percent\":100,\"status\":\"inspected\"}\n\n")
			flush()
		})(w, r)
	}))
	defer srv.Close()

	var events []Event
	res, err := New(srv.URL).Follow(context.Background(), "job-1", FollowOptions{
		OnEvent: func(ev Event) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if res.Status != StatusInspected {
		t.Fatalf("result status = %q, want %q", res.Status, StatusInspected)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Kind != EventProgress || events[0].Stage != 1 || events[0].Percent != 5 {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].Message != "comparing page 1/2" {
		t.Fatalf("second event message = %q", events[1].Message)
	}
	if events[2].Kind != EventDone || !events[2].Terminal() {
		t.Fatalf("last event = %+v, want terminal done", events[2])
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("stream opened %d times, want 1: terminal must end the lifecycle", got)
	}
}

func TestFollowReconnectsAfterDrop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		sseHandler(t, func(w io.Writer, flush func()) {
			if n == 1 {
				// Deliver one event, then drop the connection without a
				// terminal.
				io.WriteString(w, "event: progress\ndata: {\"stage\":2,\"percent\":15}\n\n")
				flush()
				return
			}
			io.WriteString(w, "event: done\ndata: {\"percent\":100,\"status\":\"inspected\"}\n\n")
			flush()
		})(w, r)
	}))
	defer srv.Close()

	var states []State
	var events []Event
	res, err := New(srv.URL).Follow(context.Background(), "job-2", FollowOptions{
		ReconnectBase: time.Millisecond,
		OnEvent:       func(ev Event) { events = append(events, ev) },
		OnState:       func(s State, _ int) { states = append(states, s) },
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if res.Status != StatusInspected {
		t.Fatalf("result status = %q, want %q", res.Status, StatusInspected)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("stream opened %d times, want 2", got)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if !containsState(states, StateReconnecting) {
		t.Fatalf("states %v missing reconnecting", states)
	}
	if containsState(states, StatePolling) {
		t.Fatalf("states %v include polling after a single drop", states)
	}
}

func TestFollowFallsBackToPolling(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs/job-3/events", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "stream broken", http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/jobs/job-3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if polls.Add(1) == 1 {
			fmt.Fprint(w, `{"id":"job-3","status":"processing"}`)
			return
		}
		fmt.Fprint(w, `{"id":"job-3","status":"inspected","analysis":{"verdict":"pass"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var states []State
	res, err := New(srv.URL).Follow(context.Background(), "job-3", FollowOptions{
		ReconnectBase: time.Millisecond,
		MaxReconnects: 1,
		PollInterval:  time.Millisecond,
		OnState:       func(s State, _ int) { states = append(states, s) },
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if !containsState(states, StatePolling) {
		t.Fatalf("states %v missing polling", states)
	}
	if res.Status != StatusInspected {
		t.Fatalf("result status = %q, want %q", res.Status, StatusInspected)
	}
	if got := polls.Load(); got < 2 {
		t.Fatalf("polled %d times, want at least 2", got)
	}
}

func TestFollowPollReportsStoredFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs/job-4/events", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "stream broken", http.StatusBadGateway)
	})
	mux.HandleFunc("/api/jobs/job-4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"job-4","status":"error","error_message":"comparison engine unavailable"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var states []State
	res, err := New(srv.URL).Follow(context.Background(), "job-4", FollowOptions{
		ReconnectBase: time.Millisecond,
		MaxReconnects: 2,
		PollInterval:  time.Millisecond,
		OnState:       func(s State, _ int) { states = append(states, s) },
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if res.Status != StatusError {
		t.Fatalf("result status = %q, want %q", res.Status, StatusError)
	}
	if res.ErrorMessage != "comparison engine unavailable" {
		t.Fatalf("error message = %q", res.ErrorMessage)
	}
	if !containsState(states, StatePolling) {
		t.Fatalf("states %v missing polling", states)
	}
	if states[len(states)-1] != StateTerminal {
		t.Fatalf("final state = %v, want terminal", states[len(states)-1])
	}
}

func TestFollowResumesStreamAfterPolling(t *testing.T) {
	var streamCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs/job-5/events", func(w http.ResponseWriter, r *http.Request) {
		n := streamCalls.Add(1)
		if n <= 2 {
			http.Error(w, "stream broken", http.StatusInternalServerError)
			return
		}
		sseHandler(t, func(w io.Writer, flush func()) {
			if n == 3 {
				// Recovered long enough to deliver an event, then dropped.
				io.WriteString(w, "event: progress\ndata: {\"stage\":4,\"percent\":60}\n\n")
				flush()
				return
			}
			io.WriteString(w, "event: done\ndata: {\"percent\":100,\"status\":\"inspected\"}\n\n")
			flush()
		})(w, r)
	})
	mux.HandleFunc("/api/jobs/job-5", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"job-5","status":"processing"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var states []State
	var events []Event
	res, err := New(srv.URL).Follow(context.Background(), "job-5", FollowOptions{
		ReconnectBase: time.Millisecond,
		MaxReconnects: 1,
		PollInterval:  time.Millisecond,
		OnEvent:       func(ev Event) { events = append(events, ev) },
		OnState:       func(s State, _ int) { states = append(states, s) },
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if res.Status != StatusInspected {
		t.Fatalf("result status = %q, want %q", res.Status, StatusInspected)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	// A stream that delivered events before dropping puts the follower back
	// on the reconnect ladder instead of staying in poll mode.
	sawPolling := false
	backOnLadder := false
	for _, s := range states {
		if s == StatePolling {
			sawPolling = true
		}
		if sawPolling && s == StateReconnecting {
			backOnLadder = true
		}
	}
	if !sawPolling || !backOnLadder {
		t.Fatalf("states %v: want polling followed by reconnecting", states)
	}
}

func TestFollowStopsOnMissingJob(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"not_found","message":"job not found"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Follow(context.Background(), "gone", FollowOptions{
		ReconnectBase: time.Millisecond,
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 APIError", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("made %d requests, want 1: a missing job is not retried", got)
	}
}

func TestFollowStopsOnContextCancel(t *testing.T) {
	// The stream delivers one event and then stays open until the client
	// goes away.
	blocking := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "event: progress\ndata: {\"stage\":1,\"percent\":5}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer blocking.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := New(blocking.URL).Follow(ctx, "job-6", FollowOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestReconnectDelay(t *testing.T) {
	opts := FollowOptions{}.withDefaults()
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := reconnectDelay(opts, tc.failures); got != tc.want {
			t.Errorf("reconnectDelay(%d) = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

func containsState(states []State, want State) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}
