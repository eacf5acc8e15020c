package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestHealthWithoutEngine(t *testing.T) {
	srv := newTestServer(t, newTestApp(t, &fakeRepo{t: t}))

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q", body["status"])
	}
	if _, ok := body["engine"]; ok {
		t.Error("engine field should be absent when no engine is wired")
	}
}

func TestHealthReportsEngineState(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "engine reachable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			},
			want: "ok",
		},
		{
			name: "engine down",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusServiceUnavailable)
			},
			want: "unreachable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, &fakeRepo{t: t})
			app.Engine = fakeEngine(t, tc.handler)
			srv := newTestServer(t, app)

			resp, err := http.Get(srv.URL + "/healthz")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["engine"] != tc.want {
				t.Errorf("engine = %q, want %q", body["engine"], tc.want)
			}
		})
	}
}
