package handlers

import (
	"context"
	"net/http"
	"time"
)

// Health reports liveness. The engine field is a best-effort reachability
// probe and never fails the check; the service is alive even when the
// comparison engine is down.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}

	if a.Engine != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Engine.Health(ctx); err != nil {
			body["engine"] = "unreachable"
		} else {
			body["engine"] = "ok"
		}
	}

	a.json(w, http.StatusOK, body)
}
