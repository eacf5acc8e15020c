package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"printproof/internal/domain"
)

// StreamJob serves the live progress feed for one job as server-sent events.
// Subscribing happens before the status check so an event published in
// between is never lost; a job that is already terminal gets its stored
// outcome replayed as a single event.
func (a *App) StreamJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	sub, cancel := a.Hub.Subscribe(jobID)
	defer cancel()

	job, err := a.Repo.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("load job for stream")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if ev, terminal := domain.TerminalEventFor(job.Status, job.ErrorMessage); terminal {
		_ = writeEvent(w, ev)
		flusher.Flush()
		return
	}

	keepalive := a.Config.KeepaliveEvery
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-sub.C:
			if !open {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, ev domain.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
