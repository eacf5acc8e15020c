package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"printproof/internal/domain"
)

// StartJob kicks off the inspection pipeline. Repeated calls are safe: the
// response reports whether this request started the run, joined one already
// in flight, or found the job already inspected.
func (a *App) StartJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	outcome, err := a.Orchestrator.Start(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("start job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start job")
		return
	}

	a.json(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": outcome,
	})
}
