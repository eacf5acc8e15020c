package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"printproof/internal/domain"
)

// DownloadDocument streams the stored original upload for one side of the
// comparison. The role path segment is either "master" or "sample".
func (a *App) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	var role domain.DocumentRole
	switch chi.URLParam(r, "role") {
	case "master":
		role = domain.RoleMaster
	case "sample":
		role = domain.RoleSample
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "role must be master or sample")
		return
	}

	job, err := a.Repo.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("load job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	doc := job.Master
	if role == domain.RoleSample {
		doc = job.Sample
	}

	data, err := a.Store.Read(r.Context(), doc.Key)
	if err != nil {
		a.Logger.Error().Err(err).Str("key", doc.Key).Msg("read document blob")
		a.error(w, http.StatusNotFound, "not_found", "stored document is missing")
		return
	}

	w.Header().Set("Content-Type", mimeForFormat(doc.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.OriginalName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func mimeForFormat(format string) string {
	switch format {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
