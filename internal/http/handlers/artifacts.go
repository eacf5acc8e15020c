package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"printproof/internal/domain"
	"printproof/pkg/zip"
)

// JobArtifacts bundles the diff and heatmap overlays of an inspected job
// into a zip download.
func (a *App) JobArtifacts(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

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
	if job.Status != domain.JobStatusInspected {
		a.error(w, http.StatusConflict, "not_inspected", "job has not been inspected yet")
		return
	}

	var assets []zip.Asset
	for _, artifact := range job.Artifacts {
		if data, err := base64.StdEncoding.DecodeString(artifact.DiffImage); err == nil && len(data) > 0 {
			assets = append(assets, zip.Asset{
				Filename: fmt.Sprintf("page_%d_diff.png", artifact.Page),
				Data:     data,
			})
		}
		if data, err := base64.StdEncoding.DecodeString(artifact.Heatmap); err == nil && len(data) > 0 {
			assets = append(assets, zip.Asset{
				Filename: fmt.Sprintf("page_%d_heatmap.png", artifact.Page),
				Data:     data,
			})
		}
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "job has no stored artifacts")
		return
	}

	archive, err := zip.Archive(assets)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("archive artifacts")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s-artifacts.zip", jobID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
