package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"printproof/internal/domain"
)

type classifyFindingRequest struct {
	Severity *string `json:"severity"`
	Comment  *string `json:"comment"`
}

// ClassifyFinding records a reviewer's judgment on one finding: a severity,
// a comment, or both. Severity counts on the job analysis are recomputed;
// the verdict keeps the value the pipeline assigned.
func (a *App) ClassifyFinding(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	findingID := chi.URLParam(r, "findingID")

	var req classifyFindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Severity == nil && req.Comment == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "severity or comment required")
		return
	}
	if req.Severity != nil && !domain.Severity(*req.Severity).Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", "severity must be critical, important, minor, ignore or empty")
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

	idx := job.FindingByID(findingID)
	if idx < 0 {
		a.error(w, http.StatusNotFound, "not_found", "finding not found")
		return
	}

	finding := &job.Findings[idx]
	if req.Severity != nil {
		finding.Severity = domain.Severity(*req.Severity)
		if finding.Severity == domain.SeverityNone {
			finding.Status = domain.FindingOpen
		} else {
			finding.Status = domain.FindingClassified
		}
		finding.RefreshColor()
	}
	if req.Comment != nil {
		finding.Comment = *req.Comment
	}

	if job.Analysis != nil {
		job.Analysis.ApplyCounts(domain.CountSeverities(job.Findings), len(job.Findings))
	}

	if err := a.Repo.UpdateResults(r.Context(), jobID, job.Findings, nil, job.Analysis); err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("persist classification")
		a.error(w, http.StatusInternalServerError, "internal", "failed to save classification")
		return
	}

	payload := map[string]any{"finding": finding}
	if job.Analysis != nil {
		payload["analysis"] = job.Analysis
	}
	a.json(w, http.StatusOK, payload)
}
