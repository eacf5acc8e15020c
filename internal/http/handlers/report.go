package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"printproof/internal/domain"
	"printproof/internal/providers/engine"
)

// JobReport builds the report payload from the stored record, asks the
// engine to render it and streams the PDF back as a download.
func (a *App) JobReport(w http.ResponseWriter, r *http.Request) {
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
	if job.Status != domain.JobStatusInspected || job.Analysis == nil {
		a.error(w, http.StatusConflict, "not_inspected", "job has not been inspected yet")
		return
	}

	req := engine.ReportRequest{
		ProductName:    job.ProductName,
		ProductID:      job.ProductID,
		Description:    job.Description,
		Date:           job.Analysis.CompletedAt.Format("2006-01-02 15:04"),
		Verdict:        string(job.Analysis.Verdict),
		OverallSSIM:    job.Analysis.OverallSSIM,
		TotalFindings:  job.Analysis.TotalFindings,
		CriticalCount:  job.Analysis.CriticalCount,
		ImportantCount: job.Analysis.ImportantCount,
		MinorCount:     job.Analysis.MinorCount,
		IgnoredCount:   job.Analysis.IgnoredCount,
		Summary:        job.Analysis.Summary,
		Findings:       make([]engine.ReportFinding, 0, len(job.Findings)),
	}
	for i := range job.Findings {
		f := &job.Findings[i]
		req.Findings = append(req.Findings, engine.ReportFinding{
			Index:            i + 1,
			Type:             string(f.Type),
			Severity:         string(f.EffectiveSeverity()),
			Description:      f.Description,
			Page:             f.Page,
			PixelDiffPercent: f.PixelDiffPercent,
			ColorDeltaE:      f.ColorDeltaE,
			Comment:          f.Comment,
			MasterCrop:       f.MasterCrop,
			SampleCrop:       f.SampleCrop,
		})
	}
	req.MasterThumbnail = a.pageThumbnail(r, job.Master)
	req.SampleThumbnail = a.pageThumbnail(r, job.Sample)

	pdf, err := a.Engine.GenerateReport(r.Context(), req)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("generate report")
		a.error(w, http.StatusBadGateway, "engine_failed", "report generation failed")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=inspection-%s.pdf", jobID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// pageThumbnail loads the first rendered page as base64 for the report
// header. A missing image just leaves the thumbnail out.
func (a *App) pageThumbnail(r *http.Request, doc domain.Document) string {
	if len(doc.Pages) == 0 {
		return ""
	}
	data, err := a.Store.Read(r.Context(), doc.Pages[0])
	if err != nil {
		a.Logger.Debug().Err(err).Str("key", doc.Pages[0]).Msg("thumbnail unavailable")
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}
