package handlers

import (
	"net/http"

	"printproof/internal/sqlinline"
)

func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	row := a.SQL.QueryRow(r.Context(), sqlinline.QJobStatsSummary)
	var (
		total, pending, processing, inspected, failed int64
		pass, review, fail, last24                    int64
		avgSSIM                                       *float64
	)
	if err := row.Scan(&total, &pending, &processing, &inspected, &failed, &pass, &review, &fail, &avgSSIM, &last24); err != nil {
		a.Logger.Error().Err(err).Msg("load job stats")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}

	payload := map[string]any{
		"total_jobs":      total,
		"pending_jobs":    pending,
		"processing_jobs": processing,
		"inspected_jobs":  inspected,
		"failed_jobs":     failed,
		"verdict_pass":    pass,
		"verdict_review":  review,
		"verdict_fail":    fail,
		"jobs_last_24h":   last24,
	}
	// No inspected jobs yet means no meaningful average.
	if avgSSIM != nil {
		payload["avg_overall_ssim"] = *avgSSIM
	}
	a.json(w, http.StatusOK, payload)
}
