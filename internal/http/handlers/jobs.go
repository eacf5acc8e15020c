package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"printproof/internal/domain"
)

var (
	errFileMissing  = errors.New("file missing")
	errFileTooLarge = errors.New("file too large")
)

// multipartMemory is the in-memory threshold for parsing uploads; bigger
// parts spill to temp files.
const multipartMemory = 32 << 20

func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	// Two documents plus form fields; anything beyond that is hostile.
	r.Body = http.MaxBytesReader(w, r.Body, 2*a.Config.MaxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "multipart form required")
		return
	}

	productName := strings.TrimSpace(r.FormValue("product_name"))
	if productName == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "product_name required")
		return
	}

	tolerance, err := formInt(r, "element_tolerance", 50)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	accuracy, err := formInt(r, "accuracy_level", 50)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if tolerance < 0 || tolerance > 100 || accuracy < 0 || accuracy > 100 {
		a.error(w, http.StatusBadRequest, "bad_request", "element_tolerance and accuracy_level must be between 0 and 100")
		return
	}

	var zones []domain.Zone
	if raw := strings.TrimSpace(r.FormValue("zones")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &zones); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "zones must be a JSON array")
			return
		}
		for _, z := range zones {
			if z.Page < 1 || z.X < 0 || z.Y < 0 || z.W <= 0 || z.H <= 0 || z.X+z.W > 1 || z.Y+z.H > 1 {
				a.error(w, http.StatusBadRequest, "bad_request", "zone coordinates must be normalized page fractions")
				return
			}
		}
	}

	spellingEnabled := false
	if raw := strings.TrimSpace(r.FormValue("spelling_enabled")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "spelling_enabled must be a boolean")
			return
		}
		spellingEnabled = v
	}
	var languages []string
	if raw := strings.TrimSpace(r.FormValue("spelling_languages")); raw != "" {
		languages, err = domain.ParseSpellingLanguages(strings.Split(raw, ","))
		if err != nil {
			a.error(w, http.StatusBadRequest, "unsupported_language", err.Error())
			return
		}
	}
	if spellingEnabled && len(languages) == 0 {
		// Engine default.
		languages = []string{"es"}
	}

	jobID := uuid.NewString()

	master, err := a.saveUpload(r, "master", jobID)
	if err != nil {
		a.uploadError(w, err)
		return
	}
	sample, err := a.saveUpload(r, "sample", jobID)
	if err != nil {
		a.uploadError(w, err)
		return
	}

	job := &domain.Job{
		ID:               jobID,
		ProductName:      productName,
		ProductID:        strings.TrimSpace(r.FormValue("product_id")),
		Description:      strings.TrimSpace(r.FormValue("description")),
		Status:           domain.JobStatusPending,
		Master:           master,
		Sample:           sample,
		Zones:            zones,
		ElementTolerance: tolerance,
		AccuracyLevel:    accuracy,
		Spelling:         domain.SpellingOptions{Enabled: spellingEnabled, Languages: languages},
	}

	if err := a.Repo.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Msg("create job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}

	a.json(w, http.StatusCreated, jobPayload(job))
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
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
	a.json(w, http.StatusOK, jobPayload(job))
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(r, "per_page", 20)
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	summaries, total, err := a.Repo.Search(r.Context(), q, perPage, (page-1)*perPage)
	if err != nil {
		a.Logger.Error().Err(err).Msg("search jobs")
		a.error(w, http.StatusInternalServerError, "internal", "failed to search jobs")
		return
	}

	items := make([]map[string]any, 0, len(summaries))
	for _, s := range summaries {
		item := map[string]any{
			"id":           s.ID,
			"product_name": s.ProductName,
			"product_id":   s.ProductID,
			"status":       s.Status,
			"created_at":   s.CreatedAt,
		}
		if s.Verdict != "" {
			item["verdict"] = s.Verdict
		}
		items = append(items, item)
	}

	a.json(w, http.StatusOK, map[string]any{
		"items":    items,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := a.Repo.Delete(r.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("delete job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete job")
		return
	}

	// The record is gone; losing orphan blobs is not worth a 500.
	if err := a.Store.RemoveAll(r.Context(), "jobs/"+jobID); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("remove job blobs")
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *App) saveUpload(r *http.Request, field, jobID string) (domain.Document, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %s file required", errFileMissing, field)
	}
	defer file.Close()

	if a.Config.MaxUploadBytes > 0 && header.Size > a.Config.MaxUploadBytes {
		return domain.Document{}, fmt.Errorf("%w: %s exceeds %d MB", errFileTooLarge, field, a.Config.MaxUploadBytes>>20)
	}

	format, err := detectFormat(header.Filename)
	if err != nil {
		return domain.Document{}, err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s upload: %w", field, err)
	}

	key := fmt.Sprintf("jobs/%s/%s/original.%s", jobID, field, format)
	if _, err := a.Store.Write(r.Context(), key, data); err != nil {
		return domain.Document{}, err
	}

	return domain.Document{
		Key:          key,
		OriginalName: header.Filename,
		Format:       format,
		SizeBytes:    header.Size,
	}, nil
}

func (a *App) uploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errFileMissing):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, errFileTooLarge):
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
	case errors.Is(err, domain.ErrUnsupportedFormat):
		a.error(w, http.StatusBadRequest, "unsupported_format", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("store upload")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
	}
}

func detectFormat(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf", nil
	case ".png":
		return "png", nil
	case ".jpg", ".jpeg":
		return "jpg", nil
	default:
		return "", fmt.Errorf("%w: want pdf, png or jpg", domain.ErrUnsupportedFormat)
	}
}

func formInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// jobPayload shapes the full job record for API responses. Slices are
// normalized so clients always see arrays.
func jobPayload(job *domain.Job) map[string]any {
	findings := job.Findings
	if findings == nil {
		findings = []domain.Finding{}
	}
	artifacts := job.Artifacts
	if artifacts == nil {
		artifacts = []domain.PageArtifact{}
	}
	zones := job.Zones
	if zones == nil {
		zones = []domain.Zone{}
	}

	payload := map[string]any{
		"id":                job.ID,
		"product_name":      job.ProductName,
		"product_id":        job.ProductID,
		"description":       job.Description,
		"status":            job.Status,
		"master":            job.Master,
		"sample":            job.Sample,
		"zones":             zones,
		"element_tolerance": job.ElementTolerance,
		"accuracy_level":    job.AccuracyLevel,
		"spelling":          job.Spelling,
		"findings":          findings,
		"artifacts":         artifacts,
		"created_at":        job.CreatedAt,
		"updated_at":        job.UpdatedAt,
	}
	if job.ErrorMessage != "" {
		payload["error_message"] = job.ErrorMessage
	}
	if job.Analysis != nil {
		payload["analysis"] = job.Analysis
	}
	return payload
}
