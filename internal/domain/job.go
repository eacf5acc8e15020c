package domain

import "time"

// JobStatus enumerates inspection job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusInspected  JobStatus = "inspected"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether the status is an end state of the pipeline.
// Errored jobs are terminal for streaming purposes but remain restartable.
func (s JobStatus) Terminal() bool {
	return s == JobStatusInspected || s == JobStatusError
}

// Zone restricts the comparison to a rectangular region of one page.
// Coordinates are fractions of the page dimensions in 0..1.
type Zone struct {
	Page int     `json:"page"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

// SpellingOptions configures the engine's OCR spelling pass.
type SpellingOptions struct {
	Enabled   bool     `json:"enabled"`
	Languages []string `json:"languages,omitempty"`
}

// Document describes one side of a comparison: the master artwork or the
// printed sample. Pages holds storage keys of the rendered page images
// produced by the conversion service, in page order.
type Document struct {
	Key          string   `json:"key"`
	OriginalName string   `json:"original_name"`
	Format       string   `json:"format"`
	SizeBytes    int64    `json:"size_bytes"`
	PageCount    int      `json:"page_count"`
	Pages        []string `json:"pages,omitempty"`
}

// PageArtifact carries the base64-encoded overlay images the engine renders
// for one compared page.
type PageArtifact struct {
	Page      int    `json:"page"`
	DiffImage string `json:"diff_image,omitempty"`
	Heatmap   string `json:"heatmap,omitempty"`
}

// Job is one master/sample comparison request together with everything the
// pipeline produced for it.
type Job struct {
	ID               string
	ProductName      string
	ProductID        string
	Description      string
	Status           JobStatus
	ErrorMessage     string
	Master           Document
	Sample           Document
	Zones            []Zone
	ElementTolerance int
	AccuracyLevel    int
	Spelling         SpellingOptions
	Findings         []Finding
	Artifacts        []PageArtifact
	Analysis         *Analysis
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ZonesForPage returns the zones scoped to the given 1-based page.
func (j *Job) ZonesForPage(page int) []Zone {
	var out []Zone
	for _, z := range j.Zones {
		if z.Page == page {
			out = append(out, z)
		}
	}
	return out
}

// FindingByID looks up a finding on the job. It returns the index so callers
// can mutate the slice element in place, or -1 when absent.
func (j *Job) FindingByID(id string) int {
	for i := range j.Findings {
		if j.Findings[i].ID == id {
			return i
		}
	}
	return -1
}

// JobSummary is the light projection returned by history searches.
type JobSummary struct {
	ID          string
	ProductName string
	ProductID   string
	Status      JobStatus
	Verdict     Verdict
	CreatedAt   time.Time
}
