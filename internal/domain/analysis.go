package domain

import (
	"fmt"
	"time"
)

// Verdict is the final judgment of a completed inspection.
type Verdict string

const (
	VerdictPass   Verdict = "pass"
	VerdictReview Verdict = "review"
	VerdictFail   Verdict = "fail"
)

// ReviewSSIMThreshold is the mean structural similarity below which a job
// requires review even without important findings.
const ReviewSSIMThreshold = 0.92

// PaletteColor is one dominant color the engine extracted from a document.
// Usage is a percent string such as "62%".
type PaletteColor struct {
	Hex   string `json:"hex"`
	Usage string `json:"usage"`
}

// Analysis aggregates a finished inspection: severity counts, the verdict and
// the mean structural similarity across compared pages. The verdict is fixed
// when the pipeline completes; later reclassification patches the counts but
// never the verdict.
type Analysis struct {
	Summary        string         `json:"summary"`
	Verdict        Verdict        `json:"verdict"`
	OverallSSIM    float64        `json:"overall_ssim"`
	TotalFindings  int            `json:"total_findings"`
	CriticalCount  int            `json:"critical_count"`
	ImportantCount int            `json:"important_count"`
	MinorCount     int            `json:"minor_count"`
	IgnoredCount   int            `json:"ignored_count"`
	MasterPalette  []PaletteColor `json:"master_palette,omitempty"`
	SamplePalette  []PaletteColor `json:"sample_palette,omitempty"`
	CompletedAt    time.Time      `json:"completed_at"`
}

// SeverityCounts tallies findings by effective severity.
type SeverityCounts struct {
	Critical  int
	Important int
	Minor     int
	Ignored   int
}

// CountSeverities tallies findings by effective severity, preferring the
// reviewer classification over the engine suggestion.
func CountSeverities(findings []Finding) SeverityCounts {
	var c SeverityCounts
	for i := range findings {
		switch findings[i].EffectiveSeverity() {
		case SeverityCritical:
			c.Critical++
		case SeverityImportant:
			c.Important++
		case SeverityMinor:
			c.Minor++
		case SeverityIgnore:
			c.Ignored++
		}
	}
	return c
}

// VerdictFor applies the verdict rules in priority order: any critical finding
// fails the job; important findings or low similarity demand review; any other
// finding still demands review; only a clean job passes.
func VerdictFor(counts SeverityCounts, overallSSIM float64, totalFindings int) Verdict {
	switch {
	case counts.Critical > 0:
		return VerdictFail
	case counts.Important > 0 || overallSSIM < ReviewSSIMThreshold:
		return VerdictReview
	case totalFindings > 0:
		return VerdictReview
	default:
		return VerdictPass
	}
}

// ComputeAnalysis builds the analysis for a finished pipeline run.
func ComputeAnalysis(findings []Finding, overallSSIM float64, masterPalette, samplePalette []PaletteColor, now time.Time) *Analysis {
	counts := CountSeverities(findings)
	verdict := VerdictFor(counts, overallSSIM, len(findings))
	return &Analysis{
		Summary:        summarize(counts, len(findings), overallSSIM),
		Verdict:        verdict,
		OverallSSIM:    overallSSIM,
		TotalFindings:  len(findings),
		CriticalCount:  counts.Critical,
		ImportantCount: counts.Important,
		MinorCount:     counts.Minor,
		IgnoredCount:   counts.Ignored,
		MasterPalette:  masterPalette,
		SamplePalette:  samplePalette,
		CompletedAt:    now.UTC(),
	}
}

// ApplyCounts patches the severity tallies after reclassification, leaving the
// verdict as originally computed.
func (a *Analysis) ApplyCounts(counts SeverityCounts, totalFindings int) {
	a.CriticalCount = counts.Critical
	a.ImportantCount = counts.Important
	a.MinorCount = counts.Minor
	a.IgnoredCount = counts.Ignored
	a.TotalFindings = totalFindings
	a.Summary = summarize(counts, totalFindings, a.OverallSSIM)
}

func summarize(counts SeverityCounts, total int, ssim float64) string {
	if total == 0 {
		return fmt.Sprintf("No differences detected. Mean similarity %.4f.", ssim)
	}
	return fmt.Sprintf("%d finding(s): %d critical, %d important, %d minor, %d ignored. Mean similarity %.4f.",
		total, counts.Critical, counts.Important, counts.Minor, counts.Ignored, ssim)
}
