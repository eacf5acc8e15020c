package domain

// FindingType categorizes a detected difference.
type FindingType string

const (
	FindingTypography FindingType = "typography"
	FindingColor      FindingType = "color"
	FindingGraphic    FindingType = "graphic"
	FindingContent    FindingType = "content"
	FindingLayout     FindingType = "layout"
	FindingSpelling   FindingType = "spelling"
)

// Severity classifies how serious a finding is. The zero value means the
// reviewer has not classified it yet.
type Severity string

const (
	SeverityCritical  Severity = "critical"
	SeverityImportant Severity = "important"
	SeverityMinor     Severity = "minor"
	SeverityIgnore    Severity = "ignore"
	SeverityNone      Severity = ""
)

// Valid reports whether s is a known severity or the unclassified zero value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityImportant, SeverityMinor, SeverityIgnore, SeverityNone:
		return true
	}
	return false
}

// FindingStatus tracks the review workflow of a single finding.
type FindingStatus string

const (
	FindingOpen       FindingStatus = "open"
	FindingClassified FindingStatus = "classified"
	FindingResolved   FindingStatus = "resolved"
)

// Display colors rendered by the review UI for each severity.
const (
	ColorCritical  = "#ff4757"
	ColorImportant = "#ffa502"
	ColorMinor     = "#5352ed"
	ColorIgnore    = "#2ed573"
)

// ColorFor maps a severity to its display color. Unclassified findings render
// with the important color until a reviewer decides.
func ColorFor(s Severity) string {
	switch s {
	case SeverityCritical:
		return ColorCritical
	case SeverityImportant:
		return ColorImportant
	case SeverityMinor:
		return ColorMinor
	case SeverityIgnore:
		return ColorIgnore
	default:
		return ColorImportant
	}
}

// BBox is a bounding rectangle normalized to 0..1 of the page dimensions.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Finding is one detected difference between master and sample. Severity is
// the reviewer's classification and starts empty; SeveritySuggestion is what
// the engine proposed and is never changed after inspection.
type Finding struct {
	ID                 string        `json:"id"`
	Page               int           `json:"page"`
	Type               FindingType   `json:"type"`
	Severity           Severity      `json:"severity,omitempty"`
	SeveritySuggestion Severity      `json:"severity_suggestion,omitempty"`
	Status             FindingStatus `json:"status"`
	Description        string        `json:"description"`
	Detail             string        `json:"detail,omitempty"`
	BBox               BBox          `json:"bbox"`
	Color              string        `json:"color"`
	PixelDiffPercent   float64       `json:"pixel_diff_percent,omitempty"`
	ColorDeltaE        float64       `json:"color_delta_e,omitempty"`
	MasterCrop         string        `json:"master_crop,omitempty"`
	SampleCrop         string        `json:"sample_crop,omitempty"`
	Comment            string        `json:"comment,omitempty"`
}

// EffectiveSeverity returns the reviewer classification when present and the
// engine suggestion otherwise.
func (f *Finding) EffectiveSeverity() Severity {
	if f.Severity != SeverityNone {
		return f.Severity
	}
	return f.SeveritySuggestion
}

// RefreshColor recomputes the derived display color after a severity change.
func (f *Finding) RefreshColor() {
	f.Color = ColorFor(f.EffectiveSeverity())
}
