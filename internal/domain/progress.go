package domain

// ProgressKind discriminates events on a job's live progress stream.
type ProgressKind string

const (
	ProgressKindProgress ProgressKind = "progress"
	ProgressKindDone     ProgressKind = "done"
	ProgressKindError    ProgressKind = "error"
)

// Pipeline stage numbers reported on the progress stream.
const (
	StageConvertMaster = 1
	StageConvertSample = 2
	StageEngineCheck   = 3
	StageComparePages  = 4
	StageEnhance       = 5
	StageAnalyze       = 6
)

// ProgressEvent is one update on a job's progress stream. Progress events
// carry the stage, a short message and a percent that never decreases within
// a run; terminal events carry the final status instead.
type ProgressEvent struct {
	Kind    ProgressKind `json:"-"`
	Stage   int          `json:"stage,omitempty"`
	Message string       `json:"message,omitempty"`
	Percent int          `json:"percent,omitempty"`
	Status  JobStatus    `json:"status,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == ProgressKindDone || e.Kind == ProgressKindError
}

// NewProgress builds a stage update event.
func NewProgress(stage int, message string, percent int) ProgressEvent {
	return ProgressEvent{Kind: ProgressKindProgress, Stage: stage, Message: message, Percent: percent}
}

// NewDone builds the terminal success event.
func NewDone() ProgressEvent {
	return ProgressEvent{Kind: ProgressKindDone, Status: JobStatusInspected, Percent: 100}
}

// NewError builds the terminal failure event carrying the stored job error.
func NewError(message string) ProgressEvent {
	return ProgressEvent{Kind: ProgressKindError, Status: JobStatusError, Message: message}
}

// TerminalEventFor converts a stored terminal job status into the event a
// late subscriber should receive. It returns false for non-terminal statuses.
func TerminalEventFor(status JobStatus, errorMessage string) (ProgressEvent, bool) {
	switch status {
	case JobStatusInspected:
		return NewDone(), true
	case JobStatusError:
		return NewError(errorMessage), true
	default:
		return ProgressEvent{}, false
	}
}
