package domain

import "context"

// DocumentRole selects which side of a job a document write targets.
type DocumentRole string

const (
	RoleMaster DocumentRole = "master"
	RoleSample DocumentRole = "sample"
)

// JobRepository defines persistence for inspection jobs. Result updates are
// partial writes: nil slices and pointers leave the stored column untouched so
// a restarted run can overwrite a prior attempt field by field.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	// ClaimForProcessing flips a pending or errored job to processing and
	// clears its stored error. It reports false when the job was already
	// processing or inspected, which makes duplicate start requests no-ops.
	ClaimForProcessing(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status JobStatus, errorMessage string) error
	UpdateDocument(ctx context.Context, id string, role DocumentRole, doc Document) error
	UpdateResults(ctx context.Context, id string, findings []Finding, artifacts []PageArtifact, analysis *Analysis) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit, offset int) ([]JobSummary, int, error)
}
