package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"printproof/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository. Documents, zones, findings,
// artifacts and analysis live in jsonb columns; everything the API filters or
// sorts on is a plain column.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record in pending state.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	masterDoc, err := json.Marshal(job.Master)
	if err != nil {
		return fmt.Errorf("marshal master document: %w", err)
	}
	sampleDoc, err := json.Marshal(job.Sample)
	if err != nil {
		return fmt.Errorf("marshal sample document: %w", err)
	}
	zones, err := json.Marshal(job.Zones)
	if err != nil {
		return fmt.Errorf("marshal zones: %w", err)
	}
	spelling, err := json.Marshal(job.Spelling)
	if err != nil {
		return fmt.Errorf("marshal spelling options: %w", err)
	}

	query := `
INSERT INTO jobs (id, product_name, product_id, description, status, error_message, master_doc, sample_doc, zones, element_tolerance, accuracy_level, spelling)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.ProductName,
		job.ProductID,
		job.Description,
		job.Status,
		job.ErrorMessage,
		masterDoc,
		sampleDoc,
		zones,
		job.ElementTolerance,
		job.AccuracyLevel,
		spelling,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `
SELECT id, product_name, product_id, description, status, error_message,
       master_doc, sample_doc, zones, element_tolerance, accuracy_level,
       spelling, findings, artifacts, analysis, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)

	var (
		job       domain.Job
		masterDoc []byte
		sampleDoc []byte
		zones     []byte
		spelling  []byte
		findings  []byte
		artifacts []byte
		analysis  []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.ProductName,
		&job.ProductID,
		&job.Description,
		&job.Status,
		&job.ErrorMessage,
		&masterDoc,
		&sampleDoc,
		&zones,
		&job.ElementTolerance,
		&job.AccuracyLevel,
		&spelling,
		&findings,
		&artifacts,
		&analysis,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := unmarshalColumn(masterDoc, &job.Master, "master_doc"); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(sampleDoc, &job.Sample, "sample_doc"); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(zones, &job.Zones, "zones"); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(spelling, &job.Spelling, "spelling"); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(findings, &job.Findings, "findings"); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(artifacts, &job.Artifacts, "artifacts"); err != nil {
		return nil, err
	}
	if len(analysis) > 0 && string(analysis) != "null" {
		var a domain.Analysis
		if err := unmarshalColumn(analysis, &a, "analysis"); err != nil {
			return nil, err
		}
		job.Analysis = &a
	}

	return &job, nil
}

// ClaimForProcessing atomically flips a pending or errored job to processing
// and clears the stored error. The status guard makes concurrent starts
// resolve to a single winner.
func (r *JobRepositoryPG) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	query := `
UPDATE jobs
SET status = 'processing',
    error_message = '',
    updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'error');
`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatus sets the job status and error message. Pass an empty message
// to clear a previous error.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string) error {
	query := `
UPDATE jobs
SET status = $2,
    error_message = $3,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, status, errorMessage)
	return err
}

// UpdateDocument replaces one side's document metadata.
func (r *JobRepositoryPG) UpdateDocument(ctx context.Context, id string, role domain.DocumentRole, doc domain.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	var query string
	switch role {
	case domain.RoleMaster:
		query = `UPDATE jobs SET master_doc = $2, updated_at = NOW() WHERE id = $1;`
	case domain.RoleSample:
		query = `UPDATE jobs SET sample_doc = $2, updated_at = NOW() WHERE id = $1;`
	default:
		return fmt.Errorf("unknown document role %q", role)
	}

	_, err = r.pool.Exec(ctx, query, id, payload)
	return err
}

// UpdateResults writes findings, artifacts and analysis. Nil values leave the
// stored column untouched so callers can update the fields independently.
func (r *JobRepositoryPG) UpdateResults(ctx context.Context, id string, findings []domain.Finding, artifacts []domain.PageArtifact, analysis *domain.Analysis) error {
	var (
		findingsJSON  []byte
		artifactsJSON []byte
		analysisJSON  []byte
		err           error
	)
	if findings != nil {
		if findingsJSON, err = json.Marshal(findings); err != nil {
			return fmt.Errorf("marshal findings: %w", err)
		}
	}
	if artifacts != nil {
		if artifactsJSON, err = json.Marshal(artifacts); err != nil {
			return fmt.Errorf("marshal artifacts: %w", err)
		}
	}
	if analysis != nil {
		if analysisJSON, err = json.Marshal(analysis); err != nil {
			return fmt.Errorf("marshal analysis: %w", err)
		}
	}

	query := `
UPDATE jobs
SET findings = COALESCE($2, findings),
    artifacts = COALESCE($3, artifacts),
    analysis = COALESCE($4, analysis),
    updated_at = NOW()
WHERE id = $1;
`
	_, err = r.pool.Exec(ctx, query, id, nullableBytes(findingsJSON), nullableBytes(artifactsJSON), nullableBytes(analysisJSON))
	return err
}

// Delete removes the job row entirely.
func (r *JobRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Search lists jobs newest-first, optionally filtered by a free-text match
// over product name, product id and description.
func (r *JobRepositoryPG) Search(ctx context.Context, query string, limit, offset int) ([]domain.JobSummary, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	listQuery := `
SELECT id, product_name, product_id, status, COALESCE(analysis->>'verdict', ''), created_at
FROM jobs
WHERE $1 = '' OR product_name ILIKE '%' || $1 || '%' OR product_id ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.pool.Query(ctx, listQuery, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.JobSummary
	for rows.Next() {
		var (
			s       domain.JobSummary
			verdict string
		)
		if err := rows.Scan(&s.ID, &s.ProductName, &s.ProductID, &s.Status, &verdict, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		s.Verdict = domain.Verdict(verdict)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `
SELECT COUNT(*)
FROM jobs
WHERE $1 = '' OR product_name ILIKE '%' || $1 || '%' OR product_id ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%';
`
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, query).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func unmarshalColumn(data []byte, v any, column string) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", column, err)
	}
	return nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
