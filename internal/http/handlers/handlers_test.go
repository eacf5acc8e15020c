package handlers_test

import (
	"context"
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"printproof/internal/broadcast"
	"printproof/internal/domain"
	"printproof/internal/http/handlers"
	httpapi "printproof/internal/http/httpapi"
	"printproof/internal/infra"
	"printproof/internal/pipeline"
	"printproof/internal/storage"
)

// fakeRepo implements domain.JobRepository through per-method hooks. A method
// invoked without a hook marks the test failed and returns an error, so a
// handler exercising an unexpected persistence path cannot pass silently.
type fakeRepo struct {
	t *testing.T

	create        func(ctx context.Context, job *domain.Job) error
	getByID       func(ctx context.Context, id string) (*domain.Job, error)
	claim         func(ctx context.Context, id string) (bool, error)
	updateStatus  func(ctx context.Context, id string, status domain.JobStatus, errorMessage string) error
	updateDoc     func(ctx context.Context, id string, role domain.DocumentRole, doc domain.Document) error
	updateResults func(ctx context.Context, id string, findings []domain.Finding, artifacts []domain.PageArtifact, analysis *domain.Analysis) error
	deleteJob     func(ctx context.Context, id string) error
	search        func(ctx context.Context, query string, limit, offset int) ([]domain.JobSummary, int, error)
}

func (f *fakeRepo) Create(ctx context.Context, job *domain.Job) error {
	if f.create == nil {
		f.t.Error("unexpected Create call")
		return domain.ErrInvalidInput
	}
	return f.create(ctx, job)
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	if f.getByID == nil {
		f.t.Error("unexpected GetByID call")
		return nil, domain.ErrNotFound
	}
	return f.getByID(ctx, id)
}

func (f *fakeRepo) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	if f.claim == nil {
		f.t.Error("unexpected ClaimForProcessing call")
		return false, domain.ErrInvalidInput
	}
	return f.claim(ctx, id)
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string) error {
	if f.updateStatus == nil {
		f.t.Error("unexpected UpdateStatus call")
		return domain.ErrInvalidInput
	}
	return f.updateStatus(ctx, id, status, errorMessage)
}

func (f *fakeRepo) UpdateDocument(ctx context.Context, id string, role domain.DocumentRole, doc domain.Document) error {
	if f.updateDoc == nil {
		f.t.Error("unexpected UpdateDocument call")
		return domain.ErrInvalidInput
	}
	return f.updateDoc(ctx, id, role, doc)
}

func (f *fakeRepo) UpdateResults(ctx context.Context, id string, findings []domain.Finding, artifacts []domain.PageArtifact, analysis *domain.Analysis) error {
	if f.updateResults == nil {
		f.t.Error("unexpected UpdateResults call")
		return domain.ErrInvalidInput
	}
	return f.updateResults(ctx, id, findings, artifacts, analysis)
}

func (f *fakeRepo) Delete(ctx context.Context, id string) error {
	if f.deleteJob == nil {
		f.t.Error("unexpected Delete call")
		return domain.ErrInvalidInput
	}
	return f.deleteJob(ctx, id)
}

func (f *fakeRepo) Search(ctx context.Context, query string, limit, offset int) ([]domain.JobSummary, int, error) {
	if f.search == nil {
		f.t.Error("unexpected Search call")
		return nil, 0, domain.ErrInvalidInput
	}
	return f.search(ctx, query, limit, offset)
}

// stubStarter satisfies handlers.Starter with a canned outcome.
type stubStarter struct {
	outcome pipeline.StartOutcome
	err     error
	calls   int32
}

func (s *stubStarter) Start(ctx context.Context, jobID string) (pipeline.StartOutcome, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.outcome, s.err
}

func newTestApp(t *testing.T, repo domain.JobRepository) *handlers.App {
	t.Helper()

	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	logger := zerolog.New(io.Discard)
	return &handlers.App{
		Repo:  repo,
		Store: store,
		Hub:   broadcast.NewHub(logger, 8),
		Config: infra.Config{
			MaxUploadBytes:   4 << 20,
			KeepaliveEvery:   15 * time.Second,
			SubscriberBuffer: 8,
			CORSOrigins:      []string{"*"},
			RateLimitPerMin:  100000,
		},
		Logger: logger,
	}
}

func newTestServer(t *testing.T, app *handlers.App) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(httpapi.NewRouter(app))
	t.Cleanup(srv.Close)
	return srv
}
