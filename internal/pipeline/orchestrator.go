package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"printproof/internal/domain"
	"printproof/internal/infra"
	"printproof/internal/providers/convert"
	"printproof/internal/providers/enhance"
	"printproof/internal/providers/engine"
)

// MaxEnhanceFindings caps how many findings are sent to the enhancer. Jobs
// with more findings skip the refinement stage entirely.
const MaxEnhanceFindings = 25

// StartOutcome tells the caller what a start request actually did.
type StartOutcome string

const (
	OutcomeStarted  StartOutcome = "started"
	OutcomeInFlight StartOutcome = "in_progress"
	OutcomeDone     StartOutcome = "already_inspected"
)

// Converter rasterizes a stored document into per-page images.
type Converter interface {
	Convert(ctx context.Context, req convert.Request) (*convert.Result, error)
}

// Engine is the external comparison engine surface the pipeline needs.
type Engine interface {
	Health(ctx context.Context) error
	Compare(ctx context.Context, req engine.CompareRequest) (*engine.CompareResponse, error)
}

// Enhancer refines findings; it is optional and never fails a job.
type Enhancer interface {
	Enabled() bool
	Refine(ctx context.Context, req enhance.RefineRequest) ([]enhance.Refinement, error)
}

// BlobStore reads stored page images.
type BlobStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Publisher receives progress events for fan-out to stream subscribers.
type Publisher interface {
	Publish(jobID string, ev domain.ProgressEvent)
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Repo      domain.JobRepository
	Store     BlobStore
	Converter Converter
	Engine    Engine
	Enhancer  Enhancer
	Hub       Publisher
	Logger    infra.Logger
	// RunTimeout bounds a whole inspection as a safety net against a hung
	// engine call. Zero means no bound.
	RunTimeout time.Duration
}

// Orchestrator drives the six-stage inspection pipeline for one job at a
// time per job: convert both documents, check the engine, compare page by
// page, optionally refine findings, then compute the verdict.
type Orchestrator struct {
	repo       domain.JobRepository
	store      BlobStore
	converter  Converter
	engine     Engine
	enhancer   Enhancer
	hub        Publisher
	logger     infra.Logger
	runTimeout time.Duration

	wg sync.WaitGroup
}

// New builds an Orchestrator from its collaborators.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		repo:       opts.Repo,
		store:      opts.Store,
		converter:  opts.Converter,
		engine:     opts.Engine,
		enhancer:   opts.Enhancer,
		hub:        opts.Hub,
		logger:     opts.Logger,
		runTimeout: opts.RunTimeout,
	}
}

// Start begins the pipeline for a pending or errored job. The call is
// idempotent: a job already inspected or already running is reported as such
// without side effects, and concurrent starts resolve to a single run via the
// repository's atomic claim.
func (o *Orchestrator) Start(ctx context.Context, jobID string) (StartOutcome, error) {
	job, err := o.repo.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}

	switch job.Status {
	case domain.JobStatusInspected:
		return OutcomeDone, nil
	case domain.JobStatusProcessing:
		return OutcomeInFlight, nil
	}

	claimed, err := o.repo.ClaimForProcessing(ctx, jobID)
	if err != nil {
		return "", err
	}
	if !claimed {
		// Lost the race to another start request.
		return OutcomeInFlight, nil
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(jobID)
	}()

	return OutcomeStarted, nil
}

// Wait blocks until every in-flight inspection has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run executes the pipeline detached from the start request. The stored
// status is always persisted before the terminal event is published so a
// reconnecting observer never sees the stream ahead of the record.
func (o *Orchestrator) run(jobID string) {
	ctx := context.Background()
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	log := o.logger.With().Str("job_id", jobID).Logger()
	started := time.Now()

	if err := o.inspect(ctx, jobID, log); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("pipeline: inspection failed")

		// Persist on a fresh context; the run context may be the reason we
		// are here.
		persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if uerr := o.repo.UpdateStatus(persistCtx, jobID, domain.JobStatusError, err.Error()); uerr != nil {
			log.Error().Err(uerr).Msg("pipeline: persist error status")
		}
		o.hub.Publish(jobID, domain.NewError(err.Error()))
		return
	}

	log.Info().Dur("elapsed", time.Since(started)).Msg("pipeline: inspection finished")
	o.hub.Publish(jobID, domain.NewDone())
}

func (o *Orchestrator) inspect(ctx context.Context, jobID string, log infra.Logger) error {
	job, err := o.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	master, err := o.convertDocument(ctx, jobID, job.Master, domain.RoleMaster)
	if err != nil {
		return fmt.Errorf("convert master: %w", err)
	}
	o.progress(jobID, domain.StageConvertMaster, "master document converted", 5)

	sample, err := o.convertDocument(ctx, jobID, job.Sample, domain.RoleSample)
	if err != nil {
		return fmt.Errorf("convert sample: %w", err)
	}
	o.progress(jobID, domain.StageConvertSample, "sample document converted", 15)

	if err := o.engine.Health(ctx); err != nil {
		return err
	}
	o.progress(jobID, domain.StageEngineCheck, "comparison engine ready", 20)

	pages := master.PageCount
	if sample.PageCount < pages {
		pages = sample.PageCount
	}
	if pages <= 0 {
		return fmt.Errorf("no pages to compare")
	}
	if sample.PageCount != master.PageCount {
		log.Warn().
			Int("master_pages", master.PageCount).
			Int("sample_pages", sample.PageCount).
			Msg("pipeline: page counts differ, comparing the overlap")
	}

	spellingLanguage := strings.Join(job.Spelling.Languages, ",")

	var (
		findings      []domain.Finding
		artifacts     []domain.PageArtifact
		ssimSum       float64
		masterPalette []domain.PaletteColor
		samplePalette []domain.PaletteColor
	)

	for page := 1; page <= pages; page++ {
		masterImage, err := o.readPage(ctx, master, page)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		sampleImage, err := o.readPage(ctx, sample, page)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}

		var zones []engine.CompareZone
		for _, z := range job.ZonesForPage(page) {
			zones = append(zones, engine.CompareZone{X: z.X, Y: z.Y, W: z.W, H: z.H})
		}

		resp, err := o.engine.Compare(ctx, engine.CompareRequest{
			MasterImage:      masterImage,
			SampleImage:      sampleImage,
			Tolerance:        job.ElementTolerance,
			Accuracy:         job.AccuracyLevel,
			Zones:            zones,
			Page:             page,
			CheckSpelling:    job.Spelling.Enabled,
			SpellingLanguage: spellingLanguage,
		})
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}

		for _, d := range resp.Differences {
			findings = append(findings, newFinding(page, d))
		}
		artifacts = append(artifacts, domain.PageArtifact{
			Page:      page,
			DiffImage: resp.DiffImage,
			Heatmap:   resp.Heatmap,
		})
		ssimSum += resp.OverallSSIM
		if page == 1 {
			masterPalette = resp.MasterPalette
			samplePalette = resp.SamplePalette
		}

		o.progress(jobID, domain.StageComparePages,
			fmt.Sprintf("page %d of %d compared", page, pages), comparePercent(page, pages))
	}

	// Overwrite, never merge: a restarted run must not inherit findings from
	// a previous attempt.
	if findings == nil {
		findings = []domain.Finding{}
	}
	if err := o.repo.UpdateResults(ctx, jobID, findings, artifacts, nil); err != nil {
		return fmt.Errorf("persist findings: %w", err)
	}

	if o.enhancer != nil && o.enhancer.Enabled() && len(findings) > 0 && len(findings) <= MaxEnhanceFindings {
		refined, err := o.refineFindings(ctx, master, sample, findings)
		if err != nil {
			log.Warn().Err(err).Msg("pipeline: enhancement skipped")
		} else {
			findings = refined
			if err := o.repo.UpdateResults(ctx, jobID, findings, nil, nil); err != nil {
				return fmt.Errorf("persist refined findings: %w", err)
			}
			o.progress(jobID, domain.StageEnhance, "findings refined", 65)
		}
	}

	analysis := domain.ComputeAnalysis(findings, ssimSum/float64(pages), masterPalette, samplePalette, time.Now())
	if err := o.repo.UpdateResults(ctx, jobID, findings, nil, analysis); err != nil {
		return fmt.Errorf("persist analysis: %w", err)
	}
	o.progress(jobID, domain.StageAnalyze, "analysis complete", 85)

	if err := o.repo.UpdateStatus(ctx, jobID, domain.JobStatusInspected, ""); err != nil {
		return fmt.Errorf("persist inspected status: %w", err)
	}

	log.Info().
		Int("pages", pages).
		Int("findings", len(findings)).
		Str("verdict", string(analysis.Verdict)).
		Msg("pipeline: analysis computed")

	return nil
}

// convertDocument rasterizes one side and persists the updated document
// metadata so partial progress survives a crash.
func (o *Orchestrator) convertDocument(ctx context.Context, jobID string, doc domain.Document, role domain.DocumentRole) (domain.Document, error) {
	result, err := o.converter.Convert(ctx, convert.Request{Key: doc.Key, Format: doc.Format})
	if err != nil {
		return domain.Document{}, err
	}

	doc.Pages = result.Pages
	doc.PageCount = result.PageCount
	if err := o.repo.UpdateDocument(ctx, jobID, role, doc); err != nil {
		return domain.Document{}, fmt.Errorf("persist %s document: %w", role, err)
	}
	return doc, nil
}

// readPage loads a rendered page image from storage and encodes it for the
// engine wire format. Page numbers are 1-based.
func (o *Orchestrator) readPage(ctx context.Context, doc domain.Document, page int) (string, error) {
	if page < 1 || page > len(doc.Pages) {
		return "", fmt.Errorf("page image %d missing (have %d)", page, len(doc.Pages))
	}
	data, err := o.store.Read(ctx, doc.Pages[page-1])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (o *Orchestrator) refineFindings(ctx context.Context, master, sample domain.Document, findings []domain.Finding) ([]domain.Finding, error) {
	masterImage, err := o.readPage(ctx, master, 1)
	if err != nil {
		return nil, err
	}
	sampleImage, err := o.readPage(ctx, sample, 1)
	if err != nil {
		return nil, err
	}

	digest := make([]enhance.FindingDigest, len(findings))
	for i, f := range findings {
		digest[i] = enhance.FindingDigest{
			Index:              i,
			Page:               f.Page,
			Type:               string(f.Type),
			SeveritySuggestion: string(f.SeveritySuggestion),
			Description:        f.Description,
			PixelDiffPercent:   f.PixelDiffPercent,
			ColorDeltaE:        f.ColorDeltaE,
		}
	}

	refinements, err := o.enhancer.Refine(ctx, enhance.RefineRequest{
		MasterImage: masterImage,
		SampleImage: sampleImage,
		Findings:    digest,
	})
	if err != nil {
		return nil, err
	}

	return applyRefinements(findings, refinements), nil
}

// applyRefinements merges model suggestions positionally. Refinements beyond
// the finding list are ignored; empty fields keep the engine's values.
func applyRefinements(findings []domain.Finding, refinements []enhance.Refinement) []domain.Finding {
	for i, r := range refinements {
		if i >= len(findings) {
			break
		}
		if desc := strings.TrimSpace(r.Description); desc != "" {
			findings[i].Description = desc
		}
		sev := domain.Severity(strings.TrimSpace(r.SeveritySuggestion))
		if sev != domain.SeverityNone && sev.Valid() {
			findings[i].SeveritySuggestion = sev
			findings[i].RefreshColor()
		}
	}
	return findings
}

func newFinding(page int, d engine.Difference) domain.Finding {
	suggestion := domain.Severity(d.SeveritySuggestion)
	if !suggestion.Valid() {
		suggestion = domain.SeverityNone
	}

	f := domain.Finding{
		ID:                 uuid.NewString(),
		Page:               page,
		Type:               domain.FindingType(d.Type),
		SeveritySuggestion: suggestion,
		Status:             domain.FindingOpen,
		Description:        d.Description,
		BBox:               domain.BBox{X: d.BBox.X, Y: d.BBox.Y, W: d.BBox.W, H: d.BBox.H},
		PixelDiffPercent:   d.PixelDiffPercent,
		ColorDeltaE:        d.ColorDeltaE,
		MasterCrop:         d.MasterCrop,
		SampleCrop:         d.SampleCrop,
	}
	f.RefreshColor()
	return f
}

func (o *Orchestrator) progress(jobID string, stage int, message string, percent int) {
	o.hub.Publish(jobID, domain.NewProgress(stage, message, percent))
}

// comparePercent interpolates the page loop between 25 and 60 percent.
func comparePercent(page, total int) int {
	if total <= 0 {
		return 60
	}
	return 25 + (35*page)/total
}
