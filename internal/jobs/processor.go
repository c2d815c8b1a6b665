package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/service"
	"github.com/lodestone-ai/lodestone/internal/telemetry"
)

// Pipeline stage weights for full_process progress reporting.
const (
	progressChunked   = 25
	progressEmbedded  = 60
	progressExtracted = 90
)

// Processor claims pending jobs and dispatches them to the pipeline stages on
// a bounded worker pool. Claiming is the mutual-exclusion point: a job is
// moved to running atomically, so two Processor instances never run the same
// job.
type Processor struct {
	jobRepo         service.JobRepositoryInterface
	assets          *service.AssetService
	pipeline        *service.PipelineService
	extraction      *service.ExtractionService
	reviews         *service.ReviewService
	pool            *ants.Pool
	claimLimit      int
	confidenceFloor float64
}

func NewProcessor(
	jobRepo service.JobRepositoryInterface,
	assets *service.AssetService,
	pipeline *service.PipelineService,
	extraction *service.ExtractionService,
	reviews *service.ReviewService,
	poolSize, claimLimit int,
	confidenceFloor float64,
) (*Processor, error) {
	if poolSize <= 0 {
		poolSize = 8
	}
	if claimLimit <= 0 {
		claimLimit = 20
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Processor{
		jobRepo:         jobRepo,
		assets:          assets,
		pipeline:        pipeline,
		extraction:      extraction,
		reviews:         reviews,
		pool:            pool,
		claimLimit:      claimLimit,
		confidenceFloor: confidenceFloor,
	}, nil
}

// Release frees the worker pool. Call during shutdown after the polling loop
// has stopped.
func (p *Processor) Release() {
	p.pool.Release()
}

// ProcessJobs implements the JobProcessor interface
func (p *Processor) ProcessJobs(ctx context.Context) error {
	claimed, err := p.jobRepo.ClaimPending(ctx, p.claimLimit, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}

	log.Printf("Processing %d claimed jobs", len(claimed))

	var wg sync.WaitGroup
	for _, job := range claimed {
		job := job
		wg.Add(1)
		if err := p.pool.Submit(func() {
			defer wg.Done()
			p.runJob(ctx, job)
		}); err != nil {
			wg.Done()
			log.Printf("Failed to submit job %s to pool: %v", job.ID, err)
			telemetry.CaptureError(ctx, err)
			if failErr := p.jobRepo.Fail(ctx, job.ID, "worker pool unavailable", time.Now().UTC()); failErr != nil {
				log.Printf("Failed to fail job %s: %v", job.ID, failErr)
			}
		}
	}
	wg.Wait()
	return nil
}

func (p *Processor) runJob(ctx context.Context, job *domain.ProcessingJob) {
	// background work has no inbound request, so each job is its own trace
	ctx, txn := telemetry.StartTransaction(ctx, "jobs."+string(job.Type), "queue.task")
	defer txn.End()
	ctx, span := telemetry.StartSpan(ctx, "Processor.Dispatch", telemetry.SpanAttributes{
		AssetID:   job.AssetID,
		JobType:   string(job.Type),
		Operation: "dispatch",
	})
	defer span.End()

	err := p.dispatch(ctx, job)
	now := time.Now().UTC()
	if err != nil {
		span.SetError(err)
		log.Printf("Job %s (%s) for asset %s failed: %v", job.ID, job.Type, job.AssetID, err)
		if failErr := p.jobRepo.Fail(ctx, job.ID, err.Error(), now); failErr != nil {
			log.Printf("Failed to record failure for job %s: %v", job.ID, failErr)
		}
		// a failed pipeline run fails the asset; individual stage jobs leave
		// the asset untouched for a retry
		if job.Type == domain.JobTypeFullProcess {
			if markErr := p.assets.MarkFailed(ctx, job.AssetID, err.Error()); markErr != nil {
				log.Printf("Failed to mark asset %s failed: %v", job.AssetID, markErr)
			}
		}
		return
	}

	if err := p.jobRepo.Complete(ctx, job.ID, now); err != nil {
		log.Printf("Failed to complete job %s: %v", job.ID, err)
	}
}

func (p *Processor) dispatch(ctx context.Context, job *domain.ProcessingJob) error {
	params := p.extractionParams(job)

	switch job.Type {
	case domain.JobTypeChunk:
		_, err := p.pipeline.ChunkAsset(ctx, job.AssetID, params)
		return err

	case domain.JobTypeEmbed:
		if _, err := p.pipeline.EmbedAsset(ctx, job.AssetID, p.embedProgress(ctx, job.ID, 0, 100)); err != nil {
			return err
		}
		// an embed job enqueued by an edit decision re-opens the suspended
		// review; embeds outside a review cycle pass through
		_, err := p.reviews.ResumeReview(ctx, job.AssetID)
		return err

	case domain.JobTypeExtractRelationships:
		if _, err := p.extraction.ExtractRelationships(ctx, job.AssetID, params.ConfidenceFloor); err != nil {
			return err
		}
		_, err := p.reviews.OpenReview(ctx, job.AssetID)
		return err

	case domain.JobTypeFullProcess:
		if _, err := p.pipeline.ChunkAsset(ctx, job.AssetID, params); err != nil {
			return fmt.Errorf("chunk stage: %w", err)
		}
		p.reportProgress(ctx, job.ID, progressChunked)
		telemetry.AddBreadcrumb(ctx, "pipeline", "chunk stage complete")

		if _, err := p.pipeline.EmbedAsset(ctx, job.AssetID, p.embedProgress(ctx, job.ID, progressChunked, progressEmbedded)); err != nil {
			return fmt.Errorf("embed stage: %w", err)
		}
		p.reportProgress(ctx, job.ID, progressEmbedded)
		telemetry.AddBreadcrumb(ctx, "pipeline", "embed stage complete")

		if _, err := p.extraction.ExtractRelationships(ctx, job.AssetID, params.ConfidenceFloor); err != nil {
			return fmt.Errorf("extract stage: %w", err)
		}
		p.reportProgress(ctx, job.ID, progressExtracted)
		telemetry.AddBreadcrumb(ctx, "pipeline", "extract stage complete")

		if _, err := p.reviews.OpenReview(ctx, job.AssetID); err != nil {
			return fmt.Errorf("review stage: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown job type: %s", job.Type)
}

// extractionParams decodes run parameters from the job metadata. A rerun
// decision carries its tuned parameters this way; everything else runs on the
// configured defaults.
func (p *Processor) extractionParams(job *domain.ProcessingJob) domain.ExtractionParams {
	var params domain.ExtractionParams
	if raw := job.Metadata["extraction_params"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			log.Printf("Job %s carries malformed extraction params, using defaults: %v", job.ID, err)
			params = domain.ExtractionParams{}
		}
	}
	if params.ConfidenceFloor == 0 {
		params.ConfidenceFloor = p.confidenceFloor
	}
	return params
}

// embedProgress scales per-chunk embedding progress into the [lo, hi] band of
// the overall job.
func (p *Processor) embedProgress(ctx context.Context, jobID string, lo, hi int) func(done, total int) {
	return func(done, total int) {
		if total <= 0 {
			return
		}
		percent := lo + (hi-lo)*done/total
		p.reportProgress(ctx, jobID, percent)
	}
}

func (p *Processor) reportProgress(ctx context.Context, jobID string, percent int) {
	if err := p.jobRepo.ReportProgress(ctx, jobID, percent); err != nil {
		log.Printf("Failed to report progress for job %s: %v", jobID, err)
	}
}
