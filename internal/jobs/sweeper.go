package jobs

import (
	"context"
	"log"
	"time"

	"github.com/lodestone-ai/lodestone/internal/service"
	"github.com/lodestone-ai/lodestone/internal/telemetry"
)

// Sweeper runs the slow maintenance passes: force-failing stuck jobs,
// orphaning assets whose sources vanished, and reconciling the secondary
// stores. It plugs into the same Worker loop as the Processor, on a longer
// interval.
type Sweeper struct {
	jobRepo    service.JobRepositoryInterface
	orphans    *service.OrphanService
	reconciler *service.ReconcileService
	jobTimeout time.Duration
}

func NewSweeper(
	jobRepo service.JobRepositoryInterface,
	orphans *service.OrphanService,
	reconciler *service.ReconcileService,
	jobTimeout time.Duration,
) *Sweeper {
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	return &Sweeper{
		jobRepo:    jobRepo,
		orphans:    orphans,
		reconciler: reconciler,
		jobTimeout: jobTimeout,
	}
}

// ProcessJobs implements the JobProcessor interface. Each pass is independent;
// one failing does not stop the others.
func (s *Sweeper) ProcessJobs(ctx context.Context) error {
	timedOut, err := s.jobRepo.FailStaleRunning(ctx, s.jobTimeout, time.Now().UTC())
	if err != nil {
		log.Printf("Sweep: failed to time out stale jobs: %v", err)
	} else if timedOut > 0 {
		log.Printf("Sweep: timed out %d stale running jobs", timedOut)
	}

	orphaned, err := s.orphans.SweepOrphans(ctx)
	if err != nil {
		log.Printf("Sweep: orphan pass failed: %v", err)
		telemetry.CaptureError(ctx, err)
	} else if orphaned > 0 {
		log.Printf("Sweep: orphaned %d assets with missing sources", orphaned)
	}

	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		log.Printf("Sweep: reconciliation failed: %v", err)
		telemetry.CaptureError(ctx, err)
	} else if report.OrphanedVectorsDeleted+report.OrphanedEdgesDeleted+report.EmbedJobsEnqueued+report.EdgesRestamped > 0 {
		log.Printf("Sweep: reconciled stores: vectors deleted=%d edges deleted=%d embeds requeued=%d edges restamped=%d",
			report.OrphanedVectorsDeleted, report.OrphanedEdgesDeleted, report.EmbedJobsEnqueued, report.EdgesRestamped)
	}

	return nil
}
