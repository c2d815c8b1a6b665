package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lodestone-ai/lodestone/internal/domain"
)

const jobColumns = `id, asset_id, job_type, status, progress, error, metadata, created_at, started_at, finished_at`

type JobRepository struct {
	db dbtx
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: pool}
}

func NewJobRepositoryWithTx(tx pgx.Tx) *JobRepository {
	return &JobRepository{db: tx}
}

// Create inserts a pending job. The partial unique index on non-terminal
// (asset_id, job_type) rows rejects a duplicate while an earlier job of the
// same type is still pending or running.
func (r *JobRepository) Create(ctx context.Context, job *domain.ProcessingJob) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO processing_jobs (id, asset_id, job_type, status, progress, error, metadata, created_at, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.AssetID, job.Type, job.Status, job.Progress, job.Error,
		emptyMetadata(job.Metadata), job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateJob
		}
		return err
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// GetLatestByAssetAndType returns the most recent job of a type for an asset;
// terminal rows are history, so "latest" is what the job query endpoint shows.
func (r *JobRepository) GetLatestByAssetAndType(ctx context.Context, assetID string, jobType domain.JobType) (*domain.ProcessingJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs
		 WHERE asset_id = $1 AND job_type = $2
		 ORDER BY created_at DESC LIMIT 1`,
		assetID, jobType,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepository) ListByAsset(ctx context.Context, assetID string) ([]*domain.ProcessingJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs
		 WHERE asset_id = $1 ORDER BY created_at DESC`,
		assetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobRows(rows)
}

// Claim atomically transitions one job from pending to running. It is the
// mandatory mutual-exclusion point: a compare-and-swap on status, so exactly
// one worker wins when several race on the same job.
func (r *JobRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE processing_jobs SET status = $1, started_at = $2
		 WHERE id = $3 AND status = $4`,
		domain.JobStatusRunning, now, id, domain.JobStatusPending,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}

// ClaimPending claims up to limit pending jobs in creation order, skipping
// rows locked by concurrent claimers.
func (r *JobRepository) ClaimPending(ctx context.Context, limit int, now time.Time) ([]*domain.ProcessingJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM processing_jobs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE processing_jobs
		 SET status = $3, started_at = $4
		 FROM cte
		 WHERE processing_jobs.id = cte.id
		 RETURNING `+qualifiedJobColumns("processing_jobs"),
		domain.JobStatusPending, limit, domain.JobStatusRunning, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobRows(rows)
}

func (r *JobRepository) ReportProgress(ctx context.Context, id string, percent int) error {
	if percent < 0 || percent > 100 {
		return domain.ErrInvalidProgress
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE processing_jobs SET progress = $1 WHERE id = $2 AND status = $3`,
		percent, id, domain.JobStatusRunning,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrInvalidJobTransition
	}
	return nil
}

func (r *JobRepository) Complete(ctx context.Context, id string, now time.Time) error {
	return r.finish(ctx, id, domain.JobStatusCompleted, "", 100, now)
}

func (r *JobRepository) Fail(ctx context.Context, id, errMsg string, now time.Time) error {
	return r.finish(ctx, id, domain.JobStatusFailed, errMsg, -1, now)
}

func (r *JobRepository) finish(ctx context.Context, id string, status domain.JobStatus, errMsg string, progress int, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE processing_jobs
		 SET status = $1, error = $2, finished_at = $3,
		     progress = CASE WHEN $4 >= 0 THEN $4 ELSE progress END
		 WHERE id = $5 AND status = $6`,
		status, errMsg, now, progress, id, domain.JobStatusRunning,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrInvalidJobTransition
	}
	return nil
}

// FailStaleRunning force-fails jobs stuck in running past the timeout, so a
// crashed worker's claim does not block fresh enqueues forever.
func (r *JobRepository) FailStaleRunning(ctx context.Context, timeout time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-timeout)
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE processing_jobs
		 SET status = $1, error = $2, finished_at = $3
		 WHERE status = $4 AND started_at IS NOT NULL AND started_at < $5`,
		domain.JobStatusFailed,
		fmt.Sprintf("job timed out after %s", timeout),
		now, domain.JobStatusRunning, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// CountPendingByType exposes queue depth as an operational signal.
func (r *JobRepository) CountPendingByType(ctx context.Context) (map[domain.JobType]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT job_type, COUNT(*) FROM processing_jobs WHERE status = $1 GROUP BY job_type`,
		domain.JobStatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.JobType]int)
	for rows.Next() {
		var jobType domain.JobType
		var count int
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, err
		}
		counts[jobType] = count
	}
	return counts, rows.Err()
}

// ListAssetsWithCompletedLatest returns asset IDs whose most recent job of
// the given type completed. The reconciliation sweep uses this to find rows
// whose pointer stamp was lost after a successful secondary-store write.
func (r *JobRepository) ListAssetsWithCompletedLatest(ctx context.Context, jobType domain.JobType) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT asset_id FROM (
			 SELECT DISTINCT ON (asset_id) asset_id, status
			 FROM processing_jobs
			 WHERE job_type = $1
			 ORDER BY asset_id, created_at DESC
		 ) latest
		 WHERE latest.status = $2`,
		jobType, domain.JobStatusCompleted,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assetIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		assetIDs = append(assetIDs, id)
	}
	return assetIDs, rows.Err()
}

func qualifiedJobColumns(table string) string {
	return table + `.id, ` + table + `.asset_id, ` + table + `.job_type, ` + table + `.status, ` +
		table + `.progress, ` + table + `.error, ` + table + `.metadata, ` + table + `.created_at, ` +
		table + `.started_at, ` + table + `.finished_at`
}

func scanJob(row pgx.Row) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	err := row.Scan(
		&job.ID, &job.AssetID, &job.Type, &job.Status, &job.Progress, &job.Error,
		&job.Metadata, &job.CreatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func scanJobRows(rows pgx.Rows) ([]*domain.ProcessingJob, error) {
	var results []*domain.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, job)
	}
	return results, rows.Err()
}
