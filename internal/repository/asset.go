package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/pagination"
)

const assetColumns = `id, source_ref, project_id, title, doc_type, summary, metadata,
	chunk_count, embedded_chunk_count, relationship_count, token_count, stats_computed_at,
	status, traceability, orphaned_at, orphaned_reason, created_at, updated_at`

type AssetRepository struct {
	db dbtx
}

func NewAssetRepository(pool *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{db: pool}
}

func NewAssetRepositoryWithTx(tx pgx.Tx) *AssetRepository {
	return &AssetRepository{db: tx}
}

func (r *AssetRepository) Create(ctx context.Context, a *domain.KnowledgeAsset) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_assets
			(id, source_ref, project_id, title, doc_type, summary, metadata, status, traceability, orphaned_at, orphaned_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, nullableString(a.SourceRef), a.ProjectID, a.Title, a.DocType, a.Summary,
		emptyMetadata(a.Metadata), a.Status, a.Traceability, a.OrphanedAt, a.OrphanedReason,
		a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *AssetRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeAsset, error) {
	row := r.db.QueryRow(ctx, `SELECT `+assetColumns+` FROM knowledge_assets WHERE id = $1`, id)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *AssetRepository) ListByProjectWithCursor(ctx context.Context, projectID string, cursor *pagination.Cursor, limit int) ([]*domain.KnowledgeAsset, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+assetColumns+` FROM knowledge_assets
			 WHERE project_id = $1 AND (updated_at, id) < ($2, $3)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $4`,
			projectID, cursor.Timestamp, cursor.LastID, limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+assetColumns+` FROM knowledge_assets
			 WHERE project_id = $1
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $2`,
			projectID, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAssetRows(rows)
}

// UpdateStatus performs the status transition as a compare-and-swap so a
// concurrent transition cannot be silently overwritten.
func (r *AssetRepository) UpdateStatus(ctx context.Context, id string, from, to domain.AssetStatus, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_assets SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, now, id, from,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		// distinguish missing asset from wrong current status
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrInvalidStatusTransition
	}
	return nil
}

func (r *AssetRepository) UpdateSummary(ctx context.Context, id, summary string, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_assets SET summary = $1, updated_at = $2 WHERE id = $3`,
		summary, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

func (r *AssetRepository) SetMetadataKey(ctx context.Context, id, key, value string, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_assets
		 SET metadata = jsonb_set(metadata, ARRAY[$1], to_jsonb($2::text)), updated_at = $3
		 WHERE id = $4`,
		key, value, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

// MarkOrphanedBySource orphans every linked asset whose source reference
// equals the deleted document: traceability flips, the source reference is
// cleared, and the audit fields are stamped. Derived content is untouched.
func (r *AssetRepository) MarkOrphanedBySource(ctx context.Context, sourceRef, reason string, now time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_assets
		 SET traceability = $1, source_ref = NULL, orphaned_at = $2, orphaned_reason = $3, updated_at = $2
		 WHERE source_ref = $4 AND traceability = $5`,
		domain.TraceabilityOrphaned, now, reason, sourceRef, domain.TraceabilityLinked,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// MarkOrphaned force-orphans a single linked asset (used by the sweep when a
// source no longer exists but no notification arrived).
func (r *AssetRepository) MarkOrphaned(ctx context.Context, id, reason string, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_assets
		 SET traceability = $1, source_ref = NULL, orphaned_at = $2, orphaned_reason = $3, updated_at = $2
		 WHERE id = $4 AND traceability = $5`,
		domain.TraceabilityOrphaned, now, reason, id, domain.TraceabilityLinked,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrInvalidTraceabilityTransition
	}
	return nil
}

func (r *AssetRepository) ArchiveTraceability(ctx context.Context, id string, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_assets SET traceability = $1, updated_at = $2
		 WHERE id = $3 AND traceability IN ($4, $5)`,
		domain.TraceabilityArchived, now, id, domain.TraceabilityLinked, domain.TraceabilityOrphaned,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrInvalidTraceabilityTransition
	}
	return nil
}

func (r *AssetRepository) ListLinkedSourceRefs(ctx context.Context) ([]domain.LinkedSourceRef, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, source_ref FROM knowledge_assets
		 WHERE traceability = $1 AND source_ref IS NOT NULL
		 ORDER BY created_at ASC`,
		domain.TraceabilityLinked,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []domain.LinkedSourceRef
	for rows.Next() {
		var ref domain.LinkedSourceRef
		if err := rows.Scan(&ref.AssetID, &ref.SourceRef); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// RecomputeStats rebuilds the processing_stats aggregate from the current
// live chunk and relationship rows. The aggregate is never caller-supplied.
func (r *AssetRepository) RecomputeStats(ctx context.Context, id string, now time.Time) (*domain.ProcessingStats, error) {
	var stats domain.ProcessingStats
	err := r.db.QueryRow(ctx,
		`UPDATE knowledge_assets SET
			chunk_count = c.total,
			embedded_chunk_count = c.embedded,
			token_count = c.tokens,
			relationship_count = rel.total,
			stats_computed_at = $2,
			updated_at = $2
		 FROM (
			SELECT COUNT(*) AS total,
			       COUNT(*) FILTER (WHERE vector_pointer IS NOT NULL) AS embedded,
			       COALESCE(SUM(token_count), 0) AS tokens
			FROM knowledge_chunks WHERE asset_id = $1 AND NOT tombstoned
		 ) c, (
			SELECT COUNT(*) AS total
			FROM knowledge_relationships
			WHERE (source_asset_id = $1 OR target_asset_id = $1) AND NOT tombstoned
		 ) rel
		 WHERE knowledge_assets.id = $1
		 RETURNING knowledge_assets.chunk_count, knowledge_assets.embedded_chunk_count,
		           knowledge_assets.relationship_count, knowledge_assets.token_count,
		           knowledge_assets.stats_computed_at`,
		id, now,
	).Scan(&stats.ChunkCount, &stats.EmbeddedChunkCount, &stats.RelationshipCount, &stats.TokenCount, &stats.ComputedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, err
	}
	return &stats, nil
}

func scanAsset(row pgx.Row) (*domain.KnowledgeAsset, error) {
	var a domain.KnowledgeAsset
	var sourceRef *string
	var statsComputedAt *time.Time
	err := row.Scan(
		&a.ID, &sourceRef, &a.ProjectID, &a.Title, &a.DocType, &a.Summary, &a.Metadata,
		&a.Stats.ChunkCount, &a.Stats.EmbeddedChunkCount, &a.Stats.RelationshipCount,
		&a.Stats.TokenCount, &statsComputedAt,
		&a.Status, &a.Traceability, &a.OrphanedAt, &a.OrphanedReason, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.SourceRef = derefString(sourceRef)
	if statsComputedAt != nil {
		a.Stats.ComputedAt = *statsComputedAt
	}
	return &a, nil
}

func scanAssetRows(rows pgx.Rows) ([]*domain.KnowledgeAsset, error) {
	var results []*domain.KnowledgeAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}
