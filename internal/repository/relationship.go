package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lodestone-ai/lodestone/internal/domain"
)

const relationshipColumns = `id, source_asset_id, target_asset_id, source_chunk_id, target_chunk_id,
	relationship_type, confidence, graph_pointer, metadata, tombstoned, created_at, updated_at`

type RelationshipRepository struct {
	db dbtx
}

func NewRelationshipRepository(pool *pgxpool.Pool) *RelationshipRepository {
	return &RelationshipRepository{db: pool}
}

func NewRelationshipRepositoryWithTx(tx pgx.Tx) *RelationshipRepository {
	return &RelationshipRepository{db: tx}
}

// Upsert inserts a proposed edge. A collision on (source, target, type) with a
// live row updates the stored confidence to the maximum of the two rather than
// inserting a duplicate, and refreshes the chunk anchors.
func (r *RelationshipRepository) Upsert(ctx context.Context, rel *domain.KnowledgeRelationship) (string, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`INSERT INTO knowledge_relationships
			(id, source_asset_id, target_asset_id, source_chunk_id, target_chunk_id, relationship_type, confidence, graph_pointer, metadata, tombstoned, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $10)
		 ON CONFLICT (source_asset_id, target_asset_id, relationship_type) WHERE NOT tombstoned
		 DO UPDATE SET
			confidence = GREATEST(knowledge_relationships.confidence, EXCLUDED.confidence),
			source_chunk_id = COALESCE(EXCLUDED.source_chunk_id, knowledge_relationships.source_chunk_id),
			target_chunk_id = COALESCE(EXCLUDED.target_chunk_id, knowledge_relationships.target_chunk_id),
			updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		rel.ID, rel.SourceAssetID, rel.TargetAssetID, rel.SourceChunkID, rel.TargetChunkID,
		rel.Type, rel.Confidence, nullableString(rel.GraphPointer), emptyMetadata(rel.Metadata),
		rel.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *RelationshipRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeRelationship, error) {
	row := r.db.QueryRow(ctx, `SELECT `+relationshipColumns+` FROM knowledge_relationships WHERE id = $1`, id)
	rel, err := scanRelationship(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRelationshipNotFound
		}
		return nil, err
	}
	return rel, nil
}

// ListByAsset returns live relationships where the asset is source or target.
func (r *RelationshipRepository) ListByAsset(ctx context.Context, assetID string) ([]*domain.KnowledgeRelationship, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+relationshipColumns+` FROM knowledge_relationships
		 WHERE (source_asset_id = $1 OR target_asset_id = $1) AND NOT tombstoned
		 ORDER BY created_at ASC`,
		assetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationshipRows(rows)
}

// StampGraphPointer records the graph-store pointer on the relationship row,
// the final step of the write-secondary-then-stamp protocol.
func (r *RelationshipRepository) StampGraphPointer(ctx context.Context, id, pointer string, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_relationships SET graph_pointer = $1, updated_at = $2 WHERE id = $3`,
		pointer, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrRelationshipNotFound
	}
	return nil
}

// TombstoneBySourceAsset soft-deletes live relationships originating from an
// asset and returns the graph pointers they held for stale-edge cleanup.
func (r *RelationshipRepository) TombstoneBySourceAsset(ctx context.Context, assetID string, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE knowledge_relationships SET tombstoned = TRUE, updated_at = $1
		 WHERE source_asset_id = $2 AND NOT tombstoned
		 RETURNING graph_pointer`,
		now, assetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pointers []string
	for rows.Next() {
		var pointer *string
		if err := rows.Scan(&pointer); err != nil {
			return nil, err
		}
		if pointer != nil {
			pointers = append(pointers, *pointer)
		}
	}
	return pointers, rows.Err()
}

// ListUnstamped returns live relationships with no graph pointer; the
// reconciliation sweep re-runs the graph write for these.
func (r *RelationshipRepository) ListUnstamped(ctx context.Context) ([]*domain.KnowledgeRelationship, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+relationshipColumns+` FROM knowledge_relationships
		 WHERE graph_pointer IS NULL AND NOT tombstoned
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationshipRows(rows)
}

// ListStampedPointers returns the graph pointers held by live relationship
// rows, for orphaned-edge reconciliation.
func (r *RelationshipRepository) ListStampedPointers(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT graph_pointer FROM knowledge_relationships WHERE graph_pointer IS NOT NULL AND NOT tombstoned`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pointers []string
	for rows.Next() {
		var pointer string
		if err := rows.Scan(&pointer); err != nil {
			return nil, err
		}
		pointers = append(pointers, pointer)
	}
	return pointers, rows.Err()
}

func scanRelationship(row pgx.Row) (*domain.KnowledgeRelationship, error) {
	var rel domain.KnowledgeRelationship
	var graphPointer *string
	err := row.Scan(
		&rel.ID, &rel.SourceAssetID, &rel.TargetAssetID, &rel.SourceChunkID, &rel.TargetChunkID,
		&rel.Type, &rel.Confidence, &graphPointer, &rel.Metadata, &rel.Tombstoned,
		&rel.CreatedAt, &rel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rel.GraphPointer = derefString(graphPointer)
	return &rel, nil
}

func scanRelationshipRows(rows pgx.Rows) ([]*domain.KnowledgeRelationship, error) {
	var results []*domain.KnowledgeRelationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rel)
	}
	return results, rows.Err()
}
