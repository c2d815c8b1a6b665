package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lodestone-ai/lodestone/internal/domain"
)

const chunkColumns = `id, asset_id, sequence_number, chunk_type, content, token_count,
	content_hash, embedding_model, vector_pointer, metadata, tombstoned, created_at, updated_at`

type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []*domain.KnowledgeChunk) error {
	for _, c := range chunks {
		_, err := r.db.Exec(ctx,
			`INSERT INTO knowledge_chunks
				(id, asset_id, sequence_number, chunk_type, content, token_count, content_hash, embedding_model, vector_pointer, metadata, tombstoned, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			c.ID, c.AssetID, c.SequenceNumber, c.Type, c.Content, c.TokenCount,
			c.ContentHash, c.EmbeddingModel, nullableString(c.VectorPointer),
			emptyMetadata(c.Metadata), c.Tombstoned, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateSequence
			}
			return err
		}
	}
	return nil
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeChunk, error) {
	row := r.db.QueryRow(ctx, `SELECT `+chunkColumns+` FROM knowledge_chunks WHERE id = $1`, id)
	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListByAsset returns the live chunks of an asset in sequence order.
func (r *ChunkRepository) ListByAsset(ctx context.Context, assetID string) ([]*domain.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM knowledge_chunks
		 WHERE asset_id = $1 AND NOT tombstoned
		 ORDER BY sequence_number ASC`,
		assetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// ListUnembedded returns live chunks of an asset with no vector pointer, so a
// retried embed job resumes only the work that is missing.
func (r *ChunkRepository) ListUnembedded(ctx context.Context, assetID string) ([]*domain.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM knowledge_chunks
		 WHERE asset_id = $1 AND NOT tombstoned AND vector_pointer IS NULL
		 ORDER BY sequence_number ASC`,
		assetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// StampVectorPointer records the vector-store pointer on the chunk row. This
// is the final step of the write-secondary-then-stamp protocol.
func (r *ChunkRepository) StampVectorPointer(ctx context.Context, id, pointer, embeddingModel string, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_chunks SET vector_pointer = $1, embedding_model = $2, updated_at = $3 WHERE id = $4`,
		pointer, embeddingModel, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

func (r *ChunkRepository) UpdateContent(ctx context.Context, id string, chunkType domain.ChunkType, content string, tokenCount int, contentHash string, now time.Time) error {
	// edited content invalidates the stored vector; the pointer is cleared so
	// the next embed pass re-embeds this chunk
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_chunks
		 SET chunk_type = $1, content = $2, token_count = $3, content_hash = $4,
		     vector_pointer = NULL, embedding_model = '', updated_at = $5
		 WHERE id = $6 AND NOT tombstoned`,
		chunkType, content, tokenCount, contentHash, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

// TombstoneByAsset soft-deletes all live chunks of an asset, retaining them
// for audit, and returns the vector pointers they held so the caller can
// delete the stale vectors.
func (r *ChunkRepository) TombstoneByAsset(ctx context.Context, assetID string, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE knowledge_chunks SET tombstoned = TRUE, updated_at = $1
		 WHERE asset_id = $2 AND NOT tombstoned
		 RETURNING vector_pointer`,
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

// Delete hard-deletes a chunk. Relationship anchors referencing it are nulled
// by the store (soft references); the relationship rows survive.
func (r *ChunkRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM knowledge_chunks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

// ListPointersWithoutEntry is used by the reconciliation sweep: it returns the
// set of live vector pointers currently stamped on chunk rows.
func (r *ChunkRepository) ListStampedPointers(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT vector_pointer FROM knowledge_chunks WHERE vector_pointer IS NOT NULL AND NOT tombstoned`,
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

func scanChunk(row pgx.Row) (*domain.KnowledgeChunk, error) {
	var c domain.KnowledgeChunk
	var vectorPointer *string
	err := row.Scan(
		&c.ID, &c.AssetID, &c.SequenceNumber, &c.Type, &c.Content, &c.TokenCount,
		&c.ContentHash, &c.EmbeddingModel, &vectorPointer, &c.Metadata, &c.Tombstoned,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.VectorPointer = derefString(vectorPointer)
	return &c, nil
}

func scanChunkRows(rows pgx.Rows) ([]*domain.KnowledgeChunk, error) {
	var results []*domain.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
