package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store persists chunk embeddings in the vector_entries table, keyed by the
// deterministic pointer minted for each (chunk, model) pair. The embedding
// column is untyped so entries produced by models of different dimensionality
// coexist in one table.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert writes or overwrites the entry behind a pointer. Retries of the same
// embed work land on the same row.
func (s *Store) Upsert(ctx context.Context, pointer string, embedding []float32, payload map[string]string) error {
	data := []byte("{}")
	if len(payload) > 0 {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal vector payload: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO vector_entries (pointer, embedding, payload, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (pointer) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		pointer, pgvector.NewVector(embedding), data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vector entry: %w", err)
	}
	return nil
}

// Delete removes the entry behind a pointer. Deleting an absent pointer is not
// an error; cleanup paths retry until the entry is gone.
func (s *Store) Delete(ctx context.Context, pointer string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM vector_entries WHERE pointer = $1`, pointer)
	if err != nil {
		return fmt.Errorf("failed to delete vector entry: %w", err)
	}
	return nil
}

// ListPointers returns every pointer currently stored, for the reconciliation
// sweep's orphaned-entry pass.
func (s *Store) ListPointers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT pointer FROM vector_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vector pointers: %w", err)
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
