package service

import (
	"context"

	"github.com/lodestone-ai/lodestone/internal/domain"
)

// VectorStore is the secondary store for chunk embeddings. Writes are
// idempotent upserts keyed by deterministic pointer; deleting an absent
// pointer is a no-op.
type VectorStore interface {
	Upsert(ctx context.Context, pointer string, embedding []float32, payload map[string]string) error
	Delete(ctx context.Context, pointer string) error
	ListPointers(ctx context.Context) ([]string, error)
}

// GraphStore is the secondary store for relationship edges, with the same
// idempotency contract as VectorStore.
type GraphStore interface {
	UpsertEdge(ctx context.Context, pointer, sourceAssetID, targetAssetID, relType string, confidence float64) error
	DeleteEdge(ctx context.Context, pointer string) error
	ListPointers(ctx context.Context) ([]string, error)
}

// EmbeddingClient generates embeddings for chunk content.
type EmbeddingClient interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbeddingModel() string
}

// ExtractionClient proposes relationships between a source asset and a set of
// candidate targets.
type ExtractionClient interface {
	ExtractRelationships(ctx context.Context, input domain.ExtractionInput) ([]domain.RelationshipProposal, error)
}

// IntakeClient resolves source references against the external intake store.
// The engine never owns source bytes; it fetches them for processing and
// re-checks existence during the orphan sweep.
type IntakeClient interface {
	Exists(ctx context.Context, sourceRef string) (bool, error)
	Fetch(ctx context.Context, sourceRef string) (string, error)
}
