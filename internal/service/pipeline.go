package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/telemetry"
)

type ChunkRepositoryInterface interface {
	InsertBatch(ctx context.Context, chunks []*domain.KnowledgeChunk) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeChunk, error)
	ListByAsset(ctx context.Context, assetID string) ([]*domain.KnowledgeChunk, error)
	ListUnembedded(ctx context.Context, assetID string) ([]*domain.KnowledgeChunk, error)
	StampVectorPointer(ctx context.Context, id, pointer, embeddingModel string, now time.Time) error
	UpdateContent(ctx context.Context, id string, chunkType domain.ChunkType, content string, tokenCount int, contentHash string, now time.Time) error
	TombstoneByAsset(ctx context.Context, assetID string, now time.Time) ([]string, error)
	Delete(ctx context.Context, id string) error
	ListStampedPointers(ctx context.Context) ([]string, error)
}

const (
	embedBatchSize     = 16
	externalStoreTries = 4
)

// PipelineService runs the chunk and embed stages of the pipeline against the
// relational and vector stores.
type PipelineService struct {
	assetRepo AssetRepositoryInterface
	chunkRepo ChunkRepositoryInterface
	vectors   VectorStore
	embedder  EmbeddingClient
	intake    IntakeClient
	chunker   *Chunker
	uuidGen   UUIDGenerator
	embedSem  *semaphore.Weighted
}

func NewPipelineService(
	assetRepo AssetRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	vectors VectorStore,
	embedder EmbeddingClient,
	intake IntakeClient,
	chunker *Chunker,
	maxConcurrentEmbedBatches int64,
) *PipelineService {
	if maxConcurrentEmbedBatches <= 0 {
		maxConcurrentEmbedBatches = 2
	}
	return &PipelineService{
		assetRepo: assetRepo,
		chunkRepo: chunkRepo,
		vectors:   vectors,
		embedder:  embedder,
		intake:    intake,
		chunker:   chunker,
		uuidGen:   &DefaultUUIDGenerator{},
		embedSem:  semaphore.NewWeighted(maxConcurrentEmbedBatches),
	}
}

// retryExternal wraps a call to an external collaborator with bounded
// exponential backoff.
func retryExternal(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), externalStoreTries-1), ctx)
	return backoff.Retry(op, policy)
}

// ChunkAsset fetches the asset's source content and replaces its live chunks
// with a fresh structural split. Re-chunking unchanged content is a no-op, so
// a retried chunk job converges. Returns the number of live chunks.
func (s *PipelineService) ChunkAsset(ctx context.Context, assetID string, params domain.ExtractionParams) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "PipelineService.ChunkAsset", telemetry.SpanAttributes{
		AssetID:   assetID,
		Operation: "chunk",
	})
	defer span.End()

	asset, err := s.assetRepo.GetByID(ctx, assetID)
	if err != nil {
		return 0, err
	}
	if asset.Status == domain.AssetStatusArchived {
		return 0, domain.NewDomainError(domain.ErrCodeInvalidOperation, "archived asset cannot be processed")
	}
	if asset.SourceRef == "" {
		return 0, domain.NewDomainError(domain.ErrCodeInvalidOperation, "asset has no source reference to chunk from")
	}

	var content string
	err = retryExternal(ctx, func() error {
		var fetchErr error
		content, fetchErr = s.intake.Fetch(ctx, asset.SourceRef)
		return fetchErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch source content: %w", err)
	}

	pieces, err := s.chunker.Split(content, params)
	if err != nil {
		return 0, err
	}
	if len(pieces) == 0 {
		return 0, domain.NewDomainError(domain.ErrCodeValidation, "source content produced no chunks")
	}

	existing, err := s.chunkRepo.ListByAsset(ctx, assetID)
	if err != nil {
		return 0, err
	}
	if chunksMatch(existing, pieces) {
		return len(existing), nil
	}

	now := time.Now().UTC()
	stalePointers, err := s.chunkRepo.TombstoneByAsset(ctx, assetID, now)
	if err != nil {
		return 0, err
	}
	// stale vectors are deleted best-effort; the reconciliation sweep picks up
	// anything left behind
	for _, pointer := range stalePointers {
		_ = s.vectors.Delete(ctx, pointer)
	}

	chunks := make([]*domain.KnowledgeChunk, 0, len(pieces))
	for _, piece := range pieces {
		chunks = append(chunks, &domain.KnowledgeChunk{
			ID:             s.uuidGen.NewString(),
			AssetID:        assetID,
			SequenceNumber: piece.Sequence,
			Type:           piece.Type,
			Content:        piece.Content,
			TokenCount:     piece.TokenCount,
			ContentHash:    domain.ChunkContentHash(piece.Type, piece.Content),
			Metadata:       map[string]string{},
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if err := s.chunkRepo.InsertBatch(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// chunksMatch reports whether the existing live chunks already carry exactly
// the content the split produced, sequence for sequence.
func chunksMatch(existing []*domain.KnowledgeChunk, pieces []ChunkPiece) bool {
	if len(existing) != len(pieces) {
		return false
	}
	for i, chunk := range existing {
		if chunk.SequenceNumber != pieces[i].Sequence {
			return false
		}
		if chunk.ContentHash != domain.ChunkContentHash(pieces[i].Type, pieces[i].Content) {
			return false
		}
	}
	return true
}

// EmbedAsset embeds every live chunk that has no vector pointer yet. Each
// chunk follows the write-secondary-then-stamp protocol: upsert the vector
// entry under its deterministic pointer, then stamp the pointer on the row.
// A partially embedded asset resumes from the unstamped chunks only.
func (s *PipelineService) EmbedAsset(ctx context.Context, assetID string, progress func(done, total int)) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "PipelineService.EmbedAsset", telemetry.SpanAttributes{
		AssetID:   assetID,
		Operation: "embed",
	})
	defer span.End()

	chunks, err := s.chunkRepo.ListUnembedded(ctx, assetID)
	if err != nil {
		return 0, err
	}
	total := len(chunks)
	if total == 0 {
		return 0, nil
	}

	model := s.embedder.EmbeddingModel()
	done := 0
	for start := 0; start < total; start += embedBatchSize {
		end := start + embedBatchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		if err := s.embedSem.Acquire(ctx, 1); err != nil {
			return done, err
		}
		embeddings, err := s.embedBatch(ctx, batch)
		s.embedSem.Release(1)
		if err != nil {
			return done, err
		}

		now := time.Now().UTC()
		for i, chunk := range batch {
			pointer := domain.VectorPointerFor(chunk.ID, model)
			payload := map[string]string{
				"asset_id": chunk.AssetID,
				"sequence": strconv.Itoa(chunk.SequenceNumber),
				"type":     string(chunk.Type),
			}
			embedding := embeddings[i]
			err := retryExternal(ctx, func() error {
				return s.vectors.Upsert(ctx, pointer, embedding, payload)
			})
			if err != nil {
				return done, domain.NewDomainErrorWithCause(domain.ErrCodeExternalStore, "vector store write failed", err)
			}
			if err := s.chunkRepo.StampVectorPointer(ctx, chunk.ID, pointer, model, now); err != nil {
				return done, err
			}
			done++
		}
		if progress != nil {
			progress(done, total)
		}
	}
	return done, nil
}

func (s *PipelineService) embedBatch(ctx context.Context, batch []*domain.KnowledgeChunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}

	var embeddings [][]float32
	err := retryExternal(ctx, func() error {
		var embedErr error
		embeddings, embedErr = s.embedder.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(embeddings) != len(batch) {
		return nil, fmt.Errorf("embedding count mismatch: %d chunks, %d embeddings", len(batch), len(embeddings))
	}
	return embeddings, nil
}

// ReembedChunk re-embeds one chunk under the current model and supersedes its
// previous vector entry: new entry first, old entry removed, row restamped.
func (s *PipelineService) ReembedChunk(ctx context.Context, chunkID string) error {
	chunk, err := s.chunkRepo.GetByID(ctx, chunkID)
	if err != nil {
		return err
	}
	if chunk.Tombstoned {
		return domain.NewDomainError(domain.ErrCodeInvalidOperation, "tombstoned chunk cannot be re-embedded")
	}

	embeddings, err := s.embedBatch(ctx, []*domain.KnowledgeChunk{chunk})
	if err != nil {
		return err
	}

	model := s.embedder.EmbeddingModel()
	pointer := domain.VectorPointerFor(chunk.ID, model)
	payload := map[string]string{
		"asset_id": chunk.AssetID,
		"sequence": strconv.Itoa(chunk.SequenceNumber),
		"type":     string(chunk.Type),
	}
	err = retryExternal(ctx, func() error {
		return s.vectors.Upsert(ctx, pointer, embeddings[0], payload)
	})
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeExternalStore, "vector store write failed", err)
	}

	if chunk.VectorPointer != "" && chunk.VectorPointer != pointer {
		_ = s.vectors.Delete(ctx, chunk.VectorPointer)
	}
	return s.chunkRepo.StampVectorPointer(ctx, chunk.ID, pointer, model, time.Now().UTC())
}
