//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/testutil"
)

func setupPool(t *testing.T) (context.Context, *pgxpool.Pool) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)

	return ctx, pool
}

func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func seedAsset(ctx context.Context, t *testing.T, repo *AssetRepository) *domain.KnowledgeAsset {
	t.Helper()
	a := domain.NewKnowledgeAsset(uuid.NewString(), "s3://bucket/"+uuid.NewString()+".md", "project-1", "Test Asset", "markdown", testNow())
	require.NoError(t, repo.Create(ctx, a))
	return a
}

func seedChunk(ctx context.Context, t *testing.T, repo *ChunkRepository, assetID string, seq int) *domain.KnowledgeChunk {
	t.Helper()
	content := "chunk content " + uuid.NewString()
	c := &domain.KnowledgeChunk{
		ID:             uuid.NewString(),
		AssetID:        assetID,
		SequenceNumber: seq,
		Type:           domain.ChunkTypeText,
		Content:        content,
		TokenCount:     4,
		ContentHash:    domain.ChunkContentHash(domain.ChunkTypeText, content),
		Metadata:       map[string]string{},
		CreatedAt:      testNow(),
		UpdatedAt:      testNow(),
	}
	require.NoError(t, repo.InsertBatch(ctx, []*domain.KnowledgeChunk{c}))
	return c
}
