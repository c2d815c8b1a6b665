package graphstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client)
}

func TestUpsertEdge_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertEdge(ctx, "edge:abc", "asset-1", "asset-2", "references", 0.85)
	require.NoError(t, err)

	edge, err := store.GetEdge(ctx, "edge:abc")
	require.NoError(t, err)
	require.NotNil(t, edge)

	assert.Equal(t, "asset-1", edge.SourceAssetID)
	assert.Equal(t, "asset-2", edge.TargetAssetID)
	assert.Equal(t, "references", edge.Type)
	assert.Equal(t, 0.85, edge.Confidence)
}

func TestUpsertEdge_IsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEdge(ctx, "edge:abc", "asset-1", "asset-2", "references", 0.85))
	require.NoError(t, store.UpsertEdge(ctx, "edge:abc", "asset-1", "asset-2", "references", 0.85))

	pointers, err := store.ListPointers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"edge:abc"}, pointers)

	neighbors, err := store.Neighbors(ctx, "asset-1")
	require.NoError(t, err)
	assert.Len(t, neighbors, 1)
}

func TestGetEdge_AbsentPointer(t *testing.T) {
	store := newTestStore(t)

	edge, err := store.GetEdge(context.Background(), "edge:missing")
	require.NoError(t, err)
	assert.Nil(t, edge)
}

func TestDeleteEdge_RemovesAllEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEdge(ctx, "edge:abc", "asset-1", "asset-2", "references", 0.85))
	require.NoError(t, store.DeleteEdge(ctx, "edge:abc"))

	edge, err := store.GetEdge(ctx, "edge:abc")
	require.NoError(t, err)
	assert.Nil(t, edge)

	pointers, err := store.ListPointers(ctx)
	require.NoError(t, err)
	assert.Empty(t, pointers)

	neighbors, err := store.Neighbors(ctx, "asset-1")
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestDeleteEdge_AbsentPointerIsNoOp(t *testing.T) {
	store := newTestStore(t)

	err := store.DeleteEdge(context.Background(), "edge:missing")
	assert.NoError(t, err)
}

func TestNeighbors_CoversBothDirections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEdge(ctx, "edge:ab", "asset-a", "asset-b", "references", 0.9))
	require.NoError(t, store.UpsertEdge(ctx, "edge:cb", "asset-c", "asset-b", "depends_on", 0.7))

	neighbors, err := store.Neighbors(ctx, "asset-b")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"edge:ab", "edge:cb"}, neighbors)
}
