package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorPointerFor(t *testing.T) {
	pointer := VectorPointerFor("chunk-1", "text-embedding-3-small")
	assert.Equal(t, "chunk:chunk-1:text-embedding-3-small", pointer)

	// deterministic: a retry mints the same key
	assert.Equal(t, pointer, VectorPointerFor("chunk-1", "text-embedding-3-small"))

	// a different model yields a distinct entry for the same chunk
	assert.NotEqual(t, pointer, VectorPointerFor("chunk-1", "text-embedding-3-large"))
}

func TestGraphPointerFor(t *testing.T) {
	pointer := GraphPointerFor("a1", "a2", RelationshipTypeReferences)
	assert.True(t, len(pointer) > len("edge:"))
	assert.Equal(t, "edge:", pointer[:5])

	assert.Equal(t, pointer, GraphPointerFor("a1", "a2", RelationshipTypeReferences))

	// every tuple component participates in the key
	assert.NotEqual(t, pointer, GraphPointerFor("a2", "a1", RelationshipTypeReferences))
	assert.NotEqual(t, pointer, GraphPointerFor("a1", "a2", RelationshipTypeDependsOn))
}

func TestChunkContentHash(t *testing.T) {
	hash := ChunkContentHash(ChunkTypeText, "some content")
	assert.Len(t, hash, 64)

	assert.Equal(t, hash, ChunkContentHash(ChunkTypeText, "some content"))
	assert.NotEqual(t, hash, ChunkContentHash(ChunkTypeCode, "some content"))
	assert.NotEqual(t, hash, ChunkContentHash(ChunkTypeText, "other content"))
}
