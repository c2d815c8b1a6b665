package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// VectorPointerFor derives the vector-store key for a chunk embedded under a
// model. The key is deterministic so a retried embed job converges on the same
// entry instead of creating a duplicate.
func VectorPointerFor(chunkID, embeddingModel string) string {
	return "chunk:" + chunkID + ":" + embeddingModel
}

// GraphPointerFor derives the graph-store key for an edge tuple.
func GraphPointerFor(sourceAssetID, targetAssetID string, relType RelationshipType) string {
	sum := sha256.Sum256([]byte(sourceAssetID + "\x00" + targetAssetID + "\x00" + string(relType)))
	return "edge:" + hex.EncodeToString(sum[:])
}
