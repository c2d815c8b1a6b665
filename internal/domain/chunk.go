package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ChunkType represents the structural kind of a content chunk
type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeTitle ChunkType = "title"
	ChunkTypeTable ChunkType = "table"
	ChunkTypeList  ChunkType = "list"
	ChunkTypeCode  ChunkType = "code"
)

// KnowledgeChunk is an ordered unit of an asset's content and the unit of
// embedding. Chunks are owned by exactly one asset and cascade-delete with it.
type KnowledgeChunk struct {
	ID             string
	AssetID        string
	SequenceNumber int
	Type           ChunkType
	Content        string
	TokenCount     int
	ContentHash    string
	EmbeddingModel string // model that produced the current vector pointer
	VectorPointer  string // empty until the vector store write succeeds
	Metadata       map[string]string
	Tombstoned     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChunkContentHash derives the deterministic identity of a chunk from its
// content and type, so repeated chunking of unchanged content is detectable.
func ChunkContentHash(chunkType ChunkType, content string) string {
	h := sha256.Sum256([]byte(string(chunkType) + "\x00" + content))
	return hex.EncodeToString(h[:])
}

// ValidateChunk validates a KnowledgeChunk instance
func ValidateChunk(c *KnowledgeChunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}

	if c.AssetID == "" {
		return fmt.Errorf("chunk AssetID is required")
	}

	if c.SequenceNumber < 0 {
		return fmt.Errorf("chunk SequenceNumber cannot be negative")
	}

	if c.Content == "" {
		return fmt.Errorf("chunk Content is required")
	}

	if !isValidChunkType(c.Type) {
		return fmt.Errorf("chunk Type is invalid: %s", c.Type)
	}

	if c.TokenCount < 0 {
		return fmt.Errorf("chunk TokenCount cannot be negative")
	}

	return nil
}

func isValidChunkType(t ChunkType) bool {
	switch t {
	case ChunkTypeText, ChunkTypeTitle, ChunkTypeTable, ChunkTypeList, ChunkTypeCode:
		return true
	}
	return false
}
