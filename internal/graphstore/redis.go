package graphstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	edgePrefix      = "graph:edge:"
	adjacencyPrefix = "graph:adj:"
	edgeIndexKey    = "graph:edges"
)

// Edge is the denormalized form of a relationship written to the graph store.
type Edge struct {
	SourceAssetID string
	TargetAssetID string
	Type          string
	Confidence    float64
}

// Store keeps relationship edges in Redis: one hash per edge keyed by the
// deterministic pointer, adjacency sets per asset for traversal, and a global
// index set for reconciliation.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// UpsertEdge writes the edge behind a pointer. The hash overwrite and set adds
// are idempotent, so a retried extraction converges on the same entry.
func (s *Store) UpsertEdge(ctx context.Context, pointer, sourceAssetID, targetAssetID, relType string, confidence float64) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, edgePrefix+pointer, map[string]interface{}{
		"source":     sourceAssetID,
		"target":     targetAssetID,
		"type":       relType,
		"confidence": confidence,
	})
	pipe.SAdd(ctx, adjacencyPrefix+sourceAssetID, pointer)
	pipe.SAdd(ctx, adjacencyPrefix+targetAssetID, pointer)
	pipe.SAdd(ctx, edgeIndexKey, pointer)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert graph edge: %w", err)
	}
	return nil
}

// GetEdge returns the edge behind a pointer, or nil when absent.
func (s *Store) GetEdge(ctx context.Context, pointer string) (*Edge, error) {
	fields, err := s.client.HGetAll(ctx, edgePrefix+pointer).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get graph edge: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	confidence, err := strconv.ParseFloat(fields["confidence"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse edge confidence: %w", err)
	}
	return &Edge{
		SourceAssetID: fields["source"],
		TargetAssetID: fields["target"],
		Type:          fields["type"],
		Confidence:    confidence,
	}, nil
}

// DeleteEdge removes the edge behind a pointer along with its adjacency
// entries. Deleting an absent pointer is not an error.
func (s *Store) DeleteEdge(ctx context.Context, pointer string) error {
	edge, err := s.GetEdge(ctx, pointer)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, edgePrefix+pointer)
	pipe.SRem(ctx, edgeIndexKey, pointer)
	if edge != nil {
		pipe.SRem(ctx, adjacencyPrefix+edge.SourceAssetID, pointer)
		pipe.SRem(ctx, adjacencyPrefix+edge.TargetAssetID, pointer)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete graph edge: %w", err)
	}
	return nil
}

// ListPointers returns every edge pointer in the store, for the reconciliation
// sweep's orphaned-entry pass.
func (s *Store) ListPointers(ctx context.Context) ([]string, error) {
	pointers, err := s.client.SMembers(ctx, edgeIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list graph pointers: %w", err)
	}
	return pointers, nil
}

// Neighbors returns the pointers of edges touching an asset.
func (s *Store) Neighbors(ctx context.Context, assetID string) ([]string, error) {
	pointers, err := s.client.SMembers(ctx, adjacencyPrefix+assetID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list adjacent edges: %w", err)
	}
	return pointers, nil
}
