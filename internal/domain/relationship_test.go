package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRelationship(t *testing.T) {
	valid := func() *KnowledgeRelationship {
		return &KnowledgeRelationship{
			ID:            "r1",
			SourceAssetID: "a1",
			TargetAssetID: "a2",
			Type:          RelationshipTypeReferences,
			Confidence:    0.8,
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *KnowledgeRelationship)
		wantErr string
	}{
		{"valid", func(r *KnowledgeRelationship) {}, ""},
		{"missing id", func(r *KnowledgeRelationship) { r.ID = "" }, "ID is required"},
		{"missing source", func(r *KnowledgeRelationship) { r.SourceAssetID = "" }, "SourceAssetID is required"},
		{"missing target", func(r *KnowledgeRelationship) { r.TargetAssetID = "" }, "TargetAssetID is required"},
		{"self edge", func(r *KnowledgeRelationship) { r.TargetAssetID = "a1" }, "cannot link an asset to itself"},
		{"bad type", func(r *KnowledgeRelationship) { r.Type = "mentions" }, "Type is invalid"},
		{"confidence above one", func(r *KnowledgeRelationship) { r.Confidence = 1.5 }, "Confidence must be in [0,1]"},
		{"confidence below zero", func(r *KnowledgeRelationship) { r.Confidence = -0.1 }, "Confidence must be in [0,1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := ValidateRelationship(r)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}

	assert.Error(t, ValidateRelationship(nil))
}

func TestRelationshipProposalUnmarshal_OmittedAnchor(t *testing.T) {
	var p RelationshipProposal
	err := json.Unmarshal([]byte(`{"target_asset_id":"a2","relationship_type":"references","confidence":0.9}`), &p)
	require.NoError(t, err)

	// an omitted anchor must not resolve to the sequence-0 chunk
	assert.Equal(t, -1, p.SourceChunkSequence)
	assert.Equal(t, "a2", p.TargetAssetID)
}

func TestRelationshipProposalUnmarshal_ExplicitAnchor(t *testing.T) {
	var p RelationshipProposal
	err := json.Unmarshal([]byte(`{"target_asset_id":"a2","relationship_type":"references","confidence":0.9,"source_chunk_sequence":0}`), &p)
	require.NoError(t, err)

	assert.Equal(t, 0, p.SourceChunkSequence)
}

func TestRelationshipTypeConstants(t *testing.T) {
	tests := []struct {
		name     string
		typeVal  RelationshipType
		expected string
	}{
		{"References", RelationshipTypeReferences, "references"},
		{"DependsOn", RelationshipTypeDependsOn, "depends_on"},
		{"Supersedes", RelationshipTypeSupersedes, "supersedes"},
		{"SimilarTo", RelationshipTypeSimilarTo, "similar_to"},
		{"PartOf", RelationshipTypePartOf, "part_of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.typeVal))
		})
	}
}
