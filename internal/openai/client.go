package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lodestone-ai/lodestone/internal/domain"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	// DefaultExtractionModel is the chat model used for relationship extraction
	DefaultExtractionModel = openai.GPT4oMini
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// api is the slice of the OpenAI surface the client uses, separated so tests
// can substitute a fake.
type api interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client wraps the OpenAI API for the two model calls the engine makes:
// batch embedding generation and relationship extraction.
type Client struct {
	api             api
	embeddingModel  string
	extractionModel string
}

type Config struct {
	APIKey          string
	BaseURL         string
	EmbeddingModel  string
	ExtractionModel string
}

// NewClient creates a new OpenAI client with explicit configuration.
func NewClient(cfg Config) *Client {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.ExtractionModel == "" {
		cfg.ExtractionModel = DefaultExtractionModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:             openai.NewClientWithConfig(clientCfg),
		embeddingModel:  cfg.EmbeddingModel,
		extractionModel: cfg.ExtractionModel,
	}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(Config{APIKey: apiKey}), nil
}

// EmbeddingModel returns the model name embeddings are generated under. The
// name is stamped on chunk rows so entries from different models stay
// distinguishable.
func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}

// EmbedBatch generates one embedding per input text, in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d embeddings", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}

const extractionSystemPrompt = `You analyze a source document against a list of candidate documents and propose typed relationships.

Allowed relationship types: references, depends_on, supersedes, similar_to, part_of.

Respond with a JSON object of the form:
{"proposals": [{"target_asset_id": "...", "relationship_type": "...", "confidence": 0.0, "source_chunk_sequence": 0}]}

Rules:
- target_asset_id must be one of the candidate IDs.
- confidence is your certainty in [0,1].
- source_chunk_sequence is the zero-based index of the source chunk that best supports the relationship, or -1 if none.
- Propose nothing when no relationship is evident. Do not invent targets.`

type extractionResponse struct {
	Proposals []domain.RelationshipProposal `json:"proposals"`
}

// ExtractRelationships asks the model to propose edges from the source asset
// to the candidate assets. Proposals are unfiltered; the caller applies the
// confidence floor.
func (c *Client) ExtractRelationships(ctx context.Context, input domain.ExtractionInput) ([]domain.RelationshipProposal, error) {
	if len(input.Candidates) == 0 {
		return nil, nil
	}

	userPrompt, err := buildExtractionPrompt(input)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.extractionModel,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract relationships: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	return parsed.Proposals, nil
}

func buildExtractionPrompt(input domain.ExtractionInput) (string, error) {
	candidates, err := json.Marshal(input.Candidates)
	if err != nil {
		return "", fmt.Errorf("failed to marshal candidates: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Source document: %s\n", input.SourceTitle)
	if input.SourceSummary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", input.SourceSummary)
	}
	b.WriteString("\nSource chunks (by index):\n")
	for i, chunk := range input.Chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i, chunk)
	}
	b.WriteString("\nCandidate documents:\n")
	b.Write(candidates)
	return b.String(), nil
}
