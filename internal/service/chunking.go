package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lodestone-ai/lodestone/internal/domain"
)

const (
	// DefaultMinChunkChars is the floor below which a text piece is merged
	// into its predecessor.
	DefaultMinChunkChars = 64
	// DefaultMaxChunkTokens caps a single chunk at the embedding window.
	DefaultMaxChunkTokens = 512

	chunkEncoding = "cl100k_base"
)

// ChunkPiece is one structural unit produced by the chunker before it is
// persisted as a KnowledgeChunk.
type ChunkPiece struct {
	Sequence   int
	Type       domain.ChunkType
	Content    string
	TokenCount int
}

// Chunker splits source content along structural boundaries and counts tokens
// with the embedding tokenizer, so chunk sizes line up with what the
// embedding model actually sees.
type Chunker struct {
	encoder *tiktoken.Tiktoken
}

func NewChunker() (*Chunker, error) {
	enc, err := tiktoken.GetEncoding(chunkEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	return &Chunker{encoder: enc}, nil
}

// CountTokens returns the token count of text under the chunk encoding.
func (c *Chunker) CountTokens(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}

// Split chunks content into ordered pieces. Structural boundaries (headings,
// code fences, tables, lists, blank lines) come first; caller-supplied
// boundary patterns force additional splits; pieces under the minimum are
// merged forward and pieces over the token cap are windowed.
func (c *Chunker) Split(content string, params domain.ExtractionParams) ([]ChunkPiece, error) {
	minChars := params.MinChunkChars
	if minChars <= 0 {
		minChars = DefaultMinChunkChars
	}
	maxTokens := params.MaxChunkTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}

	boundaries := make([]*regexp.Regexp, 0, len(params.BoundaryPatterns))
	for _, pattern := range params.BoundaryPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation,
				fmt.Sprintf("invalid boundary pattern %q", pattern), err)
		}
		boundaries = append(boundaries, re)
	}

	blocks := splitBlocks(content, boundaries)

	var pieces []ChunkPiece
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		blockType := classifyBlock(trimmed)

		// small text runs merge into a preceding text piece instead of
		// becoming their own chunk
		if blockType == domain.ChunkTypeText && len(trimmed) < minChars && len(pieces) > 0 &&
			pieces[len(pieces)-1].Type == domain.ChunkTypeText {
			pieces[len(pieces)-1].Content += "\n\n" + trimmed
			continue
		}

		pieces = append(pieces, ChunkPiece{Type: blockType, Content: trimmed})
	}

	var out []ChunkPiece
	for _, piece := range pieces {
		for _, windowed := range c.windowPiece(piece, maxTokens) {
			windowed.Sequence = len(out)
			out = append(out, windowed)
		}
	}
	return out, nil
}

// windowPiece splits a piece exceeding the token cap into consecutive token
// windows of the same type.
func (c *Chunker) windowPiece(piece ChunkPiece, maxTokens int) []ChunkPiece {
	tokens := c.encoder.Encode(piece.Content, nil, nil)
	if len(tokens) <= maxTokens {
		piece.TokenCount = len(tokens)
		return []ChunkPiece{piece}
	}

	var out []ChunkPiece
	for start := 0; start < len(tokens); start += maxTokens {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		content := strings.TrimSpace(c.encoder.Decode(window))
		if content == "" {
			continue
		}
		out = append(out, ChunkPiece{
			Type:       piece.Type,
			Content:    content,
			TokenCount: len(window),
		})
	}
	return out
}

// splitBlocks cuts content into blocks on blank lines, headings, and caller
// boundaries. Fenced code stays together regardless of blank lines inside.
func splitBlocks(content string, boundaries []*regexp.Regexp) []string {
	lines := strings.Split(content, "\n")

	var blocks []string
	var current []string
	inFence := false

	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				current = append(current, line)
				flush()
				inFence = false
			} else {
				flush()
				inFence = true
				current = append(current, line)
			}
			continue
		}
		if inFence {
			current = append(current, line)
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			flush()
			blocks = append(blocks, line)
			continue
		}

		if matchesBoundary(trimmed, boundaries) {
			flush()
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

func matchesBoundary(line string, boundaries []*regexp.Regexp) bool {
	for _, re := range boundaries {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

var (
	listLineRe  = regexp.MustCompile(`^\s*([-*+]\s|\d+[.)]\s)`)
	tableLineRe = regexp.MustCompile(`^\s*\|.*\|\s*$`)
)

func classifyBlock(block string) domain.ChunkType {
	lines := strings.Split(block, "\n")
	first := strings.TrimSpace(lines[0])

	switch {
	case strings.HasPrefix(first, "```"):
		return domain.ChunkTypeCode
	case strings.HasPrefix(first, "#") && len(lines) == 1:
		return domain.ChunkTypeTitle
	case tableLineRe.MatchString(first) && len(lines) >= 2:
		return domain.ChunkTypeTable
	case listLineRe.MatchString(first):
		return domain.ChunkTypeList
	}
	return domain.ChunkTypeText
}
