package chunker

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrConfig marks an invalid chunking configuration. Callers can test for it
// with errors.Is to distinguish bad configuration from other failures.
var ErrConfig = errors.New("invalid chunker configuration")

// Config controls how document text is split.
type Config struct {
	ChunkSize int // maximum chunk length in runes
	Overlap   int // runes shared between consecutive chunks
}

// Validate rejects configurations that would loop forever or produce
// degenerate coverage. Invalid values are never clamped.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfig, c.ChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %d", ErrConfig, c.Overlap)
	}
	if c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be less than chunk size %d", ErrConfig, c.Overlap, c.ChunkSize)
	}
	return nil
}

// Chunk is one window of a document's text. Offsets are rune offsets into
// the source text, half-open [StartOffset, EndOffset).
type Chunk struct {
	OrgID       string
	DocumentID  uuid.UUID
	Index       int
	StartOffset int
	EndOffset   int
	Text        string
}

// Split cuts text into overlapping windows of at most cfg.ChunkSize runes.
// Consecutive chunks share cfg.Overlap runes; the final chunk is clamped to
// the end of the text and may be shorter. The result covers the whole text
// with no gaps, and splitting the same text twice yields identical chunks.
// Splitting is offset based, not word-boundary aware; words may be cut at
// chunk boundaries.
func Split(text string, cfg Config) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := cfg.ChunkSize - cfg.Overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			StartOffset: start,
			EndOffset:   end,
			Text:        string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// SplitDocument chunks a document's text and stamps each chunk with its
// tenant and document identity. (orgID, docID, Index) keys the chunk for
// idempotent upserts downstream.
func SplitDocument(orgID string, docID uuid.UUID, text string, cfg Config) ([]Chunk, error) {
	chunks, err := Split(text, cfg)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].OrgID = orgID
		chunks[i].DocumentID = docID
	}
	return chunks, nil
}
