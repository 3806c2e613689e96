package assembler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrConfig marks an invalid assembler configuration.
var ErrConfig = errors.New("invalid assembler configuration")

// RetrievedChunk is a chunk returned by vector search, carrying the
// similarity score and the metadata needed to render it into a prompt.
type RetrievedChunk struct {
	OrgID      string
	DocumentID uuid.UUID
	Index      int
	Text       string
	Score      float32
	Source     string // filename or page URL the chunk came from
	Title      string
	URL        string
}

// RenderFunc formats one retrieved chunk as a self-delimited context block.
// The rendered length is what counts against the budget, so any separator
// belongs in the rendered output.
type RenderFunc func(RetrievedChunk) string

// Config controls context assembly.
type Config struct {
	MaxContextChars int
	Render          RenderFunc // nil means DefaultRender
}

func (c Config) Validate() error {
	if c.MaxContextChars <= 0 {
		return fmt.Errorf("%w: max context chars must be positive, got %d", ErrConfig, c.MaxContextChars)
	}
	return nil
}

// DefaultRender attributes each chunk to its source document.
func DefaultRender(rc RetrievedChunk) string {
	source := rc.Source
	if source == "" {
		source = rc.URL
	}
	if source == "" {
		source = "unknown source"
	}
	return fmt.Sprintf("From %s:\n%s\n\n", source, rc.Text)
}

// ContextBlock is the assembled prompt context for one query. Chunks holds
// the included subsequence in relevance order; Text is the rendered string,
// never longer than the configured budget.
type ContextBlock struct {
	Chunks []RetrievedChunk
	Text   string
}

// Build assembles a bounded context from chunks ranked by descending
// relevance. Duplicate (document, index) pairs are collapsed to the
// higher-scoring occurrence, then chunks are packed greedily: one whose
// rendered form would overflow the budget is skipped, but later smaller
// chunks are still considered. An empty input yields an empty block.
func Build(ranked []RetrievedChunk, cfg Config) (ContextBlock, error) {
	if err := cfg.Validate(); err != nil {
		return ContextBlock{}, err
	}
	render := cfg.Render
	if render == nil {
		render = DefaultRender
	}

	var (
		included []RetrievedChunk
		text     strings.Builder
	)
	for _, rc := range dedupe(ranked) {
		rendered := render(rc)
		if text.Len()+len(rendered) > cfg.MaxContextChars {
			continue
		}
		text.WriteString(rendered)
		included = append(included, rc)
	}
	return ContextBlock{Chunks: included, Text: text.String()}, nil
}

type chunkKey struct {
	doc uuid.UUID
	idx int
}

// dedupe keeps one chunk per (document, index), preferring the higher
// score. Order of the survivors follows the input.
func dedupe(ranked []RetrievedChunk) []RetrievedChunk {
	if len(ranked) < 2 {
		return ranked
	}
	pos := make(map[chunkKey]int, len(ranked))
	out := make([]RetrievedChunk, 0, len(ranked))
	for _, rc := range ranked {
		key := chunkKey{doc: rc.DocumentID, idx: rc.Index}
		if at, seen := pos[key]; seen {
			if rc.Score > out[at].Score {
				out[at] = rc
			}
			continue
		}
		pos[key] = len(out)
		out = append(out, rc)
	}
	return out
}
