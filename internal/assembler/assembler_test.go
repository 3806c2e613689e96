package assembler

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// rawRender keeps rendered length equal to the chunk text length, which
// makes the packing arithmetic in these tests exact.
func rawRender(rc RetrievedChunk) string {
	return rc.Text
}

func TestBuildEmptyInput(t *testing.T) {
	block, err := Build(nil, Config{MaxContextChars: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block.Text != "" {
		t.Errorf("expected empty text, got %q", block.Text)
	}
	if len(block.Chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(block.Chunks))
	}
}

func TestBuildInvalidConfig(t *testing.T) {
	for _, budget := range []int{0, -5} {
		_, err := Build(nil, Config{MaxContextChars: budget})
		if !errors.Is(err, ErrConfig) {
			t.Errorf("budget %d: expected ErrConfig, got %v", budget, err)
		}
	}
}

func TestBuildGreedyPacking(t *testing.T) {
	docID := uuid.New()
	// Rendered lengths 900, 200, 300 against a budget of 500: the oversized
	// top chunk is skipped, the two smaller ones fill the budget exactly.
	ranked := []RetrievedChunk{
		{DocumentID: docID, Index: 0, Text: strings.Repeat("a", 900), Score: 0.9},
		{DocumentID: docID, Index: 1, Text: strings.Repeat("b", 200), Score: 0.8},
		{DocumentID: docID, Index: 2, Text: strings.Repeat("c", 300), Score: 0.7},
	}

	block, err := Build(ranked, Config{MaxContextChars: 500, Render: rawRender})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(block.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(block.Chunks))
	}
	if block.Chunks[0].Index != 1 || block.Chunks[1].Index != 2 {
		t.Errorf("expected chunks 1 and 2 in relevance order, got %d and %d",
			block.Chunks[0].Index, block.Chunks[1].Index)
	}
	if len(block.Text) != 500 {
		t.Errorf("expected rendered length 500, got %d", len(block.Text))
	}
}

func TestBuildBudgetNeverExceeded(t *testing.T) {
	docID := uuid.New()
	var ranked []RetrievedChunk
	for i := 0; i < 20; i++ {
		ranked = append(ranked, RetrievedChunk{
			DocumentID: docID,
			Index:      i,
			Text:       strings.Repeat("x", 37*(i+1)%211+1),
			Score:      1 - float32(i)*0.01,
		})
	}
	for _, budget := range []int{1, 50, 137, 1000} {
		block, err := Build(ranked, Config{MaxContextChars: budget, Render: rawRender})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(block.Text) > budget {
			t.Errorf("budget %d exceeded: rendered %d chars", budget, len(block.Text))
		}
	}
}

func TestBuildDedupKeepsHigherScore(t *testing.T) {
	docID := uuid.New()
	ranked := []RetrievedChunk{
		{DocumentID: docID, Index: 3, Text: "high scoring copy", Score: 0.95},
		{DocumentID: docID, Index: 3, Text: "low scoring copy", Score: 0.40},
		{DocumentID: docID, Index: 4, Text: "another chunk", Score: 0.30},
	}

	block, err := Build(ranked, Config{MaxContextChars: 10_000, Render: rawRender})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(block.Chunks) != 2 {
		t.Fatalf("expected 2 chunks after dedup, got %d", len(block.Chunks))
	}
	if block.Chunks[0].Text != "high scoring copy" {
		t.Errorf("expected the higher-scoring duplicate to survive, got %q", block.Chunks[0].Text)
	}
	if strings.Contains(block.Text, "low scoring copy") {
		t.Error("lower-scoring duplicate leaked into the rendered context")
	}
}

func TestBuildDedupAcrossDocumentsKeepsBoth(t *testing.T) {
	ranked := []RetrievedChunk{
		{DocumentID: uuid.New(), Index: 0, Text: "doc one chunk", Score: 0.9},
		{DocumentID: uuid.New(), Index: 0, Text: "doc two chunk", Score: 0.8},
	}
	block, err := Build(ranked, Config{MaxContextChars: 10_000, Render: rawRender})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(block.Chunks) != 2 {
		t.Errorf("same index in different documents is not a duplicate; got %d chunks", len(block.Chunks))
	}
}

func TestDefaultRender(t *testing.T) {
	rc := RetrievedChunk{Source: "report.pdf", Text: "quarterly revenue grew"}
	got := DefaultRender(rc)
	if !strings.HasPrefix(got, "From report.pdf:\n") {
		t.Errorf("unexpected render prefix: %q", got)
	}
	if !strings.Contains(got, "quarterly revenue grew") {
		t.Error("render dropped the chunk text")
	}

	// URL fallback when no filename is present (scraped pages).
	rc = RetrievedChunk{URL: "https://example.com/docs", Text: "body"}
	if got := DefaultRender(rc); !strings.HasPrefix(got, "From https://example.com/docs:\n") {
		t.Errorf("expected URL fallback, got %q", got)
	}
}
