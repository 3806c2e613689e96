package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"org-rag/internal/embeddings"
)

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// SourceType says where a document's text came from.
type SourceType string

const (
	SourceFile SourceType = "file" // uploaded file
	SourcePage SourceType = "page" // scraped web page
)

var ErrDocumentNotFound = errors.New("document not found")

// Document is one ingested source text, scoped to an organization.
type Document struct {
	ID        uuid.UUID
	OrgID     string
	Filename  string
	Title     string
	URL       string
	Keywords  []string // from scraped page metadata; empty for files
	Source    SourceType
	Status    DocumentStatus
	CreatedAt time.Time
}

// Chunk mirrors chunker.Chunk in the database. (OrgID, DocumentID, Index)
// is unique, so re-chunking an unchanged document upserts in place.
type Chunk struct {
	ID          uuid.UUID
	OrgID       string
	DocumentID  uuid.UUID
	Index       int
	StartOffset int
	EndOffset   int
	Text        string
}

type Embedding struct {
	ChunkID uuid.UUID
	Vector  embeddings.Vector
	Model   string
}

// SearchResult is one chunk returned by vector search, with its similarity
// score and the document metadata needed to render it.
type SearchResult struct {
	Chunk    Chunk
	Score    float32
	Filename string
	Title    string
	URL      string
}

// Store defines the persistence contract. The Postgres implementation
// doubles as the vector index; results from TopK are already filtered to
// the requested organization.
type Store interface {
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, orgID string, id uuid.UUID) (Document, error)
	ListDocuments(ctx context.Context, orgID string) ([]Document, error)
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error
	UpsertChunks(ctx context.Context, chunks []Chunk) ([]Chunk, error)
	ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error)
	SaveEmbeddings(ctx context.Context, embs []Embedding) error
	TopK(ctx context.Context, orgID string, vector embeddings.Vector, k int) ([]SearchResult, error)
}
