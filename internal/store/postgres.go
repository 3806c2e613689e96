package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"org-rag/internal/embeddings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Advisory lock keeps concurrent services from racing on migrations.
	const lockID = 874011235

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !acquired {
		// Another service is running migrations; wait briefly and skip.
		time.Sleep(2 * time.Second)
		return nil
	}
	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			org_id TEXT NOT NULL,
			filename TEXT,
			title TEXT,
			url TEXT,
			keywords TEXT[],
			source TEXT,
			status TEXT,
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS documents_org_idx ON documents(org_id);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			org_id TEXT NOT NULL,
			document_id UUID REFERENCES documents(id) ON DELETE CASCADE,
			ord INT,
			start_offset INT,
			end_offset INT,
			text TEXT,
			UNIQUE (org_id, document_id, ord)
		);`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id UUID PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			vector vector(1536),
			model TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	// IVFFlat index for fast similarity search.
	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS embeddings_vector_idx
		ON embeddings USING ivfflat (vector vector_cosine_ops)
		WITH (lists = 100)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	if doc.OrgID == "" {
		return Document{}, errors.New("org id required")
	}
	doc.ID = uuid.New()
	doc.Status = StatusProcessing
	doc.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(id, org_id, filename, title, url, keywords, source, status) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		doc.ID, doc.OrgID, doc.Filename, doc.Title, doc.URL, pqStringArray(doc.Keywords), doc.Source, doc.Status)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, orgID string, id uuid.UUID) (Document, error) {
	doc := Document{ID: id, OrgID: orgID}
	row := s.db.QueryRowContext(ctx,
		`SELECT filename, title, url, COALESCE(keywords, ARRAY[]::TEXT[]), source, status, created_at FROM documents WHERE id=$1 AND org_id=$2`,
		id, orgID)
	if err := row.Scan(&doc.Filename, &doc.Title, &doc.URL, pq.Array(&doc.Keywords), &doc.Source, &doc.Status, &doc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// UpsertChunks writes chunks keyed by (org_id, document_id, ord). Re-running
// ingestion for an unchanged document rewrites the same rows instead of
// creating duplicates.
func (s *PostgresStore) UpsertChunks(ctx context.Context, chunks []Chunk) ([]Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO chunks(id, org_id, document_id, ord, start_offset, end_offset, text)
			VALUES($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (org_id, document_id, ord)
			DO UPDATE SET start_offset=excluded.start_offset, end_offset=excluded.end_offset, text=excluded.text
			RETURNING id`,
			uuid.New(), c.OrgID, c.DocumentID, c.Index, c.StartOffset, c.EndOffset, c.Text)
		if err := row.Scan(&c.ID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org_id, ord, start_offset, end_offset, text FROM chunks WHERE document_id=$1 ORDER BY ord`,
		docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c := Chunk{DocumentID: docID}
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Index, &c.StartOffset, &c.EndOffset, &c.Text); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveEmbeddings(ctx context.Context, embs []Embedding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, emb := range embs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings(chunk_id, vector, model)
			VALUES($1,$2::vector,$3)
			ON CONFLICT (chunk_id) DO UPDATE SET vector=excluded.vector, model=excluded.model`,
			emb.ChunkID, vectorToString(emb.Vector), emb.Model)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TopK runs cosine similarity search limited to one organization's chunks.
// Tenant filtering happens here, in SQL, not in the caller.
func (s *PostgresStore) TopK(ctx context.Context, orgID string, vector embeddings.Vector, k int) ([]SearchResult, error) {
	queryVec := vectorToString(vector)

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.id,
			c.document_id,
			c.ord,
			c.start_offset,
			c.end_offset,
			c.text,
			1 - (e.vector <=> $1::vector) AS similarity,
			COALESCE(d.filename, ''),
			COALESCE(d.title, ''),
			COALESCE(d.url, '')
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE c.org_id = $2
		ORDER BY e.vector <=> $1::vector
		LIMIT $3
	`, queryVec, orgID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		res := SearchResult{Chunk: Chunk{OrgID: orgID}}
		if err := rows.Scan(
			&res.Chunk.ID,
			&res.Chunk.DocumentID,
			&res.Chunk.Index,
			&res.Chunk.StartOffset,
			&res.Chunk.EndOffset,
			&res.Chunk.Text,
			&res.Score,
			&res.Filename,
			&res.Title,
			&res.URL,
		); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListDocuments returns an organization's documents, newest first.
func (s *PostgresStore) ListDocuments(ctx context.Context, orgID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, title, url, COALESCE(keywords, ARRAY[]::TEXT[]), source, status, created_at FROM documents WHERE org_id=$1 ORDER BY created_at DESC`,
		orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc := Document{OrgID: orgID}
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Title, &doc.URL, pq.Array(&doc.Keywords), &doc.Source, &doc.Status, &doc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func pqStringArray(items []string) any {
	if len(items) == 0 {
		return pq.Array([]string{})
	}
	return pq.Array(items)
}

// vectorToString converts a Vector ([]float32) to pgvector array format.
// Format: "[0.1,0.2,0.3,...]"
func vectorToString(v embeddings.Vector) string {
	if len(v) == 0 {
		return "[]"
	}
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
