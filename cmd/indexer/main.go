package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"org-rag/internal/app"
	"org-rag/internal/httputil"
	"org-rag/internal/queue"
	"org-rag/internal/store"
)

type indexTaskPayload struct {
	OrgID      string    `json:"org_id"`
	DocumentID uuid.UUID `json:"document_id"`
}

func main() {
	deps, err := app.BuildIndexer()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("indexer worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeIndex, func(ctx context.Context, task queue.Task) error {
			var payload indexTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return err
			}
			return handleIndex(ctx, deps, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, deps.Config.Port, "indexer")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("indexer service stopped", "err", err)
	}
}

func handleIndex(ctx context.Context, deps app.Deps, payload indexTaskPayload) error {
	doc, err := deps.Store.GetDocument(ctx, payload.OrgID, payload.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	chunks, err := deps.Store.ListChunks(ctx, payload.DocumentID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return deps.Store.UpdateDocumentStatus(ctx, payload.DocumentID, store.StatusReady)
	}

	// Prefix each chunk with its document title so the embedding carries
	// document-level context.
	title := doc.Title
	if title == "" {
		title = doc.Filename
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = fmt.Sprintf("Document: %s\n\n%s", title, c.Text)
	}
	vectors, err := deps.Embedder.EmbedBatch(texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	embs := make([]store.Embedding, len(chunks))
	for i, c := range chunks {
		embs[i] = store.Embedding{
			ChunkID: c.ID,
			Vector:  vectors[i],
			Model:   deps.Config.EmbeddingModel,
		}
	}
	if err := deps.Store.SaveEmbeddings(ctx, embs); err != nil {
		return err
	}

	// New content changes what cached answers would say.
	if err := deps.Cache.InvalidateOrg(ctx, payload.OrgID); err != nil {
		deps.Log.Warn("failed to invalidate query cache", "org_id", payload.OrgID, "err", err)
	}

	if err := deps.Store.UpdateDocumentStatus(ctx, payload.DocumentID, store.StatusReady); err != nil {
		return err
	}
	deps.Log.Info("document indexed", "org_id", payload.OrgID, "document_id", payload.DocumentID, "chunks", len(chunks))
	return nil
}
