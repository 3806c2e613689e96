package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"org-rag/internal/app"
	"org-rag/internal/chunker"
	"org-rag/internal/httputil"
	"org-rag/internal/queue"
	"org-rag/internal/store"
)

type chunkTaskPayload struct {
	OrgID      string    `json:"org_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Content    string    `json:"content"`
}

type indexTaskPayload struct {
	OrgID      string    `json:"org_id"`
	DocumentID uuid.UUID `json:"document_id"`
}

func main() {
	deps, err := app.BuildChunker()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("chunker worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeChunk, func(ctx context.Context, task queue.Task) error {
			var payload chunkTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return err
			}
			return handleChunk(ctx, deps, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, deps.Config.Port, "chunkerd")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("chunker service stopped", "err", err)
	}
}

func handleChunk(ctx context.Context, deps app.Deps, payload chunkTaskPayload) error {
	cfg := chunker.Config{
		ChunkSize: deps.Config.ChunkSize,
		Overlap:   deps.Config.ChunkOverlap,
	}
	chunks, err := chunker.SplitDocument(payload.OrgID, payload.DocumentID, payload.Content, cfg)
	if err != nil {
		// A config error will fail on every retry; give up now.
		if upErr := deps.Store.UpdateDocumentStatus(ctx, payload.DocumentID, store.StatusFailed); upErr != nil {
			deps.Log.Error("failed to mark document failed", "document_id", payload.DocumentID, "err", upErr)
		}
		return fmt.Errorf("split document %s: %w", payload.DocumentID, err)
	}

	storeChunks := make([]store.Chunk, 0, len(chunks))
	for _, c := range chunks {
		storeChunks = append(storeChunks, store.Chunk{
			OrgID:       c.OrgID,
			DocumentID:  c.DocumentID,
			Index:       c.Index,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			Text:        c.Text,
		})
	}
	if _, err := deps.Store.UpsertChunks(ctx, storeChunks); err != nil {
		return fmt.Errorf("upsert chunks for document %s: %w", payload.DocumentID, err)
	}
	deps.Log.Info("document chunked", "document_id", payload.DocumentID, "chunks", len(storeChunks))

	// Empty documents have nothing to index; mark them ready immediately.
	if len(storeChunks) == 0 {
		return deps.Store.UpdateDocumentStatus(ctx, payload.DocumentID, store.StatusReady)
	}

	body, err := json.Marshal(indexTaskPayload{
		OrgID:      payload.OrgID,
		DocumentID: payload.DocumentID,
	})
	if err != nil {
		return err
	}
	task := queue.Task{Type: queue.TaskTypeIndex, Payload: body, NotBefore: time.Now()}
	return queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond)
}
