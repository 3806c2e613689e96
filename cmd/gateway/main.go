package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"org-rag/internal/app"
	"org-rag/internal/extract"
	"org-rag/internal/httputil"
	"org-rag/internal/queue"
	"org-rag/internal/store"
)

type chunkTaskPayload struct {
	OrgID      string    `json:"org_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Content    string    `json:"content"`
}

type ingestPageRequest struct {
	OrgID    string   `json:"org_id" validate:"required"`
	URL      string   `json:"url" validate:"required,url"`
	Title    string   `json:"title"`
	Content  string   `json:"content" validate:"required"`
	Keywords []string `json:"keywords"`
}

func main() {
	deps, err := app.BuildGateway()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	r := httputil.NewRouter(deps.Log)

	r.Post("/api/documents/upload", uploadHandler(deps))
	r.Post("/api/pages", ingestPageHandler(deps))
	r.Get("/api/documents", listDocumentsHandler(deps))
	r.Get("/api/documents/{id}", getDocumentHandler(deps))
	r.Post("/api/query", queryProxyHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// Reject oversized uploads before parsing the body
		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		orgID := r.FormValue("org_id")
		if orgID == "" {
			httputil.Fail(deps.Log, w, "org_id is required", nil, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		if !extract.Supported(header.Filename) {
			httputil.Fail(deps.Log, w, "unsupported file type", nil, http.StatusBadRequest)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}
		text, err := extract.Text(header.Filename, content)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to extract text", err, http.StatusBadRequest)
			return
		}

		doc, err := deps.Store.CreateDocument(ctx, store.Document{
			OrgID:    orgID,
			Filename: header.Filename,
			Source:   store.SourceFile,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist document", err, http.StatusInternalServerError)
			return
		}

		if err := enqueueChunkTask(ctx, deps, doc, text); err != nil {
			failDocument(deps, ctx, w, "failed to enqueue document; please retry", err, doc.ID)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"document_id": doc.ID.String(),
			"status":      doc.Status,
		})
	}
}

// ingestPageHandler accepts already-fetched web pages, typically pushed by an
// external scraper, and runs them through the same pipeline as file uploads.
func ingestPageHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req ingestPageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid JSON body", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		text, err := extract.Text("page.html", []byte(req.Content))
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to extract page text", err, http.StatusBadRequest)
			return
		}

		doc, err := deps.Store.CreateDocument(ctx, store.Document{
			OrgID:    req.OrgID,
			Filename: req.URL,
			Title:    req.Title,
			URL:      req.URL,
			Keywords: req.Keywords,
			Source:   store.SourcePage,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist page", err, http.StatusInternalServerError)
			return
		}

		if err := enqueueChunkTask(ctx, deps, doc, text); err != nil {
			failDocument(deps, ctx, w, "failed to enqueue page; please retry", err, doc.ID)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"document_id": doc.ID.String(),
			"status":      doc.Status,
		})
	}
}

func enqueueChunkTask(ctx context.Context, deps app.Deps, doc store.Document, text string) error {
	payload := chunkTaskPayload{
		OrgID:      doc.OrgID,
		DocumentID: doc.ID,
		Content:    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chunk payload: %w", err)
	}
	task := queue.Task{Type: queue.TaskTypeChunk, Payload: body}
	return queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond)
}

// failDocument marks the document failed before reporting the error; the
// caller already persisted it, so leaving it in processing would strand it.
func failDocument(deps app.Deps, ctx context.Context, w http.ResponseWriter, message string, err error, docID uuid.UUID) {
	log := deps.Log.With("document_id", docID)
	if docID != uuid.Nil {
		if upErr := deps.Store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); upErr != nil {
			log.Error("failed to mark document failed", "err", upErr)
		}
	}
	httputil.Fail(log, w, message, err, http.StatusInternalServerError)
}

func listDocumentsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := r.URL.Query().Get("org_id")
		if orgID == "" {
			httputil.Fail(deps.Log, w, "org_id is required", nil, http.StatusBadRequest)
			return
		}
		docs, err := deps.Store.ListDocuments(r.Context(), orgID)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list documents", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": docs})
	}
}

func getDocumentHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := r.URL.Query().Get("org_id")
		if orgID == "" {
			httputil.Fail(deps.Log, w, "org_id is required", nil, http.StatusBadRequest)
			return
		}
		docID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid document id", err, http.StatusBadRequest)
			return
		}
		doc, err := deps.Store.GetDocument(r.Context(), orgID, docID)
		if err != nil {
			if errors.Is(err, store.ErrDocumentNotFound) {
				httputil.Fail(deps.Log, w, "document not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to load document", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, doc)
	}
}

func queryProxyHandler(deps app.Deps) http.HandlerFunc {
	queryURL := os.Getenv("QUERY_URL")
	if queryURL == "" {
		queryURL = "http://query:8081/api/query"
	}
	client := &http.Client{Timeout: 60 * time.Second}

	return func(w http.ResponseWriter, r *http.Request) {
		// Forward request to the query service
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, queryURL, r.Body)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to create request", err, http.StatusInternalServerError)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			httputil.Fail(deps.Log, w, "query service unavailable", err, http.StatusServiceUnavailable)
			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			deps.Log.Error("failed to copy response", "err", err)
		}
	}
}
