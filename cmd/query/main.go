package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"org-rag/internal/app"
	"org-rag/internal/assembler"
	"org-rag/internal/cache"
	"org-rag/internal/httputil"
	"org-rag/internal/store"
)

type queryRequest struct {
	OrgID    string `json:"org_id" validate:"required"`
	Question string `json:"question" validate:"required,min=3,max=500"`
	TopK     int    `json:"top_k" validate:"omitempty,min=1,max=20"`
}

type source struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"` // filename or page URL
	Score      float32 `json:"score"`
	Preview    string  `json:"preview"` // Truncated text preview
}

func main() {
	deps, err := app.BuildQuery()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	r := httputil.NewRouter(deps.Log)

	r.Post("/api/query", queryHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("query service listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server error", "err", err)
	}
}

func queryHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}

		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		if req.TopK == 0 {
			req.TopK = deps.Config.TopK
		}

		ctx := r.Context()

		// Check cache first
		cacheKey := cache.Key(req.Question, req.TopK)
		if cached, err := deps.Cache.GetQueryResult(ctx, req.OrgID, cacheKey); err == nil && cached != nil {
			deps.Log.Info("cache hit", "org_id", req.OrgID)

			var sources []source
			if err := json.Unmarshal(cached.Sources, &sources); err == nil {
				httputil.WriteJSON(w, http.StatusOK, map[string]any{
					"answer":     cached.Answer,
					"sources":    sources,
					"confidence": cached.Confidence,
					"cached":     true,
				})
				return
			}
			deps.Log.Warn("failed to unmarshal cached sources", "err", err)
		}

		vec, err := deps.Embedder.Embed(req.Question)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to embed question", err, http.StatusInternalServerError)
			return
		}
		results, err := deps.Store.TopK(ctx, req.OrgID, vec, req.TopK)
		if err != nil {
			httputil.Fail(deps.Log, w, "search failed", err, http.StatusInternalServerError)
			return
		}

		block, err := assembler.Build(toRetrieved(results), assembler.Config{
			MaxContextChars: deps.Config.MaxContextChars,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to assemble context", err, http.StatusInternalServerError)
			return
		}

		answer, confidence, err := deps.LLM.Answer(ctx, req.OrgID, req.Question, block.Text)
		if err != nil {
			httputil.Fail(deps.Log, w, "llm failed", err, http.StatusInternalServerError)
			return
		}

		sources := buildSources(block.Chunks)

		// Cache the answer; failures only cost the next request a recompute
		sourcesJSON, err := json.Marshal(sources)
		if err != nil {
			deps.Log.Warn("failed to marshal sources, skipping cache", "err", err)
		} else {
			cacheTTL := time.Duration(deps.Config.CacheTTL) * time.Second
			if err := deps.Cache.SetQueryResult(ctx, req.OrgID, cacheKey, &cache.QueryResult{
				Answer:     answer,
				Confidence: confidence,
				Sources:    sourcesJSON,
			}, cacheTTL); err != nil {
				deps.Log.Warn("failed to cache result", "err", err)
			}
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"answer":     answer,
			"sources":    sources,
			"confidence": confidence,
			"cached":     false,
		})
	}
}

// toRetrieved adapts search results to the assembler's input, keeping the
// store's relevance order.
func toRetrieved(results []store.SearchResult) []assembler.RetrievedChunk {
	retrieved := make([]assembler.RetrievedChunk, len(results))
	for i, res := range results {
		retrieved[i] = assembler.RetrievedChunk{
			OrgID:      res.Chunk.OrgID,
			DocumentID: res.Chunk.DocumentID,
			Index:      res.Chunk.Index,
			Text:       res.Chunk.Text,
			Score:      res.Score,
			Source:     res.Filename,
			Title:      res.Title,
			URL:        res.URL,
		}
	}
	return retrieved
}

// buildSources converts the included chunks into response sources with
// truncated previews.
func buildSources(chunks []assembler.RetrievedChunk) []source {
	sources := make([]source, len(chunks))
	for i, rc := range chunks {
		name := rc.Source
		if name == "" {
			name = rc.URL
		}
		sources[i] = source{
			DocumentID: rc.DocumentID.String(),
			Source:     name,
			Score:      rc.Score,
			Preview:    truncate(rc.Text, 150),
		}
	}
	return sources
}

// truncate limits text to maxLen characters, cutting at word boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if idx := strings.LastIndex(s[:maxLen], " "); idx > 0 {
		return s[:idx] + "..."
	}
	return s[:maxLen] + "..."
}
