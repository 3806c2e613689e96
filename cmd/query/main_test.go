package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"org-rag/internal/app"
	"org-rag/internal/cache"
	"org-rag/internal/config"
	"org-rag/internal/embeddings"
	"org-rag/internal/llm"
	"org-rag/internal/store"
)

func newTestDeps(st store.Store, l llm.Client, e embeddings.Embedder, c cache.Cache) app.Deps {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return app.Deps{
		Store:    st,
		LLM:      l,
		Embedder: e,
		Cache:    c,
		Config: config.Config{
			TopK:            5,
			MaxContextChars: 6000,
			CacheTTL:        300,
		},
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestQueryHandler(t *testing.T) {
	validDocID := uuid.New()

	tests := []struct {
		name           string
		requestBody    string
		setup          func(*store.MockStore, *llm.MockClient, *embeddings.MockEmbedder)
		wantStatusCode int
		checkResponse  func(*testing.T, *http.Response)
	}{
		{
			name: "successful query with results",
			requestBody: `{
				"org_id": "acme",
				"question": "What is Go?",
				"top_k": 3
			}`,
			setup: func(s *store.MockStore, l *llm.MockClient, e *embeddings.MockEmbedder) {
				e.On("Embed", "What is Go?").Return(embeddings.Vector{0.1, 0.2}, nil).Once()

				s.On("TopK", mock.Anything, "acme", mock.Anything, 3).Return([]store.SearchResult{
					{
						Chunk:    store.Chunk{OrgID: "acme", DocumentID: validDocID, Index: 0, Text: "Go is a programming language"},
						Score:    0.95,
						Filename: "intro.txt",
					},
				}, nil).Once()

				// Context must attribute the chunk to its source
				l.On("Answer", mock.Anything, "acme", "What is Go?", mock.MatchedBy(func(ctxText string) bool {
					return strings.Contains(ctxText, "From intro.txt:") &&
						strings.Contains(ctxText, "Go is a programming language")
				})).Return("Go is a programming language developed by Google", float32(0.95), nil).Once()
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result map[string]any
				if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}

				if _, ok := result["answer"]; !ok {
					t.Error("Expected answer in response")
				}
				if _, ok := result["confidence"]; !ok {
					t.Error("Expected confidence in response")
				}
				if result["cached"] != false {
					t.Error("Expected cached=false for fresh query")
				}
				sources, ok := result["sources"].([]any)
				if !ok || len(sources) != 1 {
					t.Fatalf("Expected 1 source, got %v", result["sources"])
				}
				src := sources[0].(map[string]any)
				if src["source"] != "intro.txt" {
					t.Errorf("Expected source intro.txt, got %v", src["source"])
				}
			},
		},
		{
			name: "top_k defaults when omitted",
			requestBody: `{
				"org_id": "acme",
				"question": "What is Go?"
			}`,
			setup: func(s *store.MockStore, l *llm.MockClient, e *embeddings.MockEmbedder) {
				e.On("Embed", "What is Go?").Return(embeddings.Vector{0.1}, nil).Once()
				s.On("TopK", mock.Anything, "acme", mock.Anything, 5).
					Return([]store.SearchResult{}, nil).Once()
				l.On("Answer", mock.Anything, "acme", mock.Anything, mock.Anything).
					Return("Answer", float32(0.8), nil).Once()
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "invalid JSON payload returns 400",
			requestBody:    `{invalid json}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "missing org_id fails validation",
			requestBody: `{
				"question": "What is Go?"
			}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "empty question fails validation",
			requestBody: `{
				"org_id": "acme",
				"question": ""
			}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "question too short fails validation",
			requestBody: `{
				"org_id": "acme",
				"question": "Hi"
			}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "top_k above max fails validation",
			requestBody: `{
				"org_id": "acme",
				"question": "Valid question",
				"top_k": 25
			}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "store TopK failure returns 500",
			requestBody: `{
				"org_id": "acme",
				"question": "What is Go?"
			}`,
			setup: func(s *store.MockStore, l *llm.MockClient, e *embeddings.MockEmbedder) {
				e.On("Embed", "What is Go?").Return(embeddings.Vector{0.1}, nil).Once()
				s.On("TopK", mock.Anything, "acme", mock.Anything, 5).
					Return(nil, errors.New("database error")).Once()
			},
			wantStatusCode: http.StatusInternalServerError,
		},
		{
			name: "LLM Answer failure returns 500",
			requestBody: `{
				"org_id": "acme",
				"question": "What is Go?"
			}`,
			setup: func(s *store.MockStore, l *llm.MockClient, e *embeddings.MockEmbedder) {
				e.On("Embed", "What is Go?").Return(embeddings.Vector{0.1}, nil).Once()
				s.On("TopK", mock.Anything, "acme", mock.Anything, 5).
					Return([]store.SearchResult{}, nil).Once()
				l.On("Answer", mock.Anything, "acme", mock.Anything, mock.Anything).
					Return("", float32(0), errors.New("LLM error")).Once()
			},
			wantStatusCode: http.StatusInternalServerError,
		},
		{
			name: "no search results still returns answer",
			requestBody: `{
				"org_id": "acme",
				"question": "What is Go?"
			}`,
			setup: func(s *store.MockStore, l *llm.MockClient, e *embeddings.MockEmbedder) {
				e.On("Embed", "What is Go?").Return(embeddings.Vector{0.1}, nil).Once()
				s.On("TopK", mock.Anything, "acme", mock.Anything, 5).
					Return([]store.SearchResult{}, nil).Once()
				l.On("Answer", mock.Anything, "acme", "What is Go?", "").
					Return("I don't have enough context", float32(0.3), nil).Once()
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result map[string]any
				json.NewDecoder(resp.Body).Decode(&result)

				sources, ok := result["sources"].([]any)
				if !ok {
					t.Error("Expected sources array")
				}
				if len(sources) != 0 {
					t.Error("Expected empty sources for no results")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockStore := new(store.MockStore)
			mockLLM := new(llm.MockClient)
			mockEmbedder := new(embeddings.MockEmbedder)

			if tt.setup != nil {
				tt.setup(mockStore, mockLLM, mockEmbedder)
			}

			deps := newTestDeps(mockStore, mockLLM, mockEmbedder, nil)
			handler := queryHandler(deps)

			req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString(tt.requestBody))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			handler(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatusCode {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("Expected status %d, got %d. Body: %s", tt.wantStatusCode, resp.StatusCode, string(body))
			}

			if tt.checkResponse != nil {
				resp.Body = io.NopCloser(bytes.NewReader(w.Body.Bytes()))
				tt.checkResponse(t, resp)
			}

			mockStore.AssertExpectations(t)
			mockLLM.AssertExpectations(t)
			mockEmbedder.AssertExpectations(t)
		})
	}
}

func TestQueryHandlerCache(t *testing.T) {
	t.Run("cache hit skips retrieval and llm", func(t *testing.T) {
		mockStore := new(store.MockStore)
		mockLLM := new(llm.MockClient)
		mockEmbedder := new(embeddings.MockEmbedder)
		mockCache := new(cache.MockCache)

		key := cache.Key("What is Go?", 5)
		sources, _ := json.Marshal([]source{{DocumentID: uuid.New().String(), Source: "intro.txt", Score: 0.9, Preview: "Go is"}})
		mockCache.On("GetQueryResult", mock.Anything, "acme", key).
			Return(&cache.QueryResult{Answer: "cached answer", Confidence: 0.9, Sources: sources}, nil).Once()

		deps := newTestDeps(mockStore, mockLLM, mockEmbedder, mockCache)
		handler := queryHandler(deps)

		req := httptest.NewRequest(http.MethodPost, "/api/query",
			bytes.NewBufferString(`{"org_id":"acme","question":"What is Go?"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
		}
		var result map[string]any
		if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if result["answer"] != "cached answer" {
			t.Errorf("Expected cached answer, got %v", result["answer"])
		}
		if result["cached"] != true {
			t.Error("Expected cached=true")
		}

		mockStore.AssertExpectations(t)
		mockLLM.AssertExpectations(t)
		mockEmbedder.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("fresh answer is written to cache", func(t *testing.T) {
		mockStore := new(store.MockStore)
		mockLLM := new(llm.MockClient)
		mockEmbedder := new(embeddings.MockEmbedder)
		mockCache := new(cache.MockCache)

		key := cache.Key("What is Go?", 5)
		mockCache.On("GetQueryResult", mock.Anything, "acme", key).Return(nil, nil).Once()
		mockEmbedder.On("Embed", "What is Go?").Return(embeddings.Vector{0.1}, nil).Once()
		mockStore.On("TopK", mock.Anything, "acme", mock.Anything, 5).
			Return([]store.SearchResult{}, nil).Once()
		mockLLM.On("Answer", mock.Anything, "acme", "What is Go?", "").
			Return("fresh answer", float32(0.7), nil).Once()
		mockCache.On("SetQueryResult", mock.Anything, "acme", key, mock.MatchedBy(func(res *cache.QueryResult) bool {
			return res.Answer == "fresh answer"
		}), mock.Anything).Return(nil).Once()

		deps := newTestDeps(mockStore, mockLLM, mockEmbedder, mockCache)
		handler := queryHandler(deps)

		req := httptest.NewRequest(http.MethodPost, "/api/query",
			bytes.NewBufferString(`{"org_id":"acme","question":"What is Go?"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
		}

		mockStore.AssertExpectations(t)
		mockLLM.AssertExpectations(t)
		mockEmbedder.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})
}
