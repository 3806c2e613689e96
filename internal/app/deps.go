package app

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"org-rag/internal/cache"
	"org-rag/internal/config"
	"org-rag/internal/embeddings"
	"org-rag/internal/llm"
	"org-rag/internal/logger"
	"org-rag/internal/queue"
	"org-rag/internal/store"
)

// Deps bundles common runtime dependencies for services. Each Build variant
// fills only the fields its service needs.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Store    store.Store
	Queue    queue.Queue
	Embedder embeddings.Embedder
	LLM      llm.Client
	Cache    cache.Cache
}

// BuildGateway wires the upload/ingest API: store and queue.
func BuildGateway() (Deps, error) {
	deps, err := base("gateway")
	if err != nil {
		return Deps{}, err
	}
	if err := withStore(&deps); err != nil {
		return Deps{}, err
	}
	if err := withQueue(&deps); err != nil {
		return Deps{}, err
	}
	return deps, nil
}

// BuildChunker wires the chunking worker: store and queue.
func BuildChunker() (Deps, error) {
	deps, err := base("chunkerd")
	if err != nil {
		return Deps{}, err
	}
	if err := withStore(&deps); err != nil {
		return Deps{}, err
	}
	if err := withQueue(&deps); err != nil {
		return Deps{}, err
	}
	return deps, nil
}

// BuildIndexer wires the embedding/index worker: store, queue, embedder, cache.
func BuildIndexer() (Deps, error) {
	deps, err := base("indexer")
	if err != nil {
		return Deps{}, err
	}
	if err := withStore(&deps); err != nil {
		return Deps{}, err
	}
	if err := withQueue(&deps); err != nil {
		return Deps{}, err
	}
	if err := withEmbedder(&deps); err != nil {
		return Deps{}, err
	}
	withCache(&deps)
	return deps, nil
}

// BuildQuery wires the query service: store, embedder, llm, cache.
func BuildQuery() (Deps, error) {
	deps, err := base("query")
	if err != nil {
		return Deps{}, err
	}
	if err := withStore(&deps); err != nil {
		return Deps{}, err
	}
	if err := withEmbedder(&deps); err != nil {
		return Deps{}, err
	}
	if err := withLLM(&deps); err != nil {
		return Deps{}, err
	}
	withCache(&deps)
	return deps, nil
}

func base(service string) (Deps, error) {
	if err := godotenv.Load(); err != nil {
		// Not fatal; containers usually inject env directly.
		slog.Debug("no .env file loaded", "err", err)
	}
	cfg := config.Load()
	return Deps{
		Config: cfg,
		Log:    logger.New(service, cfg.LogLevel),
	}, nil
}

func withStore(deps *Deps) error {
	switch deps.Config.StoreProvider {
	case "postgres":
		if deps.Config.DBURL == "" {
			return fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(deps.Config.DBURL)
		if err != nil {
			return fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		deps.Log.Info("using Postgres store")
		deps.Store = db
		return nil
	default:
		return fmt.Errorf("invalid STORE_PROVIDER: %s (valid option: postgres)", deps.Config.StoreProvider)
	}
}

func withQueue(deps *Deps) error {
	switch deps.Config.QueueProvider {
	case "nats":
		if deps.Config.QueueURL == "" {
			return fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(deps.Config.QueueURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		deps.Log.Info("using NATS queue")
		deps.Queue = queue.NewNATS(deps.Log, nc)
		return nil
	default:
		return fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid option: nats)", deps.Config.QueueProvider)
	}
}

func withEmbedder(deps *Deps) error {
	switch deps.Config.LLMProvider {
	case "openai":
		if deps.Config.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		embedder, err := embeddings.NewOpenAIEmbedder(deps.Config.OpenAIKey, openai.EmbeddingModel(deps.Config.EmbeddingModel))
		if err != nil {
			return fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		deps.Log.Info("using OpenAI embedder", "model", deps.Config.EmbeddingModel)
		deps.Embedder = embedder
		return nil
	default:
		return fmt.Errorf("invalid LLM_PROVIDER: %s (valid option: openai)", deps.Config.LLMProvider)
	}
}

func withLLM(deps *Deps) error {
	switch deps.Config.LLMProvider {
	case "openai":
		if deps.Config.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client, err := llm.NewOpenAIClient(deps.Config.OpenAIKey, openai.ChatModel(deps.Config.LLMModel))
		if err != nil {
			return fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		deps.Log.Info("using OpenAI LLM client", "model", deps.Config.LLMModel)
		deps.LLM = client
		return nil
	default:
		return fmt.Errorf("invalid LLM_PROVIDER: %s (valid option: openai)", deps.Config.LLMProvider)
	}
}

// withCache prefers Redis but degrades to a no-op cache; queries must keep
// working when Redis is down.
func withCache(deps *Deps) {
	if deps.Config.RedisAddr == "" {
		deps.Log.Info("REDIS_ADDR not set; caching disabled")
		deps.Cache = cache.NewNoOpCache()
		return
	}
	c, err := cache.NewRedisCache(deps.Config.RedisAddr, deps.Config.RedisPassword)
	if err != nil {
		deps.Log.Warn("redis unavailable; caching disabled", "err", err)
		deps.Cache = cache.NewNoOpCache()
		return
	}
	deps.Log.Info("using Redis cache", "addr", deps.Config.RedisAddr)
	deps.Cache = c
}
