package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Cache provides query result caching, partitioned by organization.
type Cache interface {
	// GetQueryResult retrieves a cached query result by key.
	// Returns nil if not found.
	GetQueryResult(ctx context.Context, orgID, key string) (*QueryResult, error)

	// SetQueryResult stores a query result with TTL.
	SetQueryResult(ctx context.Context, orgID, key string, result *QueryResult, ttl time.Duration) error

	// InvalidateOrg removes all cached queries for an organization.
	// Called after new content is indexed so stale answers don't linger.
	InvalidateOrg(ctx context.Context, orgID string) error

	// Close closes the cache connection.
	Close() error
}

// QueryResult represents a cached query response.
type QueryResult struct {
	Answer     string          `json:"answer"`
	Confidence float32         `json:"confidence"`
	Sources    json.RawMessage `json:"sources"`
}

// Key derives a stable cache key from the query parameters.
func Key(question string, topK int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", question, topK)))
	return hex.EncodeToString(sum[:16])
}
