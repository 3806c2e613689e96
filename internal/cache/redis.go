package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys are namespaced "query:<org>:<key>" so invalidation can target one
// organization without touching the others.
const cacheKeyPrefix = "query:"

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client.
func NewRedisCache(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func redisKey(orgID, key string) string {
	return cacheKeyPrefix + orgID + ":" + key
}

func (c *RedisCache) GetQueryResult(ctx context.Context, orgID, key string) (*QueryResult, error) {
	data, err := c.client.Get(ctx, redisKey(orgID, key)).Bytes()
	if err == redis.Nil {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, err
	}

	var result QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RedisCache) SetQueryResult(ctx context.Context, orgID, key string, result *QueryResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKey(orgID, key), data, ttl).Err()
}

// InvalidateOrg scans the organization's namespace and deletes every entry.
func (c *RedisCache) InvalidateOrg(ctx context.Context, orgID string) error {
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+orgID+":*", 0).Iterator()

	pipe := c.client.Pipeline()
	count := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if count > 0 {
		_, err := pipe.Exec(ctx)
		return err
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
