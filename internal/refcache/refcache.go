// Package refcache keeps reference display data in Redis so repeated pages
// citing the same texts skip the bulk-text call.
package refcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgallion1/reflinker/internal/matcher"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "reflinker:ref:"

// Cache stores matcher.RefData values keyed by reference.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps client. A zero ttl means entries never expire.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Open parses a redis:// URL and returns a Cache on it.
func Open(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(opts), ttl), nil
}

// GetMany returns the cached entries among refs. Missing and undecodable
// entries are simply absent from the result.
func (c *Cache) GetMany(ctx context.Context, refs []string) (map[string]matcher.RefData, error) {
	out := make(map[string]matcher.RefData, len(refs))
	if len(refs) == 0 {
		return out, nil
	}
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i] = keyPrefix + r
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get refs: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rd matcher.RefData
		if err := json.Unmarshal([]byte(s), &rd); err != nil {
			continue
		}
		out[refs[i]] = rd
	}
	return out, nil
}

// PutMany stores entries in one pipeline.
func (c *Cache) PutMany(ctx context.Context, entries map[string]matcher.RefData) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for ref, rd := range entries {
		data, err := json.Marshal(rd)
		if err != nil {
			return fmt.Errorf("marshal ref %s: %w", ref, err)
		}
		pipe.Set(ctx, keyPrefix+ref, data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put refs: %w", err)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
