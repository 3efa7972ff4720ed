package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
)

// RedisPageCache stores entries as zstd-compressed JSON with a server-side
// TTL matching the entry TTL. Page definitions for dense dashboards run to
// tens of kilobytes of JSON; compression keeps the cache footprint flat.
type RedisPageCache struct {
	client *redis.Client
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	now    func() time.Time
}

// NewRedisPageCache creates a Redis-backed cache.
func NewRedisPageCache(addr, password string, db int) (*RedisPageCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return newRedisPageCache(rdb)
}

// NewRedisPageCacheFromClient wraps an existing client (tests, pooling).
func NewRedisPageCacheFromClient(client *redis.Client) (*RedisPageCache, error) {
	return newRedisPageCache(client)
}

func newRedisPageCache(client *redis.Client) (*RedisPageCache, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &RedisPageCache{client: client, enc: enc, dec: dec, now: time.Now}, nil
}

// Ping verifies connectivity.
func (c *RedisPageCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPageCache) Get(ctx context.Context, key Key) (*Entry, error) {
	blob, err := c.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	raw, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress entry %s: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", key, err)
	}
	// Redis expiry normally beats the entry TTL, but the entry stays
	// authoritative in case of clock drift on the server.
	if !entry.Fresh(c.now()) {
		return nil, nil
	}
	return &entry, nil
}

func (c *RedisPageCache) Set(ctx context.Context, key Key, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", key, err)
	}
	blob := c.enc.EncodeAll(raw, nil)
	ttl := time.Duration(entry.TTLMs) * time.Millisecond
	if err := c.client.Set(ctx, key.String(), blob, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisPageCache) Delete(ctx context.Context, key Key) error {
	if err := c.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
