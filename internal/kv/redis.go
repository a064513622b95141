package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisHash is the hash every key lives in unless configured.
const DefaultRedisHash = "lunadb"

// Redis is a Backend storing every key as a field of a single Redis hash.
// Batches are applied in MULTI/EXEC.
type Redis struct {
	client *redis.Client
	hash   string
}

// OpenRedis connects to the server at url (redis://host:port/db) and
// verifies it answers PING.
func OpenRedis(ctx context.Context, url, hash string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, hash), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, hash string) *Redis {
	if hash == "" {
		hash = DefaultRedisHash
	}
	return &Redis{client: client, hash: hash}
}

// Get implements Backend.
func (r *Redis) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	value, err := r.client.HGet(ctx, r.hash, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("hget: %w", err)
	}
	return value, true, nil
}

// Scan implements Backend. The whole hash is fetched and filtered,
// which matches the full-scan query model.
func (r *Redis) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	all, err := r.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return fmt.Errorf("hgetall: %w", err)
	}

	p := string(prefix)
	keys := make([]string, 0, len(all))
	for k := range all {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := fn([]byte(k), []byte(all[k])); err != nil {
			return err
		}
	}
	return nil
}

// Write implements Backend.
func (r *Redis) Write(ctx context.Context, b *Batch) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.Ops() {
			if op.Delete {
				pipe.HDel(ctx, r.hash, string(op.Key))
			} else {
				pipe.HSet(ctx, r.hash, string(op.Key), bytes.Clone(op.Value))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("exec batch: %w", err)
	}
	return nil
}

// Close implements Backend.
func (r *Redis) Close() error {
	return r.client.Close()
}
