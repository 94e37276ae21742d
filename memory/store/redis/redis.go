// Package redis provides a Redis-backed memory.Store. Entries live as
// JSON values under a key prefix with a set index for recall scans;
// ranking runs client-side through the shared hybrid ranker. Suited to
// deployments that already run Redis and want durable memory without a
// relational store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/substratelabs/recall/memory"
)

const (
	entryPrefix = "recall:entry:"
	indexKey    = "recall:index"
)

// Store is a Redis backed memory.Store. Safe for concurrent use; the
// client pools connections internally.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

var _ memory.Store = (*Store)(nil)

// Open connects to the Redis at url (e.g. "redis://localhost:6379")
// and verifies the connection with a ping.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, logger), nil
}

// New wraps an existing client. The store takes ownership: Close closes
// the client.
func New(client *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger}
}

// Store writes the entry JSON and its index membership in one
// transactional pipeline, so recall never observes an indexed key
// without its value.
func (s *Store) Store(ctx context.Context, entry memory.Entry) error {
	if entry.Key == "" {
		return memory.ErrInvalidKey
	}

	// Preserve the original creation time across replaces. The read is
	// best-effort; losing it under a racing replace only skews
	// CreatedAt, never content.
	if prev, err := s.Get(ctx, entry.Key); err == nil {
		entry.CreatedAt = prev.CreatedAt
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, entryPrefix+entry.Key, data, 0)
	pipe.SAdd(ctx, indexKey, entry.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store entry: %w", err)
	}
	return nil
}

// Get returns the entry at key, or memory.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*memory.Entry, error) {
	data, err := s.client.Get(ctx, entryPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}

	var entry memory.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal entry %q: %w", key, err)
	}
	return &entry, nil
}

// Recall loads the indexed entries and ranks them client-side.
// Malformed values are logged and skipped.
func (s *Store) Recall(ctx context.Context, q memory.Query) ([]memory.RetrievalResult, error) {
	keys, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = entryPrefix + k
	}
	values, err := s.client.MGet(ctx, fullKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	candidates := make([]memory.Entry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between scan and load
		}
		var entry memory.Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			s.logger.Error("skipping malformed redis entry", "key", keys[i], "error", err)
			continue
		}
		if q.Category != "" && entry.Category != q.Category {
			continue
		}
		if q.SessionID != "" && entry.SessionID != q.SessionID {
			continue
		}
		candidates = append(candidates, entry)
	}

	return memory.Rank(q, candidates), nil
}

// Forget deletes the entry and its index membership; missing keys are
// not an error.
func (s *Store) Forget(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entryPrefix+key)
	pipe.SRem(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("forget entry: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
