// Package redis provides Redis-based adapters for the test backend.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huguei/zonemaster-backend/internal/core"
)

// ProgressStore keeps worker-reported in-flight progress figures in Redis,
// keyed by test identity. Entries expire on their own; the authoritative
// lifecycle lives in PostgreSQL, this is only the fine-grained percentage
// between the coarse state transitions.
type ProgressStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ core.ProgressSink = (*ProgressStore)(nil)

// NewProgressStore creates a progress store with the default key prefix
// and a one hour TTL.
func NewProgressStore(client redis.UniversalClient) *ProgressStore {
	return &ProgressStore{
		client: client,
		prefix: "test_progress:",
		ttl:    time.Hour,
	}
}

// NewProgressStoreWithOptions creates a progress store with a custom key
// prefix and TTL.
func NewProgressStoreWithOptions(client redis.UniversalClient, prefix string, ttl time.Duration) *ProgressStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProgressStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Set stores the latest progress percentage for a test.
func (s *ProgressStore) Set(ctx context.Context, hashID string, percent int) error {
	if hashID == "" {
		return errors.New("hash id cannot be empty")
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	if err := s.client.Set(ctx, s.prefix+hashID, percent, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set progress: %w", err)
	}
	return nil
}

// Get returns the stored progress for a test. Absence is reported through
// the bool, not an error; a missing entry just means the worker has not
// reported yet or the entry expired.
func (s *ProgressStore) Get(ctx context.Context, hashID string) (int, bool, error) {
	if hashID == "" {
		return 0, false, nil
	}

	percent, err := s.client.Get(ctx, s.prefix+hashID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get progress: %w", err)
	}
	return percent, true, nil
}

// Clear removes the progress entry for a finished test.
func (s *ProgressStore) Clear(ctx context.Context, hashID string) error {
	if hashID == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+hashID).Err()
}
