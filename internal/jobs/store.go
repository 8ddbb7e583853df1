// Package jobs implements the job lifecycle core: the Redis-backed record
// store and queue, the lifecycle service producers call, and the worker loop
// that drains the queue and dispatches analysis plugins.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nekazari/intelligence/pkg/models"
)

// Store is the job record store. Writes always replace the whole record and
// reset its expiry; there are no partial-field updates.
type Store interface {
	Put(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// RedisStore implements Store with per-record TTL using go-redis/v9.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore over an existing client. The client is
// shared with the queue; construct it once at startup.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: retentionTTL}
}

func (s *RedisStore) Put(ctx context.Context, job *models.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.ID, err)
	}
	if err := s.client.Set(ctx, jobKey(job.ID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	b, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", id, err)
	}

	var job models.Job
	if err := json.Unmarshal(b, &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &job, nil
}

// Compile-time check that RedisStore implements Store.
var _ Store = (*RedisStore)(nil)
