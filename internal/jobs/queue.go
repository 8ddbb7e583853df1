package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Entry is the lightweight envelope pushed per job. Priority is carried
// along but does not reorder the queue; entries pop strictly FIFO.
type Entry struct {
	JobID    uuid.UUID `json:"job_id"`
	TenantID string    `json:"tenant_id"`
	Priority int       `json:"priority"`
}

// Queue hands entries from producers to the worker loop in FIFO order.
// The design assumes a single consumer draining it; multiple workers race
// benignly on the downstream record writes (full-record replacements), but
// final-write ordering is then undefined.
type Queue interface {
	Push(ctx context.Context, entry Entry) error
	// Pop blocks for up to timeout and returns the oldest entry, or nil
	// when the queue stayed empty — the no-work case, not an error.
	Pop(ctx context.Context, timeout time.Duration) (*Entry, error)
}

// RedisQueue implements Queue as a Redis list: LPUSH at the head, BRPOP from
// the tail.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a RedisQueue over an existing client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Push(ctx context.Context, entry Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding queue entry: %w", err)
	}
	if err := q.client.LPush(ctx, queueKey, b).Err(); err != nil {
		return fmt.Errorf("pushing queue entry: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Entry, error) {
	vals, err := q.client.BRPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("popping queue entry: %w", err)
	}

	// BRPop returns [key, value].
	var entry Entry
	if err := json.Unmarshal([]byte(vals[1]), &entry); err != nil {
		return nil, fmt.Errorf("decoding queue entry: %w", err)
	}
	return &entry, nil
}

// Compile-time check that RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)
