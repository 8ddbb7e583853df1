package jobs

import (
	"time"

	"github.com/google/uuid"
)

// queueKey is the Redis list carrying queue entries, shared by all tenants.
const queueKey = "intelligence:queue"

// retentionTTL is how long a job record survives in the store. Every full
// write resets the clock, so the window runs from the last status change.
const retentionTTL = 7 * 24 * time.Hour

func jobKey(id uuid.UUID) string {
	return "intelligence:job:" + id.String()
}
