// Package models contains shared data models used across the intelligence module.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job statuses. A job moves pending → running → completed/failed, or is
// cancelled from pending/running. Terminal statuses never change again.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// DefaultTenant is the tenant recorded when a request carries none.
const DefaultTenant = "default"

// TerminalStatus reports whether a status admits no further transitions.
func TerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job is the persisted record for one analysis or prediction request.
// The API returns its id on POST /analyze or /predict; clients poll
// GET /jobs/{id} until status is terminal. Records expire from the store
// after a fixed retention window.
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	TenantID   string          `json:"tenant_id"`
	Status     string          `json:"status"`
	Data       JobData         `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Result     json.RawMessage `json:"result"`
	Error      *string         `json:"error"`
	RetryCount int             `json:"retry_count"`
}

// JobData is the input payload captured at creation. It is never mutated
// afterwards. Priority is recorded but does not affect queue ordering.
type JobData struct {
	EntityID          string      `json:"entity_id"`
	Attribute         string      `json:"attribute"`
	HistoricalData    []DataPoint `json:"historical_data"`
	PredictionHorizon int         `json:"prediction_horizon"`
	Plugin            string      `json:"plugin"`
	Priority          int         `json:"priority"`
}

// DataPoint is one observed value in a historical series. Timestamps are
// RFC3339 strings, as received from NGSI-LD temporal queries.
type DataPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}
