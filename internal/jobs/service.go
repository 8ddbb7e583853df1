package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nekazari/intelligence/pkg/models"
)

// Service orchestrates job creation, status transitions, and cancellation.
// All status writes go through Transition, which requires the caller to name
// the expected prior status so a concurrent cancel cannot be silently undone.
type Service struct {
	store Store
	queue Queue
}

// NewService creates a Service over the given store and queue.
func NewService(store Store, queue Queue) *Service {
	return &Service{store: store, queue: queue}
}

// Create persists a pending job and pushes its queue entry, returning the job
// immediately. The store write and the queue push are not atomic: a crash
// between them leaves a pending record that never runs (see DESIGN.md).
func (s *Service) Create(ctx context.Context, jobType string, data models.JobData, tenantID string) (*models.Job, error) {
	if tenantID == "" {
		tenantID = models.DefaultTenant
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		Type:      jobType,
		TenantID:  tenantID,
		Status:    models.JobStatusPending,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	entry := Entry{JobID: job.ID, TenantID: tenantID, Priority: data.Priority}
	if err := s.queue.Push(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}

	slog.Info("job created", "job_id", job.ID, "type", jobType, "tenant", tenantID)
	return job, nil
}

// Get returns the current record for a job, or ErrNotFound once it has
// expired from the store.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.Get(ctx, id)
}

type transitionParams struct {
	result json.RawMessage
	errMsg *string
}

// TransitionOption sets the result or error recorded with a transition.
type TransitionOption func(*transitionParams)

// WithResult attaches the structured output written on completion.
func WithResult(result json.RawMessage) TransitionOption {
	return func(p *transitionParams) {
		p.result = result
	}
}

// WithErrorMessage attaches the failure text and bumps the retry counter.
func WithErrorMessage(msg string) TransitionOption {
	return func(p *transitionParams) {
		p.errMsg = &msg
	}
}

// Transition moves a job from an expected prior status to a new one and
// writes the full record back, refreshing its expiry. Returns ErrNotFound if
// the record is gone and ErrConflict if the stored status is not `from` —
// the record is left untouched in that case.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, from, to string, opts ...TransitionOption) (*models.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status != from {
		return nil, fmt.Errorf("%w: job %s is %s, expected %s", ErrConflict, id, job.Status, from)
	}

	var params transitionParams
	for _, opt := range opts {
		opt(&params)
	}

	job.Status = to
	job.UpdatedAt = time.Now().UTC()
	if params.result != nil {
		job.Result = params.result
	}
	if params.errMsg != nil {
		job.Error = params.errMsg
		job.RetryCount++
	}

	if err := s.store.Put(ctx, job); err != nil {
		return nil, err
	}

	slog.Info("job status updated", "job_id", id, "from", from, "to", to)
	return job, nil
}

// Cancel flips a pending or running job to cancelled. Returns false when
// the job is absent or already terminal. Cancelling a running job does not
// interrupt in-flight work; the worker observes the cancellation when its
// terminal write conflicts.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	// A conflict means the worker moved the job between our read and the
	// conditional write (pending to running). Running is still cancellable,
	// so retry once with the fresh status.
	for attempt := 0; attempt < 2; attempt++ {
		job, err := s.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		if models.TerminalStatus(job.Status) {
			return false, nil
		}

		_, err = s.Transition(ctx, id, job.Status, models.JobStatusCancelled)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if !errors.Is(err, ErrConflict) {
			return false, err
		}
	}
	return false, nil
}
