package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nekazari/intelligence/internal/orion"
	"github.com/nekazari/intelligence/internal/plugin"
	"github.com/nekazari/intelligence/pkg/models"
)

const (
	defaultPopTimeout   = 5 * time.Second
	defaultIdleDelay    = time.Second
	defaultErrorBackoff = 5 * time.Second
)

// Worker is the single logical consumer of the queue. It resolves each entry
// to its job record, runs the selected plugin, and writes the terminal
// status. A job failure never stops the loop; only infrastructure faults
// trigger the longer backoff pause.
type Worker struct {
	service  *Service
	queue    Queue
	registry *plugin.Registry
	orion    orion.Client

	popTimeout   time.Duration
	idleDelay    time.Duration
	errorBackoff time.Duration
}

// Option configures worker timings.
type Option func(*Worker)

// WithPopTimeout bounds the blocking queue pop.
func WithPopTimeout(d time.Duration) Option {
	return func(w *Worker) { w.popTimeout = d }
}

// WithIdleDelay sets the pause after an empty pop.
func WithIdleDelay(d time.Duration) Option {
	return func(w *Worker) { w.idleDelay = d }
}

// WithErrorBackoff sets the pause after a loop-level fault.
func WithErrorBackoff(d time.Duration) Option {
	return func(w *Worker) { w.errorBackoff = d }
}

// NewWorker creates a worker. The orion client is only consulted for predict
// jobs; analyze jobs never touch it.
func NewWorker(service *Service, queue Queue, registry *plugin.Registry, orionClient orion.Client, opts ...Option) *Worker {
	w := &Worker{
		service:      service,
		queue:        queue,
		registry:     registry,
		orion:        orionClient,
		popTimeout:   defaultPopTimeout,
		idleDelay:    defaultIdleDelay,
		errorBackoff: defaultErrorBackoff,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the queue until ctx is cancelled. Stopping is cooperative: an
// in-flight job finishes before the loop observes cancellation.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker started")
	defer slog.Info("worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		entry, err := w.queue.Pop(ctx, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("queue pop failed", "error", err)
			w.pause(ctx, w.errorBackoff)
			continue
		}
		if entry == nil {
			w.pause(ctx, w.idleDelay)
			continue
		}

		if err := w.process(ctx, entry); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("worker loop fault", "job_id", entry.JobID, "error", err)
			w.pause(ctx, w.errorBackoff)
		}
	}
}

// process runs one queue entry end to end. It returns an error only for
// infrastructure faults (store unreachable); job-level failures are recorded
// on the job and swallowed.
func (w *Worker) process(ctx context.Context, entry *Entry) error {
	job, err := w.service.Get(ctx, entry.JobID)
	if errors.Is(err, ErrNotFound) {
		// Expired record or stale reference; nothing to do.
		slog.Warn("skipping stale queue entry", "job_id", entry.JobID)
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := w.service.Transition(ctx, job.ID, models.JobStatusPending, models.JobStatusRunning); err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			// Cancelled (or re-delivered) before it started.
			slog.Info("skipping job", "job_id", job.ID, "error", err)
			return nil
		}
		return err
	}

	slog.Info("processing job", "job_id", job.ID, "type", job.Type, "tenant", job.TenantID)

	output, dispatchErr := w.dispatch(ctx, job)
	if dispatchErr != nil {
		slog.Error("job failed", "job_id", job.ID, "error", dispatchErr)
		return w.finish(ctx, job, models.JobStatusFailed, WithErrorMessage(dispatchErr.Error()))
	}

	result, err := json.Marshal(output)
	if err != nil {
		return w.finish(ctx, job, models.JobStatusFailed,
			WithErrorMessage(fmt.Sprintf("encoding result: %v", err)))
	}

	slog.Info("job completed", "job_id", job.ID)
	return w.finish(ctx, job, models.JobStatusCompleted, WithResult(result))
}

// finish writes the terminal status. A conflict here means the job was
// cancelled while running; the cancellation wins and the computed outcome is
// dropped.
func (w *Worker) finish(ctx context.Context, job *models.Job, status string, opts ...TransitionOption) error {
	_, err := w.service.Transition(ctx, job.ID, models.JobStatusRunning, status, opts...)
	if errors.Is(err, ErrConflict) {
		slog.Info("job cancelled mid-flight, dropping outcome", "job_id", job.ID, "outcome", status)
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// dispatch routes the job to its handler. Plugins are third-party code; a
// panic inside one is converted to a job failure so the loop survives.
func (w *Worker) dispatch(ctx context.Context, job *models.Job) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic recovered",
				"error", rec,
				"stack", string(debug.Stack()),
				"job_id", job.ID,
				"type", job.Type,
			)
			out = nil
			err = fmt.Errorf("plugin panic: %v", rec)
		}
	}()

	switch job.Type {
	case "analyze":
		return w.analyze(ctx, job)
	case "predict":
		return w.predict(ctx, job)
	default:
		return nil, fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (w *Worker) analyze(ctx context.Context, job *models.Job) (*models.AnalysisOutput, error) {
	name := job.Data.Plugin
	if name == "" {
		name = plugin.DefaultName
	}

	p, ok := w.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", plugin.ErrNotFound, name)
	}

	return p.Analyze(ctx, job.Data)
}

// predictOutput is the analysis output plus the write-through reference.
// OrionEntityID stays null when the broker write failed.
type predictOutput struct {
	models.AnalysisOutput
	OrionEntityID *string `json:"orion_entity_id"`
}

// predict runs the analysis and then publishes the forecast to Orion-LD.
// The write-through is best effort: computing the prediction is the job's
// success criterion, not durable publication.
func (w *Worker) predict(ctx context.Context, job *models.Job) (*predictOutput, error) {
	out, err := w.analyze(ctx, job)
	if err != nil {
		return nil, err
	}

	attribute := job.Data.Attribute
	if attribute == "" {
		attribute = "value"
	}

	entityID := orion.PredictionEntityID(job.TenantID, job.Data.EntityID, attribute)

	var ref *string
	id, err := w.orion.CreateOrUpdatePrediction(ctx, orion.Prediction{
		EntityID:    entityID,
		TenantID:    job.TenantID,
		RefEntityID: job.Data.EntityID,
		Attribute:   attribute,
		Predictions: out.Predictions,
		Model:       out.Model,
		Confidence:  out.Confidence,
	})
	if err != nil {
		slog.Warn("orion write-through failed", "job_id", job.ID, "entity_id", entityID, "error", err)
	} else {
		ref = &id
	}

	return &predictOutput{AnalysisOutput: *out, OrionEntityID: ref}, nil
}

// pause sleeps for d or until ctx is cancelled.
func (w *Worker) pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
