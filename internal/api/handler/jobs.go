package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nekazari/intelligence/internal/api/response"
	"github.com/nekazari/intelligence/internal/jobs"
	"github.com/nekazari/intelligence/pkg/models"
)

// JobReader fetches job records for polling.
type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// JobCanceller requests advisory cancellation of a job.
type JobCanceller interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
}

// JobView is the wire shape of a job record.
type JobView struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	TenantID  string          `json:"tenant_id"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	Result    json.RawMessage `json:"result"`
	Error     *string         `json:"error"`
}

func jobView(job *models.Job) JobView {
	return JobView{
		ID:        job.ID.String(),
		Type:      job.Type,
		TenantID:  job.TenantID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
		Result:    job.Result,
		Error:     job.Error,
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/intelligence/jobs/{jobID}.
func NewGetJobHandler(svc JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID", nil)
			return
		}

		job, err := svc.Get(r.Context(), id)
		if errors.Is(err, jobs.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found or expired", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch job", nil)
			return
		}

		response.JSON(w, jobView(job))
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for DELETE /api/intelligence/jobs/{jobID}.
// Cancellation is advisory: a job already past the point of no return keeps
// its terminal status and the request is rejected with a conflict.
func NewCancelJobHandler(svc JobCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID", nil)
			return
		}

		if _, err := svc.Get(r.Context(), id); errors.Is(err, jobs.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found or expired", nil)
			return
		} else if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch job", nil)
			return
		}

		ok, err := svc.Cancel(r.Context(), id)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to cancel job", nil)
			return
		}
		if !ok {
			response.Error(w, http.StatusConflict, "CANNOT_CANCEL",
				"Job already reached a terminal status", nil)
			return
		}

		response.JSON(w, map[string]string{
			"id":     id.String(),
			"status": models.JobStatusCancelled,
		})
	}
}
