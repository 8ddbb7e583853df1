package handler

import (
	"context"
	"encoding/json"
	"net/http"

	mw "github.com/nekazari/intelligence/internal/api/middleware"
	"github.com/nekazari/intelligence/internal/api/response"
	"github.com/nekazari/intelligence/internal/plugin"
	"github.com/nekazari/intelligence/pkg/models"
)

const (
	defaultHorizon = 24
	maxHorizon     = 168
)

// JobSubmitter defines the job-creation interface the handlers depend on.
type JobSubmitter interface {
	Create(ctx context.Context, jobType string, data models.JobData, tenantID string) (*models.Job, error)
}

type submitRequest struct {
	EntityID          string             `json:"entity_id"`
	Attribute         string             `json:"attribute"`
	HistoricalData    []models.DataPoint `json:"historical_data"`
	PredictionHorizon *int               `json:"prediction_horizon"`
	Plugin            string             `json:"plugin"`
	Priority          int                `json:"priority"`
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// NewSubmitHandler returns an http.HandlerFunc that validates a submission
// and enqueues a job of the given type. POST /api/intelligence/analyze and
// POST /api/intelligence/predict share it.
func NewSubmitHandler(svc JobSubmitter, jobType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := mw.GetTenantService(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		data, details := buildJobData(req)
		if details != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid job parameters", details)
			return
		}

		job, err := svc.Create(r.Context(), jobType, data, tenant)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to enqueue job", nil)
			return
		}

		response.Accepted(w, submitResponse{
			JobID:  job.ID.String(),
			Status: job.Status,
		})
	}
}

// buildJobData validates a submission and fills in defaults. It returns a
// field-to-errors map when validation fails.
func buildJobData(req submitRequest) (models.JobData, map[string][]string) {
	details := map[string][]string{}

	if req.EntityID == "" {
		details["entity_id"] = append(details["entity_id"], "entity_id is required")
	}
	if req.Attribute == "" {
		details["attribute"] = append(details["attribute"], "attribute is required")
	}
	if len(req.HistoricalData) == 0 {
		details["historical_data"] = append(details["historical_data"], "historical_data is required")
	}

	horizon := defaultHorizon
	if req.PredictionHorizon != nil {
		horizon = *req.PredictionHorizon
		if horizon < 1 || horizon > maxHorizon {
			details["prediction_horizon"] = append(details["prediction_horizon"],
				"prediction_horizon must be between 1 and 168")
		}
	}

	if len(details) > 0 {
		return models.JobData{}, details
	}

	pluginName := req.Plugin
	if pluginName == "" {
		pluginName = plugin.DefaultName
	}

	return models.JobData{
		EntityID:          req.EntityID,
		Attribute:         req.Attribute,
		HistoricalData:    req.HistoricalData,
		PredictionHorizon: horizon,
		Plugin:            pluginName,
		Priority:          req.Priority,
	}, nil
}
