package handler

import (
	"encoding/json"
	"net/http"

	mw "github.com/nekazari/intelligence/internal/api/middleware"
	"github.com/nekazari/intelligence/internal/api/response"
	"github.com/nekazari/intelligence/internal/plugin"
	"github.com/nekazari/intelligence/pkg/models"
)

type webhookRequest struct {
	EntityID     string         `json:"entity_id"`
	Attribute    string         `json:"attribute"`
	AnalysisType string         `json:"analysis_type"`
	Data         webhookPayload `json:"data"`
}

// webhookPayload is the loosely-typed data blob n8n workflows post.
// Fields missing from the top level of the request may arrive here instead.
type webhookPayload struct {
	EntityID          string             `json:"entity_id"`
	Attribute         string             `json:"attribute"`
	HistoricalData    []models.DataPoint `json:"historical_data"`
	PredictionHorizon *int               `json:"prediction_horizon"`
	Plugin            string             `json:"plugin"`
	Priority          int                `json:"priority"`
}

// NewWebhookHandler returns an http.HandlerFunc for POST /api/intelligence/webhook/n8n.
// It accepts n8n workflow calls and enqueues the requested analysis job,
// defaulting the analysis type to predict.
func NewWebhookHandler(svc JobSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := mw.GetTenantService(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		entityID := req.EntityID
		if entityID == "" {
			entityID = req.Data.EntityID
		}
		attribute := req.Attribute
		if attribute == "" {
			attribute = req.Data.Attribute
		}
		if entityID == "" || attribute == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"entity_id and attribute are required", nil)
			return
		}

		horizon := defaultHorizon
		if req.Data.PredictionHorizon != nil {
			horizon = *req.Data.PredictionHorizon
			if horizon < 1 || horizon > maxHorizon {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
					"prediction_horizon must be between 1 and 168", nil)
				return
			}
		}

		pluginName := req.Data.Plugin
		if pluginName == "" {
			pluginName = plugin.DefaultName
		}

		jobType := req.AnalysisType
		if jobType == "" {
			jobType = "predict"
		}

		job, err := svc.Create(r.Context(), jobType, models.JobData{
			EntityID:          entityID,
			Attribute:         attribute,
			HistoricalData:    req.Data.HistoricalData,
			PredictionHorizon: horizon,
			Plugin:            pluginName,
			Priority:          req.Data.Priority,
		}, tenant)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to enqueue job", nil)
			return
		}

		response.Accepted(w, map[string]string{
			"job_id": job.ID.String(),
			"status": job.Status,
			"source": "n8n",
		})
	}
}
