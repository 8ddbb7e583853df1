// Package mock provides a configurable models.AnalysisPlugin for testing.
package mock

import (
	"context"

	"github.com/nekazari/intelligence/pkg/models"
)

// Plugin satisfies models.AnalysisPlugin for testing.
type Plugin struct {
	Name_        string
	Description_ string
	AnalyzeFunc  func(ctx context.Context, data models.JobData) (*models.AnalysisOutput, error)
}

func (m *Plugin) Name() string        { return m.Name_ }
func (m *Plugin) Description() string { return m.Description_ }

func (m *Plugin) Analyze(ctx context.Context, data models.JobData) (*models.AnalysisOutput, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, data)
	}
	return &models.AnalysisOutput{Model: m.Name_}, nil
}

// New returns a mock plugin with a sensible default response.
func New() *Plugin {
	return &Plugin{
		Name_:        "mock",
		Description_: "Mock plugin for testing",
		AnalyzeFunc: func(_ context.Context, data models.JobData) (*models.AnalysisOutput, error) {
			return &models.AnalysisOutput{
				Predictions: []models.PredictionPoint{
					{Timestamp: "2026-01-15T12:00:00Z", Value: 21.5},
				},
				Confidence: 0.85,
				Model:      "mock",
				Metadata: models.AnalysisMetadata{
					Trend:      0.5,
					DataPoints: len(data.HistoricalData),
				},
			}, nil
		},
	}
}

// NewFailing returns a mock plugin that always returns the given error.
func NewFailing(err error) *Plugin {
	return &Plugin{
		Name_:        "mock-failing",
		Description_: "Mock plugin that always fails",
		AnalyzeFunc: func(_ context.Context, _ models.JobData) (*models.AnalysisOutput, error) {
			return nil, err
		},
	}
}
