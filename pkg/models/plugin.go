package models

import "context"

// AnalysisPlugin is the interface every analysis strategy must implement.
// Never call a concrete plugin directly — look it up in the registry and
// dispatch through this interface.
type AnalysisPlugin interface {
	// Analyze transforms a historical series into a forecast.
	Analyze(ctx context.Context, data JobData) (*AnalysisOutput, error)
	// Name returns the registry key (e.g., "simple_predictor").
	Name() string
	// Description is a short human-readable summary for plugin listings.
	Description() string
}

// AnalysisOutput is the result of a plugin invocation.
type AnalysisOutput struct {
	Predictions []PredictionPoint `json:"predictions"`
	Confidence  float64           `json:"confidence"`
	Model       string            `json:"model"`
	Metadata    AnalysisMetadata  `json:"metadata"`
}

// AnalysisMetadata carries informational fields alongside the forecast.
type AnalysisMetadata struct {
	Trend      float64 `json:"trend"`
	DataPoints int     `json:"data_points"`
}

// PredictionPoint is one forecast value at a future timestamp (RFC3339 UTC).
type PredictionPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}
