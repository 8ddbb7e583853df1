// Package simple provides the built-in linear-trend predictor. It is a
// reference strategy; production deployments are expected to register real
// ML-backed plugins alongside it.
package simple

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nekazari/intelligence/internal/plugin"
	"github.com/nekazari/intelligence/pkg/models"
)

const (
	defaultHorizon = 24
	maxHorizon     = 168
)

// Predictor extrapolates the average per-step delta of a series forward,
// one point per hour, with a confidence that degrades with the horizon.
type Predictor struct{}

// New creates the predictor.
func New() *Predictor {
	return &Predictor{}
}

func (p *Predictor) Name() string { return "simple_predictor" }

func (p *Predictor) Description() string {
	return "Linear trend extrapolation over hourly steps"
}

// Analyze implements models.AnalysisPlugin.
func (p *Predictor) Analyze(_ context.Context, data models.JobData) (*models.AnalysisOutput, error) {
	points := data.HistoricalData
	if len(points) < 2 {
		return nil, plugin.ErrInsufficientData
	}

	horizon := data.PredictionHorizon
	if horizon == 0 {
		horizon = defaultHorizon
	}
	if horizon < 1 || horizon > maxHorizon {
		return nil, plugin.ErrInvalidHorizon
	}

	last := points[len(points)-1]
	lastTS, err := time.Parse(time.RFC3339, last.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", last.Timestamp, err)
	}

	trend := (last.Value - points[0].Value) / float64(len(points))

	predictions := make([]models.PredictionPoint, 0, horizon)
	for hour := 1; hour <= horizon; hour++ {
		predictions = append(predictions, models.PredictionPoint{
			Timestamp: lastTS.Add(time.Duration(hour) * time.Hour).UTC().Format(time.RFC3339),
			Value:     round(last.Value+trend*float64(hour), 2),
		})
	}

	confidence := round(math.Max(0.5, 0.9-float64(horizon)/100), 2)

	return &models.AnalysisOutput{
		Predictions: predictions,
		Confidence:  confidence,
		Model:       p.Name(),
		Metadata: models.AnalysisMetadata{
			Trend:      round(trend, 4),
			DataPoints: len(points),
		},
	}, nil
}

func round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
