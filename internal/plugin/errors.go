package plugin

import "errors"

var (
	// ErrNotFound is returned when no plugin is registered under a name.
	ErrNotFound = errors.New("plugin not found")
	// ErrInsufficientData is returned when a series is too short to analyze.
	ErrInsufficientData = errors.New("need at least 2 historical data points")
	// ErrInvalidHorizon is returned for horizons outside the supported range.
	ErrInvalidHorizon = errors.New("prediction horizon must be between 1 and 168 hours")
)
