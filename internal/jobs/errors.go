package jobs

import "errors"

var (
	// ErrNotFound is returned when a job id has no record (unknown or expired).
	ErrNotFound = errors.New("job not found")
	// ErrConflict is returned when a transition's expected prior status does
	// not match the stored record.
	ErrConflict = errors.New("job status conflict")
)
