package orchestrator

import (
	"errors"
	"fmt"
)

// Failure reasons reported with EventFailed.
const (
	ReasonDurationUnavailable = "duration_unavailable"
	ReasonEngineUnavailable   = "engine_unavailable"
	ReasonCanceled            = "canceled"
)

// Skip reasons for targets that produced no frame.
const (
	SkipNotLocated    = "not_located"
	SkipFetchFailed   = "fetch_failed"
	SkipExtractFailed = "extract_failed"
)

// FatalJobError aborts the whole job.
type FatalJobError struct {
	Reason string
	Err    error
}

func (e *FatalJobError) Error() string {
	if e.Err == nil {
		return "job failed: " + e.Reason
	}
	return fmt.Sprintf("job failed: %s: %v", e.Reason, e.Err)
}

func (e *FatalJobError) Unwrap() error { return e.Err }

// SkippedTargetError records why one target timestamp produced no frame. It
// never fails the job.
type SkippedTargetError struct {
	Target int
	Time   float64
	Reason string
	Err    error
}

func (e *SkippedTargetError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("target %d at %.3fs skipped: %s", e.Target, e.Time, e.Reason)
	}
	return fmt.Sprintf("target %d at %.3fs skipped: %s: %v", e.Target, e.Time, e.Reason, e.Err)
}

func (e *SkippedTargetError) Unwrap() error { return e.Err }

// ErrEmptyResource is reported when a fetch or extraction returns zero bytes.
var ErrEmptyResource = errors.New("empty resource")

var (
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose id is already stored.
	ErrJobExists = errors.New("job already exists")

	// ErrInvalidSource is returned when a submitted source has no URL.
	ErrInvalidSource = errors.New("source url is required")
)
