package ffmpeg

import (
	"errors"
	"fmt"
)

// ErrEngineUnavailable means the ffmpeg or ffprobe binary could not be started.
// It is an infrastructure failure rather than a problem with one input.
var ErrEngineUnavailable = errors.New("ffmpeg engine unavailable")

// ProbeError is returned when the container metadata cannot be read.
type ProbeError struct {
	Err error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("probe duration: %v", e.Err) }

func (e *ProbeError) Unwrap() error { return e.Err }

// ExtractError is returned when ffmpeg exits without producing a frame.
// Code is the process exit code, or -1 when ffmpeg exited 0 with no output.
type ExtractError struct {
	Code   int
	Output string
}

func (e *ExtractError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("extract frame: exit code %d", e.Code)
	}
	return fmt.Sprintf("extract frame: exit code %d: %s", e.Code, e.Output)
}
