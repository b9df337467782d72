package orchestrator

import (
	"math"

	"hls-thumbnailer/internal/playlist"
)

// DefaultTargetCount is the number of evenly spaced thumbnails per job.
const DefaultTargetCount = 9

// DefaultFrameWidth is the thumbnail width in pixels; height keeps the aspect ratio.
const DefaultFrameWidth = 320

// Seeking within the last half second of a segment often decodes nothing, so
// such offsets are pulled back to one second before the segment end. These
// margins were tuned by hand; changing them changes which frames are produced.
const (
	boundaryMargin  = 0.5
	boundaryBackoff = 1.0
)

// ComputeTargets returns count timestamps evenly spaced strictly inside
// (0, duration): t_i = duration/(count+1) * (i+1). Boundary frames are skipped
// because they are frequently black.
func ComputeTargets(duration float64, count int) []float64 {
	if !validDuration(duration) || count <= 0 {
		return nil
	}
	interval := duration / float64(count+1)
	targets := make([]float64, count)
	for i := range targets {
		targets[i] = interval * float64(i+1)
	}
	return targets
}

// SeekOffset converts global time t into an offset within seg, clamped to
// [0, seg.Duration) and kept clear of the segment's trailing edge.
func SeekOffset(t float64, seg playlist.Segment) float64 {
	offset := t - seg.Start
	if offset < 0 {
		offset = 0
	}
	if offset > seg.Duration-boundaryMargin {
		offset = math.Max(0, seg.Duration-boundaryBackoff)
	}
	return offset
}

// validDuration reports whether d is a usable media duration: finite and
// strictly positive.
func validDuration(d float64) bool {
	return d > 0 && !math.IsInf(d, 0)
}
