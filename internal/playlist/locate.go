package playlist

import "sort"

// Locate returns the segment whose half-open interval [Start, End) contains t.
// The second result is false when t is negative, at or past the end of the
// timeline, or falls outside every segment.
func Locate(segments []Segment, t float64) (Segment, bool) {
	if len(segments) == 0 || t < 0 {
		return Segment{}, false
	}
	// Intervals are contiguous and sorted: the owner is the first segment ending after t.
	i := sort.Search(len(segments), func(i int) bool { return segments[i].End > t })
	if i == len(segments) {
		return Segment{}, false
	}
	seg := segments[i]
	if t < seg.Start || t >= seg.End {
		return Segment{}, false
	}
	return seg, true
}
