package ffmpeg

import (
	"fmt"
	"math"
)

// FormatSeconds renders a non-negative offset as HH:MM:SS.mmm for -ss.
//
//	FormatSeconds(0)      // "00:00:00.000"
//	FormatSeconds(5.8)    // "00:00:05.800"
//	FormatSeconds(3661.5) // "01:01:01.500"
func FormatSeconds(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	m := (ms % 3_600_000) / 60_000
	s := (ms % 60_000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}
