package playlist

import (
	"fmt"
	"math"
	"strings"
)

// Encode renders r as a VOD media playlist with absolute segment URIs, the form
// the extraction job actually walked. #EXT-X-ENDLIST is written when r.EndList is set.
// A result with no segments produces a minimal valid playlist.
func Encode(r Result) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDuration(r.Segments)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")

	for _, seg := range r.Segments {
		b.WriteString(fmt.Sprintf("#EXTINF:%.3f,\n", seg.Duration))
		b.WriteString(seg.URL)
		b.WriteString("\n")
	}

	if r.EndList {
		b.WriteString(tagEndList + "\n")
	}

	return b.String()
}

// targetDuration returns the #EXT-X-TARGETDURATION value: the ceiling of the
// longest segment duration, and at least 1.
func targetDuration(segments []Segment) int {
	longest := 0.0
	for _, seg := range segments {
		if seg.Duration > longest {
			longest = seg.Duration
		}
	}
	if longest <= 0 {
		return 1
	}
	return int(math.Ceil(longest))
}
