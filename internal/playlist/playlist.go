// Package playlist parses HLS media playlists into a timeline of segments and
// maps timestamps on that timeline back to the segment that owns them.
package playlist

// Segment is one independently fetchable chunk of a playlist-based asset.
// Start and End are cumulative offsets in seconds; End == Start + Duration.
type Segment struct {
	Index    int     `json:"index"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
}

// Variant is a rendition listed by a master playlist.
type Variant struct {
	URL        string `json:"url"`
	Bandwidth  int64  `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
}

// Result is the outcome of parsing one playlist. Segments tile [0, Duration)
// in playlist order with no gaps or overlaps.
type Result struct {
	Duration float64
	Segments []Segment
	Variants []Variant
	EndList  bool
}

// IsMaster reports whether the playlist only lists variants and no media segments.
func (r Result) IsMaster() bool {
	return len(r.Segments) == 0 && len(r.Variants) > 0
}

// LowestBandwidth returns the variant with the smallest declared bandwidth.
// Variants without a bandwidth sort after those with one; ties keep playlist order.
func (r Result) LowestBandwidth() (Variant, bool) {
	if len(r.Variants) == 0 {
		return Variant{}, false
	}
	best := r.Variants[0]
	for _, v := range r.Variants[1:] {
		if v.Bandwidth <= 0 {
			continue
		}
		if best.Bandwidth <= 0 || v.Bandwidth < best.Bandwidth {
			best = v
		}
	}
	return best, true
}
