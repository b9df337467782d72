package orchestrator

import (
	"strings"
	"time"

	"hls-thumbnailer/internal/playlist"
)

// Status is the lifecycle state of one extraction job.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusFetchingPlaylist Status = "fetching_playlist"
	StatusFetchingFile     Status = "fetching_file"
	StatusExtracting       Status = "extracting"
	StatusDone             Status = "done"
	StatusFailed           Status = "failed"
)

// Terminal reports whether no further events follow this status.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// SourceKind says how the source URL is laid out.
type SourceKind string

const (
	SourceFile     SourceKind = "file"
	SourcePlaylist SourceKind = "playlist"
)

// Source is the asset a job extracts frames from.
type Source struct {
	URL  string     `json:"url"`
	Kind SourceKind `json:"kind"`
}

// DetectSource treats any URL mentioning .m3u8 as a playlist and everything
// else as a single progressive file.
func DetectSource(url string) Source {
	if strings.Contains(strings.ToLower(url), ".m3u8") {
		return Source{URL: url, Kind: SourcePlaylist}
	}
	return Source{URL: url, Kind: SourceFile}
}

// FrameResult is one extracted thumbnail. Timestamp is the requested global
// time, not the clamped in-resource seek offset.
type FrameResult struct {
	Index      int     `json:"index"`
	Timestamp  float64 `json:"timestamp"`
	SeekOffset float64 `json:"seek_offset"`
	// Segment is the owning playlist segment index, or -1 for single-file sources.
	Segment int    `json:"segment"`
	Image   []byte `json:"-"`
}

// EventType identifies an orchestrator event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
	EventFrame    EventType = "frame"
	EventFailed   EventType = "failed"
	EventComplete EventType = "complete"
)

// Event is emitted by the orchestrator while a job runs. Every job ends with
// exactly one EventComplete or EventFailed.
type Event struct {
	Type     EventType
	Status   Status
	Progress float64
	Frame    *FrameResult
	// Reason is the failure code for EventFailed.
	Reason string
	// FrameCount is the number of collected frames for EventComplete.
	FrameCount int
	// Playlist is the resolved media playlist, carried on status events once
	// phase 1 has loaded it.
	Playlist *playlist.Result
	Err      error
}

// EventFunc receives orchestrator events in emission order.
type EventFunc func(Event)

type resourceKey string

const fileResourceKey resourceKey = "single-file"

// JobState is the orchestrator's state for one job. The resource cache is
// scoped to the job and released when Run returns.
type JobState struct {
	Status   Status
	Source   Source
	Duration float64
	Playlist *playlist.Result
	Targets  []float64
	Progress float64
	Frames   []FrameResult
	Skipped  []*SkippedTargetError
	Reason   string

	resources map[resourceKey][]byte
}

func newJobState(src Source) *JobState {
	return &JobState{
		Status:    StatusIdle,
		Source:    src,
		resources: make(map[resourceKey][]byte),
	}
}

func (j *JobState) release() {
	j.resources = nil
}

// JobID uniquely identifies a job submitted to the Service.
type JobID string

// Job is the stored record of a submitted job, built up from its events.
type Job struct {
	ID         JobID
	Source     Source
	Status     Status
	Progress   float64
	Frames     []FrameResult
	Reason     string
	Playlist   *playlist.Result
	CreatedAt  time.Time
	FinishedAt time.Time
}
