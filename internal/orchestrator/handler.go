package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	frameContentType    = "image/jpeg"
)

// Handler exposes job endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the job endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/jobs", h.SubmitJob)
	r.Route("/jobs/{job_id}", func(r chi.Router) {
		r.Get("/", h.GetJob)
		r.Get("/frames/{index}", h.GetFrame)
		r.Get("/playlist.m3u8", h.GetPlaylist)
	})
}

type submitRequest struct {
	URL  string     `json:"url"`
	Kind SourceKind `json:"kind,omitempty"`
}

type submitResponse struct {
	ID JobID `json:"id"`
}

type frameView struct {
	Index      int     `json:"index"`
	Timestamp  float64 `json:"timestamp"`
	SeekOffset float64 `json:"seek_offset"`
	Segment    int     `json:"segment"`
	Size       int     `json:"size"`
	URL        string  `json:"url"`
}

type jobView struct {
	ID         JobID       `json:"id"`
	Source     Source      `json:"source"`
	Status     Status      `json:"status"`
	Progress   float64     `json:"progress"`
	FrameCount int         `json:"frame_count"`
	Frames     []frameView `json:"frames"`
	Reason     string      `json:"reason,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

func newJobView(job Job) jobView {
	v := jobView{
		ID:         job.ID,
		Source:     job.Source,
		Status:     job.Status,
		Progress:   job.Progress,
		FrameCount: len(job.Frames),
		Frames:     make([]frameView, 0, len(job.Frames)),
		Reason:     job.Reason,
		CreatedAt:  job.CreatedAt,
	}
	if !job.FinishedAt.IsZero() {
		finished := job.FinishedAt
		v.FinishedAt = &finished
	}
	for _, f := range job.Frames {
		v.Frames = append(v.Frames, frameView{
			Index:      f.Index,
			Timestamp:  f.Timestamp,
			SeekOffset: f.SeekOffset,
			Segment:    f.Segment,
			Size:       len(f.Image),
			URL:        fmt.Sprintf("/jobs/%s/frames/%d", job.ID, f.Index),
		})
	}
	return v
}

// SubmitJob handles POST /jobs.
// Body: { "url": "https://example.com/video.m3u8", "kind": "playlist" }; kind is optional.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid job body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Kind != "" && req.Kind != SourceFile && req.Kind != SourcePlaylist {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id, err := h.svc.Submit(Source{URL: req.URL, Kind: req.Kind})
	if err != nil {
		if errors.Is(err, ErrInvalidSource) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.log.Error("submit job failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.log.Info("job submitted", slog.String("job_id", string(id)), slog.String("url", req.URL))
	h.writeJSON(w, http.StatusAccepted, submitResponse{ID: id})
}

// GetJob handles GET /jobs/{job_id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.svc.Get(JobID(chi.URLParam(r, "job_id")))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, newJobView(job))
}

// GetFrame handles GET /jobs/{job_id}/frames/{index}.
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	img, ok := h.svc.Frame(JobID(chi.URLParam(r, "job_id")), index)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", frameContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// GetPlaylist handles GET /jobs/{job_id}/playlist.m3u8.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	m3u8, ok := h.svc.Playlist(JobID(chi.URLParam(r, "job_id")))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u8))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode response failed", slog.String("error", err.Error()))
	}
}
