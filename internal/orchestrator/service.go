package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"hls-thumbnailer/internal/playlist"

	"github.com/google/uuid"
)

// Runner executes one extraction job. *Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, src Source, emit EventFunc) *JobState
}

// Service accepts extraction jobs and runs them one at a time. Submitting a job
// cancels the one in flight; the new job starts once the old one has unwound.
type Service struct {
	repo   Repository
	runner Runner
	log    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewService returns a Service that records job progress in repo.
func NewService(repo Repository, runner Runner, log *slog.Logger) *Service {
	return &Service{repo: repo, runner: runner, log: log}
}

// Submit registers a job for src and starts it in the background. An empty
// Kind is inferred from the URL.
func (s *Service) Submit(src Source) (JobID, error) {
	src.URL = strings.TrimSpace(src.URL)
	if src.URL == "" {
		return "", ErrInvalidSource
	}
	if src.Kind == "" {
		src.Kind = DetectSource(src.URL).Kind
	}

	id := JobID(uuid.NewString())
	if err := s.repo.Create(&Job{ID: id, Source: src}); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := s.repo.Apply(id, Event{Type: EventFailed, Reason: ReasonCanceled}); err != nil {
			s.log.Error("record job event failed",
				slog.String("job_id", string(id)),
				slog.String("event", string(EventFailed)),
				slog.String("error", err.Error()))
		}
		return id, nil
	}
	prevCancel, prevDone := s.cancel, s.done
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	if prevCancel != nil {
		s.log.Info("superseding in-flight job", slog.String("job_id", string(id)))
		prevCancel()
	}

	go s.run(ctx, cancel, id, src, prevDone, done)
	return id, nil
}

func (s *Service) run(ctx context.Context, cancel context.CancelFunc, id JobID, src Source, prevDone <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer cancel()
	if prevDone != nil {
		<-prevDone
	}

	log := s.log.With(slog.String("job_id", string(id)))
	log.Info("job started", slog.String("url", src.URL), slog.String("kind", string(src.Kind)))

	s.runner.Run(ctx, src, func(ev Event) {
		if err := s.repo.Apply(id, ev); err != nil {
			log.Error("record job event failed", slog.String("event", string(ev.Type)), slog.String("error", err.Error()))
		}
	})
}

// Get returns a snapshot of the job.
func (s *Service) Get(id JobID) (Job, bool) {
	return s.repo.Get(id)
}

// Frame returns the JPEG bytes of the job's frame for target index.
func (s *Service) Frame(id JobID, index int) ([]byte, bool) {
	return s.repo.Frame(id, index)
}

// Playlist returns the resolved media playlist a playlist job walked.
func (s *Service) Playlist(id JobID) (string, bool) {
	job, ok := s.repo.Get(id)
	if !ok || job.Playlist == nil {
		return "", false
	}
	return playlist.Encode(*job.Playlist), true
}

// Wait blocks until the most recently submitted job has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the in-flight job, rejects new ones and waits for the
// running job to unwind.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	return s.Wait(ctx)
}
