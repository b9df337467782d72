package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// gatedRunner blocks each job until it is released or canceled.
type gatedRunner struct {
	started   chan Source
	release   chan struct{}
	active    int32
	maxActive int32
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan Source, 8), release: make(chan struct{})}
}

func (g *gatedRunner) Run(ctx context.Context, src Source, emit EventFunc) *JobState {
	n := atomic.AddInt32(&g.active, 1)
	defer atomic.AddInt32(&g.active, -1)
	for {
		m := atomic.LoadInt32(&g.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&g.maxActive, m, n) {
			break
		}
	}

	emit(Event{Type: EventStatus, Status: StatusExtracting})
	g.started <- src
	select {
	case <-ctx.Done():
		emit(Event{Type: EventStatus, Status: StatusFailed})
		emit(Event{Type: EventFailed, Reason: ReasonCanceled, Err: ctx.Err()})
		return &JobState{Status: StatusFailed, Reason: ReasonCanceled}
	case <-g.release:
		emit(Event{Type: EventStatus, Status: StatusDone})
		emit(Event{Type: EventComplete})
		return &JobState{Status: StatusDone}
	}
}

func waitStarted(t *testing.T, g *gatedRunner) Source {
	t.Helper()
	select {
	case src := <-g.started:
		return src
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
		return Source{}
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestService_Submit_invalid_source(t *testing.T) {
	svc := NewService(NewInMemoryRepository(0), newGatedRunner(), quietLogger())

	for _, url := range []string{"", "   "} {
		if _, err := svc.Submit(Source{URL: url}); !errors.Is(err, ErrInvalidSource) {
			t.Errorf("Submit(%q): expected ErrInvalidSource, got %v", url, err)
		}
	}
}

func TestService_Submit_infers_kind(t *testing.T) {
	g := newGatedRunner()
	svc := NewService(NewInMemoryRepository(0), g, quietLogger())

	id, err := svc.Submit(Source{URL: "  " + playlistURL + " "})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	src := waitStarted(t, g)
	if src.URL != playlistURL || src.Kind != SourcePlaylist {
		t.Errorf("expected trimmed playlist source, got %+v", src)
	}

	job, ok := svc.Get(id)
	if !ok || job.Source.Kind != SourcePlaylist {
		t.Errorf("stored job: ok=%v source=%+v", ok, job.Source)
	}

	close(g.release)
	if err := svc.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestService_Submit_supersedes_running_job(t *testing.T) {
	g := newGatedRunner()
	svc := NewService(NewInMemoryRepository(0), g, quietLogger())

	first, _ := svc.Submit(Source{URL: fileURL})
	waitStarted(t, g)

	second, _ := svc.Submit(Source{URL: playlistURL})
	if src := waitStarted(t, g); src.URL != playlistURL {
		t.Fatalf("expected second job to start, got %+v", src)
	}

	job, _ := svc.Get(first)
	if job.Status != StatusFailed || job.Reason != ReasonCanceled {
		t.Errorf("superseded job: expected failed(canceled), got %s(%s)", job.Status, job.Reason)
	}

	close(g.release)
	if err := svc.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	job, _ = svc.Get(second)
	if job.Status != StatusDone {
		t.Errorf("second job: expected done, got %s", job.Status)
	}
	if m := atomic.LoadInt32(&g.maxActive); m != 1 {
		t.Errorf("jobs overlapped: max concurrent %d", m)
	}
}

func TestService_Wait(t *testing.T) {
	g := newGatedRunner()
	svc := NewService(NewInMemoryRepository(0), g, quietLogger())

	if err := svc.Wait(context.Background()); err != nil {
		t.Errorf("Wait with no jobs: %v", err)
	}

	_, _ = svc.Submit(Source{URL: fileURL})
	waitStarted(t, g)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded while job blocks, got %v", err)
	}

	close(g.release)
	if err := svc.Wait(waitCtx(t)); err != nil {
		t.Errorf("Wait after release: %v", err)
	}
}

func TestService_Shutdown(t *testing.T) {
	g := newGatedRunner()
	repo := NewInMemoryRepository(0)
	svc := NewService(repo, g, quietLogger())

	running, _ := svc.Submit(Source{URL: fileURL})
	waitStarted(t, g)

	if err := svc.Shutdown(waitCtx(t)); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	job, _ := svc.Get(running)
	if job.Status != StatusFailed || job.Reason != ReasonCanceled {
		t.Errorf("running job: expected failed(canceled), got %s(%s)", job.Status, job.Reason)
	}

	late, err := svc.Submit(Source{URL: fileURL})
	if err != nil {
		t.Fatalf("Submit after shutdown: %v", err)
	}
	job, _ = svc.Get(late)
	if job.Status != StatusFailed || job.Reason != ReasonCanceled {
		t.Errorf("late job: expected failed(canceled), got %s(%s)", job.Status, job.Reason)
	}
	if n := repo.ActiveJobCount(); n != 0 {
		t.Errorf("expected no active jobs, got %d", n)
	}
}

// rejectingRepository stores jobs but refuses every event.
type rejectingRepository struct {
	*InMemoryRepository
}

func (r *rejectingRepository) Apply(JobID, Event) error { return ErrJobNotFound }

func TestService_Submit_after_shutdown_logs_record_failure(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(&rejectingRepository{NewInMemoryRepository(0)}, newGatedRunner(), log)

	if err := svc.Shutdown(waitCtx(t)); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	id, err := svc.Submit(Source{URL: fileURL})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "record job event failed") || !strings.Contains(out, string(id)) {
		t.Errorf("expected logged record failure for %s, got %q", id, out)
	}
}

func TestService_playlist_job_end_to_end(t *testing.T) {
	o := newTestOrchestrator(threeSegmentFetcher(), &fakeProber{}, &fakeExtractor{})
	svc := NewService(NewInMemoryRepository(0), o, quietLogger())

	id, err := svc.Submit(Source{URL: playlistURL})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := svc.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	job, _ := svc.Get(id)
	if job.Status != StatusDone || len(job.Frames) != 9 || job.Progress != 1 {
		t.Fatalf("expected done with 9 frames, got %s with %d (progress %v)", job.Status, len(job.Frames), job.Progress)
	}

	img, ok := svc.Frame(id, 4)
	if !ok || string(img) != "frame:s1@5.000" {
		t.Errorf("Frame(4): ok=%v img=%q", ok, img)
	}

	m3u8, ok := svc.Playlist(id)
	if !ok {
		t.Fatal("Playlist: ok false")
	}
	for _, want := range []string{"#EXTM3U", seg0URL, seg2URL, "#EXT-X-ENDLIST"} {
		if !strings.Contains(m3u8, want) {
			t.Errorf("playlist missing %q:\n%s", want, m3u8)
		}
	}
}

// observingRepository records what a job looked like when its terminal
// event was applied.
type observingRepository struct {
	*InMemoryRepository
	atTerminal Job
}

func (r *observingRepository) Apply(id JobID, ev Event) error {
	if err := r.InMemoryRepository.Apply(id, ev); err != nil {
		return err
	}
	if ev.Type == EventComplete || ev.Type == EventFailed {
		r.atTerminal, _ = r.InMemoryRepository.Get(id)
	}
	return nil
}

func TestService_playlist_recorded_before_done(t *testing.T) {
	repo := &observingRepository{InMemoryRepository: NewInMemoryRepository(0)}
	o := newTestOrchestrator(threeSegmentFetcher(), &fakeProber{}, &fakeExtractor{})
	svc := NewService(repo, o, quietLogger())

	if _, err := svc.Submit(Source{URL: playlistURL}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := svc.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	job := repo.atTerminal
	if job.Status != StatusDone {
		t.Fatalf("expected done at terminal event, got %s", job.Status)
	}
	if job.Playlist == nil || len(job.Playlist.Segments) != 3 {
		t.Errorf("playlist must be stored by the time the job is done, got %+v", job.Playlist)
	}
}

func TestService_Playlist_file_job(t *testing.T) {
	f := newFakeFetcher()
	f.set(fileURL, "movie")
	o := newTestOrchestrator(f, &fakeProber{duration: 60}, &fakeExtractor{})
	svc := NewService(NewInMemoryRepository(0), o, quietLogger())

	id, _ := svc.Submit(Source{URL: fileURL})
	_ = svc.Wait(waitCtx(t))

	if _, ok := svc.Playlist(id); ok {
		t.Error("single-file job has no playlist")
	}
	if _, ok := svc.Playlist("missing"); ok {
		t.Error("unknown job has no playlist")
	}
}
