package orchestrator

import (
	"sort"
	"sync"
	"time"
)

// DefaultRetainJobs is how many finished jobs the repository keeps by default.
const DefaultRetainJobs = 16

// Repository defines the concurrency-safe contract for accessing and mutating
// job records.
type Repository interface {
	// Create stores a new job record. It returns ErrJobExists if the id is taken.
	Create(job *Job) error

	// Apply folds one orchestrator event into the job record. It returns
	// ErrJobNotFound for an unknown id.
	Apply(id JobID, ev Event) error

	// Get returns a snapshot of the job record. Frames are copied; image bytes
	// are shared and must not be modified.
	Get(id JobID) (Job, bool)

	// Frame returns the image bytes of the frame for target index.
	Frame(id JobID, index int) ([]byte, bool)

	// ActiveJobCount returns the number of jobs that have not finished.
	ActiveJobCount() int
}

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
// Once more than retain jobs have finished, the oldest finished ones are dropped.
type InMemoryRepository struct {
	mu     sync.RWMutex
	store  Store
	retain int
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository(retain int) *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore(), retain)
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
// If retain <= 0, DefaultRetainJobs is used.
func NewInMemoryRepositoryWithStore(store Store, retain int) *InMemoryRepository {
	if retain <= 0 {
		retain = DefaultRetainJobs
	}
	return &InMemoryRepository{store: store, retain: retain}
}

// Create implements Repository.Create.
func (r *InMemoryRepository) Create(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.store.GetJob(job.ID); exists {
		return ErrJobExists
	}
	if job.Status == "" {
		job.Status = StatusIdle
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	r.store.SetJob(job)
	return nil
}

// Apply implements Repository.Apply.
func (r *InMemoryRepository) Apply(id JobID, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.store.GetJob(id)
	if !exists {
		return ErrJobNotFound
	}

	switch ev.Type {
	case EventStatus:
		job.Status = ev.Status
		if ev.Playlist != nil {
			job.Playlist = ev.Playlist
		}
	case EventProgress:
		job.Progress = ev.Progress
	case EventFrame:
		if ev.Frame != nil {
			job.Frames = append(job.Frames, *ev.Frame)
		}
	case EventComplete:
		job.Status = StatusDone
		job.FinishedAt = time.Now().UTC()
		r.evictLocked()
	case EventFailed:
		job.Status = StatusFailed
		job.Reason = ev.Reason
		job.FinishedAt = time.Now().UTC()
		r.evictLocked()
	}
	return nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id JobID) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.store.GetJob(id)
	if !exists {
		return Job{}, false
	}

	snapshot := *job
	snapshot.Frames = append([]FrameResult(nil), job.Frames...)
	return snapshot, true
}

// Frame implements Repository.Frame.
func (r *InMemoryRepository) Frame(id JobID, index int) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.store.GetJob(id)
	if !exists {
		return nil, false
	}
	for _, f := range job.Frames {
		if f.Index == index {
			return f.Image, true
		}
	}
	return nil, false
}

// ActiveJobCount implements Repository.ActiveJobCount.
func (r *InMemoryRepository) ActiveJobCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListJobIDs() {
		if job, ok := r.store.GetJob(id); ok && !job.Status.Terminal() {
			n++
		}
	}
	return n
}

// evictLocked drops the oldest finished jobs beyond the retention limit.
// Caller must hold r.mu in write mode.
func (r *InMemoryRepository) evictLocked() {
	var finished []*Job
	for _, id := range r.store.ListJobIDs() {
		if job, ok := r.store.GetJob(id); ok && job.Status.Terminal() {
			finished = append(finished, job)
		}
	}
	if len(finished) <= r.retain {
		return
	}

	sort.Slice(finished, func(i, j int) bool {
		a, b := finished[i], finished[j]
		if !a.FinishedAt.Equal(b.FinishedAt) {
			return a.FinishedAt.Before(b.FinishedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	for _, job := range finished[:len(finished)-r.retain] {
		r.store.DeleteJob(job.ID)
	}
}
