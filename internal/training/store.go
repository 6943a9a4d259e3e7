package training

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Filter narrows ListJobs results. Zero values mean no filtering;
// tiers start at 1, so Tier 0 matches all tiers.
type Filter struct {
	Status Status
	Tier   int
	Limit  int
}

// VersionFilter narrows ListModelVersions results. Zero values mean no
// filtering.
type VersionFilter struct {
	Tier         int
	DeployedOnly bool
}

// Metrics is an aggregate snapshot over all jobs.
type Metrics struct {
	TotalJobs            int
	ActiveJobs           int
	CompletedJobs        int
	FailedJobs           int
	CancelledJobs        int
	AvgCompletionMinutes float64
	SuccessRate          float64
	LatestModelVersion   string
}

// Store is the durable home of jobs and model versions. The orchestrator
// defines the interface; postgres and in-memory implementations satisfy it.
type Store interface {
	// CreateJob persists a new job and returns it with its id assigned.
	CreateJob(ctx context.Context, job Job) (Job, error)

	// GetJob returns the job by id, or ErrNotFound.
	GetJob(ctx context.Context, id int64) (Job, error)

	// UpdateJob overwrites the mutable fields of an existing job.
	UpdateJob(ctx context.Context, job Job) error

	// UpdateJobIf overwrites the mutable fields only while the stored
	// status still equals from; otherwise it returns
	// ErrIllegalTransition and writes nothing. Background tasks use it
	// so progress writes carrying a stale RUNNING status can never
	// overwrite a concurrent cancellation.
	UpdateJobIf(ctx context.Context, job Job, from Status) error

	// CompareAndSwapStatus atomically moves a job from one status to
	// another. It returns the updated job, ErrNotFound if the id does
	// not exist, or ErrIllegalTransition if the current status differs
	// from the expected one. This is the concurrency primitive that
	// keeps duplicate starts and racing cancels out.
	CompareAndSwapStatus(ctx context.Context, id int64, from, to Status) (Job, error)

	// ListJobs returns jobs matching the filter, newest first.
	ListJobs(ctx context.Context, f Filter) ([]Job, error)

	// CreateModelVersion persists a new model version.
	CreateModelVersion(ctx context.Context, mv ModelVersion) error

	// ListModelVersions returns versions matching the filter, newest
	// first.
	ListModelVersions(ctx context.Context, f VersionFilter) ([]ModelVersion, error)

	// Metrics returns an aggregate snapshot over all jobs.
	Metrics(ctx context.Context) (Metrics, error)
}

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// offline runs where no database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	jobs     map[int64]Job
	versions []ModelVersion
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, jobs: make(map[int64]Job)}
}

func (s *MemoryStore) CreateJob(_ context.Context, job Job) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = s.nextID
	s.nextID++
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	s.jobs[job.ID] = cloneJob(job)
	return job, nil
}

func (s *MemoryStore) GetJob(_ context.Context, id int64) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) UpdateJobIf(_ context.Context, job Job, from Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != from {
		return ErrIllegalTransition
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) CompareAndSwapStatus(_ context.Context, id int64, from, to Status) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if job.Status != from {
		return Job{}, ErrIllegalTransition
	}
	job.Status = to
	s.jobs[id] = cloneJob(job)
	return cloneJob(job), nil
}

func (s *MemoryStore) ListJobs(_ context.Context, f Filter) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		if f.Tier != 0 && int(job.Tier) != f.Tier {
			continue
		}
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateModelVersion(_ context.Context, mv ModelVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mv.CreatedAt.IsZero() {
		mv.CreatedAt = time.Now()
	}
	s.versions = append(s.versions, mv)
	return nil
}

func (s *MemoryStore) ListModelVersions(_ context.Context, f VersionFilter) ([]ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ModelVersion, 0, len(s.versions))
	for _, mv := range s.versions {
		if f.Tier != 0 && int(mv.Tier) != f.Tier {
			continue
		}
		if f.DeployedOnly && !mv.Deployed {
			continue
		}
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Metrics(_ context.Context) (Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m Metrics
	var completedMinutes, completedWithDuration int
	for _, job := range s.jobs {
		m.TotalJobs++
		switch job.Status {
		case StatusRunning, StatusPending:
			m.ActiveJobs++
		case StatusCompleted:
			m.CompletedJobs++
			if job.ActualMinutes != nil {
				completedMinutes += *job.ActualMinutes
				completedWithDuration++
			}
		case StatusFailed:
			m.FailedJobs++
		case StatusCancelled:
			m.CancelledJobs++
		}
	}
	if completedWithDuration > 0 {
		m.AvgCompletionMinutes = float64(completedMinutes) / float64(completedWithDuration)
	}
	if finished := m.CompletedJobs + m.FailedJobs; finished > 0 {
		m.SuccessRate = float64(m.CompletedJobs) / float64(finished)
	}
	var latest time.Time
	for _, mv := range s.versions {
		if mv.CreatedAt.After(latest) || m.LatestModelVersion == "" {
			latest = mv.CreatedAt
			m.LatestModelVersion = mv.Version
		}
	}
	return m, nil
}

func cloneJob(j Job) Job {
	if j.DocumentIDs != nil {
		j.DocumentIDs = append([]int64(nil), j.DocumentIDs...)
	}
	if j.FinalScore != nil {
		v := *j.FinalScore
		j.FinalScore = &v
	}
	if j.ActualMinutes != nil {
		v := *j.ActualMinutes
		j.ActualMinutes = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		j.StartedAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		j.CompletedAt = &v
	}
	return j
}
