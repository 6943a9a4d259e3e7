package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/index"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

// DocumentResolver loads documents by id so Create can enforce tier
// visibility. *index.Store satisfies it.
type DocumentResolver interface {
	ResolveDocuments(ctx context.Context, ids []int64) ([]index.Document, error)
}

// Orchestrator drives the training job state machine. It owns the
// background task per running job; everything durable lives in the Store.
type Orchestrator struct {
	store    Store
	docs     DocumentResolver
	strategy Strategy
	scorer   Scorer
	logger   *slog.Logger

	mu     sync.Mutex
	tasks  map[int64]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStrategy replaces the step execution strategy.
func WithStrategy(s Strategy) Option {
	return func(o *Orchestrator) { o.strategy = s }
}

// WithScorer replaces the final score strategy.
func WithScorer(s Scorer) Option {
	return func(o *Orchestrator) { o.scorer = s }
}

// NewOrchestrator creates an orchestrator with the default simulated
// strategy and tier-based scorer.
func NewOrchestrator(store Store, docs DocumentResolver, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:    store,
		docs:     docs,
		strategy: SimulatedStrategy{StepDelay: 2 * time.Second},
		scorer:   TierScorer{},
		logger:   logger,
		tasks:    make(map[int64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create validates the spec and persists a new PENDING job. Every
// referenced document must exist and be visible at the job's tier;
// otherwise Create fails with ErrValidation and nothing is persisted.
func (o *Orchestrator) Create(ctx context.Context, spec Spec) (Job, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return Job{}, fmt.Errorf("%w: job name is required", ErrValidation)
	}
	if !spec.Type.Valid() {
		return Job{}, fmt.Errorf("%w: unknown training type %q", ErrValidation, spec.Type)
	}
	if !spec.ModelType.Valid() {
		return Job{}, fmt.Errorf("%w: unknown model type %q", ErrValidation, spec.ModelType)
	}
	if !spec.Tier.Valid() {
		return Job{}, fmt.Errorf("%w: %v", ErrValidation, tier.ErrInvalidTier)
	}
	if len(spec.DocumentIDs) == 0 {
		return Job{}, fmt.Errorf("%w: at least one document is required", ErrValidation)
	}

	docs, err := o.docs.ResolveDocuments(ctx, spec.DocumentIDs)
	if err != nil {
		return Job{}, fmt.Errorf("resolving training documents: %w", err)
	}
	visible := 0
	for _, d := range docs {
		if spec.Tier.Visible(d.Tier) {
			visible++
		}
	}
	if visible != len(spec.DocumentIDs) {
		return Job{}, fmt.Errorf("%w: %d of %d documents missing or not accessible at tier %d",
			ErrValidation, len(spec.DocumentIDs)-visible, len(spec.DocumentIDs), int(spec.Tier))
	}

	job := Job{
		Name:             spec.Name,
		Description:      spec.Description,
		Type:             spec.Type,
		ModelType:        spec.ModelType,
		Tier:             spec.Tier,
		Status:           StatusPending,
		TotalSteps:       len(Steps),
		EstimatedMinutes: EstimateMinutes(spec.Type, len(spec.DocumentIDs)),
		MaxRetries:       3,
		CreatedBy:        spec.CreatedBy,
		DocumentIDs:      spec.DocumentIDs,
	}
	created, err := o.store.CreateJob(ctx, job)
	if err != nil {
		return Job{}, fmt.Errorf("creating training job: %w", err)
	}

	o.logger.Info("training job created",
		"job_id", created.ID,
		"type", created.Type,
		"tier", int(created.Tier),
		"documents", len(created.DocumentIDs),
		"estimated_minutes", created.EstimatedMinutes)
	return created, nil
}

// Start transitions a PENDING job to RUNNING and launches its background
// task. The status swap is a compare-and-swap, so concurrent Start calls
// on the same job admit exactly one task.
func (o *Orchestrator) Start(ctx context.Context, id int64) (Job, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Job{}, ErrClosed
	}
	o.mu.Unlock()

	job, err := o.store.CompareAndSwapStatus(ctx, id, StatusPending, StatusRunning)
	if err != nil {
		return Job{}, err
	}

	now := time.Now()
	job.StartedAt = &now
	job.CurrentStep = Steps[0].Name
	if err := o.store.UpdateJobIf(ctx, job, StatusRunning); err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			// A concurrent Cancel won between the swap and this write;
			// the job is already terminal, so no task is launched.
			return o.store.GetJob(ctx, id)
		}
		return Job{}, fmt.Errorf("recording job start: %w", err)
	}

	// The task outlives the request; it gets its own cancellable context.
	taskCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return Job{}, ErrClosed
	}
	o.tasks[id] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	go o.run(taskCtx, job)

	o.logger.Info("training job started", "job_id", id)
	return job, nil
}

// Cancel requests cooperative cancellation of a RUNNING job. The job
// transitions to CANCELLED immediately; its task observes the signal at
// the next step boundary and exits without producing a model version.
func (o *Orchestrator) Cancel(ctx context.Context, id int64) (Job, error) {
	job, err := o.store.CompareAndSwapStatus(ctx, id, StatusRunning, StatusCancelled)
	if err != nil {
		return Job{}, err
	}

	now := time.Now()
	job.CompletedAt = &now
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return Job{}, fmt.Errorf("recording job cancellation: %w", err)
	}

	o.mu.Lock()
	if cancel, ok := o.tasks[id]; ok {
		cancel()
	}
	o.mu.Unlock()

	o.logger.Info("training job cancelled", "job_id", id)
	return job, nil
}

// Get returns a job by id.
func (o *Orchestrator) Get(ctx context.Context, id int64) (Job, error) {
	return o.store.GetJob(ctx, id)
}

// List returns jobs matching the filter, newest first.
func (o *Orchestrator) List(ctx context.Context, f Filter) ([]Job, error) {
	return o.store.ListJobs(ctx, f)
}

// ModelVersions returns model versions matching the filter, newest first.
func (o *Orchestrator) ModelVersions(ctx context.Context, f VersionFilter) ([]ModelVersion, error) {
	return o.store.ListModelVersions(ctx, f)
}

// Metrics returns an aggregate snapshot over all jobs.
func (o *Orchestrator) Metrics(ctx context.Context) (Metrics, error) {
	return o.store.Metrics(ctx)
}

// Close stops accepting new tasks, cancels running ones, and waits for
// them to exit. Cancelled jobs land in CANCELLED via their own tasks'
// boundary checks, not here.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	for _, cancel := range o.tasks {
		cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// run executes the step sequence for one job. It is the only writer of
// the job's progress while the job is RUNNING.
func (o *Orchestrator) run(ctx context.Context, job Job) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		if cancel, ok := o.tasks[job.ID]; ok {
			cancel()
			delete(o.tasks, job.ID)
		}
		o.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("training task panicked", "job_id", job.ID, "panic", r)
			o.fail(job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	for _, step := range Steps {
		// Cooperative cancellation check at the step boundary.
		if ctx.Err() != nil {
			o.onInterrupted(job)
			return
		}

		job.CurrentStep = step.Name
		if !o.recordProgress(job) {
			return
		}

		if err := o.strategy.RunStep(ctx, job, step); err != nil {
			if ctx.Err() != nil {
				o.onInterrupted(job)
				return
			}
			o.logger.Error("training step failed",
				"job_id", job.ID, "step", step.Name, "error", err)
			o.fail(job, fmt.Sprintf("step %q failed: %v", step.Name, err))
			return
		}

		job.Progress += float64(step.Weight)
		if !o.recordProgress(job) {
			return
		}
		o.logger.Debug("training step completed",
			"job_id", job.ID, "step", step.Name, "progress", job.Progress)
	}

	if ctx.Err() != nil {
		o.onInterrupted(job)
		return
	}
	o.complete(job)
}

// recordProgress persists the task's step and progress while the job is
// still RUNNING. A stale write can never overwrite a concurrent Cancel:
// if the job left RUNNING the write is refused and the task stands down.
func (o *Orchestrator) recordProgress(job Job) bool {
	err := o.store.UpdateJobIf(context.Background(), job, StatusRunning)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrIllegalTransition) || errors.Is(err, ErrNotFound) {
		o.onInterrupted(job)
		return false
	}
	o.logger.Warn("updating job progress failed", "job_id", job.ID, "error", err)
	return true
}

// onInterrupted handles a task that observed cancellation. Cancel already
// moved the job to CANCELLED; if the status is anything else the shutdown
// path beat the state machine and the job is marked cancelled here.
func (o *Orchestrator) onInterrupted(job Job) {
	current, err := o.store.GetJob(context.Background(), job.ID)
	if err != nil || current.Status == StatusCancelled {
		return
	}
	if _, err := o.store.CompareAndSwapStatus(context.Background(), job.ID, StatusRunning, StatusCancelled); err != nil {
		return
	}
	now := time.Now()
	current.Status = StatusCancelled
	current.CompletedAt = &now
	if err := o.store.UpdateJob(context.Background(), current); err != nil {
		o.logger.Warn("recording interrupted job failed", "job_id", job.ID, "error", err)
	}
}

// fail moves a RUNNING job to FAILED, preserving its progress. A job that
// was cancelled in the meantime stays cancelled.
func (o *Orchestrator) fail(job Job, msg string) {
	if _, err := o.store.CompareAndSwapStatus(context.Background(), job.ID, StatusRunning, StatusFailed); err != nil {
		return
	}
	now := time.Now()
	job.Status = StatusFailed
	job.ErrorMessage = msg
	job.CompletedAt = &now
	if err := o.store.UpdateJob(context.Background(), job); err != nil {
		o.logger.Warn("recording failed job failed", "job_id", job.ID, "error", err)
	}
}

// complete moves a RUNNING job to COMPLETED and produces its model
// version. The compare-and-swap loses against a racing Cancel, in which
// case no version is created.
func (o *Orchestrator) complete(job Job) {
	if _, err := o.store.CompareAndSwapStatus(context.Background(), job.ID, StatusRunning, StatusCompleted); err != nil {
		return
	}

	now := time.Now()
	score := o.scorer.Score(job)
	actual := 0
	if job.StartedAt != nil {
		actual = int(now.Sub(*job.StartedAt).Round(time.Minute) / time.Minute)
	}

	job.Status = StatusCompleted
	job.Progress = 100
	job.CurrentStep = Steps[len(Steps)-1].Name
	job.FinalScore = &score
	job.ActualMinutes = &actual
	job.CompletedAt = &now
	if err := o.store.UpdateJob(context.Background(), job); err != nil {
		o.logger.Warn("recording completed job failed", "job_id", job.ID, "error", err)
	}

	mv := ModelVersion{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Version:   fmt.Sprintf("v%d.%d.0", int(job.Tier), job.ID),
		Name:      job.Name,
		Tier:      job.Tier,
		SizeMB:    float64(256 + int(job.Tier)*128),
		Accuracy:  score,
		Precision: score - 0.02,
		Recall:    score + 0.01,
		F1:        score - 0.005,
		CreatedAt: now,
	}
	if err := o.store.CreateModelVersion(context.Background(), mv); err != nil {
		o.logger.Error("creating model version failed", "job_id", job.ID, "error", err)
		return
	}

	o.logger.Info("training job completed",
		"job_id", job.ID, "final_score", score, "model_version", mv.Version)
}
