// Package training manages the lifecycle of model training jobs.
//
// A job is a durable record advanced by a state machine:
//
//	PENDING ──Start──▶ RUNNING ──▶ COMPLETED
//	                      │
//	                      ├──▶ FAILED     (step error or panic)
//	                      ├──▶ CANCELLED  (cooperative, via Cancel)
//	                      └──▶ PAUSED     (reserved, never triggered)
//
// PENDING and the terminal states are stable; RUNNING is the only state
// with an active background task. The durable job record is the single
// source of truth; in-memory task handles exist solely to deliver
// cancellation signals.
package training

import (
	"context"
	"errors"
	"time"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

// Sentinel errors for job operations, checked with errors.Is.
var (
	// ErrValidation indicates malformed input or a tier-access violation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a job id that does not exist.
	ErrNotFound = errors.New("training job not found")

	// ErrIllegalTransition indicates a state-machine violation, such as
	// starting a non-pending job or cancelling a non-running one.
	ErrIllegalTransition = errors.New("illegal job state transition")

	// ErrClosed indicates the orchestrator has been shut down.
	ErrClosed = errors.New("orchestrator closed")
)

// Status is a job's state-machine position.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"

	// StatusPaused is a defined-but-unused state reserved for a future
	// pause operation. Nothing transitions into it today.
	StatusPaused Status = "paused"
)

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled, StatusPaused:
		return true
	}
	return false
}

// Type is the kind of training run.
type Type string

const (
	TypeFull        Type = "full"
	TypeIncremental Type = "incremental"
	TypeBatch       Type = "batch"
	TypeRealTime    Type = "real_time"
)

// baseMinutes is the per-type base of the duration estimate.
var baseMinutes = map[Type]int{
	TypeFull:        60,
	TypeIncremental: 30,
	TypeBatch:       45,
	TypeRealTime:    15,
}

// Valid reports whether t is a known training type.
func (t Type) Valid() bool {
	_, ok := baseMinutes[t]
	return ok
}

// ModelType is the kind of model a job trains.
type ModelType string

const (
	ModelEmbedding      ModelType = "embedding"
	ModelClassification ModelType = "classification"
	ModelGeneration     ModelType = "generation"
	ModelRetrieval      ModelType = "retrieval"
)

// Valid reports whether m is a known model type.
func (m ModelType) Valid() bool {
	switch m {
	case ModelEmbedding, ModelClassification, ModelGeneration, ModelRetrieval:
		return true
	}
	return false
}

// EstimateMinutes computes the estimated duration for a job:
// per-type base plus two minutes per document.
func EstimateMinutes(t Type, documentCount int) int {
	return baseMinutes[t] + 2*documentCount
}

// Spec is the input to Create.
type Spec struct {
	Name        string
	Description string
	Type        Type
	ModelType   ModelType
	Tier        tier.Tier
	DocumentIDs []int64
	CreatedBy   string
}

// Job is the durable training job record.
type Job struct {
	ID          int64
	Name        string
	Description string
	Type        Type
	ModelType   ModelType
	Tier        tier.Tier

	Status      Status
	Progress    float64 // 0-100, monotonically non-decreasing
	CurrentStep string
	TotalSteps  int

	FinalScore   *float64
	ErrorMessage string

	EstimatedMinutes int
	ActualMinutes    *int

	// RetryCount and MaxRetries are durable state for a higher-level
	// supervisor; the orchestrator itself never retries.
	RetryCount int
	MaxRetries int

	CreatedBy   string
	DocumentIDs []int64

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// ModelVersion is produced exactly once per successfully completed job.
// Immutable once created except for the Deployed flag.
type ModelVersion struct {
	ID        string
	JobID     int64
	Version   string
	Name      string
	Tier      tier.Tier
	SizeMB    float64
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	Deployed  bool
	CreatedAt time.Time
}

// Step is one weighted unit of training work. Weights sum to 100 and map
// directly to progress percentage.
type Step struct {
	Name   string
	Weight int
}

// Steps is the fixed training step sequence.
var Steps = []Step{
	{Name: "Preparing data", Weight: 10},
	{Name: "Generating embeddings", Weight: 30},
	{Name: "Training model", Weight: 40},
	{Name: "Validating model", Weight: 15},
	{Name: "Finalizing", Weight: 5},
}

// Strategy executes one training step. The contract is behavioral:
// whatever the implementation does, progress stays monotone and the step
// list stays deterministic. The reference implementation simulates delay.
type Strategy interface {
	RunStep(ctx context.Context, job Job, step Step) error
}

// SimulatedStrategy waits a fixed delay per step, honoring cancellation.
type SimulatedStrategy struct {
	StepDelay time.Duration
}

// RunStep sleeps for the configured delay or until ctx is done.
func (s SimulatedStrategy) RunStep(ctx context.Context, _ Job, _ Step) error {
	if s.StepDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(s.StepDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scorer computes a job's final score in [0, 1]. The formula is a
// replaceable strategy; only "a score exists and lands on exactly one
// ModelVersion" is contractual.
type Scorer interface {
	Score(job Job) float64
}

// TierScorer reproduces the reference scoring formula.
type TierScorer struct{}

// Score returns 0.85 plus a tier-proportional bonus.
func (TierScorer) Score(job Job) float64 {
	return 0.85 + 0.1*(float64(job.Tier)/3)
}
