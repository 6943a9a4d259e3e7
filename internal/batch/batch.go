// Package batch runs asynchronous batch document processing.
//
// A run takes a set of document ids and re-embeds them sequentially in a
// single background task. Runs are tracked in memory only; the durable
// artifacts are the refreshed vectors themselves. Item failures are
// recorded and skipped, never aborting the rest of the batch: every item
// ends up counted as either processed or failed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/embed"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/index"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

// Sentinel errors, checked with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("batch run not found")
	ErrClosed     = errors.New("batch processor closed")
)

// maxRecordedErrors bounds the per-run error list.
const maxRecordedErrors = 20

// Type names what a batch run does to its documents.
type Type string

const (
	TypeEmbedding      Type = "embedding"
	TypeClassification Type = "classification"
	TypeIndexing       Type = "indexing"
)

// Valid reports whether t is a known processing type.
func (t Type) Valid() bool {
	switch t {
	case TypeEmbedding, TypeClassification, TypeIndexing:
		return true
	}
	return false
}

// Status is a run's lifecycle state.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Request describes a batch to run. BatchSize defaults to 10; the
// reference work is sequential, so it is recorded rather than acted on.
type Request struct {
	DocumentIDs []int64
	Type        Type
	Tier        tier.Tier
	BatchSize   int
}

// Run is a snapshot of one batch run.
type Run struct {
	ID        string
	Type      Type
	Tier      tier.Tier
	Total     int
	Status    Status
	Processed int
	Failed    int
	Progress  float64 // 0-100, monotonically non-decreasing
	Errors    []string

	StartedAt           time.Time
	EstimatedCompletion time.Time
	CompletedAt         *time.Time
}

// ItemProcessor handles one document of a batch.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, docID int64) error
}

// DocumentSource loads documents by id. *index.Store satisfies it.
type DocumentSource interface {
	ResolveDocuments(ctx context.Context, ids []int64) ([]index.Document, error)
}

// VectorWriter persists a document's embedding. *index.Store satisfies it.
type VectorWriter interface {
	Upsert(ctx context.Context, doc index.Document, vec []float32) error
}

// Reembedder is the default ItemProcessor: load the document, embed its
// content, write the vector back.
type Reembedder struct {
	Docs    DocumentSource
	Vectors VectorWriter
	Embed   embed.Provider
}

// ProcessItem re-embeds a single document.
func (r Reembedder) ProcessItem(ctx context.Context, docID int64) error {
	docs, err := r.Docs.ResolveDocuments(ctx, []int64{docID})
	if err != nil {
		return fmt.Errorf("loading document %d: %w", docID, err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("document %d not found", docID)
	}
	doc := docs[0]

	vec, err := r.Embed.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %d: %w", docID, err)
	}
	if err := r.Vectors.Upsert(ctx, doc, vec); err != nil {
		return fmt.Errorf("storing vector for document %d: %w", docID, err)
	}
	return nil
}

// Processor launches and tracks batch runs. Safe for concurrent use.
type Processor struct {
	items     ItemProcessor
	docs      DocumentSource
	itemDelay time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	runs    map[string]*Run
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Processor.
type Option func(*Processor)

// WithItemDelay sets the pause between items. Zero disables it.
func WithItemDelay(d time.Duration) Option {
	return func(p *Processor) { p.itemDelay = d }
}

// New creates a Processor on top of an ItemProcessor. The DocumentSource
// is consulted at submission time to reject ids that do not exist or sit
// above the request's tier.
func New(items ItemProcessor, docs DocumentSource, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		items:     items,
		docs:      docs,
		itemDelay: time.Second,
		logger:    logger,
		runs:      make(map[string]*Run),
		cancels:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit validates the request, starts a new batch run over its document
// ids and returns the initial snapshot. The work happens in a background
// task; callers poll Status with the returned id. Every referenced
// document must exist and be visible at the request's tier.
func (p *Processor) Submit(ctx context.Context, req Request) (Run, error) {
	if len(req.DocumentIDs) == 0 {
		return Run{}, fmt.Errorf("%w: at least one document is required", ErrValidation)
	}
	if !req.Type.Valid() {
		return Run{}, fmt.Errorf("%w: unknown processing type %q", ErrValidation, req.Type)
	}
	if !req.Tier.Valid() {
		return Run{}, fmt.Errorf("%w: %v", ErrValidation, tier.ErrInvalidTier)
	}
	if req.BatchSize == 0 {
		req.BatchSize = 10
	}
	if req.BatchSize < 1 || req.BatchSize > 100 {
		return Run{}, fmt.Errorf("%w: batch size %d out of range 1-100", ErrValidation, req.BatchSize)
	}
	seen := make(map[int64]bool, len(req.DocumentIDs))
	for _, id := range req.DocumentIDs {
		if id <= 0 {
			return Run{}, fmt.Errorf("%w: invalid document id %d", ErrValidation, id)
		}
		if seen[id] {
			return Run{}, fmt.Errorf("%w: duplicate document id %d", ErrValidation, id)
		}
		seen[id] = true
	}

	docs, err := p.docs.ResolveDocuments(ctx, req.DocumentIDs)
	if err != nil {
		return Run{}, fmt.Errorf("resolving batch documents: %w", err)
	}
	visible := 0
	for _, d := range docs {
		if req.Tier.Visible(d.Tier) {
			visible++
		}
	}
	if visible != len(req.DocumentIDs) {
		return Run{}, fmt.Errorf("%w: %d of %d documents missing or not accessible at tier %d",
			ErrValidation, len(req.DocumentIDs)-visible, len(req.DocumentIDs), int(req.Tier))
	}

	now := time.Now()
	run := &Run{
		ID:                  newRunID(now),
		Type:                req.Type,
		Tier:                req.Tier,
		Status:              StatusProcessing,
		Total:               len(req.DocumentIDs),
		StartedAt:           now,
		EstimatedCompletion: now.Add(time.Duration(len(req.DocumentIDs)) * 2 * time.Minute),
	}
	taskCtx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return Run{}, ErrClosed
	}
	p.runs[run.ID] = run
	p.cancels[run.ID] = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	ids := append([]int64(nil), req.DocumentIDs...)
	go p.process(taskCtx, run.ID, ids)

	p.logger.Info("batch run submitted",
		"batch_id", run.ID,
		"type", string(req.Type),
		"documents", len(ids))
	return cloneRun(run), nil
}

// Status returns a snapshot of the run, or false if the id is unknown.
func (p *Processor) Status(id string) (Run, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[id]
	if !ok {
		return Run{}, false
	}
	return cloneRun(run), true
}

// List returns snapshots of all known runs, newest first.
func (p *Processor) List() []Run {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Run, 0, len(p.runs))
	for _, run := range p.runs {
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Cancel requests cooperative cancellation of an in-flight run.
func (p *Processor) Cancel(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[id]
	if !ok {
		return ErrNotFound
	}
	if run.Status != StatusProcessing {
		return nil
	}
	if cancel, ok := p.cancels[id]; ok {
		cancel()
	}
	return nil
}

// Close cancels all in-flight runs and waits for their tasks to exit.
func (p *Processor) Close() {
	p.mu.Lock()
	p.closed = true
	for _, cancel := range p.cancels {
		cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// process walks the batch sequentially, one item at a time.
func (p *Processor) process(ctx context.Context, runID string, docIDs []int64) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		if cancel, ok := p.cancels[runID]; ok {
			cancel()
			delete(p.cancels, runID)
		}
		p.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("batch task panicked", "batch_id", runID, "panic", r)
			p.mu.Lock()
			run := p.runs[runID]
			if len(run.Errors) < maxRecordedErrors {
				run.Errors = append(run.Errors, fmt.Sprintf("internal error: %v", r))
			}
			p.mu.Unlock()
			p.finish(runID, StatusFailed)
		}
	}()

	for i, docID := range docIDs {
		// Cancellation check at the item boundary.
		if ctx.Err() != nil {
			p.finish(runID, StatusCancelled)
			return
		}
		if i > 0 && p.itemDelay > 0 {
			select {
			case <-time.After(p.itemDelay):
			case <-ctx.Done():
				p.finish(runID, StatusCancelled)
				return
			}
		}

		err := p.items.ProcessItem(ctx, docID)
		if err != nil && ctx.Err() != nil {
			p.finish(runID, StatusCancelled)
			return
		}

		p.mu.Lock()
		run := p.runs[runID]
		if err != nil {
			run.Failed++
			if len(run.Errors) < maxRecordedErrors {
				run.Errors = append(run.Errors, err.Error())
			}
			p.logger.Warn("batch item failed", "batch_id", runID, "doc_id", docID, "error", err)
		} else {
			run.Processed++
		}
		run.Progress = 100 * float64(run.Processed+run.Failed) / float64(run.Total)
		p.mu.Unlock()
	}

	p.mu.Lock()
	allFailed := p.runs[runID].Failed == p.runs[runID].Total
	p.mu.Unlock()
	if allFailed {
		p.finish(runID, StatusFailed)
	} else {
		p.finish(runID, StatusCompleted)
	}
}

func (p *Processor) finish(runID string, status Status) {
	now := time.Now()
	p.mu.Lock()
	run := p.runs[runID]
	run.Status = status
	run.CompletedAt = &now
	snapshot := cloneRun(run)
	p.mu.Unlock()

	p.logger.Info("batch run finished",
		"batch_id", runID,
		"status", string(status),
		"processed", snapshot.Processed,
		"failed", snapshot.Failed)
}

// newRunID builds ids like batch_20260115_093042_1a2b3c4d.
func newRunID(now time.Time) string {
	return fmt.Sprintf("batch_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
}

func cloneRun(r *Run) Run {
	out := *r
	if r.Errors != nil {
		out.Errors = append([]string(nil), r.Errors...)
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		out.CompletedAt = &v
	}
	return out
}
