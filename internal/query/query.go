// Package query orchestrates one ask cycle: embed the question, retrieve
// nearest documents from the vector index, filter them against the
// caller's tier, and synthesize a grounded answer.
//
// Failure policy: a well-formed request never hard-fails. Embedding falls
// back to a deterministic hash vector, an unreachable index degrades to
// zero retrieved chunks, and a failing synthesizer degrades to a
// low-confidence apology. Only malformed input returns an error.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/embed"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/feedback"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/index"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/synth"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

const (
	// DefaultTopK is the number of neighbors requested when the caller
	// does not specify one.
	DefaultTopK = 5

	// DefaultTimeout bounds the aggregate external-call latency of one
	// ask cycle (embedding + search + synthesis).
	DefaultTimeout = 30 * time.Second

	// degradedConfidenceCap is the maximum confidence reported when the
	// synthesizer failed and the answer is a fallback.
	degradedConfidenceCap = 0.3

	// sourcePreviewLen bounds the content preview attached to each cited
	// source.
	sourcePreviewLen = 150
)

// ErrEmptyQuery indicates a query that is empty after trimming.
var ErrEmptyQuery = errors.New("query must not be empty")

// Searcher retrieves nearest neighbors for an embedding vector.
// *index.Store satisfies it; tests substitute an in-memory fake.
type Searcher interface {
	NearestNeighbors(ctx context.Context, vec []float32, limit int) ([]index.Neighbor, error)
}

// Record is what the pipeline hands to the durable query log.
type Record struct {
	Query       string
	Response    string
	Confidence  float64
	Tier        tier.Tier
	Role        string
	SourceCount int
	Processing  time.Duration
}

// Recorder persists answered queries. The durable log is owned by an
// external collaborator; Nop satisfies tests and offline runs.
type Recorder interface {
	Record(ctx context.Context, rec Record) (int64, error)
}

// Request is one ask call.
type Request struct {
	Query string
	Role  string
	Tier  tier.Tier
	TopK  int // 0 means DefaultTopK
}

// Source is one cited document in a Result.
type Source struct {
	DocumentID     int64   `json:"document_id"`
	Title          string  `json:"title"`
	RelevanceScore float64 `json:"relevance_score"`
	ContentPreview string  `json:"content_preview"`
}

// Result is the answer to one ask call. Immutable after return.
type Result struct {
	QueryID     int64         `json:"query_id"`
	Response    string        `json:"response"`
	Confidence  float64       `json:"confidence"`
	Sources     []Source      `json:"sources"`
	Suggestions []string      `json:"suggestions"`
	Tier        tier.Tier     `json:"knowledge_base_tier"`
	ModelUsed   string        `json:"model_used,omitempty"`
	Processing  time.Duration `json:"-"`
}

// ProcessingSeconds reports the processing time in seconds for transport
// payloads.
func (r Result) ProcessingSeconds() float64 {
	return r.Processing.Seconds()
}

// Config assembles a Pipeline.
type Config struct {
	Embedder    embed.Provider
	Searcher    Searcher
	Synthesizer synth.Synthesizer
	Suggester   feedback.Suggester
	Recorder    Recorder
	Logger      *slog.Logger

	TopK    int           // 0 means DefaultTopK
	Timeout time.Duration // 0 means DefaultTimeout
}

func (cfg Config) validate() error {
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Synthesizer == nil {
		return errors.New("synthesizer is required")
	}
	return nil
}

// Pipeline executes ask cycles. Safe for concurrent use.
type Pipeline struct {
	embedder    embed.Provider
	searcher    Searcher
	synthesizer synth.Synthesizer
	suggester   feedback.Suggester
	recorder    Recorder
	logger      *slog.Logger
	topK        int
	timeout     time.Duration
}

// New creates a Pipeline. Searcher, Suggester and Recorder may be nil:
// a nil searcher always degrades to zero chunks, a nil suggester yields no
// suggestions, and a nil recorder skips logging.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("query pipeline config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Pipeline{
		embedder:    cfg.Embedder,
		searcher:    cfg.Searcher,
		synthesizer: cfg.Synthesizer,
		suggester:   cfg.Suggester,
		recorder:    cfg.Recorder,
		logger:      logger,
		topK:        topK,
		timeout:     timeout,
	}, nil
}

// Ask answers one query at the caller's tier.
func (p *Pipeline) Ask(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}
	if !req.Tier.Valid() {
		return Result{}, fmt.Errorf("%w: %d", tier.ErrInvalidTier, int(req.Tier))
	}

	topK := req.TopK
	if topK <= 0 {
		topK = p.topK
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	chunks := p.retrieve(ctx, query, req.Tier, topK)

	resp, degraded := p.synthesize(ctx, query, req.Tier, chunks)

	sources := make([]Source, 0, len(chunks))
	if !degraded {
		for _, c := range chunks {
			sources = append(sources, Source{
				DocumentID:     c.DocID,
				Title:          c.Title,
				RelevanceScore: index.Relevance(c.Distance),
				ContentPreview: preview(c.ContentPreview),
			})
		}
	}

	result := Result{
		Response:   resp.Text,
		Confidence: resp.Confidence,
		Sources:    sources,
		Tier:       req.Tier,
		ModelUsed:  resp.ModelUsed,
		Processing: time.Since(start),
	}
	if p.suggester != nil {
		result.Suggestions = p.suggester.Suggest(query)
	}

	result.QueryID = p.record(ctx, req, result)
	return result, nil
}

// retrieve embeds the query and collects tier-visible neighbors, degrading
// to nil on any dependency failure.
func (p *Pipeline) retrieve(ctx context.Context, query string, t tier.Tier, topK int) []index.Neighbor {
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		// Resilient embedders do not fail; a hard failure here means
		// even the fallback is broken, so search is pointless.
		p.logger.Warn("embedding failed, skipping retrieval", "error", err)
		return nil
	}

	if p.searcher == nil {
		return nil
	}

	neighbors, err := p.searcher.NearestNeighbors(ctx, vec, topK)
	if err != nil {
		p.logger.Warn("vector search unavailable, degrading to zero chunks", "error", err)
		return nil
	}

	// Nothing above the caller's tier leaves this function, whatever the
	// index returned.
	visible := neighbors[:0]
	for _, n := range neighbors {
		if t.Visible(n.Tier) {
			visible = append(visible, n)
		}
	}

	// Descending relevance; ties keep index return order.
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].Distance < visible[j].Distance
	})

	return visible
}

// synthesize produces the answer, degrading to the low-confidence fallback
// when generation fails. degraded reports whether the fallback path was
// taken (in which case no sources are cited).
func (p *Pipeline) synthesize(ctx context.Context, query string, t tier.Tier, chunks []index.Neighbor) (synth.Response, bool) {
	sreq := synth.Request{
		Query:   query,
		Persona: t.Persona(),
		Chunks:  make([]synth.Chunk, 0, len(chunks)),
	}
	for _, c := range chunks {
		sreq.Chunks = append(sreq.Chunks, synth.Chunk{
			DocID:   c.DocID,
			Title:   c.Title,
			Content: c.ContentPreview,
		})
	}

	resp, err := p.synthesizer.Generate(ctx, sreq)
	if err == nil {
		return resp, false
	}

	p.logger.Warn("synthesis failed, returning degraded response", "error", err)
	if strings.TrimSpace(resp.Text) == "" {
		resp, _ = synth.NewStatic().Generate(ctx, sreq)
	}
	if resp.Confidence > degradedConfidenceCap {
		resp.Confidence = degradedConfidenceCap
	}
	return resp, true
}

// record writes the query to the durable log, best effort.
func (p *Pipeline) record(ctx context.Context, req Request, res Result) int64 {
	if p.recorder == nil {
		return 0
	}

	id, err := p.recorder.Record(ctx, Record{
		Query:       strings.TrimSpace(req.Query),
		Response:    res.Response,
		Confidence:  res.Confidence,
		Tier:        req.Tier,
		Role:        req.Role,
		SourceCount: len(res.Sources),
		Processing:  res.Processing,
	})
	if err != nil {
		p.logger.Warn("failed to record query", "error", err)
		return 0
	}
	return id
}

// preview truncates content for source citations, never mid-rune.
func preview(content string) string {
	if len(content) <= sourcePreviewLen {
		return content
	}
	return index.TruncateOnRune(content, sourcePreviewLen) + "..."
}
