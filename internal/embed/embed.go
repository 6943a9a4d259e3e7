// Package embed generates fixed-length embedding vectors for text.
//
// The query pipeline and the batch processor consume the Provider interface.
// Production wiring uses Resilient, which calls the Genkit embedder and
// falls back to a deterministic hash embedding when the model is
// unavailable, so retrieval degrades instead of failing.
package embed

import (
	"context"
	"crypto/md5" // #nosec G501 -- not used for security, only for a deterministic fallback vector
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
)

// Dimension is the embedding vector length. It matches the vector(384)
// column in the documents schema; changing it requires a migration.
const Dimension = 384

// ErrEmptyEmbedding indicates the embedder returned no usable vector.
var ErrEmptyEmbedding = errors.New("empty embedding returned")

// Provider turns text into a fixed-length vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Genkit wraps a Genkit ai.Embedder as a Provider.
type Genkit struct {
	embedder ai.Embedder
}

// NewGenkit creates a Provider backed by the given Genkit embedder.
func NewGenkit(embedder ai.Embedder) *Genkit {
	return &Genkit{embedder: embedder}
}

// Embed generates an embedding for text via the Genkit embedder.
func (g *Genkit) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText(text, nil),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return resp.Embeddings[0].Embedding, nil
}

// Fallback is a deterministic hash-based Provider. The same text always
// produces the same vector, which keeps degraded retrieval reproducible.
// Relevance quality is poor; it exists so search returns something rather
// than nothing when the embedding model is down.
type Fallback struct{}

// NewFallback creates the deterministic fallback Provider.
func NewFallback() Fallback {
	return Fallback{}
}

// Embed derives a Dimension-length vector from the MD5 digest of text:
// each digest byte becomes one component scaled to [0, 1], and the
// remainder is zero-padded.
func (Fallback) Embed(_ context.Context, text string) ([]float32, error) {
	sum := md5.Sum([]byte(text)) // #nosec G401 -- deterministic fallback, not authentication

	vec := make([]float32, Dimension)
	for i, b := range sum {
		vec[i] = float32(b) / 255.0
	}
	return vec, nil
}

// Resilient tries the primary Provider and falls back to a deterministic
// embedding when the primary fails. It never returns an error from a
// primary failure, only from the fallback itself (which cannot fail in
// practice).
type Resilient struct {
	primary  Provider
	fallback Provider
	logger   *slog.Logger
}

// NewResilient creates a Resilient provider. primary may be nil, in which
// case every call uses the fallback (offline mode).
func NewResilient(primary Provider, logger *slog.Logger) *Resilient {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resilient{
		primary:  primary,
		fallback: NewFallback(),
		logger:   logger,
	}
}

// Embed returns the primary embedding, or the deterministic fallback when
// the primary is unavailable or errors.
func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	if r.primary != nil {
		vec, err := r.primary.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		r.logger.Warn("primary embedder failed, using hash fallback", "error", err)
	}
	return r.fallback.Embed(ctx, text)
}
