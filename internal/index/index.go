// Package index stores and retrieves document vectors in PostgreSQL with
// pgvector.
//
// The store tags every vector with (tier, doc id, content preview) so the
// query pipeline can enforce tier visibility on results. Distance is cosine
// distance; relevance is derived as 1 - distance, clamped to [0, 1].
//
// Availability contract: the pipeline treats any store error as "no usable
// index" and degrades to empty results. The store itself reports errors
// normally; the degrade decision belongs to the caller.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

// ContentPreviewLen bounds the content snippet carried with each neighbor.
const ContentPreviewLen = 200

// TruncateOnRune shortens s to at most n bytes, backing off so a
// multi-byte rune is never split.
func TruncateOnRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// searchTimeout bounds a single vector search.
const searchTimeout = 10 * time.Second

// Document is a knowledge base document as the core sees it: read-only
// input owned by the ingestion layer.
type Document struct {
	ID       int64
	Title    string
	Content  string
	Tier     tier.Tier
	Category string
}

// Neighbor is one nearest-neighbor search result.
type Neighbor struct {
	DocID          int64
	Title          string
	ContentPreview string
	Tier           tier.Tier
	Distance       float32
}

// Relevance converts a cosine distance to a relevance score in [0, 1].
func Relevance(distance float32) float64 {
	r := 1.0 - float64(distance)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Querier is the subset of pgx the store needs. *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the pgvector-backed vector index client.
// Store is safe for concurrent use.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// New creates a Store on top of a pgx pool (or anything satisfying Querier).
func New(db Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Upsert writes a document and its embedding, replacing any previous row
// with the same id.
func (s *Store) Upsert(ctx context.Context, doc Document, vec []float32) error {
	embedding := pgvector.NewVector(vec)

	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (id, title, content, tier, category, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    content = EXCLUDED.content,
		    tier = EXCLUDED.tier,
		    category = EXCLUDED.category,
		    embedding = EXCLUDED.embedding,
		    updated_at = now()`,
		doc.ID, doc.Title, doc.Content, int(doc.Tier), doc.Category, &embedding)
	if err != nil {
		return fmt.Errorf("upsert document %d: %w", doc.ID, err)
	}

	s.logger.Debug("upserted document vector", "doc_id", doc.ID, "tier", int(doc.Tier))
	return nil
}

// NearestNeighbors returns up to limit documents ordered by cosine distance
// to vec. Tier filtering is intentionally not done here; the pipeline
// filters results against the caller's tier as defense in depth.
func (s *Store) NearestNeighbors(ctx context.Context, vec []float32, limit int) ([]Neighbor, error) {
	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding := pgvector.NewVector(vec)
	rows, err := s.db.Query(queryCtx, `
		SELECT id, title, left(content, $1), tier, embedding <=> $2 AS distance
		FROM documents
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3`,
		ContentPreviewLen, &embedding, limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		var tierVal int
		if err := rows.Scan(&n.DocID, &n.Title, &n.ContentPreview, &tierVal, &n.Distance); err != nil {
			return nil, fmt.Errorf("scanning neighbor: %w", err)
		}
		n.Tier = tier.Tier(tierVal)
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading neighbors: %w", err)
	}

	return neighbors, nil
}

// ResolveDocuments loads the documents for the given ids, without
// embeddings. Missing ids are simply absent from the result; callers decide
// whether that is an error.
func (s *Store) ResolveDocuments(ctx context.Context, ids []int64) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, title, content, tier, category
		FROM documents
		WHERE id = ANY($1)`,
		ids)
	if err != nil {
		return nil, fmt.Errorf("resolving documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var tierVal int
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &tierVal, &d.Category); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.Tier = tier.Tier(tierVal)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}

	return docs, nil
}

// Count returns the number of documents visible at the given tier.
func (s *Store) Count(ctx context.Context, t tier.Tier) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE tier <= $1`, int(t)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}
