package feedback

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgx the postgres store needs.
// *pgxpool.Pool satisfies it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists feedback in the feedback table.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a feedback store on a pgx pool.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// QueryExists reports whether the query log entry exists.
func (s *PostgresStore) QueryExists(ctx context.Context, queryID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM query_log WHERE id = $1)`, queryID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking query existence: %w", err)
	}
	return exists, nil
}

// Insert persists the entry.
func (s *PostgresStore) Insert(ctx context.Context, e Entry) (Entry, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO feedback (query_id, feedback_type, rating, feedback_text, sentiment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.QueryID, e.Type, e.Rating, e.Text, string(e.Sentiment)).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("inserting feedback: %w", err)
	}
	return e, nil
}
