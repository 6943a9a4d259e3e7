package query

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgx the recorder needs. *pgxpool.Pool
// satisfies it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRecorder writes answered queries to the query_log table.
type PostgresRecorder struct {
	db Querier
}

// NewPostgresRecorder creates a Recorder on a pgx pool.
func NewPostgresRecorder(db Querier) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record inserts one query log row and returns its id.
func (r *PostgresRecorder) Record(ctx context.Context, rec Record) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO query_log (query_text, response_text, confidence, tier, caller_role, source_count, processing_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		rec.Query, rec.Response, rec.Confidence, int(rec.Tier), rec.Role,
		rec.SourceCount, rec.Processing.Milliseconds()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("recording query: %w", err)
	}
	return id, nil
}

// NopRecorder discards records. Used in tests and offline runs.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Record) (int64, error) {
	return 0, nil
}
